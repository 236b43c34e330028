package exporter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/okian/trendpipe/internal/domain/merge"
	"github.com/okian/trendpipe/pkg/logger"
)

const sheetName = "unified"

// WriteXLSXFile serializes the table to an XLSX workbook at path. Metric
// cells carry numeric values so spreadsheet consumers can aggregate without
// re-parsing; an absent metric leaves the cell unset.
func WriteXLSXFile(ctx context.Context, path string, t *merge.Table, log logger.Logger) error {
	l := newLayout(t)

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("drop default sheet: %w", err)
	}

	for col, name := range l.header() {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return fmt.Errorf("header cell name: %w", err)
		}
		if err := f.SetCellValue(sheetName, cell, name); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}

	if err := f.SetPanes(sheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("freeze header row: %w", err)
	}

	for i, row := range t.Rows() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := writeXLSXRow(f, l, i+2, row); err != nil {
			return err
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	if log != nil {
		log.Info(ctx, "xlsx export written",
			logger.String("path", path),
			logger.Int("rows", t.Len()),
		)
	}
	return nil
}

func writeXLSXRow(f *excelize.File, l layout, rowNum int, r merge.UnifiedRow) error {
	set := func(col int, v interface{}) error {
		cell, err := excelize.CoordinatesToCellName(col, rowNum)
		if err != nil {
			return fmt.Errorf("cell name: %w", err)
		}
		if err := f.SetCellValue(sheetName, cell, v); err != nil {
			return fmt.Errorf("write cell: %w", err)
		}
		return nil
	}

	if err := set(1, r.Bucket.UTC().Format(time.RFC3339)); err != nil {
		return err
	}
	if err := set(2, r.EntityID); err != nil {
		return err
	}
	if err := set(3, strings.Join(r.Sources, sourceSeparator)); err != nil {
		return err
	}

	col := 4
	for _, name := range l.metricCols {
		if v, ok := r.Metric(name); ok {
			if err := set(col, v); err != nil {
				return err
			}
		}
		col++
	}
	for _, dim := range l.tagCols {
		if v, ok := r.Tag(dim); ok {
			if err := set(col, v); err != nil {
				return err
			}
		}
		col++
	}
	return nil
}
