package exporter

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/okian/trendpipe/internal/domain/merge"
	"github.com/okian/trendpipe/pkg/logger"
)

// WriteCSV serializes the table to w.
func WriteCSV(ctx context.Context, w io.Writer, t *merge.Table) error {
	l := newLayout(t)
	cw := csv.NewWriter(w)

	if err := cw.Write(l.header()); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, row := range t.Rows() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := cw.Write(l.row(row)); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// WriteCSVFile serializes the table to a file at path.
func WriteCSVFile(ctx context.Context, path string, t *merge.Table, log logger.Logger) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv file: %w", err)
	}
	defer f.Close()

	if err := WriteCSV(ctx, f, t); err != nil {
		return err
	}
	if log != nil {
		log.Info(ctx, "csv export written",
			logger.String("path", path),
			logger.Int("rows", t.Len()),
		)
	}
	return nil
}
