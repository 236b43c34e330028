package exporter_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/xuri/excelize/v2"

	"github.com/okian/trendpipe/internal/domain/merge"
	"github.com/okian/trendpipe/internal/domain/record"
	"github.com/okian/trendpipe/internal/exporter"
)

func sampleTable() *merge.Table {
	day := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	rows := []merge.UnifiedRow{
		{
			Bucket:   day,
			EntityID: "track:1",
			Metrics: map[string]float64{
				"spotify." + record.MetricPopularity: 80,
				"youtube." + record.MetricViews:      1000,
				record.MetricEngagementRate:          5,
			},
			Tags:    map[string]string{record.TagGenre: "pop"},
			Sources: []string{"spotify", "youtube"},
		},
		{
			Bucket:   day,
			EntityID: "track:2",
			Metrics: map[string]float64{
				"sales." + record.MetricUnitsSold: 12.5,
			},
			Tags:    map[string]string{},
			Sources: []string{"sales"},
		},
	}
	return merge.NewTable(rows, merge.Daily, day.Add(6*time.Hour))
}

func TestWriteCSV(t *testing.T) {
	Convey("Given a two-row unified table", t, func() {
		table := sampleTable()
		ctx := context.Background()

		Convey("When exported to CSV", func() {
			var buf bytes.Buffer
			So(exporter.WriteCSV(ctx, &buf, table), ShouldBeNil)

			lines, err := csv.NewReader(&buf).ReadAll()
			So(err, ShouldBeNil)

			Convey("Then the header lists fixed, metric, and tag columns in order", func() {
				So(lines, ShouldHaveLength, 3)
				So(lines[0], ShouldResemble, []string{
					"bucket", "entity_id", "sources",
					"engagement_rate", "sales.units_sold",
					"spotify.popularity", "youtube.views",
					"genre",
				})
			})

			Convey("Then present values render and absent metrics stay empty", func() {
				So(lines[1][1], ShouldEqual, "track:1")
				So(lines[1][2], ShouldEqual, "spotify;youtube")
				So(lines[1][3], ShouldEqual, "5")
				So(lines[1][4], ShouldEqual, "")
				So(lines[1][5], ShouldEqual, "80")
				So(lines[1][7], ShouldEqual, "pop")

				So(lines[2][1], ShouldEqual, "track:2")
				So(lines[2][3], ShouldEqual, "")
				So(lines[2][4], ShouldEqual, "12.5")
				So(lines[2][7], ShouldEqual, "")
			})

			Convey("Then buckets are RFC3339 UTC", func() {
				So(lines[1][0], ShouldEqual, "2026-08-20T00:00:00Z")
			})
		})

		Convey("When exporting an empty table", func() {
			var buf bytes.Buffer
			So(exporter.WriteCSV(ctx, &buf, merge.EmptyTable(merge.Daily)), ShouldBeNil)

			lines, err := csv.NewReader(&buf).ReadAll()
			So(err, ShouldBeNil)

			Convey("Then only the fixed header remains", func() {
				So(lines, ShouldHaveLength, 1)
				So(lines[0], ShouldResemble, []string{"bucket", "entity_id", "sources"})
			})
		})

		Convey("When the context is already cancelled", func() {
			cancelled, cancel := context.WithCancel(ctx)
			cancel()
			var buf bytes.Buffer

			Convey("Then the export stops with the context error", func() {
				So(exporter.WriteCSV(cancelled, &buf, table), ShouldNotBeNil)
			})
		})
	})
}

func TestWriteCSVFile(t *testing.T) {
	Convey("Given a table and a target path", t, func() {
		table := sampleTable()
		path := filepath.Join(t.TempDir(), "unified.csv")

		Convey("When written to disk", func() {
			So(exporter.WriteCSVFile(context.Background(), path, table, nil), ShouldBeNil)

			Convey("Then the file parses back with all rows", func() {
				b, err := os.ReadFile(path)
				So(err, ShouldBeNil)
				lines, err := csv.NewReader(bytes.NewReader(b)).ReadAll()
				So(err, ShouldBeNil)
				So(lines, ShouldHaveLength, 3)
			})
		})

		Convey("When the directory does not exist", func() {
			err := exporter.WriteCSVFile(context.Background(), "/nonexistent/dir/out.csv", table, nil)
			So(err, ShouldNotBeNil)
		})
	})
}

func TestWriteXLSXFile(t *testing.T) {
	Convey("Given a two-row unified table", t, func() {
		table := sampleTable()
		path := filepath.Join(t.TempDir(), "unified.xlsx")

		Convey("When exported to XLSX", func() {
			So(exporter.WriteXLSXFile(context.Background(), path, table, nil), ShouldBeNil)

			f, err := excelize.OpenFile(path)
			So(err, ShouldBeNil)
			Reset(func() { _ = f.Close() })

			rows, err := f.GetRows("unified")
			So(err, ShouldBeNil)

			Convey("Then the sheet mirrors the CSV layout", func() {
				So(rows, ShouldHaveLength, 3)
				So(rows[0][0], ShouldEqual, "bucket")
				So(rows[0][3], ShouldEqual, "engagement_rate")
				So(rows[1][1], ShouldEqual, "track:1")
				So(rows[2][4], ShouldEqual, "12.5")
			})

			Convey("Then absent metric cells are empty", func() {
				cell, err := f.GetCellValue("unified", "E2")
				So(err, ShouldBeNil)
				So(cell, ShouldEqual, "")
			})
		})
	})
}
