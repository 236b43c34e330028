// Package repository holds the current unified-table snapshot and serves
// read-only views of it.
package repository

import (
	"context"
	"time"

	"github.com/okian/trendpipe/internal/domain/filter"
	"github.com/okian/trendpipe/internal/domain/merge"
)

// Store provides access to the table produced by the last pipeline run.
//
// Writes happen by whole-table replacement only: a rebuild swaps in a new
// snapshot and readers keep iterating whatever snapshot they already hold.
type Store interface {
	// Replace installs table as the current snapshot.
	Replace(ctx context.Context, table *merge.Table)

	// Table returns the current snapshot. Before the first Replace it
	// returns a valid empty table.
	Table(ctx context.Context) *merge.Table

	// Query returns the rows of the current snapshot satisfying spec.
	Query(ctx context.Context, spec filter.Spec) ([]merge.UnifiedRow, error)

	// Count returns the number of rows in the current snapshot.
	Count(ctx context.Context) int

	// LastBuilt returns when the current snapshot was assembled; zero
	// before the first Replace.
	LastBuilt(ctx context.Context) time.Time
}
