package enrich

import (
	"context"

	"github.com/ousepachn/insta-media-sync/internal/domain"
)

// Client drives AI content analysis over a record set according to a
// processing mode. The returned set is a new value; the input is never
// mutated. Per-record failures are absorbed into the summary.
type Client interface {
	Process(ctx context.Context, set domain.RecordSet, mode domain.ProcessMode) (domain.RecordSet, Summary, error)
}

// Summary reports how an enrichment pass went. Skipped counts both records
// that did not need processing and records whose analysis failed; failed
// records stay pending and are picked up by the next update_remaining pass.
type Summary struct {
	Processed int
	Skipped   int
	Failed    int
}

// GridCompositor assembles album media into fixed-size composite grids so
// a whole carousel can be analyzed in a bounded number of calls.
type GridCompositor interface {
	// BuildGrids reads up to itemCount media objects under sourcePrefix,
	// composes them into grids of at most four items, writes the grids
	// under destPrefix and returns their object paths in grid order.
	BuildGrids(ctx context.Context, sourcePrefix string, itemCount int, destPrefix string) ([]string, error)
}
