// Package feed retrieves the current set of announcements from the
// university's public source and normalizes each into a candidate. Two
// sources are supported: an RSS/Atom bridge and a direct HTML scrape of
// the announcement page. Both preserve source order (typically
// newest-first); chronological reordering is the reconciler's job.
package feed

import (
	"context"

	"uniherald/internal/domain"
)

// Reader is the capability consumed by the reconciliation loop. A failed
// Fetch returns a *domain.FetchError and must be treated as fatal for the
// current cycle.
type Reader interface {
	Fetch(ctx context.Context) ([]domain.Announcement, error)
}
