package feed

import (
	"context"
	"log/slog"
	"strings"

	"github.com/mmcdole/gofeed"

	"uniherald/internal/domain"
)

// BridgeReader reads announcements through an RSS-to-JSON bridge or any
// plain RSS/Atom endpoint.
type BridgeReader struct {
	feedURL   string
	libParser *gofeed.Parser
	log       *slog.Logger
}

func NewBridgeReader(feedURL string, log *slog.Logger) *BridgeReader {
	return &BridgeReader{
		feedURL:   strings.TrimSpace(feedURL),
		libParser: gofeed.NewParser(),
		log:       log,
	}
}

func (r *BridgeReader) Fetch(ctx context.Context) ([]domain.Announcement, error) {
	parsed, err := r.libParser.ParseURLWithContext(r.feedURL, ctx)
	if err != nil {
		return nil, &domain.FetchError{URL: r.feedURL, Err: err}
	}

	announcements := make([]domain.Announcement, 0, len(parsed.Items))

	for _, item := range parsed.Items {
		link := strings.TrimSpace(item.Link)

		id := strings.TrimSpace(item.GUID)
		if id == "" {
			id = link
		}
		if id == "" {
			r.log.WarnContext(ctx, "Skipping feed item without guid and link",
				"feedURL", r.feedURL,
				"itemTitle", item.Title)

			continue
		}

		ann := domain.Announcement{
			ID:      id,
			Title:   strings.TrimSpace(item.Title),
			PubDate: strings.TrimSpace(item.Published),
			Link:    link,
		}

		if item.PublishedParsed != nil {
			ann.Published = *item.PublishedParsed
		} else if item.UpdatedParsed != nil {
			ann.Published = *item.UpdatedParsed
		}

		announcements = append(announcements, ann)
	}

	return announcements, nil
}
