package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
	"mvdan.cc/xurls/v2"

	"uniherald/internal/domain"
)

const (
	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
		"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/127.0.0.0 Safari/537.36"

	scrapeClientTimeout = 20 * time.Second
	maxTitleChars       = 512
)

// Selectors locates announcement nodes inside the scraped page.
type Selectors struct {
	// Item matches one announcement row.
	Item string
	// Title matches the anchor (or text node) carrying title and href,
	// relative to Item.
	Title string
	// Date matches the publish date text, relative to Item. Optional.
	Date string
}

func DefaultSelectors() Selectors {
	return Selectors{
		Item:  "ul.news-list li",
		Title: "a",
		Date:  ".date, time",
	}
}

// ScrapeReader reads announcements directly off the university news page.
type ScrapeReader struct {
	pageURL   string
	selectors Selectors
	client    *http.Client
	policy    *bluemonday.Policy
	log       *slog.Logger
}

func NewScrapeReader(pageURL string, selectors Selectors, log *slog.Logger) *ScrapeReader {
	return &ScrapeReader{
		pageURL:   strings.TrimSpace(pageURL),
		selectors: selectors,
		client:    &http.Client{Timeout: scrapeClientTimeout},
		policy:    bluemonday.StrictPolicy(),
		log:       log,
	}
}

func (r *ScrapeReader) Fetch(ctx context.Context) ([]domain.Announcement, error) {
	base, err := url.Parse(r.pageURL)
	if err != nil {
		return nil, &domain.FetchError{URL: r.pageURL, Err: fmt.Errorf("parse page URL: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.pageURL, nil)
	if err != nil {
		return nil, &domain.FetchError{URL: r.pageURL, Err: fmt.Errorf("create request: %w", err)}
	}

	req.Header.Set("User-Agent", userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, &domain.FetchError{URL: r.pageURL, Err: fmt.Errorf("do request: %w", err)}
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			r.log.ErrorContext(ctx, "Failed to close response body",
				"error", closeErr,
				"pageURL", r.pageURL,
				"operation", "Fetch")
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, &domain.FetchError{
			URL: r.pageURL,
			Err: fmt.Errorf("do request: unexpected status: %d", resp.StatusCode),
		}
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, &domain.FetchError{URL: r.pageURL, Err: fmt.Errorf("parse document: %w", err)}
	}

	var announcements []domain.Announcement
	seen := make(map[string]struct{})

	doc.Find(r.selectors.Item).Each(func(_ int, sel *goquery.Selection) {
		ann, processErr := r.processItem(base, sel)
		if processErr != nil {
			r.log.WarnContext(ctx, "Skipping unparsable announcement node",
				"error", processErr,
				"pageURL", r.pageURL)

			return
		}

		if _, ok := seen[ann.ID]; ok {
			return
		}
		seen[ann.ID] = struct{}{}

		announcements = append(announcements, ann)
	})

	return announcements, nil
}

func (r *ScrapeReader) processItem(
	base *url.URL,
	sel *goquery.Selection,
) (domain.Announcement, error) {
	anchor := sel.Find(r.selectors.Title).First()

	title := r.sanitizeTitle(anchor.Text())
	if title == "" {
		title = r.sanitizeTitle(sel.Text())
	}
	if title == "" {
		return domain.Announcement{}, errors.New("empty title")
	}

	link, err := r.resolveLink(base, anchor, sel)
	if err != nil {
		return domain.Announcement{}, fmt.Errorf("resolve link: %w", err)
	}

	id := strings.TrimSpace(sel.AttrOr("id", ""))
	if id == "" {
		id = link
	}

	ann := domain.Announcement{
		ID:    id,
		Title: title,
		Link:  link,
	}

	if r.selectors.Date != "" {
		raw := strings.TrimSpace(sel.Find(r.selectors.Date).First().Text())
		ann.PubDate = raw
		ann.Published = parseWhen(raw)
	}

	return ann, nil
}

// resolveLink takes the href of the title anchor, resolving relative paths
// against the page URL. Nodes with no usable href fall back to the first
// strict URL found in their text.
func (r *ScrapeReader) resolveLink(
	base *url.URL,
	anchor *goquery.Selection,
	sel *goquery.Selection,
) (string, error) {
	href := strings.TrimSpace(anchor.AttrOr("href", ""))

	if href == "" || href == "#" {
		if found := xurls.Strict().FindString(sel.Text()); found != "" {
			return found, nil
		}

		return "", errors.New("no href and no URL in node text")
	}

	ref, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("parse href %q: %w", href, err)
	}

	return base.ResolveReference(ref).String(), nil
}

func (r *ScrapeReader) sanitizeTitle(raw string) string {
	title := strings.TrimSpace(r.policy.Sanitize(raw))
	title = strings.Join(strings.Fields(title), " ")

	if len(title) > maxTitleChars {
		title = title[:maxTitleChars]
	}

	return title
}
