// Package feed provides RSS/Atom feed fetching and item filtering for trss-cli.
package feed

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/robertmeta/trss-cli/model"
)

// Fetcher handles fetching and parsing RSS/Atom feeds.
type Fetcher struct {
	parser *gofeed.Parser
}

// NewFetcher creates a new Fetcher.
func NewFetcher() *Fetcher {
	return &Fetcher{
		parser: gofeed.NewParser(),
	}
}

// Fetch retrieves and parses a feed from a URL.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]model.Item, error) {
	parsedFeed, err := f.parser.ParseURLWithContext(url, ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed from %s: %w", url, err)
	}

	return f.convert(parsedFeed), nil
}

// Parse parses feed content from a string.
func (f *Fetcher) Parse(content string) ([]model.Item, error) {
	if content == "" {
		return nil, fmt.Errorf("feed content is empty")
	}

	parsedFeed, err := f.parser.ParseString(content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	return f.convert(parsedFeed), nil
}

// convert keeps only items that point at something downloadable.
func (f *Fetcher) convert(gf *gofeed.Feed) []model.Item {
	var items []model.Item
	for _, it := range gf.Items {
		item, ok := f.convertItem(it)
		if ok {
			items = append(items, item)
		}
	}
	return items
}

// convertItem converts a gofeed.Item to a model.Item. The first enclosure
// wins; a magnet link is used when there is no enclosure.
func (f *Fetcher) convertItem(it *gofeed.Item) (model.Item, bool) {
	item := model.Item{
		Title: it.Title,
		Link:  it.Link,
	}

	switch {
	case len(it.Enclosures) > 0 && it.Enclosures[0].URL != "":
		item.URL = it.Enclosures[0].URL
		item.ContentType = it.Enclosures[0].Type
	case strings.HasPrefix(it.Link, "magnet:?"):
		item.URL = it.Link
	default:
		return item, false
	}

	if it.PublishedParsed != nil {
		item.Published = *it.PublishedParsed
	} else if it.UpdatedParsed != nil {
		item.Published = *it.UpdatedParsed
	} else {
		// Fallback to current time if no date found
		item.Published = time.Now()
	}

	return item, true
}

// Decision is the outcome of filtering one item against a config entry.
type Decision struct {
	Item    model.Item `json:"item"`
	Matched bool       `json:"matched"`
	Reason  string     `json:"reason,omitempty"`
}

// Filter reports, for each item, whether entry would download it.
func Filter(entry model.ConfigEntry, items []model.Item) []Decision {
	m := entry.Matcher()
	out := make([]Decision, 0, len(items))
	for _, item := range items {
		d := Decision{Item: item}
		switch {
		case !entry.MatchDate(item.Published):
			d.Reason = "published before download_after"
		case !m.Match(item.Title):
			d.Reason = "title filtered"
		default:
			d.Matched = true
		}
		out = append(out, d)
	}
	return out
}
