// Package opml imports and exports feed subscriptions as OPML.
package opml

import (
	"encoding/xml"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/robertmeta/trss-cli/model"
)

// OPML represents the root OPML structure.
type OPML struct {
	XMLName xml.Name `xml:"opml"`
	Version string   `xml:"version,attr"`
	Head    Head     `xml:"head"`
	Body    Body     `xml:"body"`
}

// Head contains metadata about the OPML document.
type Head struct {
	Title       string `xml:"title,omitempty"`
	DateCreated string `xml:"dateCreated,omitempty"`
}

// Body contains the outline elements.
type Body struct {
	Outlines []Outline `xml:"outline"`
}

// Outline represents a feed or category in OPML.
type Outline struct {
	Text     string    `xml:"text,attr,omitempty"`
	Title    string    `xml:"title,attr,omitempty"`
	Type     string    `xml:"type,attr,omitempty"`
	XMLUrl   string    `xml:"xmlUrl,attr,omitempty"`
	Category string    `xml:"category,attr,omitempty"`
	Outlines []Outline `xml:"outline,omitempty"`
}

// Parse reads an OPML document and turns every feed outline into a config
// entry saving to downloadDir. Imported entries start disabled so no
// filter-less feed downloads everything before it is reviewed. The outline
// category, if any, becomes the entry's label.
func Parse(r io.Reader, downloadDir string) ([]model.ConfigEntry, error) {
	var doc OPML
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse OPML: %w", err)
	}
	return extractEntries(doc.Body.Outlines, "", downloadDir), nil
}

// extractEntries walks outlines recursively. Nested outlines without their
// own category inherit the text of the enclosing outline.
func extractEntries(outlines []Outline, parentCategory, downloadDir string) []model.ConfigEntry {
	var entries []model.ConfigEntry

	for _, o := range outlines {
		if o.XMLUrl != "" {
			e := model.EmptyConfig()
			e.URL = o.XMLUrl
			e.DownloadDir = downloadDir
			e.Name = o.Title
			if e.Name == "" {
				e.Name = o.Text
			}
			if e.Name == "" {
				e.Name = o.XMLUrl
			}

			category := o.Category
			if category == "" {
				category = parentCategory
			}
			if category != "" {
				e.Label = []string{category}
			}
			entries = append(entries, e)
		}

		if len(o.Outlines) > 0 {
			childCategory := o.Text
			if childCategory == "" {
				childCategory = parentCategory
			}
			entries = append(entries, extractEntries(o.Outlines, childCategory, downloadDir)...)
		}
	}

	return entries
}

// Generate writes entries as an OPML document, grouped by their first label.
func Generate(w io.Writer, entries []model.ConfigEntry) error {
	categories := make(map[string][]model.ConfigEntry)
	var uncategorized []model.ConfigEntry

	for _, e := range entries {
		if len(e.Label) == 0 || e.Label[0] == "" {
			uncategorized = append(uncategorized, e)
			continue
		}
		categories[e.Label[0]] = append(categories[e.Label[0]], e)
	}

	doc := OPML{
		Version: "2.0",
		Head: Head{
			Title:       "trss subscriptions",
			DateCreated: time.Now().Format(time.RFC1123),
		},
		Body: Body{
			Outlines: []Outline{},
		},
	}

	names := make([]string, 0, len(categories))
	for name := range categories {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, category := range names {
		group := Outline{
			Text:     category,
			Title:    category,
			Outlines: []Outline{},
		}
		for _, e := range categories[category] {
			group.Outlines = append(group.Outlines, outlineOf(e, category))
		}
		doc.Body.Outlines = append(doc.Body.Outlines, group)
	}

	for _, e := range uncategorized {
		doc.Body.Outlines = append(doc.Body.Outlines, outlineOf(e, ""))
	}

	if _, err := w.Write([]byte(xml.Header)); err != nil {
		return fmt.Errorf("failed to write XML header: %w", err)
	}

	encoder := xml.NewEncoder(w)
	encoder.Indent("", "  ")
	if err := encoder.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode OPML: %w", err)
	}

	if _, err := w.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write final newline: %w", err)
	}
	return nil
}

func outlineOf(e model.ConfigEntry, category string) Outline {
	return Outline{
		Type:     "rss",
		Text:     e.Name,
		Title:    e.Name,
		XMLUrl:   e.URL,
		Category: category,
	}
}
