// Package model defines the core data structures for trss-cli.
package model

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Required field names as they appear on the wire.
const (
	FieldName        = "name"
	FieldURL         = "url"
	FieldDownloadDir = "download_dir"
)

// ConfigEntry is one RSS subscription definition consumed by the downloader.
//
// Optional numeric fields are pointers: nil means "not present" and is
// omitted from the JSON body, so a cleared value never reaches the server as 0.
type ConfigEntry struct {
	Disabled      bool     `json:"disabled" toml:"disabled"`
	Name          string   `json:"name" toml:"name"`
	URL           string   `json:"url" toml:"url"`
	DownloadDir   string   `json:"download_dir" toml:"download_dir"`
	Internal      *int64   `json:"internal,omitempty" toml:"internal,omitempty"`
	Regexp        []string `json:"regexp,omitempty" toml:"regexp,omitempty"`
	ExcludeRegexp []string `json:"exclude_regexp,omitempty" toml:"exclude_regexp,omitempty"`
	DownloadAfter *int64   `json:"download_after,omitempty" toml:"download_after,omitempty"`
	ExpireTime    *int64   `json:"expire_time,omitempty" toml:"expire_time,omitempty"`
	FetchInterval *int64   `json:"fetch_interval,omitempty" toml:"fetch_interval,omitempty"`
	Label         []string `json:"label,omitempty" toml:"label,omitempty"`
}

// EmptyConfig returns the template used when creating a new entry.
// New entries start disabled so they are not fetched before they are reviewed.
func EmptyConfig() ConfigEntry {
	return ConfigEntry{Disabled: true}
}

// ValidationError reports which required fields are missing.
type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("missing required fields: %s", strings.Join(e.Missing, ", "))
}

// IsMissing reports whether field is one of the missing fields.
func (e *ValidationError) IsMissing(field string) bool {
	return slices.Contains(e.Missing, field)
}

// MissingFields returns the required fields that are blank, in wire order.
func (c *ConfigEntry) MissingFields() []string {
	var missing []string
	if strings.TrimSpace(c.Name) == "" {
		missing = append(missing, FieldName)
	}
	if strings.TrimSpace(c.URL) == "" {
		missing = append(missing, FieldURL)
	}
	if strings.TrimSpace(c.DownloadDir) == "" {
		missing = append(missing, FieldDownloadDir)
	}
	return missing
}

// Validate checks that the entry can be submitted.
// It returns a *ValidationError naming every missing field.
func (c *ConfigEntry) Validate() error {
	if missing := c.MissingFields(); len(missing) > 0 {
		return &ValidationError{Missing: missing}
	}
	return nil
}

// Clone returns a deep copy of the entry.
func (c ConfigEntry) Clone() ConfigEntry {
	out := c
	out.Regexp = slices.Clone(c.Regexp)
	out.ExcludeRegexp = slices.Clone(c.ExcludeRegexp)
	out.Label = slices.Clone(c.Label)
	out.Internal = cloneInt(c.Internal)
	out.DownloadAfter = cloneInt(c.DownloadAfter)
	out.ExpireTime = cloneInt(c.ExpireTime)
	out.FetchInterval = cloneInt(c.FetchInterval)
	return out
}

// Equal reports whether two entries hold the same value.
// A nil list and an empty list are equal, as both serialize to "absent".
func (c ConfigEntry) Equal(o ConfigEntry) bool {
	return c.Disabled == o.Disabled &&
		c.Name == o.Name &&
		c.URL == o.URL &&
		c.DownloadDir == o.DownloadDir &&
		slices.Equal(c.Regexp, o.Regexp) &&
		slices.Equal(c.ExcludeRegexp, o.ExcludeRegexp) &&
		slices.Equal(c.Label, o.Label) &&
		intEqual(c.Internal, o.Internal) &&
		intEqual(c.DownloadAfter, o.DownloadAfter) &&
		intEqual(c.ExpireTime, o.ExpireTime) &&
		intEqual(c.FetchInterval, o.FetchInterval)
}

// ExpiredOrDisabled reports whether the job should skip this entry at now.
func (c *ConfigEntry) ExpiredOrDisabled(now time.Time) bool {
	if c.Disabled {
		return true
	}
	if c.ExpireTime == nil {
		return false
	}
	return time.Unix(*c.ExpireTime, 0).Before(now)
}

// MatchDate reports whether an item published at pubDate is recent enough.
func (c *ConfigEntry) MatchDate(pubDate time.Time) bool {
	if c.DownloadAfter == nil {
		return true
	}
	return pubDate.After(time.Unix(*c.DownloadAfter, 0))
}

// JobStatus is the state of the background fetch job.
type JobStatus struct {
	Running bool `json:"running"`
}

// UpdateRequest is a conditional update: replace the entry at Index with
// Config only if the stored value still equals Original.
type UpdateRequest struct {
	Index    int          `json:"index"`
	Config   *ConfigEntry `json:"config"`
	Original *ConfigEntry `json:"original"`
}

// NewUpdateRequest builds an update from a working copy and the value it was loaded from.
func NewUpdateRequest(index int, config, original ConfigEntry) UpdateRequest {
	c, o := config.Clone(), original.Clone()
	return UpdateRequest{Index: index, Config: &c, Original: &o}
}

// DeleteRequest is a conditional delete: remove the entry at Index only if
// the stored value still equals Config.
type DeleteRequest struct {
	Index  int          `json:"index"`
	Config *ConfigEntry `json:"config"`
}

// NewDeleteRequest builds a delete for the entry last observed at index.
func NewDeleteRequest(index int, config ConfigEntry) DeleteRequest {
	c := config.Clone()
	return DeleteRequest{Index: index, Config: &c}
}

// Item is a single downloadable item from a feed.
type Item struct {
	Title       string    `json:"title"`
	Link        string    `json:"link,omitempty"`
	URL         string    `json:"url"`
	ContentType string    `json:"content_type,omitempty"`
	Published   time.Time `json:"published"`
}

func cloneInt(p *int64) *int64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func intEqual(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
