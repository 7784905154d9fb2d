// Package job runs the background feed fetch.
package job

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/robertmeta/trss-cli/metrics"
	"github.com/robertmeta/trss-cli/model"
)

// ConfigSource provides the current collection.
type ConfigSource interface {
	ListConfigs(ctx context.Context) ([]model.ConfigEntry, error)
}

// SeenCache remembers which items have been handled.
type SeenCache interface {
	HasSeen(ctx context.Context, feedURL, itemURL string) (bool, error)
	MarkSeen(ctx context.Context, feedURL string, item model.Item) error
}

// ItemFetcher fetches the items of a feed.
type ItemFetcher interface {
	Fetch(ctx context.Context, url string) ([]model.Item, error)
}

// fetchTimeout bounds a single feed fetch.
const fetchTimeout = 45 * time.Second

// Job fetches every active feed and records newly matched items.
type Job struct {
	configs ConfigSource
	cache   SeenCache
	fetcher ItemFetcher
	notify  chan struct{}
	running atomic.Bool
}

// New creates a Job.
func New(configs ConfigSource, cache SeenCache, fetcher ItemFetcher) *Job {
	return &Job{
		configs: configs,
		cache:   cache,
		fetcher: fetcher,
		notify:  make(chan struct{}, 1),
	}
}

// Running reports whether a run is in progress.
func (j *Job) Running() bool { return j.running.Load() }

// Trigger requests a run. Requests made while one is already pending are
// merged into it.
func (j *Job) Trigger(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case j.notify <- struct{}{}:
	default:
	}
	return nil
}

// Start runs the job every updateInterval and on each Trigger until ctx is done.
func (j *Job) Start(ctx context.Context, updateInterval time.Duration) error {
	c := cron.New()
	schedule := fmt.Sprintf("@every %s", updateInterval)
	if _, err := c.AddFunc(schedule, func() { j.Do(ctx) }); err != nil {
		return fmt.Errorf("cron.AddFunc(%q): %w", schedule, err)
	}

	c.Start()
	slog.Info("job scheduler started", "schedule", schedule)
	defer func() {
		<-c.Stop().Done()
		slog.Info("job scheduler stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-j.notify:
			j.Do(ctx)
		}
	}
}

// Do performs one run and returns how many new items matched. Feeds on
// different hosts are fetched in parallel, feeds on the same host one after
// another. A run requested while another is in progress is skipped.
func (j *Job) Do(ctx context.Context) int {
	if !j.running.CompareAndSwap(false, true) {
		slog.Warn("job is already running")
		return 0
	}
	defer j.running.Store(false)

	metrics.JobRunning.Set(1)
	defer metrics.JobRunning.Set(0)
	defer metrics.JobRunsTotal.Inc()

	slog.Info("start job")

	configs, err := j.configs.ListConfigs(ctx)
	if err != nil {
		slog.Error("load configs failed", "err", err)
		return 0
	}

	var total atomic.Int64
	var wg sync.WaitGroup
	for host, group := range groupByHost(configs, time.Now()) {
		host, group := host, group
		wg.Add(1)
		go func() {
			defer wg.Done()
			total.Add(int64(j.doHost(ctx, host, group)))
		}()
	}
	wg.Wait()

	slog.Info("job done", "matched", total.Load())
	return int(total.Load())
}

func (j *Job) doHost(ctx context.Context, host string, configs []model.ConfigEntry) int {
	matched := 0
	for _, c := range configs {
		if c.FetchInterval != nil {
			select {
			case <-ctx.Done():
				return matched
			case <-time.After(time.Duration(*c.FetchInterval) * time.Second):
			}
		}

		fctx, cancel := context.WithTimeout(ctx, fetchTimeout)
		items, err := j.fetcher.Fetch(fctx, c.URL)
		cancel()
		if err != nil {
			metrics.FeedFetchErrorsTotal.WithLabelValues(host).Inc()
			slog.Error("parse rss failed", "err", err, "url", c.URL, "name", c.Name)
			continue
		}
		slog.Info("parse rss", "url", c.URL, "name", c.Name, "items", len(items))

		matched += j.process(ctx, c, items)
	}
	return matched
}

func (j *Job) process(ctx context.Context, c model.ConfigEntry, items []model.Item) int {
	m := c.Matcher()
	matched := 0
	for _, item := range items {
		if !c.MatchDate(item.Published) || !m.Match(item.Title) {
			continue
		}

		seen, err := j.cache.HasSeen(ctx, c.URL, item.URL)
		if err != nil {
			slog.Error("process item failed", "url", item.URL, "name", c.Name, "err", err)
			continue
		}
		if seen {
			continue
		}

		if err := j.cache.MarkSeen(ctx, c.URL, item); err != nil {
			slog.Error("process item failed", "url", item.URL, "name", c.Name, "err", err)
			continue
		}
		metrics.ItemsMatchedTotal.WithLabelValues(c.Name).Inc()
		slog.Info("matched item", "name", c.Name, "title", item.Title, "url", item.URL,
			"download_dir", c.DownloadDir, "labels", c.Label)
		matched++
	}
	return matched
}

// groupByHost drops inactive entries and groups the rest by feed host.
// Entries whose URL does not parse share the "default" group.
func groupByHost(configs []model.ConfigEntry, now time.Time) map[string][]model.ConfigEntry {
	m := make(map[string][]model.ConfigEntry)
	for _, c := range configs {
		if c.ExpiredOrDisabled(now) {
			continue
		}
		host := "default"
		if u, err := url.Parse(c.URL); err == nil && u.Host != "" {
			host = u.Host
		}
		m[host] = append(m[host], c)
	}
	return m
}
