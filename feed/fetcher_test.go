package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/robertmeta/trss-cli/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRSS = `<?xml version="1.0"?>
<rss version="2.0">
  <channel>
    <title>Test Torrent Feed</title>
    <link>https://example.com</link>
    <item>
      <title>Show A - 01 [1080p]</title>
      <link>https://example.com/view/1</link>
      <pubDate>Mon, 03 Jun 2024 10:00:00 +0000</pubDate>
      <enclosure url="https://example.com/1.torrent" type="application/x-bittorrent" length="100"/>
    </item>
    <item>
      <title>Show A - 01 [720p] (CR)</title>
      <link>https://example.com/view/2</link>
      <pubDate>Sat, 01 Jun 2024 10:00:00 +0000</pubDate>
      <enclosure url="https://example.com/2.torrent" type="application/x-bittorrent" length="100"/>
    </item>
    <item>
      <title>Magnet only</title>
      <link>magnet:?xt=urn:btih:abc</link>
      <pubDate>Sun, 02 Jun 2024 10:00:00 +0000</pubDate>
    </item>
    <item>
      <title>Nothing to download</title>
      <link>https://example.com/view/4</link>
    </item>
  </channel>
</rss>`

func TestFetcher_Parse(t *testing.T) {
	fetcher := NewFetcher()
	items, err := fetcher.Parse(testRSS)
	require.NoError(t, err)

	require.Len(t, items, 3, "items without enclosure or magnet are skipped")

	assert.Equal(t, "Show A - 01 [1080p]", items[0].Title)
	assert.Equal(t, "https://example.com/1.torrent", items[0].URL)
	assert.Equal(t, "application/x-bittorrent", items[0].ContentType)
	assert.Equal(t, time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC), items[0].Published.UTC())

	assert.Equal(t, "magnet:?xt=urn:btih:abc", items[2].URL)
}

func TestFetcher_ParseInvalidFeed(t *testing.T) {
	fetcher := NewFetcher()

	_, err := fetcher.Parse("<invalid>xml</broken>")
	assert.Error(t, err, "Should error on invalid XML")

	_, err = fetcher.Parse("")
	assert.Error(t, err, "Should error on empty string")
}

func TestFetcher_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(testRSS))
	}))
	defer srv.Close()

	items, err := NewFetcher().Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Len(t, items, 3)
}

func TestFetcher_FetchNotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := NewFetcher().Fetch(context.Background(), srv.URL)
	assert.Error(t, err)
}

func TestFilter(t *testing.T) {
	items, err := NewFetcher().Parse(testRSS)
	require.NoError(t, err)

	entry := model.ConfigEntry{
		Regexp:        []string{`Show A`},
		ExcludeRegexp: []string{`\(CR\)`},
		DownloadAfter: model.Int64(time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC).Unix()),
	}

	decisions := Filter(entry, items)
	require.Len(t, decisions, 3)

	assert.True(t, decisions[0].Matched)
	assert.False(t, decisions[1].Matched)
	assert.Equal(t, "published before download_after", decisions[1].Reason)
	assert.False(t, decisions[2].Matched)
	assert.Equal(t, "title filtered", decisions[2].Reason)
}
