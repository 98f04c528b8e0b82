// Package news builds a digest of recent headlines from configured
// RSS/Atom feeds, condensed by the model around the household's
// interests.
package news

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hausgeist/hausgeist/internal/httpkit"
)

// Feed is a parsed RSS or Atom feed with its entries normalized into a
// common structure.
type Feed struct {
	Title   string
	Entries []Entry
}

// Entry is a single headline in a feed.
type Entry struct {
	Title     string
	Link      string
	Summary   string
	Published time.Time
}

// rssFeed is the XML structure for RSS 2.0 feeds.
type rssFeed struct {
	XMLName xml.Name   `xml:"rss"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title string    `xml:"title"`
	Items []rssItem `xml:"item"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	PubDate     string `xml:"pubDate"`
}

// atomFeed is the XML structure for Atom feeds.
type atomFeed struct {
	XMLName xml.Name    `xml:"feed"`
	Title   string      `xml:"title"`
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	Title     string     `xml:"title"`
	Links     []atomLink `xml:"link"`
	Summary   string     `xml:"summary"`
	Published string     `xml:"published"`
	Updated   string     `xml:"updated"`
}

type atomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
}

// parseFeed parses XML data as either an Atom or RSS 2.0 feed,
// returning a normalized Feed.
func parseFeed(data []byte) (*Feed, error) {
	var atom atomFeed
	if err := xml.Unmarshal(data, &atom); err == nil && atom.XMLName.Local == "feed" {
		return atomToFeed(&atom), nil
	}

	var rss rssFeed
	if err := xml.Unmarshal(data, &rss); err == nil && rss.XMLName.Local == "rss" {
		return rssToFeed(&rss), nil
	}

	return nil, fmt.Errorf("unrecognized feed format (expected RSS 2.0 or Atom)")
}

// atomToFeed converts a parsed Atom feed to the normalized Feed type.
// When multiple <link> elements exist, the one with rel="alternate" is
// preferred. The published time falls back to <updated>.
func atomToFeed(af *atomFeed) *Feed {
	f := &Feed{Title: af.Title}
	for _, e := range af.Entries {
		pub, _ := time.Parse(time.RFC3339, e.Published)
		if pub.IsZero() {
			pub, _ = time.Parse(time.RFC3339, e.Updated)
		}
		f.Entries = append(f.Entries, Entry{
			Title:     e.Title,
			Link:      atomBestLink(e.Links),
			Summary:   e.Summary,
			Published: pub,
		})
	}
	return f
}

// atomBestLink selects the most appropriate link from an Atom entry's
// link list. Prefers rel="alternate"; falls back to the first link.
func atomBestLink(links []atomLink) string {
	if len(links) == 0 {
		return ""
	}
	for _, l := range links {
		if l.Rel == "alternate" || l.Rel == "" {
			return l.Href
		}
	}
	return links[0].Href
}

// rssToFeed converts a parsed RSS 2.0 feed to the normalized Feed type.
func rssToFeed(rf *rssFeed) *Feed {
	f := &Feed{Title: rf.Channel.Title}
	for _, item := range rf.Channel.Items {
		pub, _ := time.Parse(time.RFC1123Z, item.PubDate)
		if pub.IsZero() {
			// Try RFC1123 without numeric timezone.
			pub, _ = time.Parse(time.RFC1123, item.PubDate)
		}
		f.Entries = append(f.Entries, Entry{
			Title:     item.Title,
			Link:      item.Link,
			Summary:   item.Description,
			Published: pub,
		})
	}
	return f
}

// fetchFeed retrieves and parses a feed from the given URL.
func fetchFeed(ctx context.Context, httpClient *http.Client, feedURL string) (*Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml")
	// Some publishers refuse non-browser user agents.
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; Hausgeist)")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer httpkit.DrainAndClose(resp.Body, 1<<20) // 1 MB limit

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read feed body: %w", err)
	}

	return parseFeed(body)
}
