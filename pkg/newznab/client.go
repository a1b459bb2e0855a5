// Package newznab implements the Newznab/Torznab indexer API protocol for
// audiobook searches. Torznab extends the same RSS surface with torrent
// attributes (seeders, peers, magneturl), so one client covers both usenet
// and torrent indexers.
package newznab

import (
	"context"
	"encoding/xml"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// CategoryAudiobook is the standard newznab audiobook category. Torznab
// trackers commonly add 3030 under the audio branch as well.
const (
	CategoryAudio     = 3000
	CategoryAudiobook = 3030
)

// Protocol distinguishes usenet indexers from torrent trackers.
type Protocol string

const (
	ProtocolUsenet  Protocol = "usenet"
	ProtocolTorrent Protocol = "torrent"
)

// Client is a Newznab/Torznab API client for a single indexer.
type Client struct {
	name       string
	baseURL    string
	apiKey     string
	protocol   Protocol
	httpClient *http.Client
	log        *slog.Logger
}

// Result is a raw search result from an indexer.
type Result struct {
	Title       string
	GUID        string
	DownloadURL string
	MagnetURL   string
	Size        int64
	Seeders     int
	Peers       int
	PublishDate time.Time
	Indexer     string
	Protocol    Protocol
}

// NewClient creates a client for one indexer.
func NewClient(name, baseURL, apiKey string, protocol Protocol, log *slog.Logger) *Client {
	var clientLog *slog.Logger
	if log != nil {
		clientLog = log.With("component", "newznab", "indexer", name)
	}
	return &Client{
		name:     name,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		apiKey:   apiKey,
		protocol: protocol,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: clientLog,
	}
}

// Name returns the indexer name.
func (c *Client) Name() string {
	return c.name
}

// Protocol returns the indexer's transfer protocol.
func (c *Client) Protocol() Protocol {
	return c.protocol
}

// Caps performs a capabilities request to test connectivity.
func (c *Client) Caps(ctx context.Context) error {
	u, err := url.Parse(c.baseURL + "/api")
	if err != nil {
		return err
	}
	q := u.Query()
	q.Set("t", "caps")
	q.Set("apikey", c.apiKey)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("caps request failed: %d", resp.StatusCode)
	}
	return nil
}

type rssResponse struct {
	XMLName xml.Name   `xml:"rss"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Items []rssItem `xml:"item"`
}

type rssItem struct {
	Title     string       `xml:"title"`
	GUID      string       `xml:"guid"`
	Link      string       `xml:"link"`
	Size      int64        `xml:"size"`
	PubDate   string       `xml:"pubDate"`
	Enclosure rssEnclosure `xml:"enclosure"`
	Attrs     []rssAttr    `xml:"attr"`
}

type rssEnclosure struct {
	URL    string `xml:"url,attr"`
	Length int64  `xml:"length,attr"`
}

// rssAttr matches both newznab:attr and torznab:attr elements; matching on
// the local name keeps one struct working for both namespaces.
type rssAttr struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// Search queries the indexer for audiobook releases.
func (c *Client) Search(ctx context.Context, query string, categories []int) ([]Result, error) {
	start := time.Now()

	reqURL, err := url.Parse(c.baseURL + "/api")
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	params := url.Values{}
	params.Set("apikey", c.apiKey)
	params.Set("t", "search")
	if query != "" {
		params.Set("q", query)
	}
	if len(categories) == 0 {
		categories = []int{CategoryAudiobook}
	}
	cats := make([]string, len(categories))
	for i, cat := range categories {
		cats[i] = strconv.Itoa(cat)
	}
	params.Set("cat", strings.Join(cats, ","))
	params.Set("limit", "100")
	reqURL.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var rss rssResponse
	if err := xml.NewDecoder(resp.Body).Decode(&rss); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	results := make([]Result, 0, len(rss.Channel.Items))
	for _, item := range rss.Channel.Items {
		results = append(results, c.toResult(item))
	}

	if c.log != nil {
		c.log.Debug("search complete", "query", query, "results", len(results), "duration_ms", time.Since(start).Milliseconds())
	}

	return results, nil
}

func (c *Client) toResult(item rssItem) Result {
	r := Result{
		Title:       item.Title,
		GUID:        item.GUID,
		DownloadURL: item.Link,
		Indexer:     c.name,
		Protocol:    c.protocol,
	}

	if item.Enclosure.Length > 0 {
		r.Size = item.Enclosure.Length
	} else if item.Size > 0 {
		r.Size = item.Size
	}

	if r.DownloadURL == "" && item.Enclosure.URL != "" {
		r.DownloadURL = item.Enclosure.URL
	}

	if item.PubDate != "" {
		for _, format := range []string{
			time.RFC1123Z,
			"Mon, 02 Jan 2006 15:04:05 MST",
			time.RFC1123,
		} {
			if t, err := time.Parse(format, item.PubDate); err == nil {
				r.PublishDate = t
				break
			}
		}
	}

	for _, attr := range item.Attrs {
		switch attr.Name {
		case "size":
			if r.Size == 0 {
				r.Size, _ = strconv.ParseInt(attr.Value, 10, 64)
			}
		case "seeders":
			r.Seeders, _ = strconv.Atoi(attr.Value)
		case "peers":
			r.Peers, _ = strconv.Atoi(attr.Value)
		case "magneturl":
			r.MagnetURL = attr.Value
		}
	}

	return r
}
