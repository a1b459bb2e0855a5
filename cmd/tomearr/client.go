package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Client wraps HTTP calls to the tomearr server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a tomearr API client.
func NewClient(serverURL string) *Client {
	return &Client{
		baseURL: serverURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// ItemResponse mirrors the server's queue item representation.
type ItemResponse struct {
	ID       int64  `json:"id"`
	Identity string `json:"identity,omitempty"`
	Title    string `json:"title"`
	Author   string `json:"author,omitempty"`
	Narrator string `json:"narrator,omitempty"`
	Priority int    `json:"priority"`
	Status   string `json:"status"`

	Selected *SelectionResponse `json:"selected,omitempty"`
	ClientID string             `json:"client_id,omitempty"`

	Progress       float64 `json:"progress"`
	SpeedBps       int64   `json:"speed_bps,omitempty"`
	ETASeconds     int64   `json:"eta_seconds,omitempty"`
	Ratio          float64 `json:"ratio,omitempty"`
	ElapsedSeconds int64   `json:"elapsed_seconds,omitempty"`

	DownloadPath  string `json:"download_path,omitempty"`
	ConvertedPath string `json:"converted_path,omitempty"`
	FinalPath     string `json:"final_path,omitempty"`

	LastError string `json:"last_error,omitempty"`

	QueuedAt    time.Time  `json:"queued_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// ListItemsResponse mirrors GET /queue.
type ListItemsResponse struct {
	Items []ItemResponse `json:"items"`
	Total int            `json:"total"`
}

// SelectionResponse mirrors the chosen candidate.
type SelectionResponse struct {
	Reference  string `json:"reference"`
	Title      string `json:"title"`
	Indexer    string `json:"indexer,omitempty"`
	SourceType string `json:"source_type"`
	Format     string `json:"format,omitempty"`
	Bitrate    int    `json:"bitrate,omitempty"`
	Size       int64  `json:"size,omitempty"`
	Confidence int    `json:"confidence"`
}

// StatsResponse mirrors GET /queue/stats.
type StatsResponse struct {
	Counts map[string]int `json:"counts"`
	Total  int            `json:"total"`
	Active int            `json:"active"`
}

// EventResponse mirrors one persisted event.
type EventResponse struct {
	ID         int64           `json:"id"`
	EventType  string          `json:"event_type"`
	EntityType string          `json:"entity_type"`
	EntityID   int64           `json:"entity_id"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	OccurredAt string          `json:"occurred_at"`
}

// ListEventsResponse mirrors GET /events.
type ListEventsResponse struct {
	Items []EventResponse `json:"items"`
	Total int             `json:"total"`
}

// AddWantedRequest is the body for POST /wanted.
type AddWantedRequest struct {
	Identity string `json:"identity,omitempty"`
	Title    string `json:"title"`
	Author   string `json:"author,omitempty"`
	Narrator string `json:"narrator,omitempty"`
	Priority int    `json:"priority,omitempty"`
}

func (c *Client) get(path string, result any) error {
	resp, err := c.httpClient.Get(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return serverError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(result)
}

func (c *Client) post(path string, body any, result any) error {
	var payload io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal error: %w", err)
		}
		payload = bytes.NewReader(jsonBody)
	}

	resp, err := c.httpClient.Post(c.baseURL+path, "application/json", payload)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return serverError(resp)
	}
	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}
	return nil
}

func serverError(resp *http.Response) error {
	var apiErr struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	body, _ := io.ReadAll(resp.Body)
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
		return fmt.Errorf("server error %d (%s): %s", resp.StatusCode, apiErr.Code, apiErr.Error)
	}
	return fmt.Errorf("server error %d: %s", resp.StatusCode, string(body))
}

// AddWanted queues a book for automatic search.
func (c *Client) AddWanted(req AddWantedRequest) (*ItemResponse, error) {
	var item ItemResponse
	if err := c.post("/api/v1/wanted", req, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// Queue lists pipeline items, optionally filtered by status.
func (c *Client) Queue(status string, activeOnly bool) (*ListItemsResponse, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if activeOnly {
		q.Set("active", "true")
	}
	path := "/api/v1/queue"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var list ListItemsResponse
	if err := c.get(path, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// Item fetches one pipeline item.
func (c *Client) Item(id int64) (*ItemResponse, error) {
	var item ItemResponse
	if err := c.get(fmt.Sprintf("/api/v1/queue/%d", id), &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// Stats fetches queue counts by status.
func (c *Client) Stats() (*StatsResponse, error) {
	var stats StatsResponse
	if err := c.get("/api/v1/queue/stats", &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// Control applies an operator action (pause, resume, cancel, retry).
func (c *Client) Control(id int64, action string) (*ItemResponse, error) {
	var item ItemResponse
	if err := c.post(fmt.Sprintf("/api/v1/queue/%d/%s", id, action), nil, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// Events fetches recent events, optionally for one item.
func (c *Client) Events(itemID int64, limit int) (*ListEventsResponse, error) {
	path := fmt.Sprintf("/api/v1/events?limit=%d", limit)
	if itemID > 0 {
		path = fmt.Sprintf("/api/v1/queue/%d/events", itemID)
	}

	var list ListEventsResponse
	if err := c.get(path, &list); err != nil {
		return nil, err
	}
	return &list, nil
}
