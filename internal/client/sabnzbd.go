package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// SABnzbd drives a SABnzbd instance over its JSON API.
type SABnzbd struct {
	baseURL    string
	apiKey     string
	category   string
	rewriter   *Rewriter
	httpClient *http.Client
	log        *slog.Logger
}

// SABnzbdConfig configures the SABnzbd adapter.
type SABnzbdConfig struct {
	URL      string
	APIKey   string
	Category string
}

// NewSABnzbd creates the adapter. The rewriter may be nil.
func NewSABnzbd(cfg SABnzbdConfig, rewriter *Rewriter, log *slog.Logger) *SABnzbd {
	if log == nil {
		log = slog.Default()
	}
	return &SABnzbd{
		baseURL:  strings.TrimSuffix(cfg.URL, "/"),
		apiKey:   cfg.APIKey,
		category: cfg.Category,
		rewriter: rewriter,
		log:      log.With("component", "sabnzbd"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *SABnzbd) Name() string { return "sabnzbd" }

// Submit sends an NZB URL. SABnzbd reports the nzo_id synchronously,
// so the handle is always complete.
func (c *SABnzbd) Submit(ctx context.Context, req SubmitRequest) (Handle, error) {
	link := req.URL
	if c.rewriter != nil {
		link = c.rewriter.Rewrite(link)
	}

	category := req.Category
	if category == "" {
		category = c.category
	}

	params := url.Values{
		"mode":    {"addurl"},
		"name":    {link},
		"nzbname": {req.Name},
		"cat":     {category},
	}

	var resp sabAddResponse
	if err := c.doRequest(ctx, "addurl", params, &resp); err != nil {
		return Handle{}, err
	}

	if !resp.Status {
		if isAPIKeyError(resp.Error) {
			return Handle{}, fmt.Errorf("%w: %s", ErrAuth, resp.Error)
		}
		return Handle{}, fmt.Errorf("sabnzbd add failed: %s", resp.Error)
	}
	if len(resp.NzoIDs) == 0 {
		return Handle{}, fmt.Errorf("sabnzbd returned no nzo_id")
	}

	c.log.Debug("nzb submitted", "name", req.Name, "nzo_id", resp.NzoIDs[0])
	return Handle{Client: c.Name(), ID: resp.NzoIDs[0]}, nil
}

// Status checks the queue first, then history.
func (c *SABnzbd) Status(ctx context.Context, h Handle) (*TransferStatus, error) {
	queued, err := c.getQueue(ctx)
	if err != nil {
		return nil, err
	}
	for _, item := range queued {
		if item.Handle.ID == h.ID {
			return item, nil
		}
	}

	done, err := c.getHistory(ctx)
	if err != nil {
		return nil, err
	}
	for _, item := range done {
		if item.Handle.ID == h.ID {
			return item, nil
		}
	}
	return nil, ErrNotFound
}

// List combines queue and history, queue first.
func (c *SABnzbd) List(ctx context.Context) ([]*TransferStatus, error) {
	queued, err := c.getQueue(ctx)
	if err != nil {
		return nil, err
	}
	done, err := c.getHistory(ctx)
	if err != nil {
		return nil, err
	}
	return append(queued, done...), nil
}

func (c *SABnzbd) Pause(ctx context.Context, h Handle) error {
	return c.queueAction(ctx, "pause", h.ID)
}

func (c *SABnzbd) Resume(ctx context.Context, h Handle) error {
	return c.queueAction(ctx, "resume", h.ID)
}

// Remove deletes a job from the queue. SABnzbd cleans up partial
// files itself when delete_files is set.
func (c *SABnzbd) Remove(ctx context.Context, h Handle, deleteFiles bool) error {
	params := url.Values{
		"mode":  {"queue"},
		"name":  {"delete"},
		"value": {h.ID},
	}
	if deleteFiles {
		params.Set("del_files", "1")
	}

	var resp sabStatusResponse
	if err := c.doRequest(ctx, "queue/delete", params, &resp); err != nil {
		return err
	}
	if !resp.Status {
		return fmt.Errorf("sabnzbd remove failed")
	}

	c.log.Debug("nzb removed", "nzo_id", h.ID, "delete_files", deleteFiles)
	return nil
}

func (c *SABnzbd) queueAction(ctx context.Context, action, nzoID string) error {
	params := url.Values{
		"mode":  {"queue"},
		"name":  {action},
		"value": {nzoID},
	}

	var resp sabStatusResponse
	if err := c.doRequest(ctx, "queue/"+action, params, &resp); err != nil {
		return err
	}
	if !resp.Status {
		return fmt.Errorf("sabnzbd %s failed", action)
	}
	return nil
}

func (c *SABnzbd) getQueue(ctx context.Context) ([]*TransferStatus, error) {
	params := url.Values{"mode": {"queue"}}

	var resp sabQueueResponse
	if err := c.doRequest(ctx, "queue", params, &resp); err != nil {
		return nil, err
	}

	queueSpeed := parseSpeed(resp.Queue.Speed)

	items := make([]*TransferStatus, 0, len(resp.Queue.Slots))
	for i := range resp.Queue.Slots {
		slot := &resp.Queue.Slots[i]
		// Only the active slot moves; SABnzbd reports one global speed.
		speed := int64(0)
		if i == 0 {
			speed = queueSpeed
		}
		items = append(items, &TransferStatus{
			Handle:   Handle{Client: c.Name(), ID: slot.NzoID},
			Name:     slot.Filename,
			State:    mapSabQueueStatus(slot.Status),
			Progress: parseFloat(slot.Percentage),
			Size:     int64(parseFloat(slot.MB) * 1024 * 1024),
			Speed:    speed,
			ETA:      int64(parseTimeLeft(slot.TimeLeft).Seconds()),
		})
	}
	return items, nil
}

func (c *SABnzbd) getHistory(ctx context.Context) ([]*TransferStatus, error) {
	params := url.Values{"mode": {"history"}}

	var resp sabHistoryResponse
	if err := c.doRequest(ctx, "history", params, &resp); err != nil {
		return nil, err
	}

	items := make([]*TransferStatus, 0, len(resp.History.Slots))
	for _, slot := range resp.History.Slots {
		items = append(items, &TransferStatus{
			Handle:   Handle{Client: c.Name(), ID: slot.NzoID},
			Name:     slot.Name,
			State:    mapSabHistoryStatus(slot.Status),
			Progress: 100,
			Size:     slot.Bytes,
			Elapsed:  slot.DownloadTime,
			Path:     slot.Storage,
		})
	}
	return items, nil
}

func (c *SABnzbd) doRequest(ctx context.Context, mode string, params url.Values, result any) error {
	start := time.Now()
	params.Set("apikey", c.apiKey)
	params.Set("output", "json")
	reqURL := c.baseURL + "/api?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Debug("api request failed", "mode", mode, "error", err)
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return ErrAuth
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	c.log.Debug("api request complete", "mode", mode, "duration_ms", time.Since(start).Milliseconds())
	return nil
}

// Response types for the SABnzbd API.

type sabAddResponse struct {
	Status bool     `json:"status"`
	NzoIDs []string `json:"nzo_ids"`
	Error  string   `json:"error"`
}

type sabStatusResponse struct {
	Status bool `json:"status"`
}

type sabQueueResponse struct {
	Queue struct {
		Speed string         `json:"speed"` // e.g. "5.2 M"
		Slots []sabQueueSlot `json:"slots"`
	} `json:"queue"`
}

type sabQueueSlot struct {
	NzoID      string `json:"nzo_id"`
	Filename   string `json:"filename"`
	Status     string `json:"status"`
	Percentage string `json:"percentage"`
	MB         string `json:"mb"`
	TimeLeft   string `json:"timeleft"`
}

type sabHistoryResponse struct {
	History struct {
		Slots []sabHistorySlot `json:"slots"`
	} `json:"history"`
}

type sabHistorySlot struct {
	NzoID        string `json:"nzo_id"`
	Name         string `json:"name"`
	Status       string `json:"status"`
	Bytes        int64  `json:"bytes"`
	Storage      string `json:"storage"`
	DownloadTime int64  `json:"download_time"`
}

func mapSabQueueStatus(s string) State {
	switch s {
	case "Downloading", "Fetching", "Grabbing", "Checking":
		return StateDownloading
	case "Paused":
		return StatePaused
	case "Queued", "Propagating":
		return StateQueued
	default:
		return StateDownloading
	}
}

func mapSabHistoryStatus(s string) State {
	switch s {
	case "Completed":
		return StateCompleted
	case "Failed":
		return StateFailed
	default:
		// Verifying, Repairing, Extracting. The files are down but not
		// ready for pickup yet.
		return StateDownloading
	}
}

func isAPIKeyError(errMsg string) bool {
	lower := strings.ToLower(errMsg)
	return strings.Contains(lower, "api key") || strings.Contains(lower, "apikey")
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

// parseSpeed parses SABnzbd speed strings such as "5.2 M" to bytes/sec.
func parseSpeed(s string) int64 {
	parts := strings.Fields(strings.TrimSpace(s))
	if len(parts) == 0 {
		return 0
	}

	val, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return 0
	}
	if len(parts) > 1 {
		switch strings.ToUpper(parts[1]) {
		case "M":
			val *= 1024 * 1024
		case "K":
			val *= 1024
		}
	}
	return int64(val)
}

// parseTimeLeft parses SABnzbd time strings such as "0:05:30".
func parseTimeLeft(s string) time.Duration {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0
	}
	hours, _ := strconv.Atoi(parts[0])
	minutes, _ := strconv.Atoi(parts[1])
	seconds, _ := strconv.Atoi(parts[2])
	return time.Duration(hours)*time.Hour +
		time.Duration(minutes)*time.Minute +
		time.Duration(seconds)*time.Second
}
