package client

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	qbt "github.com/autobrr/go-qbittorrent"
)

// torrentAPI is the slice of go-qbittorrent we use. *qbt.Client
// satisfies it; tests substitute a fake.
type torrentAPI interface {
	LoginCtx(ctx context.Context) error
	AddTorrentFromUrlCtx(ctx context.Context, url string, options map[string]string) error
	GetTorrentsCtx(ctx context.Context, o qbt.TorrentFilterOptions) ([]qbt.Torrent, error)
	PauseCtx(ctx context.Context, hashes []string) error
	ResumeCtx(ctx context.Context, hashes []string) error
	DeleteTorrentsCtx(ctx context.Context, hashes []string, deleteFiles bool) error
}

// QBittorrent drives a qBittorrent instance over its WebUI API.
type QBittorrent struct {
	api      torrentAPI
	category string
	rewriter *Rewriter
	log      *slog.Logger

	mu       sync.Mutex
	loggedIn bool
}

// QBittorrentConfig configures the qBittorrent adapter.
type QBittorrentConfig struct {
	Host     string
	Username string
	Password string
	Category string
}

// NewQBittorrent creates the adapter. The rewriter may be nil.
func NewQBittorrent(cfg QBittorrentConfig, rewriter *Rewriter, log *slog.Logger) *QBittorrent {
	if log == nil {
		log = slog.Default()
	}
	api := qbt.NewClient(qbt.Config{
		Host:     cfg.Host,
		Username: cfg.Username,
		Password: cfg.Password,
	})
	return newQBittorrent(api, cfg.Category, rewriter, log)
}

func newQBittorrent(api torrentAPI, category string, rewriter *Rewriter, log *slog.Logger) *QBittorrent {
	if log == nil {
		log = slog.Default()
	}
	return &QBittorrent{
		api:      api,
		category: category,
		rewriter: rewriter,
		log:      log.With("component", "qbittorrent"),
	}
}

func (c *QBittorrent) Name() string { return "qbittorrent" }

func (c *QBittorrent) ensureLogin(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loggedIn {
		return nil
	}
	if err := c.api.LoginCtx(ctx); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "fail") {
			return fmt.Errorf("%w: %v", ErrAuth, err)
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	c.loggedIn = true
	return nil
}

// Submit adds a magnet or .torrent URL. For magnets the info hash is
// known up front; for plain URLs the handle comes back empty and the
// caller resolves it through List once the client has the metadata.
func (c *QBittorrent) Submit(ctx context.Context, req SubmitRequest) (Handle, error) {
	if err := c.ensureLogin(ctx); err != nil {
		return Handle{}, err
	}

	link := req.URL
	if c.rewriter != nil {
		link = c.rewriter.Rewrite(link)
	}

	category := req.Category
	if category == "" {
		category = c.category
	}
	opts := map[string]string{"category": category}

	if err := c.api.AddTorrentFromUrlCtx(ctx, link, opts); err != nil {
		return Handle{}, fmt.Errorf("%w: add torrent: %v", ErrUnavailable, err)
	}

	h := Handle{Client: c.Name(), ID: magnetHash(req.URL)}
	c.log.Debug("torrent submitted", "name", req.Name, "hash", h.ID)
	return h, nil
}

// ResolveHandle finds a submitted torrent by release name within our
// category. Used when Submit could not report a hash.
func (c *QBittorrent) ResolveHandle(ctx context.Context, name string) (Handle, error) {
	if err := c.ensureLogin(ctx); err != nil {
		return Handle{}, err
	}

	torrents, err := c.api.GetTorrentsCtx(ctx, qbt.TorrentFilterOptions{Category: c.category})
	if err != nil {
		return Handle{}, fmt.Errorf("%w: list torrents: %v", ErrUnavailable, err)
	}

	for i := range torrents {
		if strings.EqualFold(torrents[i].Name, name) {
			return Handle{Client: c.Name(), ID: torrents[i].Hash}, nil
		}
	}
	return Handle{}, ErrNotFound
}

func (c *QBittorrent) Status(ctx context.Context, h Handle) (*TransferStatus, error) {
	if err := c.ensureLogin(ctx); err != nil {
		return nil, err
	}

	torrents, err := c.api.GetTorrentsCtx(ctx, qbt.TorrentFilterOptions{Hashes: []string{h.ID}})
	if err != nil {
		return nil, fmt.Errorf("%w: get torrent: %v", ErrUnavailable, err)
	}
	if len(torrents) == 0 {
		return nil, ErrNotFound
	}
	return c.toStatus(&torrents[0]), nil
}

func (c *QBittorrent) List(ctx context.Context) ([]*TransferStatus, error) {
	if err := c.ensureLogin(ctx); err != nil {
		return nil, err
	}

	torrents, err := c.api.GetTorrentsCtx(ctx, qbt.TorrentFilterOptions{Category: c.category})
	if err != nil {
		return nil, fmt.Errorf("%w: list torrents: %v", ErrUnavailable, err)
	}

	statuses := make([]*TransferStatus, 0, len(torrents))
	for i := range torrents {
		statuses = append(statuses, c.toStatus(&torrents[i]))
	}
	return statuses, nil
}

func (c *QBittorrent) Pause(ctx context.Context, h Handle) error {
	if err := c.ensureLogin(ctx); err != nil {
		return err
	}
	if err := c.api.PauseCtx(ctx, []string{h.ID}); err != nil {
		return fmt.Errorf("%w: pause: %v", ErrUnavailable, err)
	}
	return nil
}

func (c *QBittorrent) Resume(ctx context.Context, h Handle) error {
	if err := c.ensureLogin(ctx); err != nil {
		return err
	}
	if err := c.api.ResumeCtx(ctx, []string{h.ID}); err != nil {
		return fmt.Errorf("%w: resume: %v", ErrUnavailable, err)
	}
	return nil
}

func (c *QBittorrent) Remove(ctx context.Context, h Handle, deleteFiles bool) error {
	if err := c.ensureLogin(ctx); err != nil {
		return err
	}
	if err := c.api.DeleteTorrentsCtx(ctx, []string{h.ID}, deleteFiles); err != nil {
		return fmt.Errorf("%w: delete: %v", ErrUnavailable, err)
	}
	c.log.Debug("torrent removed", "hash", h.ID, "delete_files", deleteFiles)
	return nil
}

func (c *QBittorrent) toStatus(t *qbt.Torrent) *TransferStatus {
	path := t.ContentPath
	if path == "" {
		path = t.SavePath
	}
	return &TransferStatus{
		Handle:   Handle{Client: c.Name(), ID: t.Hash},
		Name:     t.Name,
		State:    mapTorrentState(t.State),
		Progress: t.Progress * 100,
		Size:     t.Size,
		Speed:    t.DlSpeed,
		ETA:      t.ETA,
		Ratio:    t.Ratio,
		Elapsed:  t.TimeActive,
		Path:     path,
	}
}

func mapTorrentState(s qbt.TorrentState) State {
	switch s {
	case qbt.TorrentStateQueuedDl, qbt.TorrentStateAllocating, qbt.TorrentStateMetaDl, qbt.TorrentStateCheckingResumeData:
		return StateQueued
	case qbt.TorrentStateDownloading, qbt.TorrentStateStalledDl, qbt.TorrentStateForcedDl, qbt.TorrentStateCheckingDl, qbt.TorrentStateMoving:
		return StateDownloading
	case qbt.TorrentStatePausedDl:
		return StatePaused
	case qbt.TorrentStateUploading, qbt.TorrentStateStalledUp, qbt.TorrentStateForcedUp, qbt.TorrentStateQueuedUp, qbt.TorrentStateCheckingUp:
		return StateSeeding
	case qbt.TorrentStatePausedUp:
		return StateCompleted
	case qbt.TorrentStateError, qbt.TorrentStateMissingFiles:
		return StateFailed
	default:
		return StateDownloading
	}
}

// magnetHash extracts the btih info hash from a magnet link, or ""
// when the URL is not a magnet.
func magnetHash(rawURL string) string {
	if !strings.HasPrefix(rawURL, "magnet:") {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	for _, xt := range u.Query()["xt"] {
		if strings.HasPrefix(xt, "urn:btih:") {
			return strings.ToLower(strings.TrimPrefix(xt, "urn:btih:"))
		}
	}
	return ""
}
