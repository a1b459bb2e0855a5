// Package client abstracts the download clients the pipeline hands
// work to. Torrent sources go to qBittorrent, usenet sources to
// SABnzbd; the scheduler only sees the Client interface.
package client

import (
	"context"
	"errors"
)

//go:generate mockgen -source=client.go -destination=mocks/mock_client.go -package=mocks

// Sentinel errors for the client package.
var (
	// ErrUnavailable is returned when the client cannot be reached.
	ErrUnavailable = errors.New("download client unavailable")

	// ErrAuth is returned when the client rejects our credentials.
	ErrAuth = errors.New("download client rejected credentials")

	// ErrNotFound is returned when the client no longer knows the transfer.
	ErrNotFound = errors.New("transfer not found in client")
)

// State is the client-side lifecycle of a transfer.
type State string

const (
	StateQueued      State = "queued"
	StateDownloading State = "downloading"
	StatePaused      State = "paused"
	StateSeeding     State = "seeding"
	StateCompleted   State = "completed"
	StateFailed      State = "failed"
)

// Handle identifies a transfer inside a specific client. For
// qBittorrent it is the info hash, for SABnzbd the nzo_id.
type Handle struct {
	Client string
	ID     string
}

// SubmitRequest carries everything needed to start a transfer.
type SubmitRequest struct {
	// URL is a magnet link, .torrent URL, or NZB URL.
	URL string
	// Name is the release name, used for handle resolution when the
	// client does not return an ID on submit.
	Name     string
	Category string
}

// TransferStatus is a snapshot of a transfer as the client reports it.
type TransferStatus struct {
	Handle   Handle
	Name     string
	State    State
	Progress float64 // 0..100
	Size     int64   // bytes
	Speed    int64   // bytes/sec
	ETA      int64   // seconds, 0 when unknown
	Ratio    float64 // torrent only
	Elapsed  int64   // seconds since the transfer became active
	Path     string  // where the client stored the files, once known
}

// Client is a download client the scheduler can drive.
type Client interface {
	// Name identifies the client in logs and handles.
	Name() string

	// Submit starts a transfer. The returned handle may be empty when
	// the client does not report an ID synchronously; callers resolve
	// it later via List.
	Submit(ctx context.Context, req SubmitRequest) (Handle, error)

	// Status reports one transfer. Returns ErrNotFound when the client
	// has forgotten it.
	Status(ctx context.Context, h Handle) (*TransferStatus, error)

	// List reports every transfer in our category.
	List(ctx context.Context) ([]*TransferStatus, error)

	Pause(ctx context.Context, h Handle) error
	Resume(ctx context.Context, h Handle) error

	// Remove deletes the transfer, optionally with its files.
	Remove(ctx context.Context, h Handle, deleteFiles bool) error
}
