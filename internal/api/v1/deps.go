package v1

import (
	"context"
	"errors"

	"github.com/tomearr/tomearr/internal/client"
	"github.com/tomearr/tomearr/internal/events"
	"github.com/tomearr/tomearr/internal/pipeline"
	"github.com/tomearr/tomearr/internal/queue"
)

// TransferController is the slice of the download client the API needs
// for operator pause and resume.
type TransferController interface {
	Name() string
	Pause(ctx context.Context, h client.Handle) error
	Resume(ctx context.Context, h client.Handle) error
	Remove(ctx context.Context, h client.Handle, deleteFiles bool) error
}

// ServerDeps contains all dependencies for the API server. Queue is
// required; the rest may be nil.
type ServerDeps struct {
	Queue *queue.Store

	// Clients maps source types to their download client, used to
	// mirror operator pause and resume into the client. Optional.
	Clients map[pipeline.SourceType]TransferController

	EventLog *events.EventLog

	// Bus announces freshly queued items to subscribers. Optional.
	Bus *events.Bus
}

// Validate checks that all required dependencies are provided.
func (d ServerDeps) Validate() error {
	if d.Queue == nil {
		return errors.New("queue store is required")
	}
	return nil
}
