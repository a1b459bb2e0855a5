package v1

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/tomearr/tomearr/internal/client"
	"github.com/tomearr/tomearr/internal/events"
	"github.com/tomearr/tomearr/internal/pipeline"
	"github.com/tomearr/tomearr/internal/queue"
)

func (s *Server) addWanted(w http.ResponseWriter, r *http.Request) {
	var req addWantedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		writeError(w, http.StatusBadRequest, "MISSING_TITLE", "title is required")
		return
	}

	item := &pipeline.Item{
		Identity: req.Identity,
		Title:    req.Title,
		Author:   req.Author,
		Narrator: req.Narrator,
		Priority: req.Priority,
	}
	created, err := s.deps.Queue.Enqueue(item)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "DB_ERROR", err.Error())
		return
	}

	// Enqueue is idempotent by identity; an existing active item comes
	// back instead of a new row.
	code := http.StatusCreated
	if created != item {
		code = http.StatusOK
	} else {
		s.publishQueued(r.Context(), created, false)
	}
	writeJSON(w, code, itemToResponse(created))
}

func (s *Server) addManual(w http.ResponseWriter, r *http.Request) {
	var req addManualRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		writeError(w, http.StatusBadRequest, "MISSING_TITLE", "title is required")
		return
	}
	if req.Selection.Reference == "" {
		writeError(w, http.StatusBadRequest, "MISSING_REFERENCE", "selection.reference is required")
		return
	}
	srcType := pipeline.SourceType(req.Selection.SourceType)
	switch srcType {
	case pipeline.SourceCatalog, pipeline.SourceTorrent, pipeline.SourceUsenet:
	default:
		writeError(w, http.StatusBadRequest, "INVALID_SOURCE_TYPE",
			"source_type must be catalog, torrent, or usenet")
		return
	}

	selTitle := req.Selection.Title
	if selTitle == "" {
		selTitle = req.Title
	}
	item := &pipeline.Item{
		Identity: req.Identity,
		Title:    req.Title,
		Author:   req.Author,
		Narrator: req.Narrator,
		Priority: req.Priority,
		Selected: &pipeline.Selected{
			Reference:  req.Selection.Reference,
			Title:      selTitle,
			Indexer:    req.Selection.Indexer,
			SourceType: srcType,
			Format:     req.Selection.Format,
			Bitrate:    req.Selection.Bitrate,
			Size:       req.Selection.Size,
			Confidence: 100,
		},
	}

	created, err := s.deps.Queue.Enqueue(item)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "DB_ERROR", err.Error())
		return
	}
	if created.Status == pipeline.StatusQueued && created.Selected != nil {
		if err := s.deps.Queue.Transition(created, pipeline.EventSkipSearch); err != nil {
			writeError(w, http.StatusInternalServerError, "DB_ERROR", err.Error())
			return
		}
	}

	// Same idempotency contract as addWanted: an existing active item
	// for the identity answers 200, not 201.
	code := http.StatusCreated
	if created != item {
		code = http.StatusOK
	} else {
		s.publishQueued(r.Context(), created, true)
	}
	writeJSON(w, code, itemToResponse(created))
}

// publishQueued announces a new pipeline item. Failures only lose the
// announcement; the row is already committed.
func (s *Server) publishQueued(ctx context.Context, item *pipeline.Item, manual bool) {
	if s.deps.Bus == nil {
		return
	}
	_ = s.deps.Bus.Publish(ctx, &events.ItemQueued{
		BaseEvent: events.NewBaseEvent(events.EventItemQueued, events.EntityItem, item.ID),
		Identity:  item.Identity,
		Title:     item.Title,
		Author:    item.Author,
		Priority:  item.Priority,
		Manual:    manual,
	})
}

func (s *Server) listQueue(w http.ResponseWriter, r *http.Request) {
	filter := queue.Filter{
		Limit:  queryInt(r, "limit", 100),
		Active: r.URL.Query().Get("active") == "true",
	}
	if statusStr := r.URL.Query().Get("status"); statusStr != "" {
		status := pipeline.Status(statusStr)
		if !status.Valid() {
			writeError(w, http.StatusBadRequest, "INVALID_STATUS", "unknown status: "+statusStr)
			return
		}
		filter.Status = &status
	}

	items, err := s.deps.Queue.List(filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "DB_ERROR", err.Error())
		return
	}

	resp := listItemsResponse{
		Items: make([]itemResponse, len(items)),
		Total: len(items),
	}
	for i, item := range items {
		resp.Items[i] = itemToResponse(item)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) queueStats(w http.ResponseWriter, r *http.Request) {
	counts, err := s.deps.Queue.CountByStatus()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "DB_ERROR", err.Error())
		return
	}

	resp := statsResponse{Counts: make(map[string]int, len(counts))}
	for status, n := range counts {
		resp.Counts[string(status)] = n
		resp.Total += n
		if !status.Terminal() {
			resp.Active += n
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) getItem(w http.ResponseWriter, r *http.Request) {
	item, ok := s.itemFromPath(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, itemToResponse(item))
}

func (s *Server) deleteItem(w http.ResponseWriter, r *http.Request) {
	item, ok := s.itemFromPath(w, r)
	if !ok {
		return
	}
	if !item.Terminal() {
		writeError(w, http.StatusConflict, "ITEM_ACTIVE",
			"only finished items can be deleted; cancel it first")
		return
	}
	if err := s.deps.Queue.Delete(item.ID); err != nil {
		writeError(w, http.StatusInternalServerError, "DB_ERROR", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) pauseItem(w http.ResponseWriter, r *http.Request) {
	item, ok := s.itemFromPath(w, r)
	if !ok {
		return
	}
	if !s.applyOperatorEvent(w, item, pipeline.EventPauseRequested) {
		return
	}
	s.mirrorToClient(r.Context(), item, func(ctx context.Context, c TransferController, h client.Handle) error {
		return c.Pause(ctx, h)
	})
	writeJSON(w, http.StatusOK, itemToResponse(item))
}

func (s *Server) resumeItem(w http.ResponseWriter, r *http.Request) {
	item, ok := s.itemFromPath(w, r)
	if !ok {
		return
	}
	if !s.applyOperatorEvent(w, item, pipeline.EventResumeRequested) {
		return
	}
	s.mirrorToClient(r.Context(), item, func(ctx context.Context, c TransferController, h client.Handle) error {
		return c.Resume(ctx, h)
	})
	writeJSON(w, http.StatusOK, itemToResponse(item))
}

func (s *Server) cancelItem(w http.ResponseWriter, r *http.Request) {
	item, ok := s.itemFromPath(w, r)
	if !ok {
		return
	}
	if !s.applyOperatorEvent(w, item, pipeline.EventOperatorCancel) {
		return
	}
	s.mirrorToClient(r.Context(), item, func(ctx context.Context, c TransferController, h client.Handle) error {
		return c.Remove(ctx, h, true)
	})
	writeJSON(w, http.StatusOK, itemToResponse(item))
}

func (s *Server) retryItem(w http.ResponseWriter, r *http.Request) {
	item, ok := s.itemFromPath(w, r)
	if !ok {
		return
	}
	if !s.applyOperatorEvent(w, item, pipeline.EventOperatorRetry) {
		return
	}
	writeJSON(w, http.StatusOK, itemToResponse(item))
}

func (s *Server) requeueItem(w http.ResponseWriter, r *http.Request) {
	item, ok := s.itemFromPath(w, r)
	if !ok {
		return
	}
	// The event clears the selection, so snapshot the transfer handle
	// before applying it.
	snapshot := *item
	if !s.applyOperatorEvent(w, item, pipeline.EventOperatorRequeue) {
		return
	}
	s.mirrorToClient(r.Context(), &snapshot, func(ctx context.Context, c TransferController, h client.Handle) error {
		return c.Remove(ctx, h, true)
	})
	writeJSON(w, http.StatusOK, itemToResponse(item))
}

func (s *Server) itemFromPath(w http.ResponseWriter, r *http.Request) (*pipeline.Item, bool) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", err.Error())
		return nil, false
	}
	item, err := s.deps.Queue.Get(id)
	if err != nil {
		if errors.Is(err, queue.ErrNotFound) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Item not found")
			return nil, false
		}
		writeError(w, http.StatusInternalServerError, "DB_ERROR", err.Error())
		return nil, false
	}
	return item, true
}

func (s *Server) applyOperatorEvent(w http.ResponseWriter, item *pipeline.Item, ev pipeline.Event) bool {
	if err := s.deps.Queue.Transition(item, ev); err != nil {
		switch {
		case errors.Is(err, pipeline.ErrInvalidTransition):
			writeError(w, http.StatusConflict, "INVALID_TRANSITION", err.Error())
		case errors.Is(err, queue.ErrStale):
			writeError(w, http.StatusConflict, "CONFLICT", "item changed concurrently, retry")
		default:
			writeError(w, http.StatusInternalServerError, "DB_ERROR", err.Error())
		}
		return false
	}
	return true
}

// mirrorToClient reflects an operator action into the download client.
// Failures are tolerated: the queue state is authoritative and the
// scheduler reconciles the client on its next pass.
func (s *Server) mirrorToClient(ctx context.Context, item *pipeline.Item, op func(context.Context, TransferController, client.Handle) error) {
	if item.Selected == nil || item.ClientID == "" {
		return
	}
	c, ok := s.deps.Clients[item.Selected.SourceType]
	if !ok || c == nil {
		return
	}
	cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_ = op(cctx, c, client.Handle{Client: c.Name(), ID: item.ClientID})
}
