package v1

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/tomearr/tomearr/internal/events"
)

const maxEventLimit = 1000

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	if s.deps.EventLog == nil {
		writeError(w, http.StatusServiceUnavailable, "NO_EVENT_LOG", "Event log not configured")
		return
	}

	limit := queryInt(r, "limit", 50)
	if limit < 0 {
		writeError(w, http.StatusBadRequest, "INVALID_PAGINATION", "limit must be non-negative")
		return
	}
	if limit > maxEventLimit {
		limit = maxEventLimit
	}

	since := time.Time{}
	if sinceStr := r.URL.Query().Get("since"); sinceStr != "" {
		t, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_SINCE", "since must be RFC 3339")
			return
		}
		since = t
	}

	records, err := s.deps.EventLog.Since(since, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "EVENT_ERROR", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, recordsToResponse(records))
}

func (s *Server) listItemEvents(w http.ResponseWriter, r *http.Request) {
	if s.deps.EventLog == nil {
		writeError(w, http.StatusServiceUnavailable, "NO_EVENT_LOG", "Event log not configured")
		return
	}

	item, ok := s.itemFromPath(w, r)
	if !ok {
		return
	}

	records, err := s.deps.EventLog.ForEntity(events.EntityItem, item.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "EVENT_ERROR", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, recordsToResponse(records))
}

func recordsToResponse(records []events.Record) listEventsResponse {
	resp := listEventsResponse{
		Items: make([]eventResponse, len(records)),
		Total: len(records),
	}
	for i, rec := range records {
		resp.Items[i] = eventResponse{
			ID:         rec.ID,
			EventID:    rec.EventID,
			EventType:  rec.EventType,
			EntityType: rec.EntityType,
			EntityID:   rec.EntityID,
			Payload:    json.RawMessage(rec.Payload),
			OccurredAt: rec.OccurredAt.Format(time.RFC3339),
		}
	}
	return resp
}
