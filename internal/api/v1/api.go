// Package v1 implements the native REST API.
package v1

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/tomearr/tomearr/internal/pipeline"
)

// Server is the v1 API server.
type Server struct {
	deps ServerDeps
}

// New creates a v1 API server. Deps must pass Validate.
func New(deps ServerDeps) (*Server, error) {
	if err := deps.Validate(); err != nil {
		return nil, fmt.Errorf("api deps: %w", err)
	}
	return &Server{deps: deps}, nil
}

// RegisterRoutes registers API routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	// Wanted books
	mux.HandleFunc("POST /api/v1/wanted", s.addWanted)
	mux.HandleFunc("POST /api/v1/wanted/manual", s.addManual)

	// Queue
	mux.HandleFunc("GET /api/v1/queue", s.listQueue)
	mux.HandleFunc("GET /api/v1/queue/stats", s.queueStats)
	mux.HandleFunc("GET /api/v1/queue/{id}", s.getItem)
	mux.HandleFunc("DELETE /api/v1/queue/{id}", s.deleteItem)

	// Operator controls
	mux.HandleFunc("POST /api/v1/queue/{id}/pause", s.pauseItem)
	mux.HandleFunc("POST /api/v1/queue/{id}/resume", s.resumeItem)
	mux.HandleFunc("POST /api/v1/queue/{id}/cancel", s.cancelItem)
	mux.HandleFunc("POST /api/v1/queue/{id}/retry", s.retryItem)
	mux.HandleFunc("POST /api/v1/queue/{id}/requeue", s.requeueItem)

	// Events
	mux.HandleFunc("GET /api/v1/events", s.listEvents)
	mux.HandleFunc("GET /api/v1/queue/{id}/events", s.listItemEvents)

	// System
	mux.HandleFunc("GET /api/v1/status", s.getStatus)
}

// Error response
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(w http.ResponseWriter, code int, errCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: message, Code: errCode})
}

func writeJSON(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(data)
}

// pathID extracts the integer ID from the URL path.
func pathID(r *http.Request) (int64, error) {
	idStr := r.PathValue("id")
	if idStr == "" {
		return 0, fmt.Errorf("missing path parameter: id")
	}
	return strconv.ParseInt(idStr, 10, 64)
}

// queryInt extracts an optional integer from the query string.
func queryInt(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return i
}

func itemToResponse(item *pipeline.Item) itemResponse {
	resp := itemResponse{
		ID:                item.ID,
		Identity:          item.Identity,
		Title:             item.Title,
		Author:            item.Author,
		Narrator:          item.Narrator,
		Priority:          item.Priority,
		Status:            string(item.Status),
		ClientID:          item.ClientID,
		Progress:          item.Progress.Percent,
		SpeedBps:          item.Progress.Speed,
		ETASeconds:        int64(item.Progress.ETA.Seconds()),
		Ratio:             item.Progress.Ratio,
		ElapsedSeconds:    int64(item.Progress.Elapsed.Seconds()),
		DownloadPath:      item.DownloadPath,
		ConvertedPath:     item.ConvertedPath,
		FinalPath:         item.FinalPath,
		LastError:         item.LastError,
		SearchRetries:     item.Retries.Search,
		DownloadRetries:   item.Retries.Download,
		ConversionRetries: item.Retries.Conversion,
		ImportRetries:     item.Retries.Import,
		QueuedAt:          item.QueuedAt,
		StartedAt:         item.StartedAt,
		CompletedAt:       item.CompletedAt,
	}
	if item.Selected != nil {
		resp.Selected = &selectionResponse{
			Reference:  item.Selected.Reference,
			Title:      item.Selected.Title,
			Indexer:    item.Selected.Indexer,
			SourceType: string(item.Selected.SourceType),
			Format:     item.Selected.Format,
			Bitrate:    item.Selected.Bitrate,
			Size:       item.Selected.Size,
			Confidence: item.Selected.Confidence,
		}
	}
	return resp
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	counts, err := s.deps.Queue.CountByStatus()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "DB_ERROR", err.Error())
		return
	}

	active := 0
	for status, n := range counts {
		if !status.Terminal() {
			active += n
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"active": active,
	})
}
