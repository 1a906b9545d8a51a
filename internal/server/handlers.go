package server

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/storekit/storekit/internal/storage"
)

// APIResponse is the envelope of every JSON response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// transferRequest is the body of /copy and /move
type transferRequest struct {
	From storage.Key `json:"from"`
	To   storage.Key `json:"to"`
}

// entryResponse is one listed item
type entryResponse struct {
	Key   storage.Key `json:"key"`
	Value interface{} `json:"value"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	u, err := s.store.URL(r.Context())
	if err != nil {
		s.writeStorageError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"url":    u,
		"uptime": time.Since(s.startTime).Round(time.Second).String(),
	})
}

func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	key := requestKey(r)
	v, ok, err := s.store.GetItem(r.Context(), key)
	if err != nil {
		s.writeStorageError(w, err)
		return
	}
	if !ok {
		s.writeError(w, "Item not found: "+key.String(), http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleHasItem(w http.ResponseWriter, r *http.Request) {
	ok, err := s.store.HasItem(r.Context(), requestKey(r))
	if err != nil {
		w.WriteHeader(statusFor(err))
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleSetItem(w http.ResponseWriter, r *http.Request) {
	var opts []storage.SetOption
	if raw := r.URL.Query().Get("expireIn"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			s.writeError(w, "Invalid expireIn: "+raw, http.StatusBadRequest)
			return
		}
		opts = append(opts, storage.ExpireIn(d))
	}

	var value interface{}
	if err := json.NewDecoder(r.Body).Decode(&value); err != nil {
		s.writeError(w, "Invalid JSON body: "+err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.store.SetItem(r.Context(), requestKey(r), value, opts...); err != nil {
		s.writeStorageError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	key := requestKey(r)
	var err error
	if recursive, _ := strconv.ParseBool(r.URL.Query().Get("recursive")); recursive {
		err = s.store.ClearItems(r.Context(), key)
	} else {
		err = s.store.RemoveItem(r.Context(), key)
	}
	if err != nil {
		s.writeStorageError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var opts []storage.ListOption
	if reverse, _ := strconv.ParseBool(q.Get("reverse")); reverse {
		opts = append(opts, storage.Reverse())
	}
	if raw := q.Get("pageSize"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeError(w, "Invalid pageSize: "+raw, http.StatusBadRequest)
			return
		}
		opts = append(opts, storage.PageSize(n))
	}

	entries := []entryResponse{}
	for e, err := range s.store.ListItems(r.Context(), requestKey(r), opts...) {
		if err != nil {
			s.writeStorageError(w, err)
			return
		}
		entries = append(entries, entryResponse{Key: e.Key, Value: e.Value})
	}
	s.writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleIsWritable(w http.ResponseWriter, r *http.Request) {
	ok, err := s.store.IsWritable(r.Context(), requestKey(r))
	if err != nil {
		s.writeStorageError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"writable": ok})
}

func (s *Server) handleCopy(w http.ResponseWriter, r *http.Request) {
	s.handleTransfer(w, r, storage.CopyItems[any])
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	s.handleTransfer(w, r, storage.MoveItems[any])
}

type transferFunc func(ctx context.Context, from, to storage.Key, src, dst storage.Module[any]) error

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request, op transferFunc) {
	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := op(r.Context(), req.From, req.To, s.store, s.store); err != nil {
		s.writeStorageError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// requestKey decodes the {key} path variable. An absent variable is the
// root key.
func requestKey(r *http.Request) storage.Key {
	return storage.DecodePath(mux.Vars(r)["key"])
}

// statusFor maps storage errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, storage.ErrInvalidKey), errors.Is(err, storage.ErrOverlappingKeys):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrReadOnly), errors.Is(err, fs.ErrPermission):
		return http.StatusForbidden
	case errors.Is(err, storage.ErrNotConfigured):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(APIResponse{Success: true, Data: data}) //nolint:errcheck
}

func (s *Server) writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(APIResponse{Success: false, Error: message}) //nolint:errcheck
	s.logger.WithField("error", message).WithField("status", statusCode).Debug("API error")
}

func (s *Server) writeStorageError(w http.ResponseWriter, err error) {
	s.writeError(w, err.Error(), statusFor(err))
}
