// Package server exposes the trigger entry points of the precision
// search pipeline over HTTP: the manual trigger, the queue item status
// read, and the mail-sync event subscription endpoint.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tkrause/paperclip/internal/common"
	"github.com/tkrause/paperclip/internal/engine"
	"github.com/tkrause/paperclip/internal/model"
	"github.com/tkrause/paperclip/internal/service"
)

// userIDHeader carries the authenticated user. Authentication itself is
// handled upstream of this service.
const userIDHeader = "X-User-ID"

// Server is the HTTP boundary of the pipeline.
type Server struct {
	httpServer *http.Server
	dispatcher *engine.Dispatcher
	storage    service.Storage
}

// New creates a server listening on addr.
func New(addr string, dispatcher *engine.Dispatcher, storage service.Storage) *Server {
	s := &Server{
		dispatcher: dispatcher,
		storage:    storage,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/api/v1/search", func(r chi.Router) {
		r.Post("/trigger", s.handleTrigger)
		r.Get("/queue/{id}", s.handleGetQueueItem)
	})
	r.Post("/internal/events/mail-sync", s.handleMailSyncEvent)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Start serves until the context is canceled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(userIDHeader)
	if userID == "" {
		respondError(w, http.StatusBadRequest, "missing "+userIDHeader+" header")
		return
	}

	var req triggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := s.dispatcher.Trigger(r.Context(), engine.TriggerRequest{
		UserID:        userID,
		Scope:         model.SearchScope(req.Scope),
		TransactionID: req.TransactionID,
		TriggeredBy:   model.TriggerManual,
		Author:        model.AuthorUser,
		AuthorUserID:  userID,
	})
	if err != nil {
		if errors.Is(err, common.ErrInvalidScope) || errors.Is(err, common.ErrMissingTransactionID) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		slog.Error("Trigger failed", "user_id", userID, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to enqueue precision search")
		return
	}

	respondJSON(w, http.StatusOK, triggerResponse{
		Success: true,
		QueueID: result.QueueItemID,
	})
}

func (s *Server) handleGetQueueItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	item, err := s.storage.GetQueueItem(r.Context(), id)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			respondError(w, http.StatusNotFound, "queue item not found")
			return
		}
		slog.Error("Queue item lookup failed", "queue_item_id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to load queue item")
		return
	}

	respondJSON(w, http.StatusOK, queueItemFromModel(item))
}

func (s *Server) handleMailSyncEvent(w http.ResponseWriter, r *http.Request) {
	var evt mailSyncEventRequest
	if err := json.NewDecoder(r.Body).Decode(&evt); err != nil {
		respondError(w, http.StatusBadRequest, "invalid event body")
		return
	}
	if evt.UserID == "" {
		respondError(w, http.StatusBadRequest, "missing userId")
		return
	}

	err := s.dispatcher.HandleMailSyncEvent(r.Context(), engine.MailSyncEvent{
		UserID:       evt.UserID,
		BeforeStatus: evt.Before.Status,
		AfterStatus:  evt.After.Status,
		FilesCreated: evt.FilesCreated,
	})
	if err != nil {
		slog.Error("Mail sync event handling failed", "user_id", evt.UserID, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to handle mail sync event")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}
