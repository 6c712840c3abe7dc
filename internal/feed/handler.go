package feed

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"credence/internal/transport/http/shared"
	id "credence/pkg/domain"
	dErrors "credence/pkg/domain-errors"
)

// Handler exposes the feed over HTTP.
type Handler struct {
	feed   *Service
	logger *slog.Logger
}

// NewHandler creates a feed Handler.
func NewHandler(feed *Service, logger *slog.Logger) *Handler {
	return &Handler{feed: feed, logger: logger}
}

// Register mounts the feed routes on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/feed/content", h.handleIngest)
	r.Get("/feed", h.handleRecent)
	r.Get("/feed/item/{item}", h.handleItem)
}

type ingestRequest struct {
	Hash       string    `json:"hash"`
	Text       string    `json:"text"`
	ObservedAt time.Time `json:"observed_at"`
}

func (h *Handler) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	hash, err := id.ParseItemHash(req.Hash)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	item := ContentItem{Hash: hash, Text: req.Text, ObservedAt: req.ObservedAt}
	if err := h.feed.Ingest(r.Context(), item); err != nil {
		h.logger.WarnContext(r.Context(), "content ingest rejected", "item", req.Hash, "error", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusAccepted, map[string]string{"hash": hash.String()})
}

func (h *Handler) handleRecent(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "limit must be a positive integer"))
			return
		}
		limit = n
	}
	entries, err := h.feed.Recent(r.Context(), limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to build feed", "error", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *Handler) handleItem(w http.ResponseWriter, r *http.Request) {
	hash, err := id.ParseItemHash(chi.URLParam(r, "item"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	item, err := h.feed.Item(r.Context(), hash)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, item)
}
