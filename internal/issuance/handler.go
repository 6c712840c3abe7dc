package issuance

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"credence/internal/transport/http/shared"
	dErrors "credence/pkg/domain-errors"
)

// Handler exposes issuance over HTTP.
type Handler struct {
	logger *slog.Logger
}

// NewHandler creates an issuance Handler.
func NewHandler(logger *slog.Logger) *Handler {
	return &Handler{logger: logger}
}

// Register mounts the issuance routes on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/issuance/commitment", h.handleMint)
	r.Post("/issuance/derive", h.handleDerive)
}

func (h *Handler) handleMint(w http.ResponseWriter, r *http.Request) {
	material, err := Mint()
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to mint registration material", "error", err)
		shared.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to mint registration material"))
		return
	}
	shared.WriteJSON(w, http.StatusCreated, material)
}

type deriveRequest struct {
	Secret string `json:"secret"`
}

func (h *Handler) handleDerive(w http.ResponseWriter, r *http.Request) {
	var req deriveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	commitment, err := Derive(req.Secret)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]string{"commitment": commitment.String()})
}
