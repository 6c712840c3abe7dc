// Package handler exposes the ledger operations over HTTP. It is a thin
// layer: request parsing and error translation only, no business logic.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"credence/internal/ledger/models"
	"credence/internal/ledger/service"
	"credence/internal/platform/middleware"
	"credence/internal/transport/http/shared"
	id "credence/pkg/domain"
	dErrors "credence/pkg/domain-errors"
)

// Handler handles ledger endpoints.
type Handler struct {
	ledger    *service.Service
	logger    *slog.Logger
	validator *middleware.ModeratorValidator
}

// New creates a ledger Handler.
func New(ledger *service.Service, logger *slog.Logger, validator *middleware.ModeratorValidator) *Handler {
	return &Handler{ledger: ledger, logger: logger, validator: validator}
}

// Register mounts the ledger routes on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/ledger/bootstrap", h.handleBootstrap)
	r.Post("/ledger/invite", h.handleInvite)
	r.Post("/ledger/vote", h.handleVote)
	r.Post("/ledger/epoch/advance", h.handleAdvanceEpoch)
	r.Post("/ledger/resolve", h.handleResolve)
	r.Post("/ledger/claim", h.handleClaim)

	r.Get("/ledger/identity/{identity}", h.handleIdentity)
	r.Get("/ledger/epoch", h.handleEpoch)
	r.Get("/ledger/bootstrap/remaining", h.handleBootstrapRemaining)
	r.Get("/ledger/tally/{item}", h.handleTally)
	r.Get("/ledger/resolution/{item}", h.handleResolution)
	r.Get("/ledger/status/{item}/{identity}", h.handleStatus)

	r.Route("/admin", func(admin chi.Router) {
		admin.Use(middleware.RequireModerator(h.validator, h.logger))
		admin.Post("/slash", h.handleSlash)
	})
}

type bootstrapRequest struct {
	Identity   string `json:"identity"`
	Commitment string `json:"commitment"`
}

type identityResponse struct {
	Identity   string `json:"identity"`
	Reputation int    `json:"reputation"`
	Inviter    string `json:"inviter,omitempty"`
	Registered bool   `json:"registered"`
}

func toIdentityResponse(ident *models.Identity) identityResponse {
	return identityResponse{
		Identity:   ident.ID.String(),
		Reputation: ident.Reputation,
		Inviter:    ident.Inviter.String(),
		Registered: true,
	}
}

func (h *Handler) handleBootstrap(w http.ResponseWriter, r *http.Request) {
	var req bootstrapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	identity, err := id.ParseIdentityID(req.Identity)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	commitment, err := id.ParseCommitment(req.Commitment)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	ident, err := h.ledger.Bootstrap(r.Context(), identity, commitment)
	if err != nil {
		h.logWarn(r, "bootstrap rejected", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, toIdentityResponse(ident))
}

type inviteRequest struct {
	Inviter    string `json:"inviter"`
	Invitee    string `json:"invitee"`
	Commitment string `json:"commitment"`
}

func (h *Handler) handleInvite(w http.ResponseWriter, r *http.Request) {
	var req inviteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	inviter, err := id.ParseIdentityID(req.Inviter)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	invitee, err := id.ParseIdentityID(req.Invitee)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	commitment, err := id.ParseCommitment(req.Commitment)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	ident, err := h.ledger.Invite(r.Context(), inviter, invitee, commitment)
	if err != nil {
		h.logWarn(r, "invite rejected", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, toIdentityResponse(ident))
}

type voteRequest struct {
	Identity string `json:"identity"`
	Item     string `json:"item"`
	Side     bool   `json:"side"`
}

type voteResponse struct {
	Item   string `json:"item"`
	Epoch  uint64 `json:"epoch"`
	Side   bool   `json:"side"`
	Weight uint64 `json:"weight"`
}

func (h *Handler) handleVote(w http.ResponseWriter, r *http.Request) {
	var req voteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	identity, err := id.ParseIdentityID(req.Identity)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	item, err := id.ParseItemHash(req.Item)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	receipt, err := h.ledger.CastVote(r.Context(), identity, item, req.Side)
	if err != nil {
		h.logWarn(r, "vote rejected", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, voteResponse{
		Item:   receipt.Item.String(),
		Epoch:  receipt.Epoch,
		Side:   receipt.Side,
		Weight: receipt.Weight,
	})
}

type epochResponse struct {
	Epoch       uint64 `json:"epoch"`
	StartedAt   string `json:"started_at"`
	RemainingMS int64  `json:"remaining_ms"`
}

func (h *Handler) handleAdvanceEpoch(w http.ResponseWriter, r *http.Request) {
	next, err := h.ledger.AdvanceEpoch(r.Context())
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, epochResponse{
		Epoch:     next.Number,
		StartedAt: next.StartedAt.Format(time.RFC3339),
	})
}

func (h *Handler) handleEpoch(w http.ResponseWriter, r *http.Request) {
	state, remaining, err := h.ledger.EpochInfo(r.Context())
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, epochResponse{
		Epoch:       state.Number,
		StartedAt:   state.StartedAt.Format(time.RFC3339),
		RemainingMS: remaining.Milliseconds(),
	})
}

type resolveRequest struct {
	Item string `json:"item"`
}

type resolutionResponse struct {
	Item      string `json:"item"`
	Epoch     uint64 `json:"epoch"`
	Resolved  bool   `json:"resolved"`
	Consensus bool   `json:"consensus"`
}

func (h *Handler) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	item, err := id.ParseItemHash(req.Item)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	res, err := h.ledger.Resolve(r.Context(), item)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, resolutionResponse{
		Item:      res.Item.String(),
		Epoch:     res.Epoch,
		Resolved:  true,
		Consensus: res.Consensus,
	})
}

type claimRequest struct {
	Identity string `json:"identity"`
	Item     string `json:"item"`
	Epoch    uint64 `json:"epoch"`
}

type claimResponse struct {
	Rewarded bool `json:"rewarded"`
	Delta    int  `json:"delta"`
}

func (h *Handler) handleClaim(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	identity, err := id.ParseIdentityID(req.Identity)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	item, err := id.ParseItemHash(req.Item)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	claim, err := h.ledger.Claim(r.Context(), identity, item, req.Epoch)
	if err != nil {
		h.logWarn(r, "claim rejected", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, claimResponse{Rewarded: claim.Rewarded, Delta: claim.Delta})
}

func (h *Handler) handleIdentity(w http.ResponseWriter, r *http.Request) {
	identity, err := id.ParseIdentityID(chi.URLParam(r, "identity"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	ident, err := h.ledger.Identity(r.Context(), identity)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toIdentityResponse(ident))
}

func (h *Handler) handleBootstrapRemaining(w http.ResponseWriter, r *http.Request) {
	remaining, err := h.ledger.BootstrapRemaining(r.Context())
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]int{"remaining": remaining})
}

type tallyResponse struct {
	Item          string `json:"item"`
	Epoch         uint64 `json:"epoch"`
	WeightedTrue  uint64 `json:"weighted_true"`
	WeightedFalse uint64 `json:"weighted_false"`
	TrueCount     int    `json:"true_count"`
	FalseCount    int    `json:"false_count"`
}

func (h *Handler) handleTally(w http.ResponseWriter, r *http.Request) {
	item, err := id.ParseItemHash(chi.URLParam(r, "item"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	epoch, err := h.epochParam(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	tally, err := h.ledger.TallyFor(r.Context(), item, epoch)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, tallyResponse{
		Item:          tally.Item.String(),
		Epoch:         tally.Epoch,
		WeightedTrue:  tally.WeightedTrue,
		WeightedFalse: tally.WeightedFalse,
		TrueCount:     tally.TrueCount,
		FalseCount:    tally.FalseCount,
	})
}

func (h *Handler) handleResolution(w http.ResponseWriter, r *http.Request) {
	item, err := id.ParseItemHash(chi.URLParam(r, "item"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	epoch, err := h.epochParam(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	res, err := h.ledger.ResolutionFor(r.Context(), item, epoch)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, resolutionResponse{
		Item:      res.Item.String(),
		Epoch:     res.Epoch,
		Resolved:  true,
		Consensus: res.Consensus,
	})
}

type statusResponse struct {
	Voted   bool   `json:"voted"`
	Side    string `json:"side,omitempty"`
	Claimed bool   `json:"claimed"`
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	item, err := id.ParseItemHash(chi.URLParam(r, "item"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	identity, err := id.ParseIdentityID(chi.URLParam(r, "identity"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	epoch, err := h.epochParam(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	status, err := h.ledger.StatusFor(r.Context(), identity, item, epoch)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	resp := statusResponse{Voted: status.Voted, Claimed: status.Claimed}
	if status.Voted {
		resp.Side = models.SideLabel(status.Side)
	}
	shared.WriteJSON(w, http.StatusOK, resp)
}

type slashRequest struct {
	Identity string `json:"identity"`
	Amount   int    `json:"amount"`
}

func (h *Handler) handleSlash(w http.ResponseWriter, r *http.Request) {
	var req slashRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	identity, err := id.ParseIdentityID(req.Identity)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	moderator := middleware.GetModerator(r.Context())

	ident, err := h.ledger.Moderate(r.Context(), identity, req.Amount, moderator)
	if err != nil {
		h.logWarn(r, "moderation rejected", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toIdentityResponse(ident))
}

// epochParam reads the optional ?epoch= query parameter, defaulting to the
// current epoch.
func (h *Handler) epochParam(r *http.Request) (uint64, error) {
	raw := r.URL.Query().Get("epoch")
	if raw == "" {
		state, _, err := h.ledger.EpochInfo(r.Context())
		if err != nil {
			return 0, err
		}
		return state.Number, nil
	}
	epoch, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeBadRequest, "epoch must be a non-negative integer")
	}
	return epoch, nil
}

func (h *Handler) logWarn(r *http.Request, msg string, err error) {
	if h.logger == nil {
		return
	}
	h.logger.WarnContext(r.Context(), msg,
		"request_id", middleware.GetRequestID(r.Context()),
		"error", err.Error(),
	)
}
