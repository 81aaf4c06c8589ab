// Package handler exposes the vault service over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"treasury/internal/vault/models"
	"treasury/internal/vault/service"
	dErrors "treasury/pkg/domain-errors"
	"treasury/pkg/platform/httputil"
	"treasury/pkg/requestcontext"
)

// Service is the vault surface the handler drives.
type Service interface {
	Initialize(ctx context.Context, admin models.Identity, cfg models.Config) error
	UpdateConfig(ctx context.Context, caller models.Identity, cfg models.Config) error
	GetConfig(ctx context.Context) (*models.Config, error)
	SetRole(ctx context.Context, caller, target models.Identity, role models.Role) error
	GetRole(ctx context.Context, id models.Identity) (models.Role, error)
	AddSigner(ctx context.Context, caller, signer models.Identity) error
	RemoveSigner(ctx context.Context, caller, signer models.Identity) error
	GetSpending(ctx context.Context) (*models.SpendingSummary, error)

	ProposeTransfer(ctx context.Context, caller models.Identity, req service.TransferRequest) (uint64, error)
	ApproveProposal(ctx context.Context, caller models.Identity, id uint64) (*models.Proposal, error)
	RejectProposal(ctx context.Context, caller models.Identity, id uint64) error
	ExecuteProposal(ctx context.Context, caller models.Identity, id uint64) (*models.Proposal, error)
	GetProposal(ctx context.Context, id uint64) (*models.Proposal, error)
	ListProposals(ctx context.Context) ([]*models.Proposal, error)

	SchedulePayment(ctx context.Context, caller models.Identity, req service.ScheduleRequest) (uint64, error)
	ProcessDuePayments(ctx context.Context) (*service.ProcessReport, error)
	PausePayment(ctx context.Context, caller models.Identity, id uint64) error
	ResumePayment(ctx context.Context, caller models.Identity, id uint64) error
	GetRecurring(ctx context.Context, id uint64) (*models.RecurringPayment, error)
	ListRecurring(ctx context.Context) ([]*models.RecurringPayment, error)
}

// Handler wires vault endpoints to the vault service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts vault endpoints on r. Callers install bearer
// authentication on r first.
func (h *Handler) Register(r chi.Router) {
	r.Route("/vault", func(r chi.Router) {
		r.Post("/initialize", h.HandleInitialize)
		r.Get("/config", h.HandleGetConfig)
		r.Put("/config", h.HandleUpdateConfig)
		r.Get("/roles/{identity}", h.HandleGetRole)
		r.Put("/roles/{identity}", h.HandleSetRole)
		r.Post("/signers", h.HandleAddSigner)
		r.Delete("/signers/{identity}", h.HandleRemoveSigner)
		r.Get("/spending", h.HandleGetSpending)
	})
	r.Route("/proposals", func(r chi.Router) {
		r.Post("/", h.HandlePropose)
		r.Get("/", h.HandleListProposals)
		r.Get("/{id}", h.HandleGetProposal)
		r.Post("/{id}/approve", h.HandleApprove)
		r.Post("/{id}/reject", h.HandleReject)
		r.Post("/{id}/execute", h.HandleExecute)
	})
	r.Route("/recurring", func(r chi.Router) {
		r.Post("/", h.HandleSchedule)
		r.Get("/", h.HandleListRecurring)
		r.Post("/process", h.HandleProcess)
		r.Get("/{id}", h.HandleGetRecurring)
		r.Post("/{id}/pause", h.HandlePause)
		r.Post("/{id}/resume", h.HandleResume)
	})
}

// caller returns the authenticated identity or writes 401.
func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (models.Identity, bool) {
	id := requestcontext.Caller(r.Context())
	if id == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return "", false
	}
	return models.Identity(id), true
}

// fail logs err at a level matching its status and writes the error response.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	ctx := r.Context()
	args := []any{
		"request_id", requestcontext.RequestID(ctx),
		"caller", requestcontext.Caller(ctx),
		"path", r.URL.Path,
		"error", err,
	}
	if httputil.StatusFor(dErrors.CodeOf(err)) >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, msg, args...)
	} else {
		h.logger.WarnContext(ctx, msg, args...)
	}
	httputil.WriteError(w, err)
}

func pathID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "id must be a positive integer"))
		return 0, false
	}
	return id, true
}

func pathIdentity(w http.ResponseWriter, r *http.Request) (models.Identity, bool) {
	id, err := models.ParseIdentity(chi.URLParam(r, "identity"))
	if err != nil {
		httputil.WriteError(w, err)
		return "", false
	}
	return id, true
}

// ===== Config, roles and signers =====

func (h *Handler) HandleInitialize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	admin, ok := h.caller(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[ConfigRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	if err := h.service.Initialize(ctx, admin, req.Config()); err != nil {
		h.fail(w, r, "vault initialization failed", err)
		return
	}
	h.logger.InfoContext(ctx, "vault initialized",
		"request_id", requestcontext.RequestID(ctx),
		"admin", admin,
	)
	cfg := req.Config()
	httputil.WriteJSON(w, http.StatusCreated, toConfigResponse(&cfg))
}

func (h *Handler) HandleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.service.GetConfig(r.Context())
	if err != nil {
		h.fail(w, r, "get config failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toConfigResponse(cfg))
}

func (h *Handler) HandleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[ConfigRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	if err := h.service.UpdateConfig(ctx, caller, req.Config()); err != nil {
		h.fail(w, r, "config update failed", err)
		return
	}
	cfg := req.Config()
	httputil.WriteJSON(w, http.StatusOK, toConfigResponse(&cfg))
}

func (h *Handler) HandleGetRole(w http.ResponseWriter, r *http.Request) {
	id, ok := pathIdentity(w, r)
	if !ok {
		return
	}
	role, err := h.service.GetRole(r.Context(), id)
	if err != nil {
		h.fail(w, r, "get role failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, RoleResponse{Identity: id.String(), Role: role.String()})
}

func (h *Handler) HandleSetRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	target, ok := pathIdentity(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[RoleRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	if err := h.service.SetRole(ctx, caller, target, req.parsed); err != nil {
		h.fail(w, r, "set role failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, RoleResponse{Identity: target.String(), Role: req.parsed.String()})
}

func (h *Handler) HandleAddSigner(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[SignerRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	if err := h.service.AddSigner(ctx, caller, models.Identity(req.Signer)); err != nil {
		h.fail(w, r, "add signer failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleRemoveSigner(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	signer, ok := pathIdentity(w, r)
	if !ok {
		return
	}
	if err := h.service.RemoveSigner(r.Context(), caller, signer); err != nil {
		h.fail(w, r, "remove signer failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleGetSpending(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.GetSpending(r.Context())
	if err != nil {
		h.fail(w, r, "get spending failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toSpendingResponse(summary))
}

// ===== Proposals =====

func (h *Handler) HandlePropose(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[TransferRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	id, err := h.service.ProposeTransfer(ctx, caller, req.toService())
	if err != nil {
		h.fail(w, r, "propose transfer failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, IDResponse{ID: id})
}

func (h *Handler) HandleListProposals(w http.ResponseWriter, r *http.Request) {
	proposals, err := h.service.ListProposals(r.Context())
	if err != nil {
		h.fail(w, r, "list proposals failed", err)
		return
	}
	resp := ProposalListResponse{Proposals: make([]*ProposalResponse, 0, len(proposals))}
	for _, p := range proposals {
		resp.Proposals = append(resp.Proposals, toProposalResponse(p))
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) HandleGetProposal(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	p, err := h.service.GetProposal(r.Context(), id)
	if err != nil {
		h.fail(w, r, "get proposal failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toProposalResponse(p))
}

func (h *Handler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "approve proposal failed", h.service.ApproveProposal)
}

func (h *Handler) HandleExecute(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "execute proposal failed", h.service.ExecuteProposal)
}

func (h *Handler) HandleReject(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.RejectProposal(r.Context(), caller, id); err != nil {
		h.fail(w, r, "reject proposal failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, msg string,
	op func(context.Context, models.Identity, uint64) (*models.Proposal, error)) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	p, err := op(r.Context(), caller, id)
	if err != nil {
		h.fail(w, r, msg, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toProposalResponse(p))
}

// ===== Recurring =====

func (h *Handler) HandleSchedule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[ScheduleRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	id, err := h.service.SchedulePayment(ctx, caller, req.toService())
	if err != nil {
		h.fail(w, r, "schedule payment failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, IDResponse{ID: id})
}

func (h *Handler) HandleProcess(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.ProcessDuePayments(r.Context())
	if err != nil {
		h.fail(w, r, "process due payments failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}

func (h *Handler) HandlePause(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, "pause payment failed", h.service.PausePayment)
}

func (h *Handler) HandleResume(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, "resume payment failed", h.service.ResumePayment)
}

func (h *Handler) toggle(w http.ResponseWriter, r *http.Request, msg string,
	op func(context.Context, models.Identity, uint64) error) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := op(r.Context(), caller, id); err != nil {
		h.fail(w, r, msg, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleGetRecurring(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	rp, err := h.service.GetRecurring(r.Context(), id)
	if err != nil {
		h.fail(w, r, "get recurring payment failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toRecurringResponse(rp))
}

func (h *Handler) HandleListRecurring(w http.ResponseWriter, r *http.Request) {
	schedules, err := h.service.ListRecurring(r.Context())
	if err != nil {
		h.fail(w, r, "list recurring payments failed", err)
		return
	}
	resp := RecurringListResponse{Recurring: make([]*RecurringResponse, 0, len(schedules))}
	for _, rp := range schedules {
		resp.Recurring = append(resp.Recurring, toRecurringResponse(rp))
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}
