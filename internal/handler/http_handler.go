package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/pesio-ai/be-po-approvals/internal/common/auth"
	"github.com/pesio-ai/be-po-approvals/internal/common/errors"
	"github.com/pesio-ai/be-po-approvals/internal/common/logger"
	"github.com/pesio-ai/be-po-approvals/internal/service"
)

// HTTPHandler handles HTTP requests
type HTTPHandler struct {
	approvals *service.ApprovalService
	orders    *service.PurchaseOrderService
	configs   *service.ApprovalConfigService
	validate  *validator.Validate
	log       *logger.Logger
}

// NewHTTPHandler creates a new HTTP handler
func NewHTTPHandler(
	approvals *service.ApprovalService,
	orders *service.PurchaseOrderService,
	configs *service.ApprovalConfigService,
	log *logger.Logger,
) *HTTPHandler {
	return &HTTPHandler{
		approvals: approvals,
		orders:    orders,
		configs:   configs,
		validate:  newValidator(),
		log:       log,
	}
}

// Register mounts the API routes on mux.
func (h *HTTPHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.Health)

	mux.HandleFunc("/api/v1/purchase-orders", h.CreateOrder)
	mux.HandleFunc("/api/v1/purchase-orders/get", h.GetOrder)
	mux.HandleFunc("/api/v1/purchase-orders/amount", h.UpdateAmount)
	mux.HandleFunc("/api/v1/purchase-orders/send", h.MarkSent)
	mux.HandleFunc("/api/v1/purchase-orders/pending", h.PendingApprovals)
	mux.HandleFunc("/api/v1/purchase-orders/history", h.ApprovalHistory)

	mux.HandleFunc("/api/v1/purchase-orders/confirm", h.batchAction(h.approvals.Confirm))
	mux.HandleFunc("/api/v1/purchase-orders/approve-level1", h.batchAction(h.approvals.ApproveLevel1))
	mux.HandleFunc("/api/v1/purchase-orders/approve-level2", h.batchAction(h.approvals.ApproveLevel2))
	mux.HandleFunc("/api/v1/purchase-orders/reject", h.batchAction(h.approvals.Reject))

	mux.HandleFunc("/api/v1/approval-configs", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			h.ListConfigs(w, r)
		case http.MethodPost:
			h.CreateConfig(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/api/v1/approval-configs/get", h.GetConfig)
	mux.HandleFunc("/api/v1/approval-configs/update", h.UpdateConfig)
	mux.HandleFunc("/api/v1/approval-configs/deactivate", h.DeactivateConfig)

	mux.HandleFunc("/api/v1/approval-groups/members", h.GroupMembers)
}

// Health reports liveness.
func (h *HTTPHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// ── Purchase orders ───────────────────────────────────────────────────────────

// CreateOrder handles create purchase order HTTP requests
func (h *HTTPHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	uc, ok := h.user(w, r)
	if !ok {
		return
	}

	var req CreateOrderRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	order, err := h.orders.CreateOrder(r.Context(), &service.CreateOrderRequest{
		CompanyID:   uc.CompanyID,
		OrderNumber: req.OrderNumber,
		AmountTotal: req.AmountTotal,
		Currency:    req.Currency,
		CreatedBy:   uc.UserID,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

// GetOrder handles get purchase order HTTP requests
func (h *HTTPHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	uc, ok := h.user(w, r)
	if !ok {
		return
	}

	id := r.URL.Query().Get("id")
	if id == "" {
		h.writeError(w, errors.InvalidInput("id", "order id is required"))
		return
	}

	order, err := h.orders.GetOrder(r.Context(), uc.CompanyID, id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// UpdateAmount handles purchase order amount changes
func (h *HTTPHandler) UpdateAmount(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	uc, ok := h.user(w, r)
	if !ok {
		return
	}

	var req UpdateAmountRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	order, err := h.orders.UpdateAmount(r.Context(), &service.UpdateAmountRequest{
		ID:          req.ID,
		CompanyID:   uc.CompanyID,
		AmountTotal: req.AmountTotal,
		UpdatedBy:   uc.UserID,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// MarkSent handles marking a draft order as sent
func (h *HTTPHandler) MarkSent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	uc, ok := h.user(w, r)
	if !ok {
		return
	}

	var req OrderIDRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	order, err := h.orders.MarkSent(r.Context(), uc.CompanyID, req.ID, uc.UserID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// PendingApprovals lists orders awaiting the caller's approval
func (h *HTTPHandler) PendingApprovals(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	uc, ok := h.user(w, r)
	if !ok {
		return
	}

	orders, err := h.approvals.GetPendingApprovals(r.Context(), uc.CompanyID, uc.UserID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"orders": orders,
		"total":  len(orders),
	})
}

// ApprovalHistory returns the audit trail of an order
func (h *HTTPHandler) ApprovalHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	uc, ok := h.user(w, r)
	if !ok {
		return
	}

	id := r.URL.Query().Get("id")
	if id == "" {
		h.writeError(w, errors.InvalidInput("id", "order id is required"))
		return
	}

	entries, err := h.approvals.GetApprovalHistory(r.Context(), actorOf(uc), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

type batchFunc func(ctx context.Context, actor service.Actor, orderIDs []string) ([]*service.ActionResult, error)

// batchAction adapts a batch approval action to an HTTP handler. Per-order
// failures are reported in the body with status 200.
func (h *HTTPHandler) batchAction(action batchFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		uc, ok := h.user(w, r)
		if !ok {
			return
		}

		var req BatchRequest
		if err := h.decode(r, &req); err != nil {
			h.writeError(w, err)
			return
		}

		results, err := action(r.Context(), actorOf(uc), req.OrderIDs)
		if err != nil {
			h.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toActionResults(results))
	}
}

// ── Approval configs ──────────────────────────────────────────────────────────

// CreateConfig handles create approval config HTTP requests
func (h *HTTPHandler) CreateConfig(w http.ResponseWriter, r *http.Request) {
	uc, ok := h.admin(w, r)
	if !ok {
		return
	}

	var req CreateConfigRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	cfg, err := h.configs.CreateConfig(r.Context(), &service.CreateConfigRequest{
		CompanyID:           uc.CompanyID,
		Name:                req.Name,
		AutoApproveMax:      decimalOrZero(req.AutoApproveMax),
		Level1Min:           decimalOrZero(req.Level1Min),
		Level1Max:           decimalOrZero(req.Level1Max),
		Level2Min:           decimalOrZero(req.Level2Min),
		Level1ApproverGroup: req.Level1ApproverGroup,
		Level2ApproverGroup: req.Level2ApproverGroup,
		Active:              req.Active,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, cfg)
}

// ListConfigs handles list approval configs HTTP requests
func (h *HTTPHandler) ListConfigs(w http.ResponseWriter, r *http.Request) {
	uc, ok := h.user(w, r)
	if !ok {
		return
	}

	activeOnly := false
	if v := r.URL.Query().Get("active_only"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			h.writeError(w, errors.InvalidInput("active_only", "must be a boolean"))
			return
		}
		activeOnly = parsed
	}

	configs, err := h.configs.ListConfigs(r.Context(), uc.CompanyID, activeOnly)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"configs": configs,
		"total":   len(configs),
	})
}

// GetConfig handles get approval config HTTP requests
func (h *HTTPHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	uc, ok := h.user(w, r)
	if !ok {
		return
	}

	id := r.URL.Query().Get("id")
	if id == "" {
		h.writeError(w, errors.InvalidInput("id", "config id is required"))
		return
	}

	cfg, err := h.configs.GetConfig(r.Context(), uc.CompanyID, id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// UpdateConfig handles approval config updates
func (h *HTTPHandler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	uc, ok := h.admin(w, r)
	if !ok {
		return
	}

	var req UpdateConfigRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	cfg, err := h.configs.UpdateConfig(r.Context(), &service.UpdateConfigRequest{
		ID:                  req.ID,
		CompanyID:           uc.CompanyID,
		Name:                req.Name,
		AutoApproveMax:      req.AutoApproveMax,
		Level1Min:           req.Level1Min,
		Level1Max:           req.Level1Max,
		Level2Min:           req.Level2Min,
		Level1ApproverGroup: req.Level1ApproverGroup,
		Level2ApproverGroup: req.Level2ApproverGroup,
		Active:              req.Active,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// DeactivateConfig handles approval config soft-deletes
func (h *HTTPHandler) DeactivateConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	uc, ok := h.admin(w, r)
	if !ok {
		return
	}

	var req OrderIDRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	if err := h.configs.DeactivateConfig(r.Context(), uc.CompanyID, req.ID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ── Approver groups ───────────────────────────────────────────────────────────

// GroupMembers lists (GET), adds (POST) or removes (DELETE) members of the
// caller's company approver groups. Changes need the admin role.
func (h *HTTPHandler) GroupMembers(w http.ResponseWriter, r *http.Request) {
	uc, ok := h.user(w, r)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		groupID := r.URL.Query().Get("group_id")
		if groupID == "" {
			h.writeError(w, errors.InvalidInput("group_id", "group id is required"))
			return
		}
		members, err := h.configs.GroupMembers(r.Context(), uc.CompanyID, groupID)
		if err != nil {
			h.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"group_id": groupID, "members": members})

	case http.MethodPost, http.MethodDelete:
		if !h.requireAdmin(w, uc) {
			return
		}
		var req GroupMemberRequest
		if err := h.decode(r, &req); err != nil {
			h.writeError(w, err)
			return
		}
		var err error
		if r.Method == http.MethodPost {
			err = h.configs.AddGroupMember(r.Context(), uc.CompanyID, req.GroupID, req.UserID)
		} else {
			err = h.configs.RemoveGroupMember(r.Context(), uc.CompanyID, req.GroupID, req.UserID)
		}
		if err != nil {
			h.writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// user returns the authenticated caller or writes 401.
func (h *HTTPHandler) user(w http.ResponseWriter, r *http.Request) (*auth.UserContext, bool) {
	uc, err := auth.GetUserContext(r.Context())
	if err != nil {
		h.writeError(w, errors.New(errors.ErrCodeUnauthorized, "authentication required"))
		return nil, false
	}
	return uc, true
}

// admin returns the caller when they hold the approval admin role, writing
// 401 or 403 otherwise.
func (h *HTTPHandler) admin(w http.ResponseWriter, r *http.Request) (*auth.UserContext, bool) {
	uc, ok := h.user(w, r)
	if !ok || !h.requireAdmin(w, uc) {
		return nil, false
	}
	return uc, true
}

func (h *HTTPHandler) requireAdmin(w http.ResponseWriter, uc *auth.UserContext) bool {
	if uc.HasRole(auth.RoleApprovalAdmin) {
		return true
	}
	h.log.Warn().Str("user_id", uc.UserID).Msg("Approval admin role required")
	h.writeError(w, errors.Forbidden("approval admin role required", nil))
	return false
}

func actorOf(uc *auth.UserContext) service.Actor {
	return service.Actor{UserID: uc.UserID, CompanyID: uc.CompanyID}
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, err error) {
	status := errors.HTTPStatus(err)
	resp := ErrorResponse{Error: err.Error(), Code: string(errors.CodeOf(err))}

	var appErr *errors.AppError
	if errors.As(err, &appErr) {
		resp.Field = appErr.Field
	}
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("Request failed")
		resp.Error = "internal server error"
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
