package handler

import (
	"encoding/json"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/pesio-ai/be-po-approvals/internal/common/errors"
	"github.com/pesio-ai/be-po-approvals/internal/service"
)

// ── Requests ──────────────────────────────────────────────────────────────────

// CreateOrderRequest is the body of POST /api/v1/purchase-orders.
type CreateOrderRequest struct {
	OrderNumber string          `json:"order_number" validate:"required,max=64"`
	AmountTotal decimal.Decimal `json:"amount_total"`
	Currency    string          `json:"currency" validate:"required,len=3,alpha"`
}

// UpdateAmountRequest is the body of POST /api/v1/purchase-orders/amount.
type UpdateAmountRequest struct {
	ID          string          `json:"id" validate:"required"`
	AmountTotal decimal.Decimal `json:"amount_total"`
}

// OrderIDRequest addresses a single order.
type OrderIDRequest struct {
	ID string `json:"id" validate:"required"`
}

// BatchRequest is the body of the confirm, approve and reject actions.
type BatchRequest struct {
	OrderIDs []string `json:"order_ids" validate:"required,min=1,max=500,dive,required"`
}

// CreateConfigRequest is the body of POST /api/v1/approval-configs.
type CreateConfigRequest struct {
	Name                string           `json:"name" validate:"required,max=128"`
	AutoApproveMax      *decimal.Decimal `json:"auto_approve_max"`
	Level1Min           *decimal.Decimal `json:"level1_min"`
	Level1Max           *decimal.Decimal `json:"level1_max"`
	Level2Min           *decimal.Decimal `json:"level2_min"`
	Level1ApproverGroup *string          `json:"level1_approver_group" validate:"omitempty,max=128"`
	Level2ApproverGroup *string          `json:"level2_approver_group" validate:"omitempty,max=128"`
	Active              *bool            `json:"active"`
}

// UpdateConfigRequest is the body of POST /api/v1/approval-configs/update.
type UpdateConfigRequest struct {
	ID                  string           `json:"id" validate:"required"`
	Name                *string          `json:"name" validate:"omitempty,max=128"`
	AutoApproveMax      *decimal.Decimal `json:"auto_approve_max"`
	Level1Min           *decimal.Decimal `json:"level1_min"`
	Level1Max           *decimal.Decimal `json:"level1_max"`
	Level2Min           *decimal.Decimal `json:"level2_min"`
	Level1ApproverGroup *string          `json:"level1_approver_group" validate:"omitempty,max=128"`
	Level2ApproverGroup *string          `json:"level2_approver_group" validate:"omitempty,max=128"`
	Active              *bool            `json:"active"`
}

// GroupMemberRequest adds or removes an approver group member.
type GroupMemberRequest struct {
	GroupID string `json:"group_id" validate:"required,max=128"`
	UserID  string `json:"user_id" validate:"required,max=128"`
}

// ── Responses ─────────────────────────────────────────────────────────────────

// ActionResultResponse is one order's outcome in a batch response.
type ActionResultResponse struct {
	OrderID string `json:"order_id"`
	Outcome string `json:"outcome"`
	State   string `json:"state,omitempty"`
	Reason  string `json:"reason,omitempty"`
	Code    string `json:"code,omitempty"`
	Error   string `json:"error,omitempty"`
}

// BatchResponse wraps the per-order results of an action.
type BatchResponse struct {
	Results []ActionResultResponse `json:"results"`
}

// ErrorResponse is the JSON error body.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	Field string `json:"field,omitempty"`
}

func toActionResults(results []*service.ActionResult) BatchResponse {
	out := BatchResponse{Results: make([]ActionResultResponse, 0, len(results))}
	for _, r := range results {
		item := ActionResultResponse{
			OrderID: r.OrderID,
			Outcome: string(r.Outcome),
			State:   string(r.State),
			Reason:  r.Reason,
		}
		if r.Err != nil {
			item.Code = string(errors.CodeOf(r.Err))
			item.Error = r.Err.Error()
		}
		out.Results = append(out.Results, item)
	}
	return out
}

func decimalOrZero(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}

// ── Decoding ──────────────────────────────────────────────────────────────────

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decode reads a JSON body into dst and validates it.
func (h *HTTPHandler) decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errors.InvalidInput("body", "invalid request body")
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return errors.InvalidInput(fe.Field(), "failed on the '"+fe.Tag()+"' rule")
		}
		return errors.InvalidInput("body", err.Error())
	}
	return nil
}
