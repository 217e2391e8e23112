package handler

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/pesio-ai/be-po-approvals/internal/common/auth"
	"github.com/pesio-ai/be-po-approvals/internal/common/errors"
	"github.com/pesio-ai/be-po-approvals/internal/service"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "procurement.v1.PurchaseApprovalService"

// PurchaseApprovalServer is the gRPC surface of the approval workflow.
// Messages are google.protobuf.Struct:
//
//	Confirm, ApproveLevel1, ApproveLevel2, Reject: {"order_ids": [...]} -> {"results": [...]}
//	GetOrder: {"id": "..."} -> purchase order
type PurchaseApprovalServer interface {
	Confirm(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ApproveLevel1(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ApproveLevel2(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Reject(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetOrder(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// PurchaseApprovalServiceDesc describes PurchaseApprovalServer to grpc.Server.
var PurchaseApprovalServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PurchaseApprovalServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("Confirm", PurchaseApprovalServer.Confirm),
		unaryMethod("ApproveLevel1", PurchaseApprovalServer.ApproveLevel1),
		unaryMethod("ApproveLevel2", PurchaseApprovalServer.ApproveLevel2),
		unaryMethod("Reject", PurchaseApprovalServer.Reject),
		unaryMethod("GetOrder", PurchaseApprovalServer.GetOrder),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "procurement/v1/purchase_approval.proto",
}

// RegisterPurchaseApprovalServer registers srv on s.
func RegisterPurchaseApprovalServer(s grpc.ServiceRegistrar, srv PurchaseApprovalServer) {
	s.RegisterService(&PurchaseApprovalServiceDesc, srv)
}

func unaryMethod(
	name string,
	call func(PurchaseApprovalServer, context.Context, *structpb.Struct) (*structpb.Struct, error),
) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(PurchaseApprovalServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(PurchaseApprovalServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// GRPCHandler implements PurchaseApprovalServer
type GRPCHandler struct {
	approvals *service.ApprovalService
	orders    *service.PurchaseOrderService
	logger    zerolog.Logger
}

// NewGRPCHandler creates a new gRPC handler
func NewGRPCHandler(approvals *service.ApprovalService, orders *service.PurchaseOrderService, logger zerolog.Logger) *GRPCHandler {
	return &GRPCHandler{
		approvals: approvals,
		orders:    orders,
		logger:    logger.With().Str("handler", "grpc").Logger(),
	}
}

// Confirm confirms a batch of orders
func (h *GRPCHandler) Confirm(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return h.batch(ctx, "Confirm", req, h.approvals.Confirm)
}

// ApproveLevel1 records the level-1 approval on a batch of orders
func (h *GRPCHandler) ApproveLevel1(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return h.batch(ctx, "ApproveLevel1", req, h.approvals.ApproveLevel1)
}

// ApproveLevel2 records the level-2 approval on a batch of orders
func (h *GRPCHandler) ApproveLevel2(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return h.batch(ctx, "ApproveLevel2", req, h.approvals.ApproveLevel2)
}

// Reject returns a batch of orders to draft
func (h *GRPCHandler) Reject(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return h.batch(ctx, "Reject", req, h.approvals.Reject)
}

// GetOrder retrieves a purchase order
func (h *GRPCHandler) GetOrder(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	uc, err := auth.GetUserContext(ctx)
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, "authentication required")
	}

	id := req.GetFields()["id"].GetStringValue()
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "id is required")
	}

	order, err := h.orders.GetOrder(ctx, uc.CompanyID, id)
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	return toStruct(order)
}

func (h *GRPCHandler) batch(ctx context.Context, method string, req *structpb.Struct, action batchFunc) (*structpb.Struct, error) {
	uc, err := auth.GetUserContext(ctx)
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, "authentication required")
	}

	var ids []string
	for _, v := range req.GetFields()["order_ids"].GetListValue().GetValues() {
		ids = append(ids, v.GetStringValue())
	}

	h.logger.Info().
		Str("user_id", uc.UserID).
		Int("orders", len(ids)).
		Msgf("gRPC %s called", method)

	results, err := action(ctx, actorOf(uc), ids)
	if err != nil {
		h.logger.Error().Err(err).Msgf("%s failed", method)
		return nil, mapErrorToGRPC(err)
	}
	return toStruct(toActionResults(results))
}

// toStruct converts v to a Struct through its JSON encoding.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return s, nil
}

func mapErrorToGRPC(err error) error {
	if err == nil {
		return nil
	}

	errMsg := err.Error()

	switch errors.CodeOf(err) {
	case errors.ErrCodeNotFound:
		return status.Error(codes.NotFound, errMsg)
	case errors.ErrCodeInvalidInput:
		return status.Error(codes.InvalidArgument, errMsg)
	case errors.ErrCodeUnauthorized:
		return status.Error(codes.Unauthenticated, errMsg)
	case errors.ErrCodeForbidden:
		return status.Error(codes.PermissionDenied, errMsg)
	case errors.ErrCodeConflict:
		return status.Error(codes.FailedPrecondition, errMsg)
	default:
		return status.Error(codes.Internal, errMsg)
	}
}
