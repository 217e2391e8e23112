package client

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

const approvalServicePrefix = "/procurement.v1.PurchaseApprovalService/"

// ActionResult is one order's outcome as reported by the approval service.
type ActionResult struct {
	OrderID string `json:"order_id"`
	Outcome string `json:"outcome"`
	State   string `json:"state,omitempty"`
	Reason  string `json:"reason,omitempty"`
	Code    string `json:"code,omitempty"`
	Error   string `json:"error,omitempty"`
}

// PurchaseOrder is the order view returned by GetOrder.
type PurchaseOrder struct {
	ID             string  `json:"id"`
	CompanyID      string  `json:"company_id"`
	OrderNumber    string  `json:"order_number"`
	AmountTotal    string  `json:"amount_total"`
	Currency       string  `json:"currency"`
	State          string  `json:"state"`
	ApprovalLevel  int     `json:"approval_level"`
	Level1Approver *string `json:"level1_approver,omitempty"`
	Level2Approver *string `json:"level2_approver,omitempty"`
}

// ApprovalsGRPCClient calls the purchase approval gRPC service.
type ApprovalsGRPCClient struct {
	conn *grpc.ClientConn
}

// NewApprovalsGRPCClient dials the approval service. Incoming request
// metadata, including the bearer token, is forwarded on every call.
func NewApprovalsGRPCClient(addr string, opts ...grpc.DialOption) (*ApprovalsGRPCClient, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(forwardMetadata),
	}, opts...)

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}
	return &ApprovalsGRPCClient{conn: conn}, nil
}

// Close releases the underlying gRPC connection.
func (c *ApprovalsGRPCClient) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Confirm confirms orders.
func (c *ApprovalsGRPCClient) Confirm(ctx context.Context, orderIDs []string) ([]ActionResult, error) {
	return c.batch(ctx, "Confirm", orderIDs)
}

// ApproveLevel1 approves orders at level 1.
func (c *ApprovalsGRPCClient) ApproveLevel1(ctx context.Context, orderIDs []string) ([]ActionResult, error) {
	return c.batch(ctx, "ApproveLevel1", orderIDs)
}

// ApproveLevel2 approves orders at level 2.
func (c *ApprovalsGRPCClient) ApproveLevel2(ctx context.Context, orderIDs []string) ([]ActionResult, error) {
	return c.batch(ctx, "ApproveLevel2", orderIDs)
}

// Reject returns orders to draft.
func (c *ApprovalsGRPCClient) Reject(ctx context.Context, orderIDs []string) ([]ActionResult, error) {
	return c.batch(ctx, "Reject", orderIDs)
}

// GetOrder retrieves an order.
func (c *ApprovalsGRPCClient) GetOrder(ctx context.Context, id string) (*PurchaseOrder, error) {
	req, err := structpb.NewStruct(map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	resp := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, approvalServicePrefix+"GetOrder", req, resp); err != nil {
		return nil, err
	}

	var order PurchaseOrder
	if err := fromStruct(resp, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (c *ApprovalsGRPCClient) batch(ctx context.Context, method string, orderIDs []string) ([]ActionResult, error) {
	ids := make([]any, len(orderIDs))
	for i, id := range orderIDs {
		ids[i] = id
	}
	req, err := structpb.NewStruct(map[string]any{"order_ids": ids})
	if err != nil {
		return nil, err
	}

	resp := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, approvalServicePrefix+method, req, resp); err != nil {
		return nil, err
	}

	var out struct {
		Results []ActionResult `json:"results"`
	}
	if err := fromStruct(resp, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

func fromStruct(s *structpb.Struct, dst any) error {
	data, err := json.Marshal(s.AsMap())
	if err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
