package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

var secret = []byte("test-secret")

func TestIssueAndParseToken(t *testing.T) {
	tok, err := IssueToken("alice", "acme", []string{RoleApprovalAdmin}, secret)
	require.NoError(t, err)

	uc, err := ParseToken(tok, secret)
	require.NoError(t, err)
	assert.Equal(t, "alice", uc.UserID)
	assert.Equal(t, "acme", uc.CompanyID)
	assert.True(t, uc.HasRole(RoleApprovalAdmin))

	_, err = ParseToken(tok, []byte("other"))
	assert.Error(t, err)

	noSubject, err := IssueToken("", "acme", nil, secret)
	require.NoError(t, err)
	_, err = ParseToken(noSubject, secret)
	assert.Error(t, err)

	noCompany, err := IssueToken("alice", "", nil, secret)
	require.NoError(t, err)
	_, err = ParseToken(noCompany, secret)
	assert.ErrorContains(t, err, "no company")
}

func TestUserContext_HasRole(t *testing.T) {
	uc := &UserContext{UserID: "alice", CompanyID: "acme", Roles: []string{"viewer", RoleApprovalAdmin}}
	assert.True(t, uc.HasRole(RoleApprovalAdmin))
	assert.True(t, uc.HasRole("other", "viewer"))
	assert.False(t, uc.HasRole("other"))
	assert.False(t, (&UserContext{UserID: "bob"}).HasRole(RoleApprovalAdmin))
}

func TestMiddleware(t *testing.T) {
	tok, err := IssueToken("alice", "acme", nil, secret)
	require.NoError(t, err)

	var seen *UserContext
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = GetUserContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	type testCase struct {
		name       string
		secret     string
		path       string
		headers    map[string]string
		expectCode int
		expectUser string
	}

	tests := []testCase{
		{name: "valid token", secret: string(secret), path: "/api", headers: map[string]string{"Authorization": "Bearer " + tok}, expectCode: http.StatusOK, expectUser: "alice"},
		{name: "lowercase scheme", secret: string(secret), path: "/api", headers: map[string]string{"Authorization": "bearer " + tok}, expectCode: http.StatusOK, expectUser: "alice"},
		{name: "bad token", secret: string(secret), path: "/api", headers: map[string]string{"Authorization": "Bearer junk"}, expectCode: http.StatusUnauthorized},
		{name: "missing token", secret: string(secret), path: "/api", expectCode: http.StatusUnauthorized},
		{name: "header ignored when secret set", secret: string(secret), path: "/api", headers: map[string]string{"X-User-ID": "mallory"}, expectCode: http.StatusUnauthorized},
		{name: "trusted header without secret", path: "/api", headers: map[string]string{"X-User-ID": "bob", "X-Company-ID": "acme"}, expectCode: http.StatusOK, expectUser: "bob"},
		{name: "trusted header without company", path: "/api", headers: map[string]string{"X-User-ID": "bob"}, expectCode: http.StatusUnauthorized},
		{name: "health is open", secret: string(secret), path: "/health", expectCode: http.StatusOK},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			Middleware(tc.secret)(next).ServeHTTP(rec, req)

			assert.Equal(t, tc.expectCode, rec.Code)
			if tc.expectUser != "" {
				require.NotNil(t, seen)
				assert.Equal(t, tc.expectUser, seen.UserID)
				assert.Equal(t, "acme", seen.CompanyID)
			}
		})
	}
}

func TestUnaryServerInterceptor(t *testing.T) {
	tok, err := IssueToken("alice", "acme", nil, secret)
	require.NoError(t, err)

	handler := func(ctx context.Context, _ any) (any, error) {
		uc, err := GetUserContext(ctx)
		if err != nil {
			return nil, err
		}
		return uc.UserID, nil
	}
	info := &grpc.UnaryServerInfo{FullMethod: "/procurement.v1.PurchaseApprovalService/Confirm"}
	incoming := func(kv ...string) context.Context {
		return metadata.NewIncomingContext(context.Background(), metadata.Pairs(kv...))
	}

	resp, err := UnaryServerInterceptor(string(secret))(incoming("authorization", "Bearer "+tok), nil, info, handler)
	require.NoError(t, err)
	assert.Equal(t, "alice", resp)

	_, err = UnaryServerInterceptor(string(secret))(incoming("x-user-id", "mallory"), nil, info, handler)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	resp, err = UnaryServerInterceptor("")(incoming("x-user-id", "bob", "x-company-id", "acme"), nil, info, handler)
	require.NoError(t, err)
	assert.Equal(t, "bob", resp)

	_, err = UnaryServerInterceptor("")(incoming("x-user-id", "bob"), nil, info, handler)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	_, err = UnaryServerInterceptor("")(context.Background(), nil, info, handler)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestMiddleware_HeaderRoles(t *testing.T) {
	var seen *UserContext
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = GetUserContext(r.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/api", nil)
	req.Header.Set("X-User-ID", "alice")
	req.Header.Set("X-Company-ID", "acme")
	req.Header.Set("X-User-Roles", " viewer, approval_admin ,")
	Middleware("")(next).ServeHTTP(httptest.NewRecorder(), req)

	require.NotNil(t, seen)
	assert.Equal(t, []string{"viewer", RoleApprovalAdmin}, seen.Roles)
}

func TestGetUserContext(t *testing.T) {
	_, err := GetUserContext(context.Background())
	assert.ErrorIs(t, err, ErrNoUserContext)

	_, err = GetUserContext(WithUserContext(context.Background(), &UserContext{}))
	assert.ErrorIs(t, err, ErrNoUserContext)
}
