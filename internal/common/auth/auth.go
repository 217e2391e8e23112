// Package auth resolves the acting identity from HS256 bearer tokens for
// both the HTTP and the gRPC surface.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// RoleApprovalAdmin may manage approval configs and approver groups.
const RoleApprovalAdmin = "approval_admin"

// ErrNoUserContext is returned when the context carries no identity.
var ErrNoUserContext = errors.New("no user context")

// UserContext is the authenticated caller.
type UserContext struct {
	UserID    string
	CompanyID string
	Roles     []string
}

// HasRole reports whether the caller holds any of roles.
func (uc *UserContext) HasRole(roles ...string) bool {
	for _, have := range uc.Roles {
		for _, want := range roles {
			if have == want {
				return true
			}
		}
	}
	return false
}

// Claims are the token claims issued by the identity service.
type Claims struct {
	jwt.RegisteredClaims
	CompanyID string   `json:"company_id,omitempty"`
	Roles     []string `json:"roles,omitempty"`
}

type ctxKey struct{}

// WithUserContext stores uc in ctx.
func WithUserContext(ctx context.Context, uc *UserContext) context.Context {
	return context.WithValue(ctx, ctxKey{}, uc)
}

// GetUserContext returns the identity stored by the middleware.
func GetUserContext(ctx context.Context) (*UserContext, error) {
	uc, ok := ctx.Value(ctxKey{}).(*UserContext)
	if !ok || uc == nil || uc.UserID == "" {
		return nil, ErrNoUserContext
	}
	return uc, nil
}

// ParseToken validates a bearer token and returns its identity. Tokens
// without a subject or a company are rejected.
func ParseToken(tokenString string, secret []byte) (*UserContext, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	if claims.CompanyID == "" {
		return nil, errors.New("token has no company")
	}
	return &UserContext{UserID: claims.Subject, CompanyID: claims.CompanyID, Roles: claims.Roles}, nil
}

// IssueToken signs a token for userID. Used by tooling and tests.
func IssueToken(userID, companyID string, roles []string, secret []byte) (string, error) {
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: userID},
		CompanyID:        companyID,
		Roles:            roles,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// headerIdentity builds the caller from trusted plain values. Both a user and
// a company are required.
func headerIdentity(userID, companyID, roles string) *UserContext {
	if userID == "" || companyID == "" {
		return nil
	}
	uc := &UserContext{UserID: userID, CompanyID: companyID}
	for _, role := range strings.Split(roles, ",") {
		if role = strings.TrimSpace(role); role != "" {
			uc.Roles = append(uc.Roles, role)
		}
	}
	return uc
}

func bearer(value string) string {
	if len(value) > 7 && strings.EqualFold(value[:7], "bearer ") {
		return value[7:]
	}
	return ""
}

// Middleware rejects requests without a valid bearer token. An empty secret
// disables verification and trusts the X-User-ID, X-Company-ID and
// X-User-Roles headers, for local runs only.
func Middleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/health" {
				next.ServeHTTP(w, r)
				return
			}

			var uc *UserContext
			if secret == "" {
				uc = headerIdentity(r.Header.Get("X-User-ID"), r.Header.Get("X-Company-ID"), r.Header.Get("X-User-Roles"))
			} else if tok := bearer(r.Header.Get("Authorization")); tok != "" {
				parsed, err := ParseToken(tok, []byte(secret))
				if err == nil {
					uc = parsed
				}
			}

			if uc == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserContext(r.Context(), uc)))
		})
	}
}

// UnaryServerInterceptor is the gRPC counterpart of Middleware.
func UnaryServerInterceptor(secret string) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		md, _ := metadata.FromIncomingContext(ctx)
		first := func(key string) string {
			if vals := md.Get(key); len(vals) > 0 {
				return vals[0]
			}
			return ""
		}

		var uc *UserContext
		if secret == "" {
			uc = headerIdentity(first("x-user-id"), first("x-company-id"), first("x-user-roles"))
		} else if tok := bearer(first("authorization")); tok != "" {
			parsed, err := ParseToken(tok, []byte(secret))
			if err == nil {
				uc = parsed
			}
		}

		if uc == nil {
			return nil, status.Error(codes.Unauthenticated, "unauthorized")
		}
		return handler(WithUserContext(ctx, uc), req)
	}
}
