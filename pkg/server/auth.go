package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/gridplan/gridplan/pkg/log"
)

// user is the authenticated caller of an API request.
type user struct {
	Email   string
	Subject string
	// Admin may submit runs. Everyone else may only read them.
	Admin bool
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		ctx = log.With(ctx, log.Ctx(ctx).With(slog.String("reqPath", r.URL.Path)))

		if s.bypassAuth {
			ctx = context.WithValue(ctx, userContextKey, user{Admin: true})
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			log.Ctx(ctx).WarnContext(ctx, "no auth header found")
			writeJSONError(w, "missing auth header", http.StatusUnauthorized)
			return
		}
		token, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok || token == "" {
			log.Ctx(ctx).WarnContext(ctx, "invalid auth header")
			writeJSONError(w, "invalid auth header", http.StatusBadRequest)
			return
		}

		email, subject, err := s.authenticateToken(ctx, token)
		if err != nil {
			log.Ctx(ctx).WarnContext(ctx, "auth token validation failed", slog.Any("error", err))
			writeJSONError(w, "invalid auth token", http.StatusUnauthorized)
			return
		}
		if email == "" {
			log.Ctx(ctx).WarnContext(ctx, "invalid email in id token")
			writeJSONError(w, "invalid oidc claims", http.StatusUnauthorized)
			return
		}

		u := user{Email: email, Subject: subject, Admin: s.isAdmin(email)}
		if !u.Admin && !s.isViewer(email) {
			log.Ctx(ctx).WarnContext(ctx, "user not allowed", slog.String("email", email))
			writeJSONError(w, "forbidden", http.StatusForbidden)
			return
		}
		ctx = log.With(ctx, log.Ctx(ctx).With(slog.String("email", email)))
		ctx = context.WithValue(ctx, userContextKey, u)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// authenticateToken tries every configured OIDC verifier and then the
// Google service token validator, returning the email and subject of the
// first that accepts the token.
func (s *Server) authenticateToken(ctx context.Context, token string) (string, string, error) {
	var errs []error

	for issuer, verifier := range s.oidcVerifiers {
		idToken, err := verifier(ctx, token)
		if err == nil {
			var claims struct {
				Email string `json:"email"`
			}
			err = idToken.Claims(&claims)
			if err == nil {
				return claims.Email, idToken.Subject, nil
			}
		}
		errs = append(errs, fmt.Errorf("%s verifier failed: %v", issuer, err))
	}

	if s.tokenValidator != nil {
		payload, err := s.tokenValidator(ctx, token, s.serviceAudience)
		if err == nil {
			email, _ := payload.Claims["email"].(string)
			return email, payload.Subject, nil
		}
		errs = append(errs, fmt.Errorf("service token validation failed: %v", err))
	}

	if len(errs) > 1 {
		return "", "", errors.Join(errs...)
	}
	if len(errs) == 1 {
		return "", "", errs[0]
	}
	return "", "", errors.New("no token verifiers configured")
}

func (s *Server) isAdmin(email string) bool {
	return slices.Contains(s.adminEmails, email)
}

func (s *Server) isViewer(email string) bool {
	_, domain, ok := strings.Cut(email, "@")
	return ok && slices.Contains(s.viewerDomains, domain)
}

type authStatusResponse struct {
	Email        string `json:"email"`
	Admin        bool   `json:"admin"`
	AuthRequired bool   `json:"authRequired"`
}

func (s *Server) handleAuthStatus(w http.ResponseWriter, r *http.Request) {
	u := s.getUser(r)
	writeJSON(w, http.StatusOK, authStatusResponse{
		Email:        u.Email,
		Admin:        u.Admin,
		AuthRequired: !s.bypassAuth,
	})
}
