package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/raterudder/luminus/pkg/log"
	"google.golang.org/api/idtoken"
)

// tokenClaims are the parts of an ID token the server cares about.
type tokenClaims struct {
	Subject       string `json:"-"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
}

// tokenValidator validates a raw ID token and returns its claims.
type tokenValidator func(ctx context.Context, token string) (tokenClaims, error)

// googleValidator validates Google-issued ID tokens for audience.
func googleValidator(audience string) tokenValidator {
	return func(ctx context.Context, token string) (tokenClaims, error) {
		payload, err := idtoken.Validate(ctx, token, audience)
		if err != nil {
			return tokenClaims{}, err
		}
		claims := tokenClaims{Subject: payload.Subject}
		claims.Email, _ = payload.Claims["email"].(string)
		claims.EmailVerified, _ = payload.Claims["email_verified"].(bool)
		return claims, nil
	}
}

// oidcValidator validates ID tokens using a discovered OIDC provider.
func oidcValidator(verifier *oidc.IDTokenVerifier) tokenValidator {
	return func(ctx context.Context, token string) (tokenClaims, error) {
		idToken, err := verifier.Verify(ctx, token)
		if err != nil {
			return tokenClaims{}, err
		}
		var claims tokenClaims
		if err := idToken.Claims(&claims); err != nil {
			return tokenClaims{}, err
		}
		claims.Subject = idToken.Subject
		return claims, nil
	}
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		ctx = log.With(ctx, log.Ctx(ctx).With(slog.String("reqPath", r.URL.Path)))

		if s.bypassAuth {
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			log.Ctx(ctx).WarnContext(ctx, "unauthenticated request")
			writeJSONError(w, "missing authorization header", http.StatusUnauthorized)
			return
		}
		token, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok || token == "" {
			log.Ctx(ctx).WarnContext(ctx, "invalid auth header")
			writeJSONError(w, "invalid authorization header", http.StatusUnauthorized)
			return
		}

		claims, err := s.authenticateToken(ctx, token)
		if err != nil {
			log.Ctx(ctx).WarnContext(ctx, "auth token validation failed", slog.Any("error", err))
			writeJSONError(w, "invalid id token", http.StatusUnauthorized)
			return
		}

		if !s.isAdmin(claims.Email) {
			log.Ctx(ctx).WarnContext(ctx, "email not allowed", slog.String("email", claims.Email))
			writeJSONError(w, "forbidden", http.StatusForbidden)
			return
		}

		ctx = log.With(ctx, log.Ctx(ctx).With(slog.String("authUserID", claims.Subject)))
		log.Ctx(ctx).DebugContext(ctx, "authenticated request", slog.String("email", claims.Email))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// isAdmin reports whether email may use the API. Nobody is an admin when
// no admin emails are configured.
func (s *Server) isAdmin(email string) bool {
	if len(s.adminEmails) == 0 {
		return false
	}
	for _, admin := range s.adminEmails {
		if strings.EqualFold(email, admin) {
			return true
		}
	}
	return false
}

func (s *Server) authenticateToken(ctx context.Context, token string) (tokenClaims, error) {
	if s.tokenValidator == nil {
		return tokenClaims{}, errors.New("no token validator configured")
	}
	claims, err := s.tokenValidator(ctx, token)
	if err != nil {
		return tokenClaims{}, err
	}
	if claims.Email == "" || !claims.EmailVerified {
		return tokenClaims{}, errors.New("id token has no verified email")
	}
	return claims, nil
}
