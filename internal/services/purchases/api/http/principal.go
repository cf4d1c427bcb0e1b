// Package httpapi serves the purchases JSON API.
package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/eventpass/eventpass/internal/platform/errors"
	"github.com/eventpass/eventpass/internal/platform/requestctx"
)

// minPrincipalSecretBytes is the smallest HS256 secret accepted.
const minPrincipalSecretBytes = 32

// PrincipalConfig defines how bearer tokens are verified.
type PrincipalConfig struct {
	Issuer   string
	Audience string
	Secret   []byte
	Leeway   time.Duration
	Now      func() time.Time
}

// PrincipalVerifier resolves bearer tokens to user ids.
type PrincipalVerifier struct {
	cfg    PrincipalConfig
	parser *jwt.Parser
}

// NewPrincipalVerifier validates cfg and returns a verifier.
func NewPrincipalVerifier(cfg PrincipalConfig) (*PrincipalVerifier, error) {
	cfg.Issuer = strings.TrimSpace(cfg.Issuer)
	cfg.Audience = strings.TrimSpace(cfg.Audience)
	if cfg.Issuer == "" {
		return nil, fmt.Errorf("principal issuer is required")
	}
	if cfg.Audience == "" {
		return nil, fmt.Errorf("principal audience is required")
	}
	if len(cfg.Secret) < minPrincipalSecretBytes {
		return nil, fmt.Errorf("principal secret must be at least %d bytes", minPrincipalSecretBytes)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithAudience(cfg.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(cfg.Leeway),
		jwt.WithTimeFunc(cfg.Now),
	)
	return &PrincipalVerifier{cfg: cfg, parser: parser}, nil
}

// Verify checks raw and returns its subject.
func (v *PrincipalVerifier) Verify(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", apperrors.New(apperrors.CodeUnauthorized, "bearer token is required")
	}
	var claims jwt.RegisteredClaims
	_, err := v.parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return v.cfg.Secret, nil
	})
	if err != nil {
		return "", mapJWTError(err)
	}
	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return "", apperrors.New(apperrors.CodeUnauthorized, "bearer token subject is required")
	}
	return subject, nil
}

// mapJWTError translates jwt library errors to application errors.
func mapJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return apperrors.Wrap(apperrors.CodeUnauthorized, "bearer token is expired", err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return apperrors.Wrap(apperrors.CodeUnauthorized, "bearer token signature is invalid", err)
	case errors.Is(err, jwt.ErrTokenInvalidIssuer), errors.Is(err, jwt.ErrTokenInvalidAudience):
		return apperrors.Wrap(apperrors.CodeUnauthorized, "bearer token was issued for another service", err)
	default:
		return apperrors.Wrap(apperrors.CodeUnauthorized, "bearer token is invalid", err)
	}
}

// requirePrincipal rejects requests without a valid bearer token and stores
// the subject on the request context.
func (s *Server) requirePrincipal(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r)
		if !ok {
			s.writeError(w, r, apperrors.New(apperrors.CodeUnauthorized, "bearer token is required"))
			return
		}
		userID, err := s.principals.Verify(raw)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		next(w, r.WithContext(requestctx.WithUserID(r.Context(), userID)))
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
