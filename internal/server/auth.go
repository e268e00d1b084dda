package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/golang-jwt/jwt/v5"

	"scrumgame/internal/engine"
	"scrumgame/internal/engine/auth"
	"scrumgame/internal/ims"
)

const (
	apiKeyHeader   = "X-Api-Key"
	imsTokenHeader = "X-Ims-Token"
	devTokenTTL    = 12 * time.Hour
)

type AuthConfig struct {
	JWTSecret string
	// DevLogin enables POST /auth/dev/login, which mints tokens for any subject.
	DevLogin bool
}

type jwtClaims struct {
	jwt.RegisteredClaims
	Roles      []string `json:"roles,omitempty"`
	Privileges []string `json:"privileges,omitempty"`
	IMSToken   string   `json:"ims_token,omitempty"`
}

func authenticateJWT(token, secret string) (auth.Principal, string, error) {
	if strings.TrimSpace(secret) == "" {
		return auth.Principal{}, "", errors.New("jwt secret not configured")
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &jwtClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return auth.Principal{}, "", err
	}
	if !parsed.Valid {
		return auth.Principal{}, "", errors.New("invalid token")
	}
	if claims.Subject == "" {
		return auth.Principal{}, "", errors.New("subject claim required")
	}
	privs := make([]auth.Privilege, 0, len(claims.Privileges))
	for _, p := range claims.Privileges {
		privs = append(privs, auth.Privilege(p))
	}
	return auth.Principal{
		UserID:     claims.Subject,
		Roles:      claims.Roles,
		Privileges: privs,
		Source:     "jwt",
	}, claims.IMSToken, nil
}

func signToken(secret, subject string, roles, privileges []string, imsToken string, now time.Time) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", errors.New("jwt secret not configured")
	}
	claims := jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(devTokenTTL)),
		},
		Roles:      roles,
		Privileges: privileges,
		IMSToken:   imsToken,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func bearerToken(authz string) (string, bool) {
	parts := strings.Fields(authz)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

// newAuthMiddleware attaches the caller's principal and IMS credential to the
// request context. Health, docs and dev login stay open.
func newAuthMiddleware(basePath string, cfg AuthConfig, e *engine.Engine, logger *slog.Logger) func(http.Handler) http.Handler {
	open := []string{
		path.Join(basePath, "health"),
		path.Join(basePath, "openapi.json"),
		path.Join(basePath, "auth/dev/login"),
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if !strings.HasPrefix(req.URL.Path, basePath) || slices.Contains(open, req.URL.Path) {
				next.ServeHTTP(w, req)
				return
			}
			ctx := req.Context()
			var principal auth.Principal
			var imsToken string
			switch {
			case strings.TrimSpace(req.Header.Get("Authorization")) != "":
				token, ok := bearerToken(req.Header.Get("Authorization"))
				if !ok {
					respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil))
					return
				}
				p, claimToken, err := authenticateJWT(token, cfg.JWTSecret)
				if err != nil {
					logger.Debug("jwt rejected", "error", err)
					respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil))
					return
				}
				principal, imsToken = p, claimToken
			case strings.TrimSpace(req.Header.Get(apiKeyHeader)) != "":
				key, err := e.Authenticate(ctx, req.Header.Get(apiKeyHeader))
				if err != nil {
					respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil))
					return
				}
				principal = auth.Principal{UserID: key.UserID, Source: "api_key"}
			default:
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil))
				return
			}
			if h := strings.TrimSpace(req.Header.Get(imsTokenHeader)); h != "" {
				imsToken = h
			}
			ctx = auth.WithPrincipal(ctx, principal)
			if imsToken != "" {
				ctx = ims.WithToken(ctx, imsToken)
			}
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	}
}

func respondStatusError(w http.ResponseWriter, err huma.StatusError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.GetStatus())
	_ = json.NewEncoder(w).Encode(err)
}

type WhoAmIResponse struct {
	UserID     string   `json:"user_id"`
	Roles      []string `json:"roles"`
	Privileges []string `json:"privileges"`
	Source     string   `json:"source"`
}

type DevLoginRequest struct {
	UserID     string   `json:"user_id"`
	Roles      []string `json:"roles,omitempty"`
	Privileges []string `json:"privileges,omitempty"`
	IMSToken   string   `json:"ims_token,omitempty"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

type CreateAPIKeyRequest struct {
	Name string `json:"name,omitempty"`
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
	Key       string `json:"key,omitempty"`
}

func (a *api) registerMe(hapi huma.API, cfg AuthConfig) {
	huma.Register(hapi, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current principal",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body WhoAmIResponse `json:"body"`
	}, error) {
		p, ok := auth.PrincipalFrom(ctx)
		if !ok {
			return nil, handleError(auth.ErrUnauthenticated)
		}
		privs := make([]string, 0, len(p.Privileges))
		for _, priv := range p.Privileges {
			privs = append(privs, string(priv))
		}
		return &struct {
			Body WhoAmIResponse `json:"body"`
		}{Body: WhoAmIResponse{UserID: p.UserID, Roles: nonNilSlice(p.Roles), Privileges: privs, Source: p.Source}}, nil
	})

	huma.Register(hapi, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/me/api-keys",
		Summary:       "Create an API key for the caller",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body CreateAPIKeyRequest `json:"body"`
	}) (*struct {
		Body APIKeyResponse `json:"body"`
	}, error) {
		plain, key, err := a.engine.CreateAPIKey(ctx, input.Body.Name)
		if err != nil {
			return nil, handleError(err)
		}
		resp := apiKeyResponse(key)
		resp.Key = plain
		return &struct {
			Body APIKeyResponse `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(hapi, huma.Operation{
		OperationID: "list-api-keys",
		Method:      http.MethodGet,
		Path:        "/me/api-keys",
		Summary:     "List the caller's API keys",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []APIKeyResponse `json:"body"`
	}, error) {
		keys, err := a.engine.ListAPIKeys(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		resp := make([]APIKeyResponse, 0, len(keys))
		for _, k := range keys {
			resp = append(resp, apiKeyResponse(k))
		}
		return &struct {
			Body []APIKeyResponse `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(hapi, huma.Operation{
		OperationID:   "delete-api-key",
		Method:        http.MethodDelete,
		Path:          "/me/api-keys/{key_id}",
		Summary:       "Revoke an API key",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		KeyID string `path:"key_id"`
	}) (*struct{}, error) {
		if err := a.engine.DeleteAPIKey(ctx, input.KeyID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	if !cfg.DevLogin {
		return
	}
	huma.Register(hapi, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "DEV ONLY: mint a JWT for local testing",
		Errors:      []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest `json:"body"`
	}) (*struct {
		Body DevLoginResponse `json:"body"`
	}, error) {
		user := strings.TrimSpace(input.Body.UserID)
		if user == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "user_id is required", nil)
		}
		token, err := signToken(cfg.JWTSecret, user, input.Body.Roles, input.Body.Privileges, input.Body.IMSToken, time.Now())
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		a.logger.Warn("dev token issued", "user_id", user)
		return &struct {
			Body DevLoginResponse `json:"body"`
		}{Body: DevLoginResponse{Token: token}}, nil
	})
}
