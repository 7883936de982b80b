package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	authorizer "github.com/localnerve/authorizer-go"
	"github.com/localnerve/datashare/internal/config"
	"github.com/localnerve/datashare/internal/utils"
	"go.uber.org/zap"
)

// Identity is an already-verified caller.
type Identity struct {
	UserID string   `json:"id"`
	Email  string   `json:"email,omitempty"`
	Roles  []string `json:"roles,omitempty"`
}

// IdentityValidator verifies a credential issued by the external identity
// provider.
type IdentityValidator interface {
	Validate(ctx context.Context, credential string) (*Identity, error)
}

// NewIdentityValidator selects the validator for AUTH_MODE.
func NewIdentityValidator(cfg *config.Config, log *zap.Logger) (IdentityValidator, error) {
	switch cfg.AuthMode {
	case config.AuthModeJWT:
		return NewJWTValidator([]byte(cfg.JWTSecret), cfg.JWTIssuer), nil
	case config.AuthModeAuthorizer:
		return NewAuthorizerValidator(cfg, log)
	}
	return nil, fmt.Errorf("unsupported auth mode: %s", cfg.AuthMode)
}

// AuthorizerValidator validates authorizer session cookies.
type AuthorizerValidator struct {
	client *authorizer.AuthorizerClient
	roles  []string
}

// NewAuthorizerValidator pings the authorizer and builds a client for it.
func NewAuthorizerValidator(cfg *config.Config, log *zap.Logger) (*AuthorizerValidator, error) {
	if err := utils.PingAuthorizer(cfg.AuthzURL); err != nil {
		return nil, fmt.Errorf("authorizer ping failed: %w", err)
	}

	log.Info("initializing authorizer",
		zap.String("authorizer_url", cfg.AuthzURL),
		zap.String("client_id", cfg.AuthzClientID),
	)

	client, err := authorizer.NewAuthorizerClient(cfg.AuthzClientID, cfg.AuthzURL, "", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create authorizer client: %w", err)
	}
	return &AuthorizerValidator{client: client, roles: []string{"user"}}, nil
}

// Validate validates a session cookie for the configured roles
func (v *AuthorizerValidator) Validate(_ context.Context, cookie string) (*Identity, error) {
	rolesPtrs := make([]*string, len(v.roles))
	for i := range v.roles {
		rolesPtrs[i] = &v.roles[i]
	}

	res, err := v.client.ValidateSession(&authorizer.ValidateSessionInput{
		Cookie: cookie,
		Roles:  rolesPtrs,
	})
	if err != nil {
		return nil, fmt.Errorf("session validation failed: %w", err)
	}
	if res == nil || !res.IsValid || res.User == nil {
		return nil, errors.New("session is not valid")
	}

	return &Identity{UserID: res.User.ID, Roles: v.roles}, nil
}

// JWTValidator validates HS256 bearer tokens whose subject is the user id.
type JWTValidator struct {
	secret []byte
	issuer string
}

func NewJWTValidator(secret []byte, issuer string) *JWTValidator {
	return &JWTValidator{secret: secret, issuer: issuer}
}

// identityClaims are the claims read from bearer tokens.
type identityClaims struct {
	Email string   `json:"email,omitempty"`
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

func (v *JWTValidator) Validate(_ context.Context, token string) (*Identity, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &identityClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("token validation failed: %w", err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return nil, errors.New("token is not valid")
	}

	return &Identity{UserID: claims.Subject, Email: claims.Email, Roles: claims.Roles}, nil
}

// Sign issues a token for id, used by tooling and tests.
func (v *JWTValidator) Sign(id Identity, claims jwt.RegisteredClaims) (string, error) {
	claims.Subject = id.UserID
	if v.issuer != "" && claims.Issuer == "" {
		claims.Issuer = v.issuer
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, identityClaims{
		Email:            id.Email,
		Roles:            id.Roles,
		RegisteredClaims: claims,
	}).SignedString(v.secret)
}
