package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/phamhung075/4genthub-sub028/pkg/observability"
)

// Common errors. The dispatcher maps all of them to UNAUTHENTICATED; the
// specific error is surfaced as the reason in response details.
var (
	ErrNoToken          = errors.New("no bearer token provided")
	ErrInvalidToken     = errors.New("invalid token")
	ErrTokenExpired     = errors.New("token expired")
	ErrTokenNotYetValid = errors.New("token not yet valid")
	ErrAudienceMismatch = errors.New("audience mismatch")
	ErrSignatureInvalid = errors.New("signature invalid")
)

// APITokenAudience is the audience required on locally issued API tokens
const APITokenAudience = "mcp-server"

// apiTokenType is the required value of the custom "type" claim
const apiTokenType = "api_token"

// PlatformAudienceDefault is always accepted on platform tokens for
// compatibility with platform-issued session tokens
const PlatformAudienceDefault = "authenticated"

// ServiceConfig holds token verification settings
type ServiceConfig struct {
	// Platform (external OIDC) issuer
	PlatformIssuer string        `mapstructure:"platform_issuer"`
	JWKSURL        string        `mapstructure:"jwks_url"`
	Audience       string        `mapstructure:"audience"`
	JWKSRefresh    time.Duration `mapstructure:"jwks_refresh"`

	// Locally issued API tokens
	APITokenSecret string `mapstructure:"api_token_secret"`

	// Accepted clock drift when validating exp/nbf
	ClockSkew time.Duration `mapstructure:"clock_skew"`
}

// Service verifies bearer tokens from the two supported issuers
type Service struct {
	config ServiceConfig
	jwks   *JWKSClient
	logger observability.Logger
	now    func() time.Time
}

// NewService creates a token verification service
func NewService(config ServiceConfig, logger observability.Logger) *Service {
	var jwks *JWKSClient
	if config.JWKSURL != "" {
		jwks = NewJWKSClient(config.JWKSURL, config.JWKSRefresh)
	}
	return &Service{
		config: config,
		jwks:   jwks,
		logger: logger,
		now:    time.Now,
	}
}

// platformClaims are the claims read off a platform OIDC token
type platformClaims struct {
	jwt.RegisteredClaims
	Email  string   `json:"email,omitempty"`
	Roles  []string `json:"roles,omitempty"`
	Scopes []string `json:"scopes,omitempty"`
	Scope  string   `json:"scope,omitempty"`
}

// apiClaims are the claims read off a locally issued API token
type apiClaims struct {
	jwt.RegisteredClaims
	UserID string   `json:"user_id"`
	Email  string   `json:"email,omitempty"`
	Type   string   `json:"type"`
	Roles  []string `json:"roles,omitempty"`
	Scopes []string `json:"scopes,omitempty"`
}

// Verify validates a raw bearer token against both issuers. The platform
// path is attempted first; the API path is attempted only when the platform
// path fails on signature or algorithm grounds, so a structurally valid
// platform token with bad claims is reported as such rather than falling
// through.
func (s *Service) Verify(ctx context.Context, raw string) (*Principal, error) {
	raw = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "Bearer "))
	if raw == "" {
		return nil, ErrNoToken
	}

	principal, platformErr := s.verifyPlatformToken(ctx, raw)
	if platformErr == nil {
		return principal, nil
	}
	if !errors.Is(platformErr, ErrSignatureInvalid) {
		return nil, platformErr
	}

	principal, apiErr := s.verifyAPIToken(raw)
	if apiErr == nil {
		return principal, nil
	}
	return nil, apiErr
}

func (s *Service) verifyPlatformToken(ctx context.Context, raw string) (*Principal, error) {
	if s.jwks == nil {
		return nil, ErrSignatureInvalid
	}

	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	claims := &platformClaims{}
	token, err := parser.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, ErrSignatureInvalid
		}
		kid, _ := t.Header["kid"].(string)
		return s.jwks.Key(ctx, kid)
	})
	if err != nil || !token.Valid {
		return nil, ErrSignatureInvalid
	}

	if err := s.validateTimes(claims.ExpiresAt, claims.NotBefore); err != nil {
		return nil, err
	}
	if s.config.PlatformIssuer != "" && claims.Issuer != s.config.PlatformIssuer {
		return nil, ErrInvalidToken
	}
	if !s.platformAudienceOK(claims.Audience) {
		return nil, ErrAudienceMismatch
	}
	if claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	scopes := claims.Scopes
	if len(scopes) == 0 && claims.Scope != "" {
		scopes = strings.Fields(claims.Scope)
	}
	if len(scopes) == 0 {
		scopes = []string{DefaultScope}
	}

	return &Principal{
		UserID:    claims.Subject,
		Email:     claims.Email,
		Roles:     claims.Roles,
		Scopes:    scopes,
		TokenType: TokenTypePlatform,
		Issuer:    claims.Issuer,
	}, nil
}

func (s *Service) verifyAPIToken(raw string) (*Principal, error) {
	if s.config.APITokenSecret == "" {
		return nil, ErrSignatureInvalid
	}

	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	claims := &apiClaims{}
	token, err := parser.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrSignatureInvalid
		}
		return []byte(s.config.APITokenSecret), nil
	})
	if err != nil || !token.Valid {
		return nil, ErrSignatureInvalid
	}

	if err := s.validateTimes(claims.ExpiresAt, claims.NotBefore); err != nil {
		return nil, err
	}
	if !containsAudience(claims.Audience, APITokenAudience) {
		return nil, ErrAudienceMismatch
	}
	if claims.Type != apiTokenType {
		return nil, ErrInvalidToken
	}
	userID := claims.UserID
	if userID == "" {
		userID = claims.Subject
	}
	if userID == "" {
		return nil, ErrInvalidToken
	}

	return &Principal{
		UserID:    userID,
		Email:     claims.Email,
		Roles:     claims.Roles,
		Scopes:    claims.Scopes,
		TokenType: TokenTypeAPI,
		Issuer:    claims.Issuer,
	}, nil
}

func (s *Service) validateTimes(exp, nbf *jwt.NumericDate) error {
	now := s.now()
	if exp == nil {
		return ErrInvalidToken
	}
	if now.After(exp.Time.Add(s.config.ClockSkew)) {
		return ErrTokenExpired
	}
	if nbf != nil && now.Add(s.config.ClockSkew).Before(nbf.Time) {
		return ErrTokenNotYetValid
	}
	return nil
}

func (s *Service) platformAudienceOK(aud jwt.ClaimStrings) bool {
	if containsAudience(aud, PlatformAudienceDefault) {
		return true
	}
	return s.config.Audience != "" && containsAudience(aud, s.config.Audience)
}

func containsAudience(aud jwt.ClaimStrings, want string) bool {
	for _, a := range aud {
		if a == want {
			return true
		}
	}
	return false
}

// IssueAPIToken mints a locally issued API token for the given user. Used
// by operator tooling and tests.
func (s *Service) IssueAPIToken(userID, email string, scopes []string, ttl time.Duration) (string, error) {
	if s.config.APITokenSecret == "" {
		return "", errors.New("API token secret not configured")
	}
	now := s.now()
	claims := &apiClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Audience:  jwt.ClaimStrings{APITokenAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UserID: userID,
		Email:  email,
		Type:   apiTokenType,
		Scopes: scopes,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.config.APITokenSecret))
}
