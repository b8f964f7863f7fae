package service

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Tipos lógicos de token; comparten mecanismo de firma.
const (
	TokenTypeAccess = "access"
	TokenTypeReset  = "reset"
)

var (
	ErrTokenExpired      = errors.New("token expired")
	ErrTokenBadSignature = errors.New("token signature mismatch")
	ErrTokenMalformed    = errors.New("token malformed")

	errSecretMissing = errors.New("signing secret not configured")
)

// TokenService emite y valida tokens firmados de acceso y de reset.
// El secreto se inyecta al construir el servicio y no rota en vida del proceso.
type TokenService struct {
	secret    []byte
	issuer    string
	accessTTL time.Duration
	resetTTL  time.Duration
}

type tokenClaims struct {
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

func NewTokenService(secret string, accessTTL, resetTTL time.Duration) *TokenService {
	if resetTTL <= 0 {
		resetTTL = 30 * time.Minute
	}
	return &TokenService{
		secret:    []byte(secret),
		issuer:    "authsvc",
		accessTTL: accessTTL,
		resetTTL:  resetTTL,
	}
}

// IssueAccess emite un token de acceso con subject = userID.
func (s *TokenService) IssueAccess(userID string) (string, error) {
	return s.sign(userID, TokenTypeAccess, s.accessTTL)
}

// IssueReset emite un token de restablecimiento con subject = userID.
func (s *TokenService) IssueReset(userID string) (string, error) {
	return s.sign(userID, TokenTypeReset, s.resetTTL)
}

// VerifyAccess valida un token de acceso y devuelve su subject.
func (s *TokenService) VerifyAccess(token string) (string, error) {
	return s.verify(token, TokenTypeAccess)
}

// VerifyReset valida un token de restablecimiento y devuelve su subject.
func (s *TokenService) VerifyReset(token string) (string, error) {
	return s.verify(token, TokenTypeReset)
}

func (s *TokenService) sign(subject, tokenType string, ttl time.Duration) (string, error) {
	if len(s.secret) == 0 {
		return "", errSecretMissing
	}
	now := time.Now().UTC()
	claims := tokenClaims{
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   s.issuer,
			Subject:  subject,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	// Con ttl <= 0 el token no lleva exp y queda vigente indefinidamente.
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *TokenService) verify(tokenString, wantType string) (string, error) {
	if len(s.secret) == 0 {
		return "", errSecretMissing
	}
	var claims tokenClaims
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	_, err := parser.ParseWithClaims(tokenString, &claims, func(_ *jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return "", ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return "", ErrTokenBadSignature
		default:
			return "", ErrTokenMalformed
		}
	}
	if claims.TokenType != wantType {
		return "", ErrTokenMalformed
	}
	if strings.TrimSpace(claims.Subject) == "" || claims.Issuer != s.issuer {
		return "", ErrTokenMalformed
	}
	return claims.Subject, nil
}
