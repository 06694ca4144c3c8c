// Package tokens mints and verifies the three token classes used by the API:
// session tokens (cookie auth), activation tokens (email links) and device
// access keys. Verification is side-effect free and there is no way to decode
// a payload without checking its signature first.
package tokens

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrExpired = errors.New("token expired")
	ErrInvalid = errors.New("token invalid")
)

// Purpose values keep the token classes from being replayed against each
// other: a session token is never a valid activation token and vice versa.
const (
	purposeSession    = "session"
	purposeActivation = "activation"
	purposeDeviceKey  = "device-access"
)

type SessionClaims struct {
	jwt.RegisteredClaims
	UserID  string `json:"userId"`
	Purpose string `json:"purpose"`
}

type ActivationClaims struct {
	jwt.RegisteredClaims
	UserID  string `json:"userId"`
	Email   string `json:"email"`
	Purpose string `json:"purpose"`
}

type DeviceClaims struct {
	jwt.RegisteredClaims
	DeviceID string `json:"deviceId"`
	Purpose  string `json:"purpose"`
}

type Service struct {
	secret        []byte
	sessionTTL    time.Duration
	activationTTL time.Duration
}

// New builds the token service. An empty secret is a server misconfiguration
// and is refused up front so that issuance can never fail later.
func New(secret string, sessionTTL, activationTTL time.Duration) (*Service, error) {
	if secret == "" {
		return nil, errors.New("tokens: signing secret is empty")
	}

	return &Service{
		secret:        []byte(secret),
		sessionTTL:    sessionTTL,
		activationTTL: activationTTL,
	}, nil
}

func (s *Service) SessionTTL() time.Duration {
	return s.sessionTTL
}

func (s *Service) IssueSession(userID string) (string, error) {
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.sessionTTL)),
		},
		UserID:  userID,
		Purpose: purposeSession,
	}

	return s.sign(claims)
}

func (s *Service) IssueActivation(userID, email string) (string, error) {
	claims := ActivationClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.activationTTL)),
		},
		UserID:  userID,
		Email:   email,
		Purpose: purposeActivation,
	}

	return s.sign(claims)
}

// IssueDeviceKey signs a long-lived access key for one device. The key never
// expires on its own; revocation happens by rotating the stored copy. The jti
// makes every issuance distinct: without it, two keys minted within the same
// second would be byte-identical and rotation would change nothing.
func (s *Service) IssueDeviceKey(deviceID string) (string, error) {
	claims := DeviceClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(time.Now()),
			ID:       uuid.NewString(),
		},
		DeviceID: deviceID,
		Purpose:  purposeDeviceKey,
	}

	return s.sign(claims)
}

func (s *Service) VerifySession(raw string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	if err := s.verify(raw, claims); err != nil {
		return nil, err
	}

	if claims.Purpose != purposeSession || claims.UserID == "" {
		return nil, ErrInvalid
	}

	return claims, nil
}

func (s *Service) VerifyActivation(raw string) (*ActivationClaims, error) {
	claims := &ActivationClaims{}
	if err := s.verify(raw, claims); err != nil {
		return nil, err
	}

	if claims.Purpose != purposeActivation || claims.UserID == "" {
		return nil, ErrInvalid
	}

	return claims, nil
}

func (s *Service) VerifyDeviceKey(raw string) (*DeviceClaims, error) {
	claims := &DeviceClaims{}
	if err := s.verify(raw, claims); err != nil {
		return nil, err
	}

	if claims.Purpose != purposeDeviceKey || claims.DeviceID == "" {
		return nil, ErrInvalid
	}

	return claims, nil
}

func (s *Service) sign(claims jwt.Claims) (string, error) {
	const op = "tokens.sign"

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return signed, nil
}

func (s *Service) verify(raw string, claims jwt.Claims) error {
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrExpired
		}
		return ErrInvalid
	}

	if !token.Valid {
		return ErrInvalid
	}

	return nil
}
