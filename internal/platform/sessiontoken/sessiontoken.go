// Package sessiontoken signs and verifies the stateless bearer tokens used by
// participants and study admins. Tokens are HS256 JWTs; nothing is stored
// server side, so a token is valid until it expires.
package sessiontoken

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	DefaultParticipantTTL = 2 * time.Hour
	DefaultAdminTTL       = 8 * time.Hour

	audienceParticipant = "study"
	audienceAdmin       = "study-admin"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

type ParticipantClaims struct {
	AccessCode       string `json:"accessCode"`
	SidePanelEnabled bool   `json:"sidePanelEnabled"`
	jwt.RegisteredClaims
}

type AdminClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

type Config struct {
	Secret         string
	ParticipantTTL time.Duration
	AdminTTL       time.Duration
}

type Issuer struct {
	secret         []byte
	participantTTL time.Duration
	adminTTL       time.Duration
	now            func() time.Time
}

func New(cfg Config) (*Issuer, error) {
	if len(strings.TrimSpace(cfg.Secret)) < 32 {
		return nil, fmt.Errorf("session token secret must be at least 32 bytes")
	}
	if cfg.ParticipantTTL <= 0 {
		cfg.ParticipantTTL = DefaultParticipantTTL
	}
	if cfg.AdminTTL <= 0 {
		cfg.AdminTTL = DefaultAdminTTL
	}
	return &Issuer{
		secret:         []byte(cfg.Secret),
		participantTTL: cfg.ParticipantTTL,
		adminTTL:       cfg.AdminTTL,
		now:            time.Now,
	}, nil
}

// WithClock overrides the issuer's clock. Used by tests.
func (i *Issuer) WithClock(now func() time.Time) *Issuer {
	cp := *i
	cp.now = now
	return &cp
}

func (i *Issuer) ParticipantTTL() time.Duration { return i.participantTTL }

func (i *Issuer) IssueParticipant(participantID uuid.UUID, accessCode string, sidePanelEnabled bool) (string, time.Time, error) {
	now := i.now()
	exp := now.Add(i.participantTTL)
	claims := ParticipantClaims{
		AccessCode:       accessCode,
		SidePanelEnabled: sidePanelEnabled,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   participantID.String(),
			Audience:  jwt.ClaimStrings{audienceParticipant},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign participant token: %w", err)
	}
	return signed, exp, nil
}

func (i *Issuer) VerifyParticipant(token string) (*ParticipantClaims, error) {
	claims := &ParticipantClaims{}
	if err := i.parse(token, claims, audienceParticipant); err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(claims.Subject); err != nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (i *Issuer) IssueAdmin(adminID uuid.UUID, email string) (string, time.Time, error) {
	now := i.now()
	exp := now.Add(i.adminTTL)
	claims := AdminClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   adminID.String(),
			Audience:  jwt.ClaimStrings{audienceAdmin},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign admin token: %w", err)
	}
	return signed, exp, nil
}

func (i *Issuer) VerifyAdmin(token string) (*AdminClaims, error) {
	claims := &AdminClaims{}
	if err := i.parse(token, claims, audienceAdmin); err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(claims.Subject); err != nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (i *Issuer) parse(token string, claims jwt.Claims, audience string) error {
	token = strings.TrimSpace(token)
	if token == "" || strings.Count(token, ".") != 2 {
		return ErrInvalidToken
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithAudience(audience),
		jwt.WithTimeFunc(i.now),
	)
	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return i.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrExpiredToken
		}
		return ErrInvalidToken
	}
	if !parsed.Valid {
		return ErrInvalidToken
	}
	return nil
}
