package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/data/dberr"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/data/repos"
	types "github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/domain"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/apierr"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/dbctx"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/logger"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/study/steps"
)

const (
	minAdminPasswordLen = 12
	accessCodeAlphabet  = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	accessCodeLen       = 8
	maxProvisionBatch   = 500
)

var errInvalidCredentials = errors.New("invalid email or password")

type AdminLoginResult struct {
	Token     string           `json:"token"`
	ExpiresAt time.Time        `json:"expiresAt"`
	Admin     *types.AdminUser `json:"admin"`
}

type ProvisionInput struct {
	// AccessCodes are used as given. When empty, Count codes are generated.
	AccessCodes []string `json:"accessCodes"`
	Count       int      `json:"count"`
	// Variants are assigned round-robin; empty means the default variant.
	Variants         []string `json:"variants"`
	SidePanelEnabled bool     `json:"sidePanelEnabled"`
}

type AdminService interface {
	Login(ctx context.Context, email, password string) (*AdminLoginResult, error)
	CreateAdmin(ctx context.Context, email, password string) (*types.AdminUser, error)
	ResetPassword(ctx context.Context, email, password string) error
	ProvisionParticipants(ctx context.Context, in ProvisionInput) ([]*types.Participant, error)
	ListParticipants(ctx context.Context, limit, offset int) ([]*types.Participant, error)
	// Withdraw and Invalidate set a terminal status and leave the step as is.
	Withdraw(ctx context.Context, participantID uuid.UUID) (*types.Participant, error)
	Invalidate(ctx context.Context, participantID uuid.UUID) (*types.Participant, error)
}

type adminService struct {
	db           *gorm.DB
	log          *logger.Logger
	admins       repos.AdminUserRepo
	participants repos.ParticipantRepo
	tokens       TokenIssuer
	now          func() time.Time
}

func NewAdminService(
	db *gorm.DB,
	baseLog *logger.Logger,
	admins repos.AdminUserRepo,
	participants repos.ParticipantRepo,
	tokens TokenIssuer,
) AdminService {
	return &adminService{
		db:           db,
		log:          baseLog.With("service", "AdminService"),
		admins:       admins,
		participants: participants,
		tokens:       tokens,
		now:          utcNow,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *adminService) Login(ctx context.Context, email, password string) (*AdminLoginResult, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, apierr.BadRequest("missing_credentials", "email and password are required")
	}
	dbc := dbctx.Context{Ctx: ctx}
	admin, err := s.admins.GetByEmail(dbc, email)
	if err != nil {
		return nil, err
	}
	if admin == nil {
		return nil, apierr.New(http.StatusUnauthorized, "invalid_credentials", errInvalidCredentials)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(password)); err != nil {
		s.log.Warn("admin login rejected", "email", email)
		return nil, apierr.New(http.StatusUnauthorized, "invalid_credentials", errInvalidCredentials)
	}
	token, exp, err := s.tokens.IssueAdmin(admin.ID, admin.Email)
	if err != nil {
		return nil, apierr.Internal("token_issue_failed", err)
	}
	now := s.now()
	if err := s.admins.TouchLogin(dbc, admin.ID, now); err != nil {
		s.log.Warn("touch admin login failed", "admin_id", admin.ID.String(), "error", err)
	}
	admin.LastLoginAt = &now
	return &AdminLoginResult{Token: token, ExpiresAt: exp, Admin: admin}, nil
}

func (s *adminService) CreateAdmin(ctx context.Context, email, password string) (*types.AdminUser, error) {
	email = normalizeEmail(email)
	if !strings.Contains(email, "@") {
		return nil, apierr.BadRequest("invalid_email", "email %q is not valid", email)
	}
	if len(password) < minAdminPasswordLen {
		return nil, apierr.BadRequest("weak_password", "password must have at least %d characters", minAdminPasswordLen)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	admin := &types.AdminUser{Email: email, PasswordHash: string(hash)}
	if err := s.admins.Create(dbctx.Context{Ctx: ctx}, admin); err != nil {
		if dberr.IsUniqueViolation(err) {
			return nil, apierr.Conflict("admin_exists", "an admin with this email already exists")
		}
		return nil, err
	}
	s.log.Info("admin created", "admin_id", admin.ID.String())
	return admin, nil
}

func (s *adminService) ResetPassword(ctx context.Context, email, password string) error {
	if len(password) < minAdminPasswordLen {
		return apierr.BadRequest("weak_password", "password must have at least %d characters", minAdminPasswordLen)
	}
	dbc := dbctx.Context{Ctx: ctx}
	admin, err := s.admins.GetByEmail(dbc, email)
	if err != nil {
		return err
	}
	if admin == nil {
		return apierr.NotFound("admin_not_found", "no admin with this email")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.admins.UpdatePassword(dbc, admin.ID, string(hash)); err != nil {
		return err
	}
	s.log.Info("admin password reset", "admin_id", admin.ID.String())
	return nil
}

func (s *adminService) ProvisionParticipants(ctx context.Context, in ProvisionInput) ([]*types.Participant, error) {
	codes := make([]string, 0, len(in.AccessCodes))
	seen := map[string]bool{}
	for _, c := range in.AccessCodes {
		c = strings.TrimSpace(c)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		codes = append(codes, c)
	}
	if len(codes) == 0 {
		if in.Count <= 0 {
			return nil, apierr.BadRequest("invalid_count", "provide accessCodes or a positive count")
		}
		for len(codes) < in.Count {
			c, err := generateAccessCode()
			if err != nil {
				return nil, err
			}
			if !seen[c] {
				seen[c] = true
				codes = append(codes, c)
			}
		}
	}
	if len(codes) > maxProvisionBatch {
		return nil, apierr.BadRequest("batch_too_large", "at most %d participants per request", maxProvisionBatch)
	}

	initial := steps.Initial()
	rows := make([]*types.Participant, 0, len(codes))
	for i, c := range codes {
		variant := ""
		if len(in.Variants) > 0 {
			variant = strings.TrimSpace(in.Variants[i%len(in.Variants)])
		}
		p := &types.Participant{AccessCode: c, AssignedVariant: variant, SidePanelEnabled: in.SidePanelEnabled}
		p.Apply(initial)
		rows = append(rows, p)
	}

	var out []*types.Participant
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		created, err := s.participants.Create(dbctx.Context{Ctx: ctx, Tx: tx}, rows)
		if err != nil {
			return err
		}
		out = created
		return nil
	})
	if err != nil {
		if dberr.IsUniqueViolation(err) {
			return nil, apierr.Conflict("access_code_taken", "an access code is already in use")
		}
		return nil, err
	}
	s.log.Info("participants provisioned", "count", len(out), "side_panel", in.SidePanelEnabled)
	return out, nil
}

func (s *adminService) ListParticipants(ctx context.Context, limit, offset int) ([]*types.Participant, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return s.participants.List(dbctx.Context{Ctx: ctx}, limit, offset)
}

func (s *adminService) Withdraw(ctx context.Context, participantID uuid.UUID) (*types.Participant, error) {
	return s.setTerminal(ctx, participantID, steps.StatusWithdrawn)
}

func (s *adminService) Invalidate(ctx context.Context, participantID uuid.UUID) (*types.Participant, error) {
	return s.setTerminal(ctx, participantID, steps.StatusInvalidated)
}

// setTerminal is idempotent for the same status. Withdrawing a completed
// participant conflicts; invalidating one does not, so finished runs with bad
// data can still be excluded.
func (s *adminService) setTerminal(ctx context.Context, participantID uuid.UUID, status steps.Status) (*types.Participant, error) {
	var out *types.Participant
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		p, err := s.participants.LockByID(dbc, participantID)
		if err != nil {
			return err
		}
		if p == nil {
			return apierr.NotFound("participant_not_found", "participant not found")
		}
		out = p
		if p.Status == status {
			return nil
		}
		if p.Status.Inactive() || (p.Status == steps.StatusCompleted && status == steps.StatusWithdrawn) {
			return apierr.Conflict("participant_terminal", fmt.Sprintf("participant is already %s", p.Status))
		}
		if err := s.participants.UpdateFields(dbc, p.ID, map[string]interface{}{"status": string(status)}); err != nil {
			return err
		}
		p.Status = status
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("participant status changed", "participant_id", participantID.String(), "status", string(out.Status))
	return out, nil
}

func generateAccessCode() (string, error) {
	var b strings.Builder
	max := big.NewInt(int64(len(accessCodeAlphabet)))
	for i := 0; i < accessCodeLen; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate access code: %w", err)
		}
		b.WriteByte(accessCodeAlphabet[n.Int64()])
	}
	return b.String(), nil
}
