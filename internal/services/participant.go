package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/data/repos"
	types "github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/domain"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/apierr"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/dbctx"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/logger"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/study/steps"
)

type SessionStartInput struct {
	AccessCode string
	ClientIP   string
	UserAgent  string
}

type SessionStartResult struct {
	Token       string             `json:"token"`
	ExpiresAt   time.Time          `json:"expiresAt"`
	AccessCode  string             `json:"accessCode"`
	RedirectTo  string             `json:"redirectTo"`
	Participant *types.Participant `json:"participant"`
}

type MeResult struct {
	Participant  *types.Participant   `json:"participant"`
	TaskSessions []*types.TaskSession `json:"taskSessions"`
	RedirectTo   string               `json:"redirectTo"`
}

type ParticipantService interface {
	// StartSession exchanges an access code for a session token. The first
	// start moves WELCOME to PRE_SURVEY; later starts count as re-entries.
	StartSession(ctx context.Context, in SessionStartInput) (*SessionStartResult, error)
	Me(ctx context.Context) (*MeResult, error)
	// Touch refreshes lastActiveAt.
	Touch(ctx context.Context, participantID uuid.UUID) error
}

type participantService struct {
	db           *gorm.DB
	log          *logger.Logger
	participants repos.ParticipantRepo
	sessions     repos.TaskSessionRepo
	accessLogs   repos.AccessLogRepo
	tokens       TokenIssuer
	now          func() time.Time
}

func NewParticipantService(
	db *gorm.DB,
	baseLog *logger.Logger,
	participants repos.ParticipantRepo,
	sessions repos.TaskSessionRepo,
	accessLogs repos.AccessLogRepo,
	tokens TokenIssuer,
) ParticipantService {
	return &participantService{
		db:           db,
		log:          baseLog.With("service", "ParticipantService"),
		participants: participants,
		sessions:     sessions,
		accessLogs:   accessLogs,
		tokens:       tokens,
		now:          utcNow,
	}
}

func (s *participantService) StartSession(ctx context.Context, in SessionStartInput) (*SessionStartResult, error) {
	code := strings.TrimSpace(in.AccessCode)
	if code == "" {
		return nil, apierr.BadRequest("missing_access_code", "accessCode is required")
	}

	var out *types.Participant
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		found, err := s.participants.GetByAccessCode(dbc, code)
		if err != nil {
			return err
		}
		if found == nil {
			return apierr.Unauthorized("invalid_access_code", "invalid access code")
		}
		p, err := s.participants.LockByID(dbc, found.ID)
		if err != nil {
			return err
		}
		if err := requireActive(p); err != nil {
			return err
		}

		now := s.now()
		event := types.AccessEventReentry
		updates := map[string]interface{}{"last_active_at": now}
		if p.Status == steps.StatusCreated {
			next, err := steps.Transition(p.State(), steps.TriggerSessionStart)
			if err != nil {
				return apierr.Internal("invalid_transition", err)
			}
			for k, v := range stateUpdates(next) {
				updates[k] = v
			}
			updates["started_at"] = now
			p.Apply(next)
			p.StartedAt = &now
			event = types.AccessEventSessionStart
		} else {
			updates["reentry_count"] = gorm.Expr("reentry_count + 1")
			p.ReentryCount++
		}
		p.LastActiveAt = &now
		if err := s.participants.UpdateFields(dbc, p.ID, updates); err != nil {
			return fmt.Errorf("update participant: %w", err)
		}
		if err := s.accessLogs.Create(dbc, &types.AccessLog{
			ParticipantID: p.ID,
			Event:         event,
			Step:          string(p.CurrentStep),
			ClientIP:      in.ClientIP,
			UserAgent:     in.UserAgent,
			CreatedAt:     now,
		}); err != nil {
			return fmt.Errorf("write access log: %w", err)
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	token, exp, err := s.tokens.IssueParticipant(out.ID, out.AccessCode, out.SidePanelEnabled)
	if err != nil {
		return nil, apierr.Internal("token_issue_failed", err)
	}
	s.log.Info("participant session started",
		"participant_id", out.ID.String(),
		"step", string(out.CurrentStep),
		"reentry_count", out.ReentryCount,
	)
	return &SessionStartResult{
		Token:       token,
		ExpiresAt:   exp,
		AccessCode:  out.AccessCode,
		RedirectTo:  out.Route(),
		Participant: out,
	}, nil
}

func (s *participantService) Me(ctx context.Context) (*MeResult, error) {
	pid, err := callerParticipant(ctx)
	if err != nil {
		return nil, err
	}
	dbc := dbctx.Context{Ctx: ctx}
	p, err := s.participants.GetByID(dbc, pid)
	if err != nil {
		return nil, err
	}
	if err := requireActive(p); err != nil {
		return nil, err
	}
	sessions, err := s.sessions.ListByParticipant(dbc, pid)
	if err != nil {
		return nil, err
	}
	return &MeResult{Participant: p, TaskSessions: sessions, RedirectTo: p.Route()}, nil
}

func (s *participantService) Touch(ctx context.Context, participantID uuid.UUID) error {
	return s.participants.TouchLastActive(dbctx.Context{Ctx: ctx}, participantID, s.now())
}
