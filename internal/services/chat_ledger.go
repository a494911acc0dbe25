package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/data/dberr"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/data/repos"
	types "github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/domain"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/observability"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/apierr"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/dbctx"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/httpx"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/logger"
)

const (
	ensureThreadAttempts    = 5
	ensureThreadBackoffBase = 20 * time.Millisecond
	ensureThreadBackoffMax  = 320 * time.Millisecond
)

type EnsureThreadInput struct {
	AgentThreadID string
	// TaskNumber defaults to the participant's current task.
	TaskNumber int
}

type EnsureThreadResult struct {
	Thread           *types.ChatThread `json:"thread"`
	Created          bool              `json:"created"`
	ChatRestartCount int               `json:"chatRestartCount"`
}

type CloseThreadInput struct {
	AgentThreadID string
	Reason        string
}

type CloseThreadResult struct {
	Closed bool              `json:"closed"`
	Thread *types.ChatThread `json:"thread,omitempty"`
}

type ChatLedgerService interface {
	// EnsureThread registers an agent thread as the ACTIVE thread of the
	// participant's task session. Concurrent calls for one id converge on a
	// single row.
	EnsureThread(ctx context.Context, in EnsureThreadInput) (*EnsureThreadResult, error)
	// CloseThread is idempotent. Unknown and already closed threads succeed
	// without side effects.
	CloseThread(ctx context.Context, in CloseThreadInput) (*CloseThreadResult, error)
	// OwnedThread returns a registered thread and its session after checking
	// that the session belongs to participantID.
	OwnedThread(ctx context.Context, participantID uuid.UUID, agentThreadID string) (*types.ChatThread, *types.TaskSession, error)
}

type chatLedgerService struct {
	db           *gorm.DB
	log          *logger.Logger
	participants repos.ParticipantRepo
	sessions     repos.TaskSessionRepo
	threads      repos.ChatThreadRepo
	now          func() time.Time
	sleep        func(context.Context, time.Duration) error
}

func NewChatLedgerService(
	db *gorm.DB,
	baseLog *logger.Logger,
	participants repos.ParticipantRepo,
	sessions repos.TaskSessionRepo,
	threads repos.ChatThreadRepo,
) ChatLedgerService {
	return &chatLedgerService{
		db:           db,
		log:          baseLog.With("service", "ChatLedgerService"),
		participants: participants,
		sessions:     sessions,
		threads:      threads,
		now:          utcNow,
		sleep:        httpx.Sleep,
	}
}

func (s *chatLedgerService) EnsureThread(ctx context.Context, in EnsureThreadInput) (*EnsureThreadResult, error) {
	pid, err := callerParticipant(ctx)
	if err != nil {
		return nil, err
	}
	threadID := strings.TrimSpace(in.AgentThreadID)
	if threadID == "" {
		return nil, apierr.BadRequest("missing_thread_id", "langGraphThreadId is required")
	}
	p, err := s.participants.GetByID(dbctx.Context{Ctx: ctx}, pid)
	if err != nil {
		return nil, err
	}
	n, err := requireChatStep(p, in.TaskNumber)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < ensureThreadAttempts; attempt++ {
		if attempt > 0 {
			if err := s.sleep(ctx, httpx.ExpBackoff(attempt-1, ensureThreadBackoffBase, ensureThreadBackoffMax)); err != nil {
				return nil, err
			}
		}
		res, err := s.ensureOnce(ctx, pid, n, threadID)
		if err == nil {
			if res.Created {
				observability.Current().IncLedgerEvent("thread_created")
			}
			return res, nil
		}
		if !retryableEnsure(err) {
			return nil, err
		}
		lastErr = err
		s.log.Debug("ensure thread raced, retrying",
			"participant_id", pid.String(),
			"agent_thread_id", threadID,
			"attempt", attempt+1,
			"error", err,
		)
	}
	return nil, apierr.Internal("thread_ensure_failed", fmt.Errorf("ensure thread %s: %w", threadID, lastErr))
}

func retryableEnsure(err error) bool {
	if _, ok := apierr.As(err); ok {
		return false
	}
	return errors.Is(err, errThreadNotVisible) || dberr.IsUniqueViolation(err) || dberr.IsRetryable(err)
}

func (s *chatLedgerService) ensureOnce(ctx context.Context, pid uuid.UUID, taskNumber int, threadID string) (*EnsureThreadResult, error) {
	var out *EnsureThreadResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		session, err := s.sessions.Ensure(dbc, pid, taskNumber)
		if err != nil {
			return err
		}
		session, err = s.sessions.LockByID(dbc, session.ID)
		if err != nil {
			return err
		}
		now := s.now()

		existing, err := s.threads.GetByAgentThreadID(dbc, threadID)
		if err != nil {
			return err
		}
		if existing != nil {
			out, err = s.adopt(dbc, pid, session, existing, now)
			return err
		}

		// Safety net for missed close calls: a new thread supersedes the old one.
		if _, err := s.threads.CloseActive(dbc, session.ID, uuid.Nil, types.CloseReasonRestarted, now); err != nil {
			return fmt.Errorf("close superseded threads: %w", err)
		}
		count, err := s.threads.CountBySession(dbc, session.ID)
		if err != nil {
			return err
		}
		row := &types.ChatThread{
			TaskSessionID: session.ID,
			AgentThreadID: threadID,
			Status:        types.ThreadStatusActive,
			RestartIndex:  int(count),
			StartedAt:     now,
		}
		inserted, err := s.threads.CreateIfAbsent(dbc, row)
		if err != nil {
			return err
		}
		if !inserted {
			existing, err = s.threads.GetByAgentThreadID(dbc, threadID)
			if err != nil {
				return err
			}
			if existing == nil {
				return errThreadNotVisible
			}
			out, err = s.adopt(dbc, pid, session, existing, now)
			return err
		}
		restarts, err := s.reconcile(dbc, session.ID, now)
		if err != nil {
			return err
		}
		out = &EnsureThreadResult{Thread: row, Created: true, ChatRestartCount: restarts}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// adopt makes an already registered thread the session's ACTIVE thread.
func (s *chatLedgerService) adopt(dbc dbctx.Context, pid uuid.UUID, session *types.TaskSession, thread *types.ChatThread, now time.Time) (*EnsureThreadResult, error) {
	if thread.TaskSessionID != session.ID {
		owner, err := s.sessions.GetByID(dbc, thread.TaskSessionID)
		if err != nil {
			return nil, err
		}
		if owner == nil || owner.ParticipantID != pid {
			return nil, apierr.Forbidden("thread_forbidden", "thread belongs to another participant")
		}
		return nil, apierr.Conflict("thread_task_mismatch", fmt.Sprintf("thread belongs to task %d", owner.TaskNumber))
	}
	if thread.Status != types.ThreadStatusActive {
		if _, err := s.threads.CloseActive(dbc, session.ID, thread.ID, types.CloseReasonRestarted, now); err != nil {
			return nil, fmt.Errorf("close superseded threads: %w", err)
		}
		if err := s.threads.Reactivate(dbc, thread.ID); err != nil {
			return nil, fmt.Errorf("reactivate thread: %w", err)
		}
		thread.Status = types.ThreadStatusActive
		thread.CloseReason = nil
		thread.ClosedAt = nil
		observability.Current().IncLedgerEvent("thread_reactivated")
	}
	restarts, err := s.reconcile(dbc, session.ID, now)
	if err != nil {
		return nil, err
	}
	return &EnsureThreadResult{Thread: thread, ChatRestartCount: restarts}, nil
}

// reconcile derives chat_restart_count from the live thread count and stamps
// chat_started_at once.
func (s *chatLedgerService) reconcile(dbc dbctx.Context, sessionID uuid.UUID, now time.Time) (int, error) {
	count, err := s.threads.CountBySession(dbc, sessionID)
	if err != nil {
		return 0, err
	}
	restarts := DerivedRestartCount(count)
	if err := s.sessions.UpdateFields(dbc, sessionID, map[string]interface{}{"chat_restart_count": restarts}); err != nil {
		return 0, fmt.Errorf("reconcile restart count: %w", err)
	}
	if count > 0 {
		if _, err := s.sessions.StampOnce(dbc, sessionID, "chat_started_at", now); err != nil {
			return 0, err
		}
	}
	return restarts, nil
}

// DerivedRestartCount is max(0, threadCount-1).
func DerivedRestartCount(threadCount int64) int {
	if threadCount <= 1 {
		return 0
	}
	return int(threadCount - 1)
}

func (s *chatLedgerService) CloseThread(ctx context.Context, in CloseThreadInput) (*CloseThreadResult, error) {
	pid, err := callerParticipant(ctx)
	if err != nil {
		return nil, err
	}
	reason := strings.ToUpper(strings.TrimSpace(in.Reason))
	if !types.ValidCloseReason(reason) {
		return nil, apierr.BadRequest("invalid_close_reason", "reason must be one of RESTARTED, TASK_FINISHED, ABANDONED, ERROR")
	}
	threadID := strings.TrimSpace(in.AgentThreadID)
	if threadID == "" {
		return nil, apierr.BadRequest("missing_thread_id", "langGraphThreadId is required")
	}

	out := &CloseThreadResult{}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		thread, session, err := s.ownedThread(dbc, pid, threadID)
		if err != nil || thread == nil {
			return err
		}
		if _, err := s.sessions.LockByID(dbc, session.ID); err != nil {
			return err
		}
		now := s.now()
		closed, err := s.threads.CloseIfActive(dbc, thread.ID, reason, now)
		if err != nil {
			return err
		}
		if closed {
			thread.Status = types.ThreadStatusClosed
			thread.CloseReason = &reason
			thread.ClosedAt = &now
			switch reason {
			case types.CloseReasonRestarted:
				if _, err := s.reconcile(dbc, session.ID, now); err != nil {
					return err
				}
			case types.CloseReasonTaskFinished:
				if _, err := s.sessions.StampOnce(dbc, session.ID, "chat_ended_at", now); err != nil {
					return err
				}
			}
		}
		out = &CloseThreadResult{Closed: closed, Thread: thread}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if out.Closed {
		observability.Current().IncLedgerEvent("thread_closed_" + strings.ToLower(reason))
	}
	return out, nil
}

func (s *chatLedgerService) OwnedThread(ctx context.Context, participantID uuid.UUID, agentThreadID string) (*types.ChatThread, *types.TaskSession, error) {
	threadID := strings.TrimSpace(agentThreadID)
	if threadID == "" {
		return nil, nil, apierr.BadRequest("missing_thread_id", "thread id is required")
	}
	thread, session, err := s.ownedThread(dbctx.Context{Ctx: ctx}, participantID, threadID)
	if err != nil {
		return nil, nil, err
	}
	if thread == nil {
		return nil, nil, apierr.NotFound("thread_not_found", "thread is not registered")
	}
	return thread, session, nil
}

// ownedThread returns nil, nil, nil for unknown threads.
func (s *chatLedgerService) ownedThread(dbc dbctx.Context, pid uuid.UUID, threadID string) (*types.ChatThread, *types.TaskSession, error) {
	thread, err := s.threads.GetByAgentThreadID(dbc, threadID)
	if err != nil || thread == nil {
		return nil, nil, err
	}
	session, err := s.sessions.GetByID(dbc, thread.TaskSessionID)
	if err != nil {
		return nil, nil, err
	}
	if session == nil || session.ParticipantID != pid {
		return nil, nil, apierr.Forbidden("thread_forbidden", "thread belongs to another participant")
	}
	return thread, session, nil
}
