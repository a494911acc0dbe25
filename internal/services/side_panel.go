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
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/dbctx"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/logger"
)

const (
	SidePanelIgnoredDisabled    = "side_panel_disabled"
	SidePanelIgnoredWrongStep   = "wrong_step"
	SidePanelIgnoredAlreadyOpen = "already_open"
	SidePanelIgnoredNotOpen     = "not_open"
	SidePanelIgnoredInactive    = "participant_inactive"
)

var errSpanAlreadyOpen = errors.New("side panel span already open")

type SidePanelEventInput struct {
	Open          bool
	AgentThreadID string
	// TaskNumber is the client's view of the current task; 0 means unknown.
	TaskNumber int
}

type SidePanelEventResult struct {
	Accepted   bool       `json:"accepted"`
	Ignored    string     `json:"ignored,omitempty"`
	SpanID     *uuid.UUID `json:"spanId,omitempty"`
	DurationMs int64      `json:"durationMs,omitempty"`
}

type SidePanelService interface {
	// Event books an open or close of the data side panel. Stale events are
	// reported as ignored and never fail the caller.
	Event(ctx context.Context, in SidePanelEventInput) (*SidePanelEventResult, error)
	// FinalizeOpen force-closes the open span of one task session and reports
	// whether a span was closed.
	FinalizeOpen(ctx context.Context, participantID uuid.UUID, taskNumber int) (bool, error)
	// FinalizeBestEffort is FinalizeOpen with errors logged and dropped.
	FinalizeBestEffort(ctx context.Context, participantID uuid.UUID, taskNumber int)
}

type sidePanelService struct {
	db           *gorm.DB
	log          *logger.Logger
	participants repos.ParticipantRepo
	sessions     repos.TaskSessionRepo
	threads      repos.ChatThreadRepo
	spans        repos.SidePanelSpanRepo
	messages     repos.AgentMessageRepo
	now          func() time.Time
}

func NewSidePanelService(
	db *gorm.DB,
	baseLog *logger.Logger,
	participants repos.ParticipantRepo,
	sessions repos.TaskSessionRepo,
	threads repos.ChatThreadRepo,
	spans repos.SidePanelSpanRepo,
	messages repos.AgentMessageRepo,
) SidePanelService {
	return &sidePanelService{
		db:           db,
		log:          baseLog.With("service", "SidePanelService"),
		participants: participants,
		sessions:     sessions,
		threads:      threads,
		spans:        spans,
		messages:     messages,
		now:          utcNow,
	}
}

func (s *sidePanelService) Event(ctx context.Context, in SidePanelEventInput) (*SidePanelEventResult, error) {
	pid, err := callerParticipant(ctx)
	if err != nil {
		return nil, err
	}
	if in.Open {
		return s.open(ctx, pid, in)
	}
	return s.close(ctx, pid)
}

func (s *sidePanelService) open(ctx context.Context, pid uuid.UUID, in SidePanelEventInput) (*SidePanelEventResult, error) {
	var out *SidePanelEventResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		p, err := s.participants.LockByID(dbc, pid)
		if err != nil {
			return err
		}
		if p != nil && p.Status.Inactive() {
			out = &SidePanelEventResult{Ignored: SidePanelIgnoredInactive}
			return nil
		}
		if err := requireActive(p); err != nil {
			return err
		}
		if !p.SidePanelEnabled {
			out = &SidePanelEventResult{Ignored: SidePanelIgnoredDisabled}
			return nil
		}
		if !p.CurrentStep.IsChat() || p.CurrentTaskNumber == nil ||
			(in.TaskNumber > 0 && in.TaskNumber != *p.CurrentTaskNumber) {
			out = &SidePanelEventResult{Ignored: SidePanelIgnoredWrongStep}
			return nil
		}
		n := *p.CurrentTaskNumber

		session, err := s.sessions.Ensure(dbc, pid, n)
		if err != nil {
			return err
		}
		if _, err := s.sessions.LockByID(dbc, session.ID); err != nil {
			return err
		}
		existing, err := s.spans.GetOpenBySession(dbc, session.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			id := existing.ID
			out = &SidePanelEventResult{Ignored: SidePanelIgnoredAlreadyOpen, SpanID: &id}
			return nil
		}

		span := &types.SidePanelSpan{TaskSessionID: session.ID, OpenedAt: s.now()}
		s.linkThread(dbc, span, session.ID, in.AgentThreadID)
		if _, err := s.spans.Create(dbc, span); err != nil {
			if dberr.IsUniqueViolation(err) {
				return errSpanAlreadyOpen
			}
			return fmt.Errorf("create side panel span: %w", err)
		}
		if err := s.sessions.AddCounters(dbc, session.ID, map[string]int64{"side_panel_open_count": 1}); err != nil {
			return fmt.Errorf("bump side panel open count: %w", err)
		}
		id := span.ID
		out = &SidePanelEventResult{Accepted: true, SpanID: &id}
		return nil
	})
	if errors.Is(err, errSpanAlreadyOpen) {
		out, err = &SidePanelEventResult{Ignored: SidePanelIgnoredAlreadyOpen}, nil
	}
	if err != nil {
		return nil, err
	}
	if out.Accepted {
		observability.Current().IncLedgerEvent("side_panel_open")
	} else {
		observability.Current().IncLedgerEvent("side_panel_open_ignored")
		s.log.Debug("side panel open ignored", "participant_id", pid.String(), "reason", out.Ignored)
	}
	return out, nil
}

// linkThread attaches the thread and the latest message seq when the thread
// belongs to the session. Lookup failures leave the span unlinked.
func (s *sidePanelService) linkThread(dbc dbctx.Context, span *types.SidePanelSpan, sessionID uuid.UUID, agentThreadID string) {
	agentThreadID = strings.TrimSpace(agentThreadID)
	if agentThreadID == "" {
		return
	}
	thread, err := s.threads.GetByAgentThreadID(dbc, agentThreadID)
	if err != nil || thread == nil || thread.TaskSessionID != sessionID {
		return
	}
	id := thread.ID
	span.ChatThreadID = &id
	span.AgentThreadID = thread.AgentThreadID
	if s.messages == nil {
		return
	}
	if seq, err := s.messages.MaxSeq(dbc, thread.AgentThreadID); err == nil && seq > 0 {
		span.MessageSeq = &seq
	}
}

func (s *sidePanelService) close(ctx context.Context, pid uuid.UUID) (*SidePanelEventResult, error) {
	out := &SidePanelEventResult{Ignored: SidePanelIgnoredNotOpen}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		span, err := s.spans.LatestOpenForParticipant(dbc, pid)
		if err != nil || span == nil {
			return err
		}
		if _, err := s.sessions.LockByID(dbc, span.TaskSessionID); err != nil {
			return err
		}
		now := s.now()
		dur := types.SpanDurationMs(span.OpenedAt, now)
		closed, err := s.spans.CloseIfOpen(dbc, span.ID, now, dur, false)
		if err != nil || !closed {
			return err
		}
		if err := s.sessions.AddCounters(dbc, span.TaskSessionID, map[string]int64{
			"side_panel_close_count": 1,
			"side_panel_open_ms":     dur,
		}); err != nil {
			return fmt.Errorf("book side panel close: %w", err)
		}
		id := span.ID
		out = &SidePanelEventResult{Accepted: true, SpanID: &id, DurationMs: dur}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if out.Accepted {
		observability.Current().IncLedgerEvent("side_panel_close")
	}
	return out, nil
}

func (s *sidePanelService) FinalizeOpen(ctx context.Context, participantID uuid.UUID, taskNumber int) (bool, error) {
	closed := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		session, err := s.sessions.Get(dbc, participantID, taskNumber)
		if err != nil || session == nil {
			return err
		}
		session, err = s.sessions.LockByID(dbc, session.ID)
		if err != nil {
			return err
		}
		span, err := s.spans.GetOpenBySession(dbc, session.ID)
		if err != nil || span == nil {
			return err
		}
		p, err := s.participants.GetByID(dbc, participantID)
		if err != nil {
			return err
		}
		closedAt := FinalizeEnd(session, p, s.now())
		if closedAt.Before(span.OpenedAt) {
			closedAt = span.OpenedAt
		}
		dur := types.SpanDurationMs(span.OpenedAt, closedAt)
		ok, err := s.spans.CloseIfOpen(dbc, span.ID, closedAt, dur, true)
		if err != nil || !ok {
			return err
		}
		if err := s.sessions.AddCounters(dbc, session.ID, map[string]int64{
			"side_panel_close_count": 1,
			"side_panel_open_ms":     dur,
		}); err != nil {
			return fmt.Errorf("book finalized span: %w", err)
		}
		closed = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if closed {
		observability.Current().IncLedgerEvent("span_finalized")
	}
	return closed, nil
}

func (s *sidePanelService) FinalizeBestEffort(ctx context.Context, participantID uuid.UUID, taskNumber int) {
	if _, err := s.FinalizeOpen(ctx, participantID, taskNumber); err != nil {
		s.log.Warn("side panel finalize failed",
			"participant_id", participantID.String(),
			"task_number", taskNumber,
			"error", err,
		)
	}
}

// FinalizeEnd picks the end of a force-closed span: the first known of chat
// end, ready, post-survey start, post-survey submit, participant completion,
// participant last activity, and now.
func FinalizeEnd(session *types.TaskSession, p *types.Participant, now time.Time) time.Time {
	var candidates []*time.Time
	if session != nil {
		candidates = append(candidates,
			session.ChatEndedAt,
			session.ReadyToAnswerAt,
			session.PostSurveyStartedAt,
			session.PostSurveySubmittedAt,
		)
	}
	if p != nil {
		candidates = append(candidates, p.CompletedAt, p.LastActiveAt)
	}
	for _, t := range candidates {
		if t != nil && !t.IsZero() {
			return t.UTC()
		}
	}
	return now
}
