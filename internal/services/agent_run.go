package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/agent/dq"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/agent/graph"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/agent/transcript"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/data/dberr"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/data/repos"
	types "github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/domain"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/apierr"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/dbctx"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/logger"
)

// AgentGraph answers one turn given the full thread history.
type AgentGraph interface {
	Run(ctx context.Context, history []transcript.Message, onStep func(transcript.Message)) (*graph.Result, error)
}

// Auditor runs the data-quality pass for a finished turn.
type Auditor interface {
	Evaluate(ctx context.Context, in dq.Input) dq.Outcome
}

type RunTurnInput struct {
	AgentThreadID string
	// Messages are the new input messages in any supported wire shape.
	Messages []json.RawMessage
	// OnStart receives the run id before the model is called.
	OnStart func(runID uuid.UUID)
	// OnStep receives every message the graph produces, in order.
	OnStep func(transcript.Message)
}

type RunTurnResult struct {
	RunID       uuid.UUID                   `json:"run_id"`
	ThreadID    string                      `json:"thread_id"`
	Messages    []transcript.Message        `json:"messages"`
	Answer      string                      `json:"answer"`
	DataQuality *types.ThreadDataQualityLog `json:"data_quality,omitempty"`
}

type ThreadState struct {
	ThreadID string               `json:"thread_id"`
	Status   string               `json:"status"`
	Messages []transcript.Message `json:"messages"`
}

type AgentRunService interface {
	// CreateThread mints a thread id. The thread is registered in the ledger
	// by the study API before its first run.
	CreateThread(ctx context.Context) (string, error)
	State(ctx context.Context, agentThreadID string) (*ThreadState, error)
	// RunTurn appends the input, runs the agent graph, persists the new
	// messages and writes exactly one data-quality row for the turn.
	RunTurn(ctx context.Context, in RunTurnInput) (*RunTurnResult, error)
}

type agentRunService struct {
	db       *gorm.DB
	log      *logger.Logger
	ledger   ChatLedgerService
	sessions repos.TaskSessionRepo
	messages repos.AgentMessageRepo
	graph    AgentGraph
	auditor  Auditor
	quality  DataQualityService
}

func NewAgentRunService(
	db *gorm.DB,
	baseLog *logger.Logger,
	ledger ChatLedgerService,
	sessions repos.TaskSessionRepo,
	messages repos.AgentMessageRepo,
	g AgentGraph,
	auditor Auditor,
	quality DataQualityService,
) AgentRunService {
	return &agentRunService{
		db:       db,
		log:      baseLog.With("service", "AgentRunService"),
		ledger:   ledger,
		sessions: sessions,
		messages: messages,
		graph:    g,
		auditor:  auditor,
		quality:  quality,
	}
}

func (s *agentRunService) CreateThread(ctx context.Context) (string, error) {
	if _, err := callerParticipant(ctx); err != nil {
		return "", err
	}
	return uuid.NewString(), nil
}

func (s *agentRunService) State(ctx context.Context, agentThreadID string) (*ThreadState, error) {
	pid, err := callerParticipant(ctx)
	if err != nil {
		return nil, err
	}
	thread, _, err := s.ledger.OwnedThread(ctx, pid, agentThreadID)
	if err != nil {
		return nil, err
	}
	rows, err := s.messages.ListByThread(dbctx.Context{Ctx: ctx}, thread.AgentThreadID)
	if err != nil {
		return nil, err
	}
	return &ThreadState{ThreadID: thread.AgentThreadID, Status: thread.Status, Messages: transcript.FromRecords(rows)}, nil
}

func (s *agentRunService) RunTurn(ctx context.Context, in RunTurnInput) (*RunTurnResult, error) {
	pid, err := callerParticipant(ctx)
	if err != nil {
		return nil, err
	}
	thread, session, err := s.ledger.OwnedThread(ctx, pid, in.AgentThreadID)
	if err != nil {
		return nil, err
	}
	if thread.Status != types.ThreadStatusActive {
		return nil, apierr.Conflict("thread_closed", "thread is closed")
	}
	incoming, err := transcript.Normalize(in.Messages)
	if err != nil {
		return nil, apierr.BadRequest("invalid_messages", "%v", err)
	}
	if len(incoming) == 0 || incoming[len(incoming)-1].Kind != transcript.User {
		return nil, apierr.BadRequest("invalid_messages", "input must end with a user message")
	}

	dbc := dbctx.Context{Ctx: ctx}
	threadID := thread.AgentThreadID
	base, err := s.messages.MaxSeq(dbc, threadID)
	if err != nil {
		return nil, err
	}
	prior, err := s.messages.ListByThread(dbc, threadID)
	if err != nil {
		return nil, err
	}
	history := append(transcript.FromRecords(prior), incoming...)

	runID := uuid.New()
	if in.OnStart != nil {
		in.OnStart(runID)
	}
	res, err := s.graph.Run(ctx, history, in.OnStep)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, apierr.Internal("agent_failed", fmt.Errorf("run %s: %w", runID, err))
	}

	produced := append(append([]transcript.Message{}, incoming...), res.Messages...)
	rows := make([]*types.AgentMessage, 0, len(produced))
	for i, m := range produced {
		r := transcript.ToRecord(m)
		r.AgentThreadID = threadID
		r.RunID = runID
		r.Seq = base + int64(i) + 1
		rows = append(rows, r)
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.messages.Create(dbctx.Context{Ctx: ctx, Tx: tx}, rows)
	})
	if err != nil {
		if dberr.IsUniqueViolation(err) {
			return nil, apierr.Conflict("run_in_progress", "another run is already writing to this thread")
		}
		return nil, err
	}

	// The answer is committed; bookkeeping below must not depend on the
	// caller staying connected.
	bg := context.WithoutCancel(ctx)
	outcome := s.auditor.Evaluate(bg, dq.Input{
		AgentThreadID: threadID,
		RunID:         runID,
		History:       history,
		Answer:        res.Answer,
		MainSQL:       res.SQL,
		Schema:        res.Schema,
	})
	audit := s.quality.Record(bg, RecordDataQualityInput{
		AgentThreadID: threadID,
		RunID:         runID,
		MainSQL:       res.SQL,
		Outcome:       outcome,
	})
	s.bumpCounters(bg, session, incoming)

	s.log.Info("agent turn completed",
		"agent_thread_id", threadID,
		"run_id", runID.String(),
		"rounds", res.Rounds,
		"sql_count", len(res.SQL),
		"dq_status", outcome.Status,
	)
	return &RunTurnResult{
		RunID:       runID,
		ThreadID:    threadID,
		Messages:    produced,
		Answer:      res.Answer,
		DataQuality: audit,
	}, nil
}

func (s *agentRunService) bumpCounters(ctx context.Context, session *types.TaskSession, incoming []transcript.Message) {
	if session == nil {
		return
	}
	users := int64(0)
	for _, m := range incoming {
		if m.Kind == transcript.User {
			users++
		}
	}
	err := s.sessions.AddCounters(dbctx.Context{Ctx: ctx}, session.ID, map[string]int64{
		"user_message_count":      users,
		"assistant_message_count": 1,
	})
	if err != nil {
		s.log.Warn("bump message counters failed",
			"task_session_id", session.ID.String(),
			"error", err,
		)
	}
}
