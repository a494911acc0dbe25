package services

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/agent/dq"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/agent/graph"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/agent/transcript"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/data/repos/testutil"
	types "github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/domain"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/apierr"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/study/steps"
)

// fakeGraph answers every turn with one tool round and a final answer.
type fakeGraph struct {
	mu        sync.Mutex
	histories [][]transcript.Message
	sql       []string
	during    func()
}

func (g *fakeGraph) Run(_ context.Context, history []transcript.Message, onStep func(transcript.Message)) (*graph.Result, error) {
	g.mu.Lock()
	g.histories = append(g.histories, history)
	g.mu.Unlock()
	if g.during != nil {
		g.during()
	}
	msgs := []transcript.Message{
		{Kind: transcript.Assistant, ToolCalls: []transcript.ToolCall{{ID: "c1", Name: "sql_query", Arguments: `{"query":"SELECT 1"}`}}},
		{Kind: transcript.Tool, ToolCallID: "c1", Name: "sql_query", Content: `{"rows":[[1]]}`},
		{Kind: transcript.Assistant, Content: "The answer is 1."},
	}
	for _, m := range msgs {
		if onStep != nil {
			onStep(m)
		}
	}
	return &graph.Result{Messages: msgs, Answer: "The answer is 1.", SQL: g.sql, Schema: "- sales(day date)", Rounds: 1}, nil
}

type fakeAuditor struct {
	mu     sync.Mutex
	inputs []dq.Input
}

func (a *fakeAuditor) Evaluate(_ context.Context, in dq.Input) dq.Outcome {
	a.mu.Lock()
	a.inputs = append(a.inputs, in)
	a.mu.Unlock()
	if len(in.MainSQL) == 0 {
		return dq.Outcome{Status: types.DQStatusNotEvaluated, Indicators: dq.Indicators{Message: "no sql"}}
	}
	return dq.Outcome{
		Status:     types.DQStatusOK,
		Indicators: dq.Indicators{Timeliness: &dq.Timeliness{UserTimeframe: "2020", Status: "MATCH"}},
		UsedTables: []string{"sales"},
		DQSQL:      []string{"SELECT min(day) FROM sales"},
		Model:      "dq-model",
	}
}

type agentEnv struct {
	*studyEnv
	graph   *fakeGraph
	auditor *fakeAuditor
	quality DataQualityService
	runs    AgentRunService
}

func newAgentEnv(t *testing.T) *agentEnv {
	t.Helper()
	env := newStudyEnv(t)
	log := testutil.Logger(t)
	g := &fakeGraph{sql: []string{"SELECT count(*) FROM sales"}}
	a := &fakeAuditor{}
	quality := NewDataQualityService(env.db, log, env.repos.DataQuality, env.repos.DatasetTable, env.ledger)
	runs := NewAgentRunService(env.db, log, env.ledger, env.repos.TaskSession, env.repos.AgentMessage, g, a, quality)
	return &agentEnv{studyEnv: env, graph: g, auditor: a, quality: quality, runs: runs}
}

func userInput(text string) []json.RawMessage {
	b, _ := json.Marshal(map[string]string{"type": "human", "content": text})
	return []json.RawMessage{b}
}

func (e *agentEnv) dqCount(t *testing.T, threadID string) int64 {
	t.Helper()
	n, err := e.repos.DataQuality.CountByThread(dbcFor(context.Background()), threadID)
	require.NoError(t, err)
	return n
}

func TestRunTurnPersistsMessagesAndOneAuditRow(t *testing.T) {
	env := newAgentEnv(t)
	p := testutil.SeedParticipant(t, env.db, "P001", steps.Task1Chat)
	ctx := asParticipant(p)
	_, err := env.ledger.EnsureThread(ctx, EnsureThreadInput{AgentThreadID: "t-1"})
	require.NoError(t, err)

	var started uuid.UUID
	var streamed []transcript.Message
	res, err := env.runs.RunTurn(ctx, RunTurnInput{
		AgentThreadID: "t-1",
		Messages:      userInput("How many sales in 2020?"),
		OnStart:       func(id uuid.UUID) { started = id },
		OnStep:        func(m transcript.Message) { streamed = append(streamed, m) },
	})
	require.NoError(t, err)
	require.Equal(t, started, res.RunID)
	require.Len(t, streamed, 3)
	require.Len(t, res.Messages, 4)
	require.Equal(t, "The answer is 1.", res.Answer)
	require.NotNil(t, res.DataQuality)
	require.Equal(t, types.DQStatusOK, res.DataQuality.Status)
	require.Equal(t, "SELECT count(*) FROM sales", res.DataQuality.LastMainSQL)
	require.Equal(t, 1, res.DataQuality.DQSQLCount)

	rows, err := env.repos.AgentMessage.ListByThread(dbcFor(ctx), "t-1")
	require.NoError(t, err)
	require.Len(t, rows, 4)
	for i, r := range rows {
		require.Equal(t, int64(i+1), r.Seq)
		require.Equal(t, res.RunID, r.RunID)
	}
	require.Equal(t, types.RoleUser, rows[0].Role)
	require.Equal(t, int64(1), env.dqCount(t, "t-1"))

	session := env.session(t, p, 1)
	require.Equal(t, 1, session.UserMessageCount)
	require.Equal(t, 1, session.AssistantMessageCount)

	state, err := env.runs.State(ctx, "t-1")
	require.NoError(t, err)
	require.Len(t, state.Messages, 4)
	require.Equal(t, transcript.User, state.Messages[0].Kind)
	require.Len(t, state.Messages[1].ToolCalls, 1)
}

func TestRunTurnReplaysHistoryAndContinuesSeq(t *testing.T) {
	env := newAgentEnv(t)
	p := testutil.SeedParticipant(t, env.db, "P001", steps.Task1Chat)
	ctx := asParticipant(p)
	_, err := env.ledger.EnsureThread(ctx, EnsureThreadInput{AgentThreadID: "t-1"})
	require.NoError(t, err)

	_, err = env.runs.RunTurn(ctx, RunTurnInput{AgentThreadID: "t-1", Messages: userInput("Sales in 2020?")})
	require.NoError(t, err)
	env.graph.sql = nil
	second, err := env.runs.RunTurn(ctx, RunTurnInput{AgentThreadID: "t-1", Messages: userInput("And per store?")})
	require.NoError(t, err)

	require.Len(t, env.graph.histories[1], 5)
	require.Equal(t, "Sales in 2020?", env.graph.histories[1][0].Content)
	require.Equal(t, "And per store?", env.graph.histories[1][4].Content)

	rows, err := env.repos.AgentMessage.ListByThread(dbcFor(ctx), "t-1")
	require.NoError(t, err)
	require.Len(t, rows, 8)
	require.Equal(t, int64(8), rows[7].Seq)

	// A turn without SQL still writes its audit row.
	require.Equal(t, types.DQStatusNotEvaluated, second.DataQuality.Status)
	require.Equal(t, int64(2), env.dqCount(t, "t-1"))
	require.Len(t, env.auditor.inputs[1].History, 5)
}

func TestRunTurnRejectsClosedAndForeignThreads(t *testing.T) {
	env := newAgentEnv(t)
	owner := testutil.SeedParticipant(t, env.db, "P001", steps.Task1Chat)
	other := testutil.SeedParticipant(t, env.db, "P002", steps.Task1Chat)
	ctx := asParticipant(owner)
	_, err := env.ledger.EnsureThread(ctx, EnsureThreadInput{AgentThreadID: "t-1"})
	require.NoError(t, err)

	_, err = env.runs.RunTurn(asParticipant(other), RunTurnInput{AgentThreadID: "t-1", Messages: userInput("hi")})
	require.True(t, apierr.HasStatus(err, http.StatusForbidden), "got %v", err)

	_, err = env.runs.RunTurn(ctx, RunTurnInput{AgentThreadID: "t-1", Messages: nil})
	require.True(t, apierr.HasStatus(err, http.StatusBadRequest), "got %v", err)

	_, err = env.ledger.CloseThread(ctx, CloseThreadInput{AgentThreadID: "t-1", Reason: types.CloseReasonAbandoned})
	require.NoError(t, err)
	_, err = env.runs.RunTurn(ctx, RunTurnInput{AgentThreadID: "t-1", Messages: userInput("hi")})
	ae, ok := apierr.As(err)
	require.True(t, ok, "got %v", err)
	require.Equal(t, http.StatusConflict, ae.Status)
	require.Equal(t, "thread_closed", ae.Code)
	require.Zero(t, env.dqCount(t, "t-1"))
}

func TestRunTurnConflictsWithConcurrentRun(t *testing.T) {
	env := newAgentEnv(t)
	p := testutil.SeedParticipant(t, env.db, "P001", steps.Task1Chat)
	ctx := asParticipant(p)
	_, err := env.ledger.EnsureThread(ctx, EnsureThreadInput{AgentThreadID: "t-1"})
	require.NoError(t, err)

	// Another run commits seq 1 while this one is still thinking.
	env.graph.during = func() {
		row := &types.AgentMessage{AgentThreadID: "t-1", Seq: 1, RunID: uuid.New(), Role: types.RoleUser, Content: "other tab"}
		require.NoError(t, env.db.Create(row).Error)
	}
	_, err = env.runs.RunTurn(ctx, RunTurnInput{AgentThreadID: "t-1", Messages: userInput("hi")})
	ae, ok := apierr.As(err)
	require.True(t, ok, "got %v", err)
	require.Equal(t, "run_in_progress", ae.Code)

	rows, err := env.repos.AgentMessage.ListByThread(dbcFor(ctx), "t-1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Zero(t, env.dqCount(t, "t-1"))
}
