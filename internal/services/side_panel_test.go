package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/data/repos/testutil"
	types "github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/domain"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/study/steps"
)

func enableSidePanel(t *testing.T, env *studyEnv, p *types.Participant) {
	t.Helper()
	require.NoError(t, env.db.Model(p).Update("side_panel_enabled", true).Error)
	p.SidePanelEnabled = true
}

func setSidePanelClock(env *studyEnv, at *time.Time) {
	env.sidePanel.(*sidePanelService).now = func() time.Time { return *at }
}

func TestSidePanelOpenIsIdempotent(t *testing.T) {
	env := newStudyEnv(t)
	p := testutil.SeedParticipant(t, env.db, "P001", steps.Task1Chat)
	enableSidePanel(t, env, p)
	ctx := asParticipant(p)

	first, err := env.sidePanel.Event(ctx, SidePanelEventInput{Open: true})
	require.NoError(t, err)
	require.True(t, first.Accepted)

	second, err := env.sidePanel.Event(ctx, SidePanelEventInput{Open: true})
	require.NoError(t, err)
	require.False(t, second.Accepted)
	require.Equal(t, SidePanelIgnoredAlreadyOpen, second.Ignored)

	session := env.session(t, p, 1)
	require.Equal(t, 1, session.SidePanelOpenCount)
	spans, err := env.repos.SidePanelSpan.ListBySession(dbcFor(ctx), session.ID)
	require.NoError(t, err)
	require.Len(t, spans, 1)
}

func TestSidePanelCloseWithoutOpenIsNoop(t *testing.T) {
	env := newStudyEnv(t)
	p := testutil.SeedParticipant(t, env.db, "P001", steps.Task1Chat)
	enableSidePanel(t, env, p)

	res, err := env.sidePanel.Event(asParticipant(p), SidePanelEventInput{Open: false})
	require.NoError(t, err)
	require.False(t, res.Accepted)
	require.Equal(t, SidePanelIgnoredNotOpen, res.Ignored)
}

func TestSidePanelOpenCloseBooksDuration(t *testing.T) {
	env := newStudyEnv(t)
	p := testutil.SeedParticipant(t, env.db, "P001", steps.Task1Chat)
	enableSidePanel(t, env, p)
	ctx := asParticipant(p)

	_, err := env.ledger.EnsureThread(ctx, EnsureThreadInput{AgentThreadID: "t-1"})
	require.NoError(t, err)

	clock := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	setSidePanelClock(env, &clock)

	opened, err := env.sidePanel.Event(ctx, SidePanelEventInput{Open: true, AgentThreadID: "t-1", TaskNumber: 1})
	require.NoError(t, err)
	require.True(t, opened.Accepted)

	clock = clock.Add(1500 * time.Millisecond)
	closed, err := env.sidePanel.Event(ctx, SidePanelEventInput{Open: false})
	require.NoError(t, err)
	require.True(t, closed.Accepted)
	require.Equal(t, int64(1500), closed.DurationMs)

	clock = clock.Add(time.Second)
	_, err = env.sidePanel.Event(ctx, SidePanelEventInput{Open: true})
	require.NoError(t, err)
	clock = clock.Add(500 * time.Millisecond)
	_, err = env.sidePanel.Event(ctx, SidePanelEventInput{Open: false})
	require.NoError(t, err)

	session := env.session(t, p, 1)
	require.Equal(t, 2, session.SidePanelOpenCount)
	require.Equal(t, 2, session.SidePanelCloseCount)
	require.Equal(t, int64(2000), session.SidePanelOpenMs)

	spans, err := env.repos.SidePanelSpan.ListBySession(dbcFor(ctx), session.ID)
	require.NoError(t, err)
	require.Len(t, spans, 2)
	require.NotNil(t, spans[0].ChatThreadID)
	require.Equal(t, "t-1", spans[0].AgentThreadID)
	require.False(t, spans[0].Finalized)
}

func TestSidePanelOpenIgnoredOutsideCurrentChat(t *testing.T) {
	env := newStudyEnv(t)

	disabled := testutil.SeedParticipant(t, env.db, "P001", steps.Task1Chat)
	res, err := env.sidePanel.Event(asParticipant(disabled), SidePanelEventInput{Open: true})
	require.NoError(t, err)
	require.Equal(t, SidePanelIgnoredDisabled, res.Ignored)

	post := testutil.SeedParticipant(t, env.db, "P002", steps.Task1PostSurvey)
	enableSidePanel(t, env, post)
	res, err = env.sidePanel.Event(asParticipant(post), SidePanelEventInput{Open: true})
	require.NoError(t, err)
	require.Equal(t, SidePanelIgnoredWrongStep, res.Ignored)

	chat := testutil.SeedParticipant(t, env.db, "P003", steps.Task2Chat)
	enableSidePanel(t, env, chat)
	res, err = env.sidePanel.Event(asParticipant(chat), SidePanelEventInput{Open: true, TaskNumber: 1})
	require.NoError(t, err)
	require.Equal(t, SidePanelIgnoredWrongStep, res.Ignored)

	withdrawn := testutil.SeedParticipant(t, env.db, "P004", steps.Task1Chat)
	enableSidePanel(t, env, withdrawn)
	require.NoError(t, env.db.Model(withdrawn).Update("status", steps.StatusWithdrawn).Error)
	res, err = env.sidePanel.Event(asParticipant(withdrawn), SidePanelEventInput{Open: true})
	require.NoError(t, err)
	require.False(t, res.Accepted)
	require.Equal(t, SidePanelIgnoredInactive, res.Ignored)

	var spans int64
	require.NoError(t, env.db.Model(&types.SidePanelSpan{}).Count(&spans).Error)
	require.Equal(t, int64(0), spans)
}

func TestSidePanelCloseFindsSpanOfEarlierTask(t *testing.T) {
	env := newStudyEnv(t)
	p := testutil.SeedParticipant(t, env.db, "P001", steps.Task2Chat)
	enableSidePanel(t, env, p)
	old := testutil.SeedTaskSession(t, env.db, p, 1)
	opened := time.Now().UTC().Add(-time.Minute)
	require.NoError(t, env.db.Create(&types.SidePanelSpan{TaskSessionID: old.ID, OpenedAt: opened}).Error)

	res, err := env.sidePanel.Event(asParticipant(p), SidePanelEventInput{Open: false})
	require.NoError(t, err)
	require.True(t, res.Accepted)
	require.GreaterOrEqual(t, res.DurationMs, int64(60_000))

	got := env.session(t, p, 1)
	require.Equal(t, 1, got.SidePanelCloseCount)
	require.Equal(t, res.DurationMs, got.SidePanelOpenMs)
}

func TestReadyFinalizesOpenSpan(t *testing.T) {
	env := newStudyEnv(t)
	p := testutil.SeedParticipant(t, env.db, "P001", steps.Task1Chat)
	enableSidePanel(t, env, p)
	ctx := asParticipant(p)

	openedAt := time.Now().UTC().Add(-30 * time.Second)
	setSidePanelClock(env, &openedAt)
	_, err := env.sidePanel.Event(ctx, SidePanelEventInput{Open: true})
	require.NoError(t, err)

	res, err := env.tasks.Ready(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "/study/P001/task/1/post-survey", res.RedirectTo)

	session := env.session(t, p, 1)
	require.NotNil(t, session.ChatEndedAt)
	require.Equal(t, 1, session.SidePanelCloseCount)

	spans, err := env.repos.SidePanelSpan.ListBySession(dbcFor(ctx), session.ID)
	require.NoError(t, err)
	require.Len(t, spans, 1)
	require.True(t, spans[0].Finalized)
	require.NotNil(t, spans[0].ClosedAt)
	require.True(t, spans[0].ClosedAt.Equal(*session.ChatEndedAt))
	require.Equal(t, session.SidePanelOpenMs, *spans[0].DurationMs)
}

// detachedFinalizer records whether FinalizeBestEffort received a context
// that outlives the request.
type detachedFinalizer struct {
	SidePanelService
	calls    int
	detached bool
}

func (d *detachedFinalizer) FinalizeBestEffort(ctx context.Context, participantID uuid.UUID, taskNumber int) {
	d.calls++
	d.detached = ctx.Done() == nil && ctx.Err() == nil
	d.SidePanelService.FinalizeBestEffort(ctx, participantID, taskNumber)
}

func TestCheckpointFinalizeOutlivesRequest(t *testing.T) {
	env := newStudyEnv(t)
	testutil.SeedAllTemplates(t, env.db)
	rec := &detachedFinalizer{SidePanelService: env.sidePanel}
	env.tasks.(*taskService).sidePanel = rec
	env.surveys.(*surveyService).sidePanel = rec

	p := testutil.SeedParticipant(t, env.db, "P001", steps.Task1Chat)
	reqCtx, cancel := context.WithCancel(asParticipant(p))
	defer cancel()

	_, err := env.tasks.Ready(reqCtx, 1)
	require.NoError(t, err)
	require.Equal(t, 1, rec.calls)
	require.True(t, rec.detached)

	rec.detached = false
	_, err = env.surveys.Submit(reqCtx, steps.PhaseTask1Post, validAnswers())
	require.NoError(t, err)
	require.Equal(t, 2, rec.calls)
	require.True(t, rec.detached)
}

func TestFinalizeEndPreferenceOrder(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	at := func(min int) *time.Time {
		v := base.Add(time.Duration(min) * time.Minute)
		return &v
	}
	now := base.Add(time.Hour)

	cases := []struct {
		name    string
		session *types.TaskSession
		p       *types.Participant
		want    time.Time
	}{
		{"chat ended wins", &types.TaskSession{ChatEndedAt: at(5), ReadyToAnswerAt: at(1)}, &types.Participant{LastActiveAt: at(9)}, *at(5)},
		{"ready next", &types.TaskSession{ReadyToAnswerAt: at(2), PostSurveyStartedAt: at(1)}, nil, *at(2)},
		{"post survey start", &types.TaskSession{PostSurveyStartedAt: at(3), PostSurveySubmittedAt: at(4)}, nil, *at(3)},
		{"post survey submit", &types.TaskSession{PostSurveySubmittedAt: at(4)}, &types.Participant{CompletedAt: at(8)}, *at(4)},
		{"participant completion", &types.TaskSession{}, &types.Participant{CompletedAt: at(8), LastActiveAt: at(9)}, *at(8)},
		{"last active", &types.TaskSession{}, &types.Participant{LastActiveAt: at(9)}, *at(9)},
		{"wall clock", &types.TaskSession{}, &types.Participant{}, now},
		{"nothing known", nil, nil, now},
	}
	for _, tc := range cases {
		if got := FinalizeEnd(tc.session, tc.p, now); !got.Equal(tc.want) {
			t.Fatalf("%s: want=%s got=%s", tc.name, tc.want, got)
		}
	}
}
