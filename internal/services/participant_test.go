package services

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/data/repos/testutil"
	types "github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/domain"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/apierr"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/dbctx"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/study/steps"
)

func TestStartSessionFirstEntryAdvancesToPreSurvey(t *testing.T) {
	env := newStudyEnv(t)
	p := testutil.SeedParticipant(t, env.db, "P001", steps.Welcome)

	res, err := env.participants.StartSession(context.Background(), SessionStartInput{AccessCode: " P001 ", ClientIP: "10.0.0.1"})
	require.NoError(t, err)
	require.Equal(t, "/study/P001/pre-survey", res.RedirectTo)
	require.NotEmpty(t, res.Token)

	claims, err := env.tokens.VerifyParticipant(res.Token)
	require.NoError(t, err)
	require.Equal(t, p.ID.String(), claims.Subject)
	require.Equal(t, "P001", claims.AccessCode)

	got := env.reload(t, p)
	require.Equal(t, steps.StatusStarted, got.Status)
	require.Equal(t, steps.PreSurvey, got.CurrentStep)
	require.Nil(t, got.CurrentTaskNumber)
	require.NotNil(t, got.StartedAt)
	require.NotNil(t, got.LastActiveAt)
	require.Equal(t, 0, got.ReentryCount)

	logs, err := env.repos.AccessLog.ListByParticipant(dbctx.Context{Ctx: context.Background()}, p.ID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.Equal(t, types.AccessEventSessionStart, logs[0].Event)
	require.Equal(t, "10.0.0.1", logs[0].ClientIP)
}

func TestStartSessionReentryKeepsStep(t *testing.T) {
	env := newStudyEnv(t)
	p := testutil.SeedParticipant(t, env.db, "P002", steps.Task2Chat)

	for i := 0; i < 2; i++ {
		res, err := env.participants.StartSession(context.Background(), SessionStartInput{AccessCode: "P002"})
		require.NoError(t, err)
		require.Equal(t, "/study/P002/task/2", res.RedirectTo)
	}

	got := env.reload(t, p)
	require.Equal(t, steps.Task2Chat, got.CurrentStep)
	require.Equal(t, 2, got.ReentryCount)

	logs, err := env.repos.AccessLog.ListByParticipant(dbctx.Context{Ctx: context.Background()}, p.ID)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	for _, l := range logs {
		require.Equal(t, types.AccessEventReentry, l.Event)
	}
}

func TestStartSessionRejectsUnknownAndInactive(t *testing.T) {
	env := newStudyEnv(t)

	_, err := env.participants.StartSession(context.Background(), SessionStartInput{AccessCode: "NOPE"})
	require.True(t, apierr.HasStatus(err, http.StatusUnauthorized), "unknown code: got %v", err)

	_, err = env.participants.StartSession(context.Background(), SessionStartInput{AccessCode: "  "})
	require.True(t, apierr.HasStatus(err, http.StatusBadRequest), "blank code: got %v", err)

	p := testutil.SeedParticipant(t, env.db, "P003", steps.Task1Chat)
	require.NoError(t, env.db.Model(p).Update("status", string(steps.StatusWithdrawn)).Error)

	_, err = env.participants.StartSession(context.Background(), SessionStartInput{AccessCode: "P003"})
	ae, ok := apierr.As(err)
	require.True(t, ok, "withdrawn: got %v", err)
	require.Equal(t, http.StatusForbidden, ae.Status)
	require.Equal(t, "participant_inactive", ae.Code)
	require.Equal(t, "/study/P003/ended", ae.RedirectTo)
}

func TestStartSessionCompletedParticipantLandsOnDone(t *testing.T) {
	env := newStudyEnv(t)
	testutil.SeedParticipant(t, env.db, "P004", steps.Done)

	res, err := env.participants.StartSession(context.Background(), SessionStartInput{AccessCode: "P004"})
	require.NoError(t, err)
	require.Equal(t, "/study/P004/done", res.RedirectTo)
}

func TestMeReturnsRouteAndSessions(t *testing.T) {
	env := newStudyEnv(t)
	p := testutil.SeedParticipant(t, env.db, "P005", steps.Task1PostSurvey)
	testutil.SeedTaskSession(t, env.db, p, 1)

	me, err := env.participants.Me(asParticipant(p))
	require.NoError(t, err)
	require.Equal(t, "/study/P005/task/1/post-survey", me.RedirectTo)
	require.Len(t, me.TaskSessions, 1)

	_, err = env.participants.Me(context.Background())
	require.True(t, apierr.HasStatus(err, http.StatusUnauthorized))
}
