package services

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/data/repos/testutil"
	types "github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/domain"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/apierr"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/study/steps"
)

func TestLoadTaskReturnsDefinitionAndActiveThread(t *testing.T) {
	env := newStudyEnv(t)
	testutil.SeedTaskDefinitions(t, env.db)
	p := testutil.SeedParticipant(t, env.db, "P001", steps.Task1Chat)
	ctx := asParticipant(p)

	view, err := env.tasks.LoadTask(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, 1, view.TaskNumber)
	require.Equal(t, 1, view.Definition.TaskNumber)
	require.Nil(t, view.ActiveThread)

	_, err = env.ledger.EnsureThread(ctx, EnsureThreadInput{AgentThreadID: "th-1", TaskNumber: 1})
	require.NoError(t, err)
	view, err = env.tasks.LoadTask(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, view.ActiveThread)
	require.Equal(t, "th-1", view.ActiveThread.AgentThreadID)
}

func TestLoadTaskPrefersVariantDefinition(t *testing.T) {
	env := newStudyEnv(t)
	testutil.SeedTaskDefinitions(t, env.db)
	require.NoError(t, env.db.Create(&types.TaskDefinition{TaskNumber: 1, Variant: "A", Title: "Variant A"}).Error)
	p := testutil.SeedParticipant(t, env.db, "P001", steps.Task1Chat)

	view, err := env.tasks.LoadTask(asParticipant(p), 1)
	require.NoError(t, err)
	require.Equal(t, "Variant A", view.Definition.Title)
}

func TestLoadTaskMissingDefinition(t *testing.T) {
	env := newStudyEnv(t)
	p := testutil.SeedParticipant(t, env.db, "P001", steps.Task1Chat)
	_, err := env.tasks.LoadTask(asParticipant(p), 1)
	ae, ok := apierr.As(err)
	require.True(t, ok, "got %v", err)
	require.Equal(t, http.StatusNotFound, ae.Status)
	require.Equal(t, "task_definition_not_found", ae.Code)
}

func TestLoadTaskWrongTaskRedirectsToCurrent(t *testing.T) {
	env := newStudyEnv(t)
	testutil.SeedTaskDefinitions(t, env.db)
	p := testutil.SeedParticipant(t, env.db, "P001", steps.Task2Chat)

	_, err := env.tasks.LoadTask(asParticipant(p), 1)
	ae, ok := apierr.As(err)
	require.True(t, ok, "got %v", err)
	require.Equal(t, http.StatusConflict, ae.Status)
	require.Equal(t, "/study/P001/task/2", ae.RedirectTo)

	_, err = env.tasks.LoadTask(asParticipant(p), 7)
	require.True(t, apierr.HasStatus(err, http.StatusBadRequest), "got %v", err)
}

func TestReadyClosesThreadAndAdvances(t *testing.T) {
	env := newStudyEnv(t)
	p := testutil.SeedParticipant(t, env.db, "P001", steps.Task3Chat)
	ctx := asParticipant(p)
	_, err := env.ledger.EnsureThread(ctx, EnsureThreadInput{AgentThreadID: "th-3", TaskNumber: 3})
	require.NoError(t, err)

	res, err := env.tasks.Ready(ctx, 3)
	require.NoError(t, err)
	require.Equal(t, "/study/P001/task/3/post-survey", res.RedirectTo)

	got := env.reload(t, p)
	require.Equal(t, steps.Task3PostSurvey, got.CurrentStep)
	require.NotNil(t, got.CurrentTaskNumber)
	require.Equal(t, 3, *got.CurrentTaskNumber)

	session := env.session(t, p, 3)
	require.NotNil(t, session.ReadyToAnswerAt)
	require.NotNil(t, session.ChatEndedAt)

	var th types.ChatThread
	require.NoError(t, env.db.Where("agent_thread_id = ?", "th-3").Take(&th).Error)
	require.Equal(t, types.ThreadStatusClosed, th.Status)
	require.NotNil(t, th.CloseReason)
	require.Equal(t, types.CloseReasonTaskFinished, *th.CloseReason)

	_, err = env.tasks.Ready(ctx, 3)
	ae, ok := apierr.As(err)
	require.True(t, ok, "second ready: got %v", err)
	require.Equal(t, "/study/P001/task/3/post-survey", ae.RedirectTo)
}
