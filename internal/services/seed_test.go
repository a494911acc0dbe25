package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/data/repos/testutil"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/domain/survey"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/dbctx"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/study/steps"
)

func newSeedService(t *testing.T, env *studyEnv) SeedService {
	return NewSeedService(env.db, testutil.Logger(t), env.repos.SurveyTemplate, env.repos.TaskDefinition, env.repos.DatasetTable, env.repos.Participant)
}

func TestSeedFileAppliesIdempotently(t *testing.T) {
	env := newStudyEnv(t)
	svc := newSeedService(t, env)
	f, err := LoadSeedFile("../../seeds/study.yaml")
	require.NoError(t, err)

	report, err := svc.Apply(context.Background(), f)
	require.NoError(t, err)
	require.Equal(t, len(steps.Phases), report.Surveys)
	require.Equal(t, steps.TaskCount, report.Tasks)
	require.Equal(t, 3, report.Tables)
	require.Equal(t, 2, report.Participants)

	again, err := svc.Apply(context.Background(), f)
	require.NoError(t, err)
	require.Zero(t, again.Participants)

	dbc := dbctx.Context{Ctx: context.Background()}
	post, err := env.repos.SurveyTemplate.GetByPhase(dbc, string(steps.PhaseTask2Post))
	require.NoError(t, err)
	require.Len(t, post.Questions, 4)
	comment := post.Questions[3]
	require.Equal(t, survey.QuestionText, comment.Type)
	require.False(t, comment.Required)
	require.Len(t, post.Questions[2].Options, 3)

	p, err := env.repos.Participant.GetByAccessCode(dbc, "P001")
	require.NoError(t, err)
	require.True(t, p.SidePanelEnabled)
	require.Equal(t, steps.Welcome, p.CurrentStep)

	tables, err := env.repos.DatasetTable.GetByTables(dbc, []string{"sales", "weather_daily"})
	require.NoError(t, err)
	require.Len(t, tables, 2)
}

func TestParseSeedRejectsBadContent(t *testing.T) {
	_, err := ParseSeed([]byte("surveys: []\nunknown: 1\n"))
	require.Error(t, err)

	cases := map[string]string{
		"bad phase":      "surveys:\n  - phase: LUNCH\n    title: x\n",
		"bad type":       "surveys:\n  - phase: PRE\n    title: x\n    questions:\n      - {key: a, type: SLIDER, prompt: p}\n",
		"choice w/o opt": "surveys:\n  - phase: PRE\n    title: x\n    questions:\n      - {key: a, type: SINGLE_CHOICE, prompt: p}\n",
		"bad scale":      "surveys:\n  - phase: PRE\n    title: x\n    questions:\n      - {key: a, type: SCALE_NRS, prompt: p, min: 5, max: 5}\n",
		"task range":     "tasks:\n  - {number: 4, title: x}\n",
	}
	env := newStudyEnv(t)
	svc := newSeedService(t, env)
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			f, err := ParseSeed([]byte(doc))
			require.NoError(t, err)
			_, err = svc.Apply(context.Background(), f)
			require.Error(t, err)
		})
	}
}
