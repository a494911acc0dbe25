package services

import (
	"context"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/agent/dq"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/data/repos/testutil"
	types "github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/domain"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/apierr"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/ctxutil"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/study/steps"
)

func asAdmin() context.Context {
	return ctxutil.WithRequestData(context.Background(), &ctxutil.RequestData{AdminID: uuid.New()})
}

func TestRecordWritesOneRowPerRun(t *testing.T) {
	env := newAgentEnv(t)
	runID := uuid.New()
	in := RecordDataQualityInput{
		AgentThreadID: "t-1",
		RunID:         runID,
		MainSQL:       []string{"SELECT 1", "SELECT 2"},
		Outcome:       dq.Outcome{Status: types.DQStatusUnknown, Indicators: dq.Indicators{Message: "two tool calls"}},
	}
	row := env.quality.Record(context.Background(), in)
	require.NotNil(t, row)
	require.Equal(t, "SELECT 2", row.LastMainSQL)
	require.Equal(t, 2, row.MainSQLCount)
	require.JSONEq(t, `[]`, string(row.UsedTables))
	require.JSONEq(t, `{"message":"two tool calls"}`, string(row.Indicators))

	require.Nil(t, env.quality.Record(context.Background(), in))
	require.Equal(t, int64(1), env.dqCount(t, "t-1"))
}

func TestLatestJoinsDatasetCatalog(t *testing.T) {
	env := newAgentEnv(t)
	p := testutil.SeedParticipant(t, env.db, "P001", steps.Task1Chat)
	ctx := asParticipant(p)
	_, err := env.ledger.EnsureThread(ctx, EnsureThreadInput{AgentThreadID: "t-1"})
	require.NoError(t, err)

	empty, err := env.quality.Latest(ctx, "t-1")
	require.NoError(t, err)
	require.Nil(t, empty.Log)
	require.Empty(t, empty.Datasets)

	testutil.SeedDatasetTables(t, env.db,
		&types.DatasetTable{Table: "sales", DatasetKey: "retail", DatasetTitle: "Retail sales"},
		&types.DatasetTable{Table: "stores", DatasetKey: "retail", DatasetTitle: "Retail sales"},
	)
	env.quality.Record(context.Background(), RecordDataQualityInput{
		AgentThreadID: "t-1",
		RunID:         uuid.New(),
		MainSQL:       []string{"SELECT * FROM public.sales JOIN weather USING (day)"},
		Outcome:       dq.Outcome{Status: types.DQStatusWarning, UsedTables: []string{"public.sales", "weather"}},
	})

	got, err := env.quality.Latest(ctx, "t-1")
	require.NoError(t, err)
	require.NotNil(t, got.Log)
	require.Equal(t, types.DQStatusWarning, got.Log.Status)
	require.Len(t, got.Datasets, 1)
	require.Equal(t, "retail", got.Datasets[0].Key)
	require.Equal(t, []string{"public.sales"}, got.Datasets[0].Tables)
	require.Equal(t, []string{"weather"}, got.UnmatchedTables)

	admin, err := env.quality.Latest(asAdmin(), "t-1")
	require.NoError(t, err)
	require.Equal(t, got.Log.ID, admin.Log.ID)
}

func TestLatestEnforcesCaller(t *testing.T) {
	env := newAgentEnv(t)
	owner := testutil.SeedParticipant(t, env.db, "P001", steps.Task1Chat)
	other := testutil.SeedParticipant(t, env.db, "P002", steps.Task1Chat)
	_, err := env.ledger.EnsureThread(asParticipant(owner), EnsureThreadInput{AgentThreadID: "t-1"})
	require.NoError(t, err)

	_, err = env.quality.Latest(asParticipant(other), "t-1")
	require.True(t, apierr.HasStatus(err, http.StatusForbidden), "got %v", err)

	_, err = env.quality.Latest(context.Background(), "t-1")
	require.True(t, apierr.HasStatus(err, http.StatusUnauthorized), "got %v", err)

	_, err = env.quality.Latest(asAdmin(), " ")
	require.True(t, apierr.HasStatus(err, http.StatusBadRequest), "got %v", err)
}
