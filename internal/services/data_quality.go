package services

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/agent/dq"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/data/repos"
	types "github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/domain"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/observability"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/apierr"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/ctxutil"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/dbctx"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/logger"
)

type RecordDataQualityInput struct {
	AgentThreadID string
	RunID         uuid.UUID
	MainSQL       []string
	Outcome       dq.Outcome
}

type Dataset struct {
	Key         string   `json:"datasetKey"`
	Title       string   `json:"datasetTitle"`
	Description string   `json:"description,omitempty"`
	SourceURL   string   `json:"sourceUrl,omitempty"`
	Tables      []string `json:"tables"`
}

type LatestDataQuality struct {
	ThreadID        string                      `json:"threadId"`
	Log             *types.ThreadDataQualityLog `json:"log"`
	Datasets        []Dataset                   `json:"datasets"`
	UnmatchedTables []string                    `json:"unmatchedTables"`
}

type DataQualityService interface {
	// Record appends the audit row of one turn. Failures are logged and
	// reported as nil; they never fail the turn.
	Record(ctx context.Context, in RecordDataQualityInput) *types.ThreadDataQualityLog
	// Latest returns the newest audit row of a thread. Participants must own
	// the thread; admins may read any thread.
	Latest(ctx context.Context, agentThreadID string) (*LatestDataQuality, error)
}

type dataQualityService struct {
	db       *gorm.DB
	log      *logger.Logger
	logs     repos.DataQualityLogRepo
	datasets repos.DatasetTableRepo
	ledger   ChatLedgerService
}

func NewDataQualityService(
	db *gorm.DB,
	baseLog *logger.Logger,
	logs repos.DataQualityLogRepo,
	datasets repos.DatasetTableRepo,
	ledger ChatLedgerService,
) DataQualityService {
	return &dataQualityService{
		db:       db,
		log:      baseLog.With("service", "DataQualityService"),
		logs:     logs,
		datasets: datasets,
		ledger:   ledger,
	}
}

func (s *dataQualityService) Record(ctx context.Context, in RecordDataQualityInput) *types.ThreadDataQualityLog {
	out := in.Outcome
	indicators, err := json.Marshal(out.Indicators)
	if err != nil {
		s.log.Warn("encode dq indicators failed", "agent_thread_id", in.AgentThreadID, "error", err)
		indicators = []byte(`{}`)
	}
	used := out.UsedTables
	if used == nil {
		used = []string{}
	}
	usedJSON, _ := json.Marshal(used)

	row := &types.ThreadDataQualityLog{
		AgentThreadID: in.AgentThreadID,
		RunID:         in.RunID,
		Status:        out.Status,
		Indicators:    datatypes.JSON(indicators),
		UsedTables:    datatypes.JSON(usedJSON),
		LastMainSQL:   lastOf(in.MainSQL),
		LastDQSQL:     lastOf(out.DQSQL),
		MainSQLCount:  len(in.MainSQL),
		DQSQLCount:    len(out.DQSQL),
		Model:         out.Model,
	}
	var created bool
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		created, err = s.logs.Create(dbctx.Context{Ctx: ctx, Tx: tx}, row)
		return err
	})
	if err != nil {
		s.log.Warn("persist dq log failed",
			"agent_thread_id", in.AgentThreadID,
			"run_id", in.RunID.String(),
			"status", out.Status,
			"error", err,
		)
		return nil
	}
	if !created {
		s.log.Debug("dq log already written for run", "run_id", in.RunID.String())
		return nil
	}
	observability.Current().IncDQOutcome(out.Status)
	return row
}

func (s *dataQualityService) Latest(ctx context.Context, agentThreadID string) (*LatestDataQuality, error) {
	threadID := strings.TrimSpace(agentThreadID)
	if threadID == "" {
		return nil, apierr.BadRequest("missing_thread_id", "threadId is required")
	}
	rd := ctxutil.GetRequestData(ctx)
	switch {
	case rd.IsAdmin():
	case rd.IsParticipant():
		if _, _, err := s.ledger.OwnedThread(ctx, rd.ParticipantID, threadID); err != nil {
			return nil, err
		}
	default:
		return nil, apierr.Unauthorized("unauthorized", "not authenticated")
	}

	dbc := dbctx.Context{Ctx: ctx}
	row, err := s.logs.LatestByThread(dbc, threadID)
	if err != nil {
		return nil, err
	}
	out := &LatestDataQuality{ThreadID: threadID, Log: row, Datasets: []Dataset{}, UnmatchedTables: []string{}}
	if row == nil {
		return out, nil
	}
	var used []string
	if len(row.UsedTables) > 0 {
		if err := json.Unmarshal(row.UsedTables, &used); err != nil {
			s.log.Warn("decode used tables failed", "agent_thread_id", threadID, "error", err)
		}
	}
	catalog, err := s.datasets.GetByTables(dbc, catalogKeys(used))
	if err != nil {
		return nil, err
	}
	out.Datasets, out.UnmatchedTables = resolveDatasets(used, catalog)
	return out, nil
}

// catalogKeys adds the unqualified name of schema-qualified tables so
// "public.sales" matches a catalog entry for "sales".
func catalogKeys(used []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, t := range used {
		for _, k := range []string{t, unqualified(t)} {
			if !seen[k] {
				seen[k] = true
				out = append(out, k)
			}
		}
	}
	return out
}

func unqualified(table string) string {
	if i := strings.LastIndex(table, "."); i >= 0 {
		return table[i+1:]
	}
	return table
}

// resolveDatasets groups used tables by dataset. Tables without a catalog
// entry are returned separately.
func resolveDatasets(used []string, catalog []*types.DatasetTable) ([]Dataset, []string) {
	byTable := map[string]*types.DatasetTable{}
	for _, c := range catalog {
		byTable[strings.ToLower(c.Table)] = c
	}
	groups := map[string]*Dataset{}
	unmatched := []string{}
	for _, t := range used {
		c := byTable[t]
		if c == nil {
			c = byTable[unqualified(t)]
		}
		if c == nil {
			unmatched = append(unmatched, t)
			continue
		}
		g := groups[c.DatasetKey]
		if g == nil {
			g = &Dataset{Key: c.DatasetKey, Title: c.DatasetTitle, Description: c.Description, SourceURL: c.SourceURL}
			groups[c.DatasetKey] = g
		}
		g.Tables = append(g.Tables, t)
	}
	out := make([]Dataset, 0, len(groups))
	for _, g := range groups {
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, unmatched
}

func lastOf(xs []string) string {
	if len(xs) == 0 {
		return ""
	}
	return xs[len(xs)-1]
}
