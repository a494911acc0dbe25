package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/data/repos"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/data/repos/testutil"
	types "github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/domain"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/ctxutil"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/dbctx"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/sessiontoken"
)

type studyEnv struct {
	db     *gorm.DB
	repos  repos.Set
	tokens *sessiontoken.Issuer

	participants ParticipantService
	tasks        TaskService
	ledger       ChatLedgerService
	sidePanel    SidePanelService
	surveys      SurveyService
}

func newStudyEnv(t *testing.T) *studyEnv {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	set := repos.NewSet(db, log)
	tokens, err := sessiontoken.New(sessiontoken.Config{Secret: strings.Repeat("s", 32)})
	if err != nil {
		t.Fatalf("sessiontoken.New: %v", err)
	}
	env := &studyEnv{db: db, repos: set, tokens: tokens}
	env.sidePanel = NewSidePanelService(db, log, set.Participant, set.TaskSession, set.ChatThread, set.SidePanelSpan, set.AgentMessage)
	env.participants = NewParticipantService(db, log, set.Participant, set.TaskSession, set.AccessLog, tokens)
	env.tasks = NewTaskService(db, log, set.Participant, set.TaskSession, set.ChatThread, set.TaskDefinition, env.sidePanel)
	env.ledger = NewChatLedgerService(db, log, set.Participant, set.TaskSession, set.ChatThread)
	env.surveys = NewSurveyService(db, log, set.Participant, set.TaskSession, set.SurveyTemplate, set.SurveyInstance, set.SurveyAnswer, env.sidePanel)
	// Retries in tests should not wait.
	env.ledger.(*chatLedgerService).sleep = func(context.Context, time.Duration) error { return nil }
	return env
}

func asParticipant(p *types.Participant) context.Context {
	return ctxutil.WithRequestData(context.Background(), &ctxutil.RequestData{
		ParticipantID:    p.ID,
		AccessCode:       p.AccessCode,
		SidePanelEnabled: p.SidePanelEnabled,
	})
}

func (e *studyEnv) reload(t *testing.T, p *types.Participant) *types.Participant {
	t.Helper()
	var out types.Participant
	if err := e.db.Where("id = ?", p.ID).Take(&out).Error; err != nil {
		t.Fatalf("reload participant: %v", err)
	}
	return &out
}

func (e *studyEnv) session(t *testing.T, p *types.Participant, n int) *types.TaskSession {
	t.Helper()
	var out types.TaskSession
	if err := e.db.Where("participant_id = ? AND task_number = ?", p.ID, n).Take(&out).Error; err != nil {
		t.Fatalf("load task session %d: %v", n, err)
	}
	return &out
}

func (e *studyEnv) threadCount(t *testing.T, sessionID interface{}) int64 {
	t.Helper()
	var n int64
	if err := e.db.Model(&types.ChatThread{}).Where("task_session_id = ?", sessionID).Count(&n).Error; err != nil {
		t.Fatalf("count threads: %v", err)
	}
	return n
}

func dbcFor(ctx context.Context) dbctx.Context {
	return dbctx.Context{Ctx: ctx}
}
