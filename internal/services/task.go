package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/data/repos"
	types "github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/domain"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/apierr"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/dbctx"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/logger"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/study/steps"
)

type TaskView struct {
	TaskNumber       int                   `json:"taskNumber"`
	Definition       *types.TaskDefinition `json:"task"`
	Session          *types.TaskSession    `json:"session"`
	ActiveThread     *types.ChatThread     `json:"activeThread,omitempty"`
	SidePanelEnabled bool                  `json:"sidePanelEnabled"`
}

type ReadyResult struct {
	RedirectTo string `json:"redirectTo"`
}

type TaskService interface {
	// LoadTask returns task n for a participant at TASKn_CHAT, creating the
	// task session on first load.
	LoadTask(ctx context.Context, taskNumber int) (*TaskView, error)
	// Ready ends the chat of task n and moves the participant to its
	// post-task survey.
	Ready(ctx context.Context, taskNumber int) (*ReadyResult, error)
}

type taskService struct {
	db           *gorm.DB
	log          *logger.Logger
	participants repos.ParticipantRepo
	sessions     repos.TaskSessionRepo
	threads      repos.ChatThreadRepo
	definitions  repos.TaskDefinitionRepo
	sidePanel    SidePanelService
	now          func() time.Time
}

func NewTaskService(
	db *gorm.DB,
	baseLog *logger.Logger,
	participants repos.ParticipantRepo,
	sessions repos.TaskSessionRepo,
	threads repos.ChatThreadRepo,
	definitions repos.TaskDefinitionRepo,
	sidePanel SidePanelService,
) TaskService {
	return &taskService{
		db:           db,
		log:          baseLog.With("service", "TaskService"),
		participants: participants,
		sessions:     sessions,
		threads:      threads,
		definitions:  definitions,
		sidePanel:    sidePanel,
		now:          utcNow,
	}
}

func (s *taskService) LoadTask(ctx context.Context, taskNumber int) (*TaskView, error) {
	pid, err := callerParticipant(ctx)
	if err != nil {
		return nil, err
	}
	dbc := dbctx.Context{Ctx: ctx}
	p, err := s.participants.GetByID(dbc, pid)
	if err != nil {
		return nil, err
	}
	taskNumber, err = requireChatStep(p, taskNumber)
	if err != nil {
		return nil, err
	}
	def, err := s.definitions.Get(dbc, taskNumber, p.AssignedVariant)
	if err != nil {
		return nil, err
	}
	if def == nil {
		return nil, apierr.NotFound("task_definition_not_found", fmt.Sprintf("no definition for task %d", taskNumber))
	}
	session, err := s.sessions.Ensure(dbc, pid, taskNumber)
	if err != nil {
		return nil, err
	}
	view := &TaskView{
		TaskNumber:       taskNumber,
		Definition:       def,
		Session:          session,
		SidePanelEnabled: p.SidePanelEnabled,
	}
	threads, err := s.threads.ListBySession(dbc, session.ID)
	if err != nil {
		return nil, err
	}
	for _, t := range threads {
		if t.Status == types.ThreadStatusActive {
			view.ActiveThread = t
		}
	}
	return view, nil
}

func (s *taskService) Ready(ctx context.Context, taskNumber int) (*ReadyResult, error) {
	pid, err := callerParticipant(ctx)
	if err != nil {
		return nil, err
	}
	var (
		redirect string
		n        int
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		p, err := s.participants.LockByID(dbc, pid)
		if err != nil {
			return err
		}
		n, err = requireChatStep(p, taskNumber)
		if err != nil {
			return err
		}
		session, err := s.sessions.Ensure(dbc, pid, n)
		if err != nil {
			return err
		}
		if _, err := s.sessions.LockByID(dbc, session.ID); err != nil {
			return err
		}
		now := s.now()
		for _, col := range []string{"ready_to_answer_at", "chat_ended_at"} {
			if _, err := s.sessions.StampOnce(dbc, session.ID, col, now); err != nil {
				return err
			}
		}
		if _, err := s.threads.CloseActive(dbc, session.ID, uuid.Nil, types.CloseReasonTaskFinished, now); err != nil {
			return fmt.Errorf("close active thread: %w", err)
		}
		next, err := steps.Transition(p.State(), steps.TriggerReady)
		if err != nil {
			return apierr.Internal("invalid_transition", err)
		}
		updates := stateUpdates(next)
		updates["last_active_at"] = now
		if err := s.participants.UpdateFields(dbc, p.ID, updates); err != nil {
			return fmt.Errorf("advance participant: %w", err)
		}
		p.Apply(next)
		redirect = p.Route()
		return nil
	})
	if err != nil {
		return nil, err
	}
	if s.sidePanel != nil {
		s.sidePanel.FinalizeBestEffort(context.WithoutCancel(ctx), pid, n)
	}
	s.log.Info("participant ready to answer", "participant_id", pid.String(), "task_number", n)
	return &ReadyResult{RedirectTo: redirect}, nil
}
