package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/data/dberr"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/data/repos"
	types "github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/domain"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/apierr"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/dbctx"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/logger"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/study/steps"
)

const ensureInstanceAttempts = 3

type SurveyView struct {
	Phase      steps.Phase           `json:"phase"`
	TaskNumber *int                  `json:"taskNumber,omitempty"`
	Template   *types.SurveyTemplate `json:"template"`
	Instance   *types.SurveyInstance `json:"instance"`
}

type SubmitResult struct {
	InstanceID  uuid.UUID `json:"instanceId"`
	SubmittedAt time.Time `json:"submittedAt"`
	RedirectTo  string    `json:"redirectTo"`
}

type SurveyService interface {
	// Load returns the questionnaire of phase and ensures the participant's
	// instance exists.
	Load(ctx context.Context, phase steps.Phase) (*SurveyView, error)
	// Submit validates and stores all answers, marks the instance submitted
	// and advances the participant in one transaction.
	Submit(ctx context.Context, phase steps.Phase, answers []AnswerInput) (*SubmitResult, error)
}

type surveyService struct {
	db           *gorm.DB
	log          *logger.Logger
	participants repos.ParticipantRepo
	sessions     repos.TaskSessionRepo
	templates    repos.SurveyTemplateRepo
	instances    repos.SurveyInstanceRepo
	answers      repos.SurveyAnswerRepo
	sidePanel    SidePanelService
	now          func() time.Time
}

func NewSurveyService(
	db *gorm.DB,
	baseLog *logger.Logger,
	participants repos.ParticipantRepo,
	sessions repos.TaskSessionRepo,
	templates repos.SurveyTemplateRepo,
	instances repos.SurveyInstanceRepo,
	answers repos.SurveyAnswerRepo,
	sidePanel SidePanelService,
) SurveyService {
	return &surveyService{
		db:           db,
		log:          baseLog.With("service", "SurveyService"),
		participants: participants,
		sessions:     sessions,
		templates:    templates,
		instances:    instances,
		answers:      answers,
		sidePanel:    sidePanel,
		now:          utcNow,
	}
}

func (s *surveyService) Load(ctx context.Context, phase steps.Phase) (*SurveyView, error) {
	pid, err := callerParticipant(ctx)
	if err != nil {
		return nil, err
	}
	dbc := dbctx.Context{Ctx: ctx}
	p, err := s.participants.GetByID(dbc, pid)
	if err != nil {
		return nil, err
	}
	if err := requireStep(p, phase.Step()); err != nil {
		return nil, err
	}
	tmpl, err := s.templates.GetByPhase(dbc, string(phase))
	if err != nil {
		return nil, err
	}
	if tmpl == nil {
		return nil, apierr.NotFound("survey_template_not_found", fmt.Sprintf("no survey template for phase %s", phase))
	}

	view := &SurveyView{Phase: phase, Template: tmpl}
	var sessionID *uuid.UUID
	now := s.now()
	if n, ok := phase.TaskNumber(); ok {
		session, err := s.sessions.Ensure(dbc, pid, n)
		if err != nil {
			return nil, err
		}
		if _, err := s.sessions.StampOnce(dbc, session.ID, "post_survey_started_at", now); err != nil {
			return nil, err
		}
		id := session.ID
		sessionID = &id
		view.TaskNumber = &n
	}
	inst, err := s.ensureInstance(dbc, pid, phase, tmpl.ID, sessionID, now)
	if err != nil {
		return nil, err
	}
	view.Instance = inst
	return view, nil
}

// ensureInstance creates the (participant, phase) instance unless it exists.
// A unique violation from a concurrent creator is answered by re-reading.
func (s *surveyService) ensureInstance(dbc dbctx.Context, pid uuid.UUID, phase steps.Phase, templateID uuid.UUID, sessionID *uuid.UUID, now time.Time) (*types.SurveyInstance, error) {
	var lastErr error
	for attempt := 0; attempt < ensureInstanceAttempts; attempt++ {
		inst, err := s.instances.Ensure(dbc, &types.SurveyInstance{
			ParticipantID: pid,
			Phase:         string(phase),
			TemplateID:    templateID,
			TaskSessionID: sessionID,
			StartedAt:     now,
		})
		if err == nil {
			return inst, nil
		}
		if !dberr.IsUniqueViolation(err) {
			return nil, err
		}
		lastErr = err
		if existing, gerr := s.instances.Get(dbc, pid, string(phase)); gerr == nil && existing != nil {
			return existing, nil
		}
	}
	return nil, fmt.Errorf("ensure survey instance %s: %w", phase, lastErr)
}

func (s *surveyService) Submit(ctx context.Context, phase steps.Phase, inputs []AnswerInput) (*SubmitResult, error) {
	pid, err := callerParticipant(ctx)
	if err != nil {
		return nil, err
	}
	taskNumber, isTask := phase.TaskNumber()

	var out *SubmitResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		p, err := s.participants.LockByID(dbc, pid)
		if err != nil {
			return err
		}
		if err := requireActive(p); err != nil {
			return err
		}
		prior, err := s.instances.Get(dbc, pid, string(phase))
		if err != nil {
			return err
		}
		if prior != nil && prior.SubmittedAt != nil {
			return apierr.AlreadySubmitted(p.Route())
		}
		if err := requireStep(p, phase.Step()); err != nil {
			return err
		}
		tmpl, err := s.templates.GetByPhase(dbc, string(phase))
		if err != nil {
			return err
		}
		if tmpl == nil {
			return apierr.NotFound("survey_template_not_found", fmt.Sprintf("no survey template for phase %s", phase))
		}

		now := s.now()
		var session *types.TaskSession
		var sessionID *uuid.UUID
		if isTask {
			session, err = s.sessions.Ensure(dbc, pid, taskNumber)
			if err != nil {
				return err
			}
			id := session.ID
			sessionID = &id
		}
		inst, err := s.ensureInstance(dbc, pid, phase, tmpl.ID, sessionID, now)
		if err != nil {
			return err
		}
		inst, err = s.instances.LockByID(dbc, inst.ID)
		if err != nil {
			return err
		}
		if inst.SubmittedAt != nil {
			return apierr.AlreadySubmitted(p.Route())
		}

		answers, selections, err := ValidateAnswers(tmpl, inst.ID, inputs, now)
		if err != nil {
			return err
		}
		if err := s.answers.Create(dbc, answers, selections); err != nil {
			return fmt.Errorf("write answers: %w", err)
		}
		marked, err := s.instances.MarkSubmitted(dbc, inst.ID, now)
		if err != nil {
			return err
		}
		if !marked {
			return apierr.AlreadySubmitted(p.Route())
		}

		next, err := steps.Transition(p.State(), steps.TriggerSurveySubmit)
		if err != nil {
			return apierr.Internal("invalid_transition", err)
		}
		updates := stateUpdates(next)
		updates["last_active_at"] = now
		if next.Step == steps.Done {
			updates["completed_at"] = now
		}
		if err := s.participants.UpdateFields(dbc, p.ID, updates); err != nil {
			return fmt.Errorf("advance participant: %w", err)
		}
		if session != nil {
			for _, col := range []string{"post_survey_started_at", "post_survey_submitted_at"} {
				if _, err := s.sessions.StampOnce(dbc, session.ID, col, now); err != nil {
					return err
				}
			}
		}
		p.Apply(next)
		out = &SubmitResult{InstanceID: inst.ID, SubmittedAt: now, RedirectTo: p.Route()}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if isTask && s.sidePanel != nil {
		s.sidePanel.FinalizeBestEffort(context.WithoutCancel(ctx), pid, taskNumber)
	}
	s.log.Info("survey submitted", "participant_id", pid.String(), "phase", string(phase))
	return out, nil
}
