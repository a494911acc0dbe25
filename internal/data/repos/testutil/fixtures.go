package testutil

import (
	"testing"
	"time"

	"gorm.io/gorm"

	types "github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/domain"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/domain/survey"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/study/steps"
)

func IntPtr(n int) *int { return &n }

// SeedParticipant creates a participant positioned at step. Task steps get the
// matching task number.
func SeedParticipant(tb testing.TB, tx *gorm.DB, accessCode string, step steps.Step) *types.Participant {
	tb.Helper()
	p := &types.Participant{
		AccessCode:      accessCode,
		Status:          steps.StatusStarted,
		CurrentStep:     step,
		AssignedVariant: "A",
	}
	switch step {
	case steps.Welcome:
		p.Status = steps.StatusCreated
	case steps.Done:
		p.Status = steps.StatusCompleted
	}
	if n, ok := step.TaskNumber(); ok {
		p.CurrentTaskNumber = IntPtr(n)
	}
	if p.Status != steps.StatusCreated {
		now := time.Now().UTC().Add(-time.Hour)
		p.StartedAt = &now
	}
	if err := tx.Create(p).Error; err != nil {
		tb.Fatalf("seed participant: %v", err)
	}
	return p
}

func SeedTaskSession(tb testing.TB, tx *gorm.DB, p *types.Participant, taskNumber int) *types.TaskSession {
	tb.Helper()
	s := &types.TaskSession{ParticipantID: p.ID, TaskNumber: taskNumber}
	if err := tx.Create(s).Error; err != nil {
		tb.Fatalf("seed task session: %v", err)
	}
	return s
}

// SeedTemplate creates a template for phase with one question of every type:
// nrs (0..10 step 2, required), single (required), multi (required) and
// comment (optional text).
func SeedTemplate(tb testing.TB, tx *gorm.DB, phase steps.Phase) *types.SurveyTemplate {
	tb.Helper()
	t := &types.SurveyTemplate{
		Phase: string(phase),
		Title: string(phase) + " survey",
		Questions: []types.SurveyQuestion{
			{Key: "nrs", Position: 1, Type: survey.QuestionScaleNRS, Prompt: "How confident are you?", Required: true,
				ScaleMin: IntPtr(0), ScaleMax: IntPtr(10), ScaleStep: IntPtr(2)},
			{Key: "single", Position: 2, Type: survey.QuestionSingleChoice, Prompt: "Pick one", Required: true,
				Options: []types.SurveyOption{{Value: "a", Label: "A", Position: 1}, {Value: "b", Label: "B", Position: 2}}},
			{Key: "multi", Position: 3, Type: survey.QuestionMultiChoice, Prompt: "Pick many", Required: true,
				Options: []types.SurveyOption{{Value: "x", Label: "X", Position: 1}, {Value: "y", Label: "Y", Position: 2}, {Value: "z", Label: "Z", Position: 3}}},
			{Key: "comment", Position: 4, Type: survey.QuestionText, Prompt: "Anything else?", Required: false},
		},
	}
	if err := tx.Create(t).Error; err != nil {
		tb.Fatalf("seed template: %v", err)
	}
	return t
}

// SeedAllTemplates creates a template for every survey phase.
func SeedAllTemplates(tb testing.TB, tx *gorm.DB) map[steps.Phase]*types.SurveyTemplate {
	tb.Helper()
	out := map[steps.Phase]*types.SurveyTemplate{}
	for _, p := range steps.Phases {
		out[p] = SeedTemplate(tb, tx, p)
	}
	return out
}

func SeedTaskDefinitions(tb testing.TB, tx *gorm.DB) {
	tb.Helper()
	for n := 1; n <= steps.TaskCount; n++ {
		d := &types.TaskDefinition{TaskNumber: n, Title: "Task", Question: "What happened?"}
		if err := tx.Create(d).Error; err != nil {
			tb.Fatalf("seed task definition: %v", err)
		}
	}
}

func SeedDatasetTables(tb testing.TB, tx *gorm.DB, rows ...*types.DatasetTable) {
	tb.Helper()
	for _, r := range rows {
		if err := tx.Create(r).Error; err != nil {
			tb.Fatalf("seed dataset table: %v", err)
		}
	}
}
