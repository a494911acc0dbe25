package services

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/data/repos"
	types "github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/domain"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/domain/survey"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/dbctx"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/logger"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/study/steps"
)

// SeedFile is the YAML document read by `studybridge seed`.
type SeedFile struct {
	Surveys      []SeedSurvey      `yaml:"surveys"`
	Tasks        []SeedTask        `yaml:"tasks"`
	Datasets     []SeedDataset     `yaml:"datasets"`
	Participants []SeedParticipant `yaml:"participants"`
}

type SeedSurvey struct {
	Phase       string         `yaml:"phase"`
	Title       string         `yaml:"title"`
	Description string         `yaml:"description"`
	Questions   []SeedQuestion `yaml:"questions"`
}

type SeedQuestion struct {
	Key      string       `yaml:"key"`
	Type     string       `yaml:"type"`
	Prompt   string       `yaml:"prompt"`
	Required *bool        `yaml:"required"`
	Min      *int         `yaml:"min"`
	Max      *int         `yaml:"max"`
	Step     *int         `yaml:"step"`
	MinLabel string       `yaml:"minLabel"`
	MaxLabel string       `yaml:"maxLabel"`
	Options  []SeedOption `yaml:"options"`
}

type SeedOption struct {
	Value string `yaml:"value"`
	Label string `yaml:"label"`
}

type SeedTask struct {
	Number      int    `yaml:"number"`
	Variant     string `yaml:"variant"`
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	Question    string `yaml:"question"`
}

type SeedDataset struct {
	Key         string   `yaml:"key"`
	Title       string   `yaml:"title"`
	Description string   `yaml:"description"`
	SourceURL   string   `yaml:"sourceUrl"`
	Tables      []string `yaml:"tables"`
}

type SeedParticipant struct {
	AccessCode       string `yaml:"accessCode"`
	Variant          string `yaml:"variant"`
	SidePanelEnabled bool   `yaml:"sidePanelEnabled"`
}

type SeedReport struct {
	Surveys      int `json:"surveys"`
	Tasks        int `json:"tasks"`
	Tables       int `json:"tables"`
	Participants int `json:"participants"`
}

func LoadSeedFile(path string) (*SeedFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return ParseSeed(raw)
}

func ParseSeed(raw []byte) (*SeedFile, error) {
	var f SeedFile
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode seed file: %w", err)
	}
	return &f, nil
}

type SeedService interface {
	// Apply upserts templates, task definitions and the dataset catalog.
	// Participants are only inserted; existing access codes are left alone.
	Apply(ctx context.Context, f *SeedFile) (*SeedReport, error)
}

type seedService struct {
	db           *gorm.DB
	log          *logger.Logger
	templates    repos.SurveyTemplateRepo
	tasks        repos.TaskDefinitionRepo
	datasets     repos.DatasetTableRepo
	participants repos.ParticipantRepo
}

func NewSeedService(
	db *gorm.DB,
	baseLog *logger.Logger,
	templates repos.SurveyTemplateRepo,
	tasks repos.TaskDefinitionRepo,
	datasets repos.DatasetTableRepo,
	participants repos.ParticipantRepo,
) SeedService {
	return &seedService{
		db:           db,
		log:          baseLog.With("service", "SeedService"),
		templates:    templates,
		tasks:        tasks,
		datasets:     datasets,
		participants: participants,
	}
}

func (s *seedService) Apply(ctx context.Context, f *SeedFile) (*SeedReport, error) {
	templates, err := buildTemplates(f.Surveys)
	if err != nil {
		return nil, err
	}
	tasks, err := buildTasks(f.Tasks)
	if err != nil {
		return nil, err
	}
	tables := buildCatalog(f.Datasets)

	report := &SeedReport{}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		for _, t := range templates {
			if _, err := s.templates.Replace(dbc, t); err != nil {
				return fmt.Errorf("replace %s template: %w", t.Phase, err)
			}
			report.Surveys++
		}
		if err := s.tasks.Upsert(dbc, tasks); err != nil {
			return fmt.Errorf("upsert task definitions: %w", err)
		}
		report.Tasks = len(tasks)
		if err := s.datasets.Upsert(dbc, tables); err != nil {
			return fmt.Errorf("upsert dataset catalog: %w", err)
		}
		report.Tables = len(tables)

		var fresh []*types.Participant
		for _, sp := range f.Participants {
			code := strings.TrimSpace(sp.AccessCode)
			if code == "" {
				return fmt.Errorf("participant without accessCode")
			}
			existing, err := s.participants.GetByAccessCode(dbc, code)
			if err != nil {
				return err
			}
			if existing != nil {
				continue
			}
			p := &types.Participant{AccessCode: code, AssignedVariant: sp.Variant, SidePanelEnabled: sp.SidePanelEnabled}
			p.Apply(steps.Initial())
			fresh = append(fresh, p)
		}
		if _, err := s.participants.Create(dbc, fresh); err != nil {
			return fmt.Errorf("create participants: %w", err)
		}
		report.Participants = len(fresh)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("seed applied",
		"surveys", report.Surveys,
		"tasks", report.Tasks,
		"tables", report.Tables,
		"participants", report.Participants,
	)
	return report, nil
}

func buildTemplates(in []SeedSurvey) ([]*types.SurveyTemplate, error) {
	out := make([]*types.SurveyTemplate, 0, len(in))
	for _, sv := range in {
		phase, err := steps.ParsePhase(sv.Phase)
		if err != nil {
			return nil, err
		}
		t := &types.SurveyTemplate{Phase: string(phase), Title: sv.Title, Description: sv.Description}
		keys := map[string]bool{}
		for i, q := range sv.Questions {
			qt := survey.QuestionType(strings.ToUpper(strings.TrimSpace(q.Type)))
			if !qt.Valid() {
				return nil, fmt.Errorf("%s question %q: unknown type %q", phase, q.Key, q.Type)
			}
			if q.Key == "" || keys[q.Key] {
				return nil, fmt.Errorf("%s question %d: missing or duplicate key %q", phase, i+1, q.Key)
			}
			keys[q.Key] = true
			isChoice := qt == survey.QuestionSingleChoice || qt == survey.QuestionMultiChoice
			if isChoice && len(q.Options) == 0 {
				return nil, fmt.Errorf("%s question %q: choice questions need options", phase, q.Key)
			}
			required := true
			if q.Required != nil {
				required = *q.Required
			}
			question := types.SurveyQuestion{
				Key:      q.Key,
				Position: i + 1,
				Type:     qt,
				Prompt:   q.Prompt,
				Required: required,
			}
			if qt == survey.QuestionScaleNRS {
				question.ScaleMin, question.ScaleMax, question.ScaleStep = q.Min, q.Max, q.Step
				question.ScaleMinLabel, question.ScaleMaxLabel = q.MinLabel, q.MaxLabel
				if lo, hi, step := question.Scale(); lo >= hi || step <= 0 {
					return nil, fmt.Errorf("%s question %q: invalid scale %d..%d step %d", phase, q.Key, lo, hi, step)
				}
			}
			for j, o := range q.Options {
				question.Options = append(question.Options, types.SurveyOption{Value: o.Value, Label: o.Label, Position: j + 1})
			}
			t.Questions = append(t.Questions, question)
		}
		out = append(out, t)
	}
	return out, nil
}

func buildTasks(in []SeedTask) ([]*types.TaskDefinition, error) {
	out := make([]*types.TaskDefinition, 0, len(in))
	for _, t := range in {
		if !steps.ValidTaskNumber(t.Number) {
			return nil, fmt.Errorf("task number %d out of range", t.Number)
		}
		out = append(out, &types.TaskDefinition{
			TaskNumber:  t.Number,
			Variant:     strings.TrimSpace(t.Variant),
			Title:       t.Title,
			Description: t.Description,
			Question:    t.Question,
		})
	}
	return out, nil
}

func buildCatalog(in []SeedDataset) []*types.DatasetTable {
	var out []*types.DatasetTable
	for _, d := range in {
		for _, table := range d.Tables {
			out = append(out, &types.DatasetTable{
				Table:        strings.ToLower(strings.TrimSpace(table)),
				DatasetKey:   d.Key,
				DatasetTitle: d.Title,
				Description:  d.Description,
				SourceURL:    d.SourceURL,
			})
		}
	}
	return out
}
