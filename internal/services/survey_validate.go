package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	types "github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/domain"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/domain/survey"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/apierr"
)

// AnswerInput is one submitted answer. The question is addressed by id or by
// key. Value must have the JSON type of the question: a number for
// SCALE_NRS, a string (option id or value) for SINGLE_CHOICE, an array of
// strings for MULTI_CHOICE and a string for TEXT.
type AnswerInput struct {
	QuestionID  string          `json:"questionId"`
	QuestionKey string          `json:"questionKey"`
	Value       json.RawMessage `json:"value"`
}

type jsonKind int

const (
	kindMissing jsonKind = iota
	kindNull
	kindString
	kindNumber
	kindBool
	kindArray
	kindObject
)

func (k jsonKind) String() string {
	switch k {
	case kindNull:
		return "null"
	case kindString:
		return "string"
	case kindNumber:
		return "number"
	case kindBool:
		return "boolean"
	case kindArray:
		return "array"
	case kindObject:
		return "object"
	}
	return "missing"
}

func kindOf(raw json.RawMessage) jsonKind {
	b := bytes.TrimSpace(raw)
	if len(b) == 0 {
		return kindMissing
	}
	switch b[0] {
	case 'n':
		return kindNull
	case '"':
		return kindString
	case 't', 'f':
		return kindBool
	case '[':
		return kindArray
	case '{':
		return kindObject
	}
	return kindNumber
}

// ValidateAnswers checks inputs against every question of tmpl and builds
// the rows to persist. The first violated constraint is returned as a 400.
func ValidateAnswers(tmpl *types.SurveyTemplate, instanceID uuid.UUID, inputs []AnswerInput, now time.Time) ([]*types.SurveyAnswer, []*types.SurveyAnswerOption, error) {
	questions := make([]*types.SurveyQuestion, 0, len(tmpl.Questions))
	byID := map[string]*types.SurveyQuestion{}
	byKey := map[string]*types.SurveyQuestion{}
	for i := range tmpl.Questions {
		q := &tmpl.Questions[i]
		questions = append(questions, q)
		byID[q.ID.String()] = q
		byKey[q.Key] = q
	}
	sort.SliceStable(questions, func(i, j int) bool { return questions[i].Position < questions[j].Position })

	given := map[uuid.UUID]json.RawMessage{}
	for _, in := range inputs {
		var q *types.SurveyQuestion
		if id := strings.TrimSpace(in.QuestionID); id != "" {
			q = byID[strings.ToLower(id)]
		} else if key := strings.TrimSpace(in.QuestionKey); key != "" {
			q = byKey[key]
		}
		if q == nil {
			return nil, nil, apierr.BadRequest("unknown_question", "answer references unknown question %q", firstNonEmpty(in.QuestionID, in.QuestionKey))
		}
		if _, dup := given[q.ID]; dup {
			return nil, nil, apierr.BadRequest("duplicate_answer", "question %q answered more than once", q.Key)
		}
		given[q.ID] = in.Value
	}

	var (
		answers    []*types.SurveyAnswer
		selections []*types.SurveyAnswerOption
	)
	for _, q := range questions {
		raw := given[q.ID]
		kind := kindOf(raw)
		if kind == kindMissing || kind == kindNull {
			if q.Required {
				return nil, nil, apierr.BadRequest("required_question_unanswered", "question %q is required", q.Key)
			}
			continue
		}
		ans := &types.SurveyAnswer{
			ID:         uuid.New(),
			InstanceID: instanceID,
			QuestionID: q.ID,
			Type:       string(q.Type),
			CreatedAt:  now,
		}
		switch q.Type {
		case survey.QuestionScaleNRS:
			if kind != kindNumber {
				return nil, nil, typeMismatch(q, "number", kind)
			}
			v, err := strconv.Atoi(string(bytes.TrimSpace(raw)))
			if err != nil {
				return nil, nil, apierr.BadRequest("invalid_answer", "question %q expects an integer", q.Key)
			}
			lo, hi, step := q.Scale()
			if v < lo || v > hi {
				return nil, nil, apierr.BadRequest("invalid_answer", "question %q expects a value between %d and %d", q.Key, lo, hi)
			}
			if (v-lo)%step != 0 {
				return nil, nil, apierr.BadRequest("invalid_answer", "question %q expects a multiple of %d from %d", q.Key, step, lo)
			}
			ans.NumberVal = &v

		case survey.QuestionSingleChoice:
			if kind != kindString {
				return nil, nil, typeMismatch(q, "string", kind)
			}
			var ref string
			if err := json.Unmarshal(raw, &ref); err != nil {
				return nil, nil, apierr.BadRequest("invalid_answer", "question %q: %v", q.Key, err)
			}
			opt := findOption(q, ref)
			if opt == nil {
				return nil, nil, apierr.BadRequest("invalid_option", "question %q has no option %q", q.Key, ref)
			}
			id := opt.ID
			ans.OptionID = &id

		case survey.QuestionMultiChoice:
			if kind != kindArray {
				return nil, nil, typeMismatch(q, "array", kind)
			}
			var refs []string
			if err := json.Unmarshal(raw, &refs); err != nil {
				return nil, nil, apierr.BadRequest("type_mismatch", "question %q expects an array of strings", q.Key)
			}
			if len(refs) == 0 {
				if q.Required {
					return nil, nil, apierr.BadRequest("required_question_unanswered", "question %q requires at least one selection", q.Key)
				}
				continue
			}
			seen := map[uuid.UUID]bool{}
			for _, ref := range refs {
				opt := findOption(q, ref)
				if opt == nil {
					return nil, nil, apierr.BadRequest("invalid_option", "question %q has no option %q", q.Key, ref)
				}
				if seen[opt.ID] {
					return nil, nil, apierr.BadRequest("duplicate_option", "question %q selects %q more than once", q.Key, ref)
				}
				seen[opt.ID] = true
				selections = append(selections, &types.SurveyAnswerOption{AnswerID: ans.ID, OptionID: opt.ID, CreatedAt: now})
			}

		case survey.QuestionText:
			if kind != kindString {
				return nil, nil, typeMismatch(q, "string", kind)
			}
			var text string
			if err := json.Unmarshal(raw, &text); err != nil {
				return nil, nil, apierr.BadRequest("invalid_answer", "question %q: %v", q.Key, err)
			}
			text = strings.TrimSpace(text)
			if text == "" {
				if q.Required {
					return nil, nil, apierr.BadRequest("required_question_unanswered", "question %q is required", q.Key)
				}
				continue
			}
			ans.TextVal = &text

		default:
			return nil, nil, apierr.Internal("unknown_question_type", fmt.Errorf("question %q has unknown type %q", q.Key, q.Type))
		}
		answers = append(answers, ans)
	}
	return answers, selections, nil
}

func typeMismatch(q *types.SurveyQuestion, want string, got jsonKind) error {
	return apierr.BadRequest("type_mismatch", "question %q expects a %s, got %s", q.Key, want, got)
}

// findOption matches ref against option ids first, then option values.
func findOption(q *types.SurveyQuestion, ref string) *types.SurveyOption {
	ref = strings.TrimSpace(ref)
	for i := range q.Options {
		if strings.EqualFold(q.Options[i].ID.String(), ref) {
			return &q.Options[i]
		}
	}
	for i := range q.Options {
		if q.Options[i].Value == ref {
			return &q.Options[i]
		}
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
