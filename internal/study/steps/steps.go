// Package steps holds the participant progression: the fixed step sequence,
// the transitions between steps and the canonical route of every step.
package steps

import (
	"fmt"
	"strings"
)

type Step string

const (
	Welcome         Step = "WELCOME"
	PreSurvey       Step = "PRE_SURVEY"
	Task1Chat       Step = "TASK1_CHAT"
	Task1PostSurvey Step = "TASK1_POST_SURVEY"
	Task2Chat       Step = "TASK2_CHAT"
	Task2PostSurvey Step = "TASK2_POST_SURVEY"
	Task3Chat       Step = "TASK3_CHAT"
	Task3PostSurvey Step = "TASK3_POST_SURVEY"
	FinalSurvey     Step = "FINAL_SURVEY"
	Done            Step = "DONE"
)

// TaskCount is the number of chat tasks every participant runs through.
const TaskCount = 3

// Order is the progression, first to last.
var Order = []Step{
	Welcome,
	PreSurvey,
	Task1Chat, Task1PostSurvey,
	Task2Chat, Task2PostSurvey,
	Task3Chat, Task3PostSurvey,
	FinalSurvey,
	Done,
}

var chatSteps = [TaskCount]Step{Task1Chat, Task2Chat, Task3Chat}
var postSteps = [TaskCount]Step{Task1PostSurvey, Task2PostSurvey, Task3PostSurvey}

func ParseStep(raw string) (Step, error) {
	s := Step(strings.ToUpper(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("unknown step %q", raw)
	}
	return s, nil
}

func (s Step) Valid() bool {
	for _, o := range Order {
		if o == s {
			return true
		}
	}
	return false
}

func (s Step) String() string { return string(s) }

// Index is the position of s in Order, or -1.
func (s Step) Index() int {
	for i, o := range Order {
		if o == s {
			return i
		}
	}
	return -1
}

// TaskNumber returns n for TASKn_CHAT and TASKn_POST_SURVEY.
func (s Step) TaskNumber() (int, bool) {
	for i := 0; i < TaskCount; i++ {
		if chatSteps[i] == s || postSteps[i] == s {
			return i + 1, true
		}
	}
	return 0, false
}

func (s Step) IsChat() bool {
	for _, c := range chatSteps {
		if c == s {
			return true
		}
	}
	return false
}

func (s Step) IsPostSurvey() bool {
	for _, c := range postSteps {
		if c == s {
			return true
		}
	}
	return false
}

func ValidTaskNumber(n int) bool { return n >= 1 && n <= TaskCount }

func ChatStep(taskNumber int) (Step, error) {
	if !ValidTaskNumber(taskNumber) {
		return "", fmt.Errorf("task number %d out of range", taskNumber)
	}
	return chatSteps[taskNumber-1], nil
}

func PostSurveyStep(taskNumber int) (Step, error) {
	if !ValidTaskNumber(taskNumber) {
		return "", fmt.Errorf("task number %d out of range", taskNumber)
	}
	return postSteps[taskNumber-1], nil
}

// Phase identifies one survey instance slot of a participant.
type Phase string

const (
	PhasePre       Phase = "PRE"
	PhaseTask1Post Phase = "TASK1_POST"
	PhaseTask2Post Phase = "TASK2_POST"
	PhaseTask3Post Phase = "TASK3_POST"
	PhaseFinal     Phase = "FINAL"
)

var Phases = []Phase{PhasePre, PhaseTask1Post, PhaseTask2Post, PhaseTask3Post, PhaseFinal}

func ParsePhase(raw string) (Phase, error) {
	p := Phase(strings.ToUpper(strings.TrimSpace(raw)))
	for _, known := range Phases {
		if known == p {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown survey phase %q", raw)
}

func TaskPostPhase(taskNumber int) (Phase, error) {
	switch taskNumber {
	case 1:
		return PhaseTask1Post, nil
	case 2:
		return PhaseTask2Post, nil
	case 3:
		return PhaseTask3Post, nil
	}
	return "", fmt.Errorf("task number %d out of range", taskNumber)
}

// Step is the step during which the phase's survey is answered.
func (p Phase) Step() Step {
	switch p {
	case PhasePre:
		return PreSurvey
	case PhaseTask1Post:
		return Task1PostSurvey
	case PhaseTask2Post:
		return Task2PostSurvey
	case PhaseTask3Post:
		return Task3PostSurvey
	case PhaseFinal:
		return FinalSurvey
	}
	return ""
}

// TaskNumber returns n for TASKn_POST phases.
func (p Phase) TaskNumber() (int, bool) {
	return p.Step().TaskNumber()
}

// SurveyPhase maps a survey step to its phase.
func (s Step) SurveyPhase() (Phase, bool) {
	for _, p := range Phases {
		if p.Step() == s {
			return p, true
		}
	}
	return "", false
}

type Status string

const (
	StatusCreated     Status = "CREATED"
	StatusStarted     Status = "STARTED"
	StatusCompleted   Status = "COMPLETED"
	StatusWithdrawn   Status = "WITHDRAWN"
	StatusInvalidated Status = "INVALIDATED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusCreated, StatusStarted, StatusCompleted, StatusWithdrawn, StatusInvalidated:
		return true
	}
	return false
}

// Terminal statuses never transition again.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusWithdrawn || s == StatusInvalidated
}

// Inactive statuses lock the participant out of the study API.
func (s Status) Inactive() bool {
	return s == StatusWithdrawn || s == StatusInvalidated
}
