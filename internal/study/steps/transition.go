package steps

import (
	"errors"
	"fmt"
)

var ErrInvalidTransition = errors.New("invalid step transition")

// State is the slice of a participant that the progression depends on.
type State struct {
	Status     Status
	Step       Step
	TaskNumber *int
}

func Initial() State {
	return State{Status: StatusCreated, Step: Welcome}
}

// Validate checks the combination of status, step and task number.
func (st State) Validate() error {
	if !st.Status.Valid() {
		return fmt.Errorf("unknown status %q", st.Status)
	}
	if !st.Step.Valid() {
		return fmt.Errorf("unknown step %q", st.Step)
	}
	n, isTask := st.Step.TaskNumber()
	switch {
	case isTask && st.TaskNumber == nil:
		return fmt.Errorf("step %s requires a task number", st.Step)
	case isTask && *st.TaskNumber != n:
		return fmt.Errorf("step %s does not match task number %d", st.Step, *st.TaskNumber)
	case !isTask && st.TaskNumber != nil:
		return fmt.Errorf("step %s must not carry a task number", st.Step)
	}
	switch st.Status {
	case StatusCreated:
		if st.Step != Welcome {
			return fmt.Errorf("status %s must be at %s", st.Status, Welcome)
		}
	case StatusStarted:
		if st.Step == Welcome || st.Step == Done {
			return fmt.Errorf("status %s cannot be at %s", st.Status, st.Step)
		}
	case StatusCompleted:
		if st.Step != Done {
			return fmt.Errorf("status %s must be at %s", st.Status, Done)
		}
	}
	return nil
}

type Trigger string

const (
	TriggerSessionStart Trigger = "SESSION_START"
	TriggerReady        Trigger = "READY_TO_ANSWER"
	TriggerSurveySubmit Trigger = "SURVEY_SUBMIT"
)

// Transition applies trigger to st. Transitions only move forward by one step.
func Transition(st State, trigger Trigger) (State, error) {
	if err := st.Validate(); err != nil {
		return st, fmt.Errorf("%w: %v", ErrInvalidTransition, err)
	}
	if st.Status.Terminal() {
		return st, fmt.Errorf("%w: participant is %s", ErrInvalidTransition, st.Status)
	}
	switch trigger {
	case TriggerSessionStart:
		if st.Step != Welcome {
			break
		}
		return State{Status: StatusStarted, Step: PreSurvey}, nil

	case TriggerReady:
		if !st.Step.IsChat() {
			break
		}
		n := *st.TaskNumber
		next, _ := PostSurveyStep(n)
		return State{Status: StatusStarted, Step: next, TaskNumber: intPtr(n)}, nil

	case TriggerSurveySubmit:
		switch {
		case st.Step == PreSurvey:
			return State{Status: StatusStarted, Step: Task1Chat, TaskNumber: intPtr(1)}, nil
		case st.Step.IsPostSurvey():
			n := *st.TaskNumber
			if n < TaskCount {
				next, _ := ChatStep(n + 1)
				return State{Status: StatusStarted, Step: next, TaskNumber: intPtr(n + 1)}, nil
			}
			return State{Status: StatusStarted, Step: FinalSurvey}, nil
		case st.Step == FinalSurvey:
			return State{Status: StatusCompleted, Step: Done}, nil
		}
	}
	return st, fmt.Errorf("%w: %s from %s", ErrInvalidTransition, trigger, st.Step)
}

func intPtr(n int) *int { return &n }
