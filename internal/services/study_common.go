package services

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	types "github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/domain"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/apierr"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/ctxutil"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/study/steps"
)

// TokenIssuer signs the bearer credentials handed out at login.
type TokenIssuer interface {
	IssueParticipant(participantID uuid.UUID, accessCode string, sidePanelEnabled bool) (string, time.Time, error)
	IssueAdmin(adminID uuid.UUID, email string) (string, time.Time, error)
}

func utcNow() time.Time { return time.Now().UTC() }

// callerParticipant returns the authenticated participant id of ctx.
func callerParticipant(ctx context.Context) (uuid.UUID, error) {
	rd := ctxutil.GetRequestData(ctx)
	if !rd.IsParticipant() {
		return uuid.Nil, apierr.Unauthorized("unauthorized", "not authenticated")
	}
	return rd.ParticipantID, nil
}

// requireActive rejects unknown and withdrawn/invalidated participants.
func requireActive(p *types.Participant) error {
	if p == nil {
		return apierr.Unauthorized("participant_not_found", "participant not found")
	}
	if p.Status.Inactive() {
		return &apierr.Error{
			Status:     http.StatusForbidden,
			Code:       "participant_inactive",
			Err:        errParticipantInactive,
			RedirectTo: p.Route(),
		}
	}
	return nil
}

// requireStep is the gate every study endpoint passes before touching any
// other row.
func requireStep(p *types.Participant, want steps.Step) error {
	if err := requireActive(p); err != nil {
		return err
	}
	if p.CurrentStep != want {
		return apierr.WrongStep(p.Route())
	}
	return nil
}

// requireChatStep gates task endpoints. n <= 0 means the participant's
// current task.
func requireChatStep(p *types.Participant, n int) (int, error) {
	if err := requireActive(p); err != nil {
		return 0, err
	}
	if n <= 0 {
		if p.CurrentTaskNumber == nil {
			return 0, apierr.WrongStep(p.Route())
		}
		n = *p.CurrentTaskNumber
	}
	if !steps.ValidTaskNumber(n) {
		return 0, apierr.BadRequest("invalid_task_number", "task number must be between 1 and %d", steps.TaskCount)
	}
	want, _ := steps.ChatStep(n)
	if err := requireStep(p, want); err != nil {
		return 0, err
	}
	return n, nil
}

func stateUpdates(st steps.State) map[string]interface{} {
	var task interface{}
	if st.TaskNumber != nil {
		task = *st.TaskNumber
	}
	return map[string]interface{}{
		"status":              string(st.Status),
		"current_step":        string(st.Step),
		"current_task_number": task,
	}
}
