package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/http/response"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/apierr"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/logger"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/services"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/study/steps"
)

type StudyHandler struct {
	log          *logger.Logger
	participants services.ParticipantService
	tasks        services.TaskService
	surveys      services.SurveyService
}

func NewStudyHandler(
	log *logger.Logger,
	participants services.ParticipantService,
	tasks services.TaskService,
	surveys services.SurveyService,
) *StudyHandler {
	return &StudyHandler{
		log:          log.With("handler", "StudyHandler"),
		participants: participants,
		tasks:        tasks,
		surveys:      surveys,
	}
}

// POST /session/start
// body: { "accessCode": "P001" }
func (h *StudyHandler) StartSession(c *gin.Context) {
	var req struct {
		AccessCode string `json:"accessCode"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadBody(c, err)
		return
	}
	res, err := h.participants.StartSession(c.Request.Context(), services.SessionStartInput{
		AccessCode: req.AccessCode,
		ClientIP:   c.ClientIP(),
		UserAgent:  c.Request.UserAgent(),
	})
	if err != nil {
		response.Error(c, h.log, err)
		return
	}
	response.OK(c, gin.H{
		"token":            res.Token,
		"expiresAt":        res.ExpiresAt,
		"accessCode":       res.AccessCode,
		"redirectTo":       res.RedirectTo,
		"sidePanelEnabled": res.Participant.SidePanelEnabled,
	})
}

// GET /me
func (h *StudyHandler) Me(c *gin.Context) {
	me, err := h.participants.Me(c.Request.Context())
	if err != nil {
		response.Error(c, h.log, err)
		return
	}
	response.OK(c, gin.H{
		"participant":  me.Participant,
		"taskSessions": me.TaskSessions,
		"redirectTo":   me.RedirectTo,
	})
}

// POST /heartbeat
// The auth middleware has already refreshed lastActiveAt.
func (h *StudyHandler) Heartbeat(c *gin.Context) {
	response.OK(c, nil)
}

// GET /task/:n
func (h *StudyHandler) GetTask(c *gin.Context) {
	n, ok := taskNumberParam(c)
	if !ok {
		return
	}
	view, err := h.tasks.LoadTask(c.Request.Context(), n)
	if err != nil {
		response.Error(c, h.log, err)
		return
	}
	response.OK(c, gin.H{
		"taskNumber":       view.TaskNumber,
		"task":             view.Definition,
		"session":          view.Session,
		"activeThread":     view.ActiveThread,
		"sidePanelEnabled": view.SidePanelEnabled,
	})
}

// POST /task/:n/ready
func (h *StudyHandler) Ready(c *gin.Context) {
	n, ok := taskNumberParam(c)
	if !ok {
		return
	}
	res, err := h.tasks.Ready(c.Request.Context(), n)
	if err != nil {
		response.Error(c, h.log, err)
		return
	}
	response.OK(c, gin.H{"redirectTo": res.RedirectTo})
}

// GET /pre
func (h *StudyHandler) GetPreSurvey(c *gin.Context) { h.loadSurvey(c, steps.PhasePre) }

// POST /pre/submit
func (h *StudyHandler) SubmitPreSurvey(c *gin.Context) { h.submitSurvey(c, steps.PhasePre) }

// GET /final
func (h *StudyHandler) GetFinalSurvey(c *gin.Context) { h.loadSurvey(c, steps.PhaseFinal) }

// POST /final/submit
func (h *StudyHandler) SubmitFinalSurvey(c *gin.Context) { h.submitSurvey(c, steps.PhaseFinal) }

// GET /task/:n/post
func (h *StudyHandler) GetPostSurvey(c *gin.Context) {
	if phase, ok := postPhaseParam(c); ok {
		h.loadSurvey(c, phase)
	}
}

// POST /task/:n/post/submit
func (h *StudyHandler) SubmitPostSurvey(c *gin.Context) {
	if phase, ok := postPhaseParam(c); ok {
		h.submitSurvey(c, phase)
	}
}

func (h *StudyHandler) loadSurvey(c *gin.Context, phase steps.Phase) {
	view, err := h.surveys.Load(c.Request.Context(), phase)
	if err != nil {
		response.Error(c, h.log, err)
		return
	}
	response.OK(c, gin.H{
		"phase":      view.Phase,
		"taskNumber": view.TaskNumber,
		"template":   view.Template,
		"instance":   view.Instance,
	})
}

// body: { "answers": [{ "questionKey": "trust", "value": 7 }, ...] }
func (h *StudyHandler) submitSurvey(c *gin.Context, phase steps.Phase) {
	var req struct {
		Answers []services.AnswerInput `json:"answers"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadBody(c, err)
		return
	}
	res, err := h.surveys.Submit(c.Request.Context(), phase, req.Answers)
	if err != nil {
		response.Error(c, h.log, err)
		return
	}
	response.OK(c, gin.H{
		"instanceId":  res.InstanceID,
		"submittedAt": res.SubmittedAt,
		"redirectTo":  res.RedirectTo,
	})
}

func taskNumberParam(c *gin.Context) (int, bool) {
	n, err := strconv.Atoi(c.Param("n"))
	if err != nil || !steps.ValidTaskNumber(n) {
		response.Error(c, nil, apierr.BadRequest("invalid_task_number", "task number must be between 1 and %d", steps.TaskCount))
		return 0, false
	}
	return n, true
}

func postPhaseParam(c *gin.Context) (steps.Phase, bool) {
	n, ok := taskNumberParam(c)
	if !ok {
		return "", false
	}
	phase, err := steps.TaskPostPhase(n)
	if err != nil {
		response.Error(c, nil, apierr.New(http.StatusBadRequest, "invalid_task_number", err))
		return "", false
	}
	return phase, true
}
