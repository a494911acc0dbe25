package domain

import (
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/domain/agent"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/domain/audit"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/domain/auth"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/domain/study"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/domain/survey"
)

type (
	Participant    = study.Participant
	TaskSession    = study.TaskSession
	ChatThread     = study.ChatThread
	SidePanelSpan  = study.SidePanelSpan
	AccessLog      = study.AccessLog
	TaskDefinition = study.TaskDefinition

	SurveyTemplate     = survey.Template
	SurveyQuestion     = survey.Question
	SurveyOption       = survey.Option
	SurveyInstance     = survey.Instance
	SurveyAnswer       = survey.Answer
	SurveyAnswerOption = survey.AnswerOption

	ThreadDataQualityLog = audit.ThreadDataQualityLog
	DatasetTable         = audit.DatasetTable

	AgentMessage = agent.Message

	AdminUser = auth.AdminUser
)

const (
	ThreadStatusActive = study.ThreadStatusActive
	ThreadStatusClosed = study.ThreadStatusClosed

	CloseReasonRestarted    = study.CloseReasonRestarted
	CloseReasonTaskFinished = study.CloseReasonTaskFinished
	CloseReasonAbandoned    = study.CloseReasonAbandoned
	CloseReasonError        = study.CloseReasonError

	AccessEventSessionStart = study.AccessEventSessionStart
	AccessEventReentry      = study.AccessEventReentry

	DQStatusOK           = audit.DQStatusOK
	DQStatusWarning      = audit.DQStatusWarning
	DQStatusNotEvaluated = audit.DQStatusNotEvaluated
	DQStatusUnknown      = audit.DQStatusUnknown

	RoleUser      = agent.RoleUser
	RoleAssistant = agent.RoleAssistant
	RoleTool      = agent.RoleTool
)

var (
	ValidCloseReason = study.ValidCloseReason
	SpanDurationMs   = study.SpanDurationMs
)

// Models lists every persisted model in migration order.
func Models() []any {
	return []any{
		&AdminUser{},
		&Participant{},
		&AccessLog{},
		&TaskDefinition{},
		&TaskSession{},
		&ChatThread{},
		&SidePanelSpan{},
		&SurveyTemplate{},
		&SurveyQuestion{},
		&SurveyOption{},
		&SurveyInstance{},
		&SurveyAnswer{},
		&SurveyAnswerOption{},
		&AgentMessage{},
		&ThreadDataQualityLog{},
		&DatasetTable{},
	}
}
