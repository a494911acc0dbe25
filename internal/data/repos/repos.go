package repos

import (
	"gorm.io/gorm"

	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/data/repos/agent"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/data/repos/audit"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/data/repos/auth"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/data/repos/study"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/data/repos/survey"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/logger"
)

type ParticipantRepo = study.ParticipantRepo
type AccessLogRepo = study.AccessLogRepo
type TaskDefinitionRepo = study.TaskDefinitionRepo
type TaskSessionRepo = study.TaskSessionRepo
type ChatThreadRepo = study.ChatThreadRepo
type SidePanelSpanRepo = study.SidePanelSpanRepo

type SurveyTemplateRepo = survey.TemplateRepo
type SurveyInstanceRepo = survey.InstanceRepo
type SurveyAnswerRepo = survey.AnswerRepo

type DataQualityLogRepo = audit.DataQualityLogRepo
type DatasetTableRepo = audit.DatasetTableRepo

type AgentMessageRepo = agent.MessageRepo

type AdminUserRepo = auth.AdminUserRepo

func NewParticipantRepo(db *gorm.DB, baseLog *logger.Logger) ParticipantRepo {
	return study.NewParticipantRepo(db, baseLog)
}
func NewAccessLogRepo(db *gorm.DB, baseLog *logger.Logger) AccessLogRepo {
	return study.NewAccessLogRepo(db, baseLog)
}
func NewTaskDefinitionRepo(db *gorm.DB, baseLog *logger.Logger) TaskDefinitionRepo {
	return study.NewTaskDefinitionRepo(db, baseLog)
}
func NewTaskSessionRepo(db *gorm.DB, baseLog *logger.Logger) TaskSessionRepo {
	return study.NewTaskSessionRepo(db, baseLog)
}
func NewChatThreadRepo(db *gorm.DB, baseLog *logger.Logger) ChatThreadRepo {
	return study.NewChatThreadRepo(db, baseLog)
}
func NewSidePanelSpanRepo(db *gorm.DB, baseLog *logger.Logger) SidePanelSpanRepo {
	return study.NewSidePanelSpanRepo(db, baseLog)
}

func NewSurveyTemplateRepo(db *gorm.DB, baseLog *logger.Logger) SurveyTemplateRepo {
	return survey.NewTemplateRepo(db, baseLog)
}
func NewSurveyInstanceRepo(db *gorm.DB, baseLog *logger.Logger) SurveyInstanceRepo {
	return survey.NewInstanceRepo(db, baseLog)
}
func NewSurveyAnswerRepo(db *gorm.DB, baseLog *logger.Logger) SurveyAnswerRepo {
	return survey.NewAnswerRepo(db, baseLog)
}

func NewDataQualityLogRepo(db *gorm.DB, baseLog *logger.Logger) DataQualityLogRepo {
	return audit.NewDataQualityLogRepo(db, baseLog)
}
func NewDatasetTableRepo(db *gorm.DB, baseLog *logger.Logger) DatasetTableRepo {
	return audit.NewDatasetTableRepo(db, baseLog)
}

func NewAgentMessageRepo(db *gorm.DB, baseLog *logger.Logger) AgentMessageRepo {
	return agent.NewMessageRepo(db, baseLog)
}

func NewAdminUserRepo(db *gorm.DB, baseLog *logger.Logger) AdminUserRepo {
	return auth.NewAdminUserRepo(db, baseLog)
}

// Set bundles every repo over one database handle.
type Set struct {
	Participant    ParticipantRepo
	AccessLog      AccessLogRepo
	TaskDefinition TaskDefinitionRepo
	TaskSession    TaskSessionRepo
	ChatThread     ChatThreadRepo
	SidePanelSpan  SidePanelSpanRepo
	SurveyTemplate SurveyTemplateRepo
	SurveyInstance SurveyInstanceRepo
	SurveyAnswer   SurveyAnswerRepo
	DataQuality    DataQualityLogRepo
	DatasetTable   DatasetTableRepo
	AgentMessage   AgentMessageRepo
	AdminUser      AdminUserRepo
}

func NewSet(db *gorm.DB, baseLog *logger.Logger) Set {
	return Set{
		Participant:    NewParticipantRepo(db, baseLog),
		AccessLog:      NewAccessLogRepo(db, baseLog),
		TaskDefinition: NewTaskDefinitionRepo(db, baseLog),
		TaskSession:    NewTaskSessionRepo(db, baseLog),
		ChatThread:     NewChatThreadRepo(db, baseLog),
		SidePanelSpan:  NewSidePanelSpanRepo(db, baseLog),
		SurveyTemplate: NewSurveyTemplateRepo(db, baseLog),
		SurveyInstance: NewSurveyInstanceRepo(db, baseLog),
		SurveyAnswer:   NewSurveyAnswerRepo(db, baseLog),
		DataQuality:    NewDataQualityLogRepo(db, baseLog),
		DatasetTable:   NewDatasetTableRepo(db, baseLog),
		AgentMessage:   NewAgentMessageRepo(db, baseLog),
		AdminUser:      NewAdminUserRepo(db, baseLog),
	}
}
