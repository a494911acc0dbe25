package app

import (
	"gorm.io/gorm"

	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/data/repos"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/logger"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/services"
)

type Services struct {
	Participant services.ParticipantService
	Task        services.TaskService
	ChatLedger  services.ChatLedgerService
	SidePanel   services.SidePanelService
	Survey      services.SurveyService
	DataQuality services.DataQualityService
	Admin       services.AdminService
	Seed        services.SeedService

	// Set by the agent runtime only.
	AgentRun services.AgentRunService
}

func wireServices(db *gorm.DB, log *logger.Logger, r repos.Set, tokens services.TokenIssuer) Services {
	log.Info("Wiring services...")
	sidePanel := services.NewSidePanelService(db, log, r.Participant, r.TaskSession, r.ChatThread, r.SidePanelSpan, r.AgentMessage)
	ledger := services.NewChatLedgerService(db, log, r.Participant, r.TaskSession, r.ChatThread)
	return Services{
		Participant: services.NewParticipantService(db, log, r.Participant, r.TaskSession, r.AccessLog, tokens),
		Task:        services.NewTaskService(db, log, r.Participant, r.TaskSession, r.ChatThread, r.TaskDefinition, sidePanel),
		ChatLedger:  ledger,
		SidePanel:   sidePanel,
		Survey:      services.NewSurveyService(db, log, r.Participant, r.TaskSession, r.SurveyTemplate, r.SurveyInstance, r.SurveyAnswer, sidePanel),
		DataQuality: services.NewDataQualityService(db, log, r.DataQuality, r.DatasetTable, ledger),
		Admin:       services.NewAdminService(db, log, r.AdminUser, r.Participant, tokens),
		Seed:        services.NewSeedService(db, log, r.SurveyTemplate, r.TaskDefinition, r.DatasetTable, r.Participant),
	}
}
