package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/http/response"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/logger"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/services"
)

// ChatHandler serves the thread ledger, side-panel events and the
// data-quality lookup.
type ChatHandler struct {
	log       *logger.Logger
	ledger    services.ChatLedgerService
	sidePanel services.SidePanelService
	quality   services.DataQualityService
}

func NewChatHandler(
	log *logger.Logger,
	ledger services.ChatLedgerService,
	sidePanel services.SidePanelService,
	quality services.DataQualityService,
) *ChatHandler {
	return &ChatHandler{
		log:       log.With("handler", "ChatHandler"),
		ledger:    ledger,
		sidePanel: sidePanel,
		quality:   quality,
	}
}

// POST /chat/thread/upsert
// body: { "langGraphThreadId": "...", "taskNumber": 2 }
func (h *ChatHandler) UpsertThread(c *gin.Context) {
	var req struct {
		ThreadID   string `json:"langGraphThreadId"`
		TaskNumber int    `json:"taskNumber"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadBody(c, err)
		return
	}
	res, err := h.ledger.EnsureThread(c.Request.Context(), services.EnsureThreadInput{
		AgentThreadID: req.ThreadID,
		TaskNumber:    req.TaskNumber,
	})
	if err != nil {
		response.Error(c, h.log, err)
		return
	}
	response.OK(c, gin.H{
		"thread":           res.Thread,
		"created":          res.Created,
		"chatRestartCount": res.ChatRestartCount,
	})
}

// POST /chat/thread/close
// body: { "langGraphThreadId": "...", "reason": "RESTARTED" }
func (h *ChatHandler) CloseThread(c *gin.Context) {
	var req struct {
		ThreadID string `json:"langGraphThreadId"`
		Reason   string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadBody(c, err)
		return
	}
	res, err := h.ledger.CloseThread(c.Request.Context(), services.CloseThreadInput{
		AgentThreadID: req.ThreadID,
		Reason:        req.Reason,
	})
	if err != nil {
		response.Error(c, h.log, err)
		return
	}
	response.OK(c, gin.H{"closed": res.Closed, "thread": res.Thread})
}

// POST /side-panel/event
// body: { "open": true, "langGraphThreadId": "...", "taskNumber": 1 }
func (h *ChatHandler) SidePanelEvent(c *gin.Context) {
	var req struct {
		Open       *bool  `json:"open"`
		ThreadID   string `json:"langGraphThreadId"`
		TaskNumber int    `json:"taskNumber"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadBody(c, err)
		return
	}
	if req.Open == nil {
		response.Error(c, h.log, errMissingOpen)
		return
	}
	res, err := h.sidePanel.Event(c.Request.Context(), services.SidePanelEventInput{
		Open:          *req.Open,
		AgentThreadID: req.ThreadID,
		TaskNumber:    req.TaskNumber,
	})
	if err != nil {
		response.Error(c, h.log, err)
		return
	}
	response.OK(c, gin.H{
		"accepted":   res.Accepted,
		"ignored":    res.Ignored,
		"spanId":     res.SpanID,
		"durationMs": res.DurationMs,
	})
}

// GET /chat/thread/dq/latest?threadId=...
func (h *ChatHandler) LatestDataQuality(c *gin.Context) {
	res, err := h.quality.Latest(c.Request.Context(), c.Query("threadId"))
	if err != nil {
		response.Error(c, h.log, err)
		return
	}
	response.OK(c, gin.H{
		"threadId":        res.ThreadID,
		"log":             res.Log,
		"datasets":        res.Datasets,
		"unmatchedTables": res.UnmatchedTables,
	})
}
