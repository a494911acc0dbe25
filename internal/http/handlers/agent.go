package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/agent/transcript"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/http/response"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/apierr"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/logger"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/services"
)

// AgentHandler is the agent runtime API. Its thread and run routes follow
// the shape the chat client already speaks.
type AgentHandler struct {
	log  *logger.Logger
	runs services.AgentRunService
}

func NewAgentHandler(log *logger.Logger, runs services.AgentRunService) *AgentHandler {
	return &AgentHandler{log: log.With("handler", "AgentHandler"), runs: runs}
}

type runRequest struct {
	Input struct {
		Messages []json.RawMessage `json:"messages"`
	} `json:"input"`
}

// POST /threads
func (h *AgentHandler) CreateThread(c *gin.Context) {
	id, err := h.runs.CreateThread(c.Request.Context())
	if err != nil {
		response.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"thread_id": id})
}

// GET /threads/:thread_id/state
func (h *AgentHandler) State(c *gin.Context) {
	st, err := h.runs.State(c.Request.Context(), c.Param("thread_id"))
	if err != nil {
		response.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"thread_id": st.ThreadID, "status": st.Status, "values": gin.H{"messages": st.Messages}})
}

// POST /threads/:thread_id/runs/wait
// body: { "input": { "messages": [{ "type": "human", "content": "..." }] } }
func (h *AgentHandler) RunWait(c *gin.Context) {
	var req runRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadBody(c, err)
		return
	}
	res, err := h.runs.RunTurn(c.Request.Context(), services.RunTurnInput{
		AgentThreadID: c.Param("thread_id"),
		Messages:      req.Input.Messages,
	})
	if err != nil {
		response.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"run_id":   res.RunID,
		"messages": res.Messages,
		"answer":   res.Answer,
	})
}

// POST /threads/:thread_id/runs/stream
// Emits `metadata` once, `values` with the full message list after every
// step, and `end`. Failures after the stream opened arrive as `error`.
func (h *AgentHandler) RunStream(c *gin.Context) {
	var req runRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadBody(c, err)
		return
	}
	threadID := c.Param("thread_id")
	ctx := c.Request.Context()

	st, err := h.runs.State(ctx, threadID)
	if err != nil {
		response.Error(c, h.log, err)
		return
	}
	incoming, err := transcript.Normalize(req.Input.Messages)
	if err != nil {
		response.Error(c, h.log, apierr.BadRequest("invalid_messages", "%v", err))
		return
	}
	messages := append(st.Messages, incoming...)

	streaming := false
	send := func(event string, data any) {
		c.SSEvent(event, data)
		c.Writer.Flush()
	}
	_, err = h.runs.RunTurn(ctx, services.RunTurnInput{
		AgentThreadID: threadID,
		Messages:      req.Input.Messages,
		OnStart: func(runID uuid.UUID) {
			streaming = true
			c.Header("Content-Type", "text/event-stream")
			c.Header("Cache-Control", "no-cache")
			c.Header("Connection", "keep-alive")
			c.Header("X-Accel-Buffering", "no")
			c.Status(http.StatusOK)
			send("metadata", gin.H{"run_id": runID, "thread_id": threadID})
			send("values", gin.H{"messages": messages})
		},
		OnStep: func(m transcript.Message) {
			messages = append(messages, m)
			send("values", gin.H{"messages": messages})
		},
	})
	if err != nil && !streaming {
		response.Error(c, h.log, err)
		return
	}
	if err != nil {
		h.log.Warn("agent stream failed", "agent_thread_id", threadID, "error", err)
		code := "internal_error"
		if ae, ok := apierr.As(err); ok {
			code = ae.Code
		}
		send("error", gin.H{"error": code})
	}
	send("end", nil)
}
