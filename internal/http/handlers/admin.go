package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/http/response"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/logger"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/services"
)

type AdminHandler struct {
	log   *logger.Logger
	admin services.AdminService
}

func NewAdminHandler(log *logger.Logger, admin services.AdminService) *AdminHandler {
	return &AdminHandler{log: log.With("handler", "AdminHandler"), admin: admin}
}

// POST /login
// body: { "email": "...", "password": "..." }
func (h *AdminHandler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadBody(c, err)
		return
	}
	res, err := h.admin.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		response.Error(c, h.log, err)
		return
	}
	response.OK(c, gin.H{"token": res.Token, "expiresAt": res.ExpiresAt, "admin": res.Admin})
}

// POST /participants
// body: { "count": 10, "variants": ["A","B"], "sidePanelEnabled": true }
// or    { "accessCodes": ["P001","P002"] }
func (h *AdminHandler) Provision(c *gin.Context) {
	var req services.ProvisionInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadBody(c, err)
		return
	}
	created, err := h.admin.ProvisionParticipants(c.Request.Context(), req)
	if err != nil {
		response.Error(c, h.log, err)
		return
	}
	response.Status(c, http.StatusCreated, gin.H{"participants": created})
}

// GET /participants?limit=100&offset=0
func (h *AdminHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	list, err := h.admin.ListParticipants(c.Request.Context(), limit, offset)
	if err != nil {
		response.Error(c, h.log, err)
		return
	}
	response.OK(c, gin.H{"participants": list})
}

// POST /participants/:id/withdraw
func (h *AdminHandler) Withdraw(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	p, err := h.admin.Withdraw(c.Request.Context(), id)
	if err != nil {
		response.Error(c, h.log, err)
		return
	}
	response.OK(c, gin.H{"participant": p})
}

// POST /participants/:id/invalidate
func (h *AdminHandler) Invalidate(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	p, err := h.admin.Invalidate(c.Request.Context(), id)
	if err != nil {
		response.Error(c, h.log, err)
		return
	}
	response.OK(c, gin.H{"participant": p})
}

func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.Error(c, nil, errInvalidID)
		return uuid.Nil, false
	}
	return id, true
}
