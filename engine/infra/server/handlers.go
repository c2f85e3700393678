package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/paylane/concierge/engine/core"
)

// ChatRequest is the inbound chat payload.
type ChatRequest struct {
	Message  string         `json:"message" binding:"required"`
	UserID   string         `json:"user_id"`
	Metadata map[string]any `json:"metadata"`
}

func (s *Server) handleChat(c *gin.Context) {
	var request ChatRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		respondProblem(c, http.StatusUnprocessableEntity,
			core.CodeInvalidInput, "request payload failed validation", err.Error())
		return
	}

	envelope := core.NewRequestEnvelope(
		request.Message, request.UserID, request.Metadata, c.GetString(correlationIDKey))
	response, err := s.deps.Orchestrator.Handle(c.Request.Context(), envelope)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleTicket(c *gin.Context) {
	view, ok := s.deps.Support.TicketView(c.Param("id"))
	if !ok {
		respondProblem(c, http.StatusNotFound, "not_found", "ticket not found", "")
		return
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) handleUserTickets(c *gin.Context) {
	views := s.deps.Support.ListByUser(c.Param("id"))
	c.JSON(http.StatusOK, gin.H{"tickets": views})
}

func (s *Server) handleHandoff(c *gin.Context) {
	record, ok := s.deps.Handoff.Lookup(c.Param("token"))
	if !ok {
		respondProblem(c, http.StatusNotFound,
			core.CodeHandoffNotFound, "handoff not found", "")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token":      record.Token,
		"status":     string(record.Status),
		"source":     record.Source,
		"ticket_id":  record.TicketID,
		"created_at": record.CreatedAt.UTC().Format(time.RFC3339),
		"expires_at": record.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleDiagnostics(c *gin.Context) {
	if !s.deps.Config.Guardrails.DiagnosticsEnabled {
		respondProblem(c, http.StatusNotFound, "not_found", "diagnostics disabled", "")
		return
	}
	report, err := s.deps.Guardrails.Diagnostics(c.Request.Context(), c.Query("q"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// respondError maps a core error onto the problem shape. Wrapped provider
// errors are never serialized.
func respondError(c *gin.Context, err error) {
	var coreErr *core.Error
	if !errors.As(err, &coreErr) {
		respondProblem(c, http.StatusInternalServerError,
			core.CodeInternal, "internal error", "")
		return
	}
	status := http.StatusInternalServerError
	switch coreErr.Code {
	case core.CodeInvalidInput:
		status = http.StatusUnprocessableEntity
	case core.CodeHandoffNotFound:
		status = http.StatusNotFound
	case core.CodeHandoffExpired:
		status = http.StatusGone
	case core.CodeProviderUnavailable:
		status = http.StatusServiceUnavailable
	}
	respondProblem(c, status, coreErr.Code, coreErr.Message, coreErr.Details)
}

func respondProblem(c *gin.Context, status int, code, message, details string) {
	problem := gin.H{"code": code, "message": message}
	if details != "" {
		problem["details"] = details
	}
	c.JSON(status, gin.H{"error": problem})
}
