package restapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/iddsorg/idds/internal/model"
	"github.com/iddsorg/idds/internal/store"
)

type createRequestBody struct {
	Scope      string `json:"scope" binding:"required"`
	Name       string `json:"name" binding:"required"`
	Priority   int    `json:"priority"`
	WorkloadID string `json:"workload_id"`
}

func (s *Server) handleCreateRequest(c *gin.Context) {
	var body createRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	req := &model.Request{
		Scope:      body.Scope,
		Name:       body.Name,
		Priority:   body.Priority,
		WorkloadID: body.WorkloadID,
		Status:     model.RequestNew,
	}
	if err := s.store.Requests().Create(c.Request.Context(), req); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, req)
}

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func (s *Server) handleGetRequest(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	req, err := s.store.Requests().Get(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, req)
}

func (s *Server) handleListTransformsByRequest(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	transforms, err := s.store.Transforms().ListByRequest(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, transforms)
}

func (s *Server) handleListMessagesByRequest(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	messages, err := s.store.Messages().ListByRequest(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, messages)
}

// monitorSummary is a coarse aggregate view; a real monitor surface would
// bucket by month per spec.md §6, left as a documented simplification since
// the REST façade is out of scope for business logic (see DESIGN.md).
type monitorSummary struct {
	OpenRequests int `json:"open_requests"`
}

func (s *Server) handleMonitorSummary(c *gin.Context) {
	requests, err := s.store.Requests().List(c.Request.Context(), store.ListOptions{Limit: 0})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	open := 0
	for _, r := range requests {
		if !r.Status.IsTerminal() {
			open++
		}
	}
	c.JSON(http.StatusOK, monitorSummary{OpenRequests: open})
}
