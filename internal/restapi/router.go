// Package restapi wires the thin REST façade spec.md §6 fixes as a
// contract: Request CRUD, Message retrieval, and monitor aggregates, each
// delegating straight to internal/store with no business logic duplicated
// here. Grounded on the teacher's gin + gin-contrib/cors stack (both
// already in its go.mod for its own HTTP surfaces), generalized from a
// chat-session API to a control-plane monitor/CRUD API.
package restapi

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/iddsorg/idds/internal/store"
)

// Server wires gin handlers over a store.Store.
type Server struct {
	store store.Store
}

// NewServer constructs a Server. Call Server.Engine to obtain the
// *gin.Engine to run with http.ListenAndServe.
func NewServer(s store.Store) *Server {
	return &Server{store: s}
}

// Engine builds the gin router with every route this package exposes.
func (s *Server) Engine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.Default())

	r.GET("/healthz", s.handleHealthz)

	requests := r.Group("/requests")
	{
		requests.POST("", s.handleCreateRequest)
		requests.GET("/:id", s.handleGetRequest)
	}

	r.GET("/transforms/by-request/:id", s.handleListTransformsByRequest)
	r.GET("/messages/by-request/:id", s.handleListMessagesByRequest)
	r.GET("/monitor/summary", s.handleMonitorSummary)

	return r
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
