// Package health exposes the daemon's read-only HTTP surface: a liveness
// probe and a JSON status snapshot, mirroring the shape of internal/ipc's
// GetStatus command for callers that would rather curl than speak the Unix
// socket protocol.
package health

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/matiasvillaverde/trust-core/internal/ipc"
)

// StatusFunc produces a fresh status snapshot on every request.
type StatusFunc func() ipc.StatusReport

// Server is the health HTTP surface. It never accepts writes — every route
// here is a GET.
type Server struct {
	Router *gin.Engine
	status StatusFunc
}

// New builds a Server; status is called once per request, never cached.
func New(status StatusFunc) *Server {
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{Router: r, status: status}
	r.GET("/healthz", s.healthz)
	r.GET("/status", s.statusHandler)
	return s
}

func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) statusHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.status())
}

// Run starts the HTTP server and blocks until it errors or is shut down.
func (s *Server) Run(addr string) error {
	return s.Router.Run(addr)
}
