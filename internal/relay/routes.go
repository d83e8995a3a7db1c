package relay

import (
	"net/http"
	"time"

	"github.com/danmuck/accord/internal/node"
	"github.com/danmuck/accord/internal/observability"
	"github.com/gin-gonic/gin"
)

var startedAt = time.Now()

var _ node.Node = (*Service)(nil)

func (s *Service) NodeID() string {
	return "relay@" + s.cfg.ListenAddr
}

func (s *Service) Kind() string {
	return "relay"
}

// HTTPRouter exposes relay health and counters.
func (s *Service) HTTPRouter() *gin.Engine {
	r := observability.NewAdminRouter(s.Kind())
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"uptime": time.Since(startedAt).String(),
			"node":   s.NodeID(),
		})
	})
	r.GET("/ready", func(c *gin.Context) {
		st := s.Snapshot()
		status := http.StatusOK
		if !st.UpstreamConnected || st.DownstreamState != "established" {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"upstream_connected": st.UpstreamConnected,
			"downstream_state":   st.DownstreamState,
		})
	})
	r.GET("/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.Snapshot())
	})
	return r
}
