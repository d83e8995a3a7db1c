package consumer

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/danmuck/accord/internal/node"
	"github.com/danmuck/accord/internal/observability"
	"github.com/danmuck/accord/internal/protocol/frame"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

const maxLatestWait = 30 * time.Second

var startedAt = time.Now()

var _ node.Node = (*Service)(nil)

func (s *Service) NodeID() string {
	return "viewer@" + s.cfg.ListenAddr
}

func (s *Service) Kind() string {
	return "viewer"
}

type latestResponse struct {
	Sequence uint64      `json:"sequence"`
	Frame    frame.Frame `json:"frame"`
}

// HTTPRouter serves the held frame to browser views. GET /latest answers 204
// until the first frame arrives; with ?after=N&wait=D it long-polls for a
// frame newer than sequence N.
func (s *Service) HTTPRouter() *gin.Engine {
	r := observability.NewAdminRouter(s.Kind())
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(s.cfg.CorsOrigins),
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"uptime": time.Since(startedAt).String(),
			"node":   s.NodeID(),
		})
	})
	r.GET("/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.Snapshot())
	})
	r.GET("/latest", s.handleLatest)
	return r
}

func (s *Service) handleLatest(c *gin.Context) {
	waitRaw := c.Query("wait")
	if waitRaw == "" {
		f, seq, ok := s.latest.Load()
		if !ok {
			c.Status(http.StatusNoContent)
			return
		}
		c.JSON(http.StatusOK, latestResponse{Sequence: seq, Frame: f})
		return
	}

	wait, err := time.ParseDuration(waitRaw)
	if err != nil || wait <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid wait duration"})
		return
	}
	if wait > maxLatestWait {
		wait = maxLatestWait
	}
	var after uint64
	if raw := c.Query("after"); raw != "" {
		after, err = strconv.ParseUint(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid after sequence"})
			return
		}
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), wait)
	defer cancel()
	f, seq, err := s.latest.Wait(ctx, after)
	if err != nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, latestResponse{Sequence: seq, Frame: f})
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
