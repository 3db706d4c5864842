// Package http exposes the local control surface used by the UI glue:
// per-participant connect/transmit/close actions, the device-change feed and
// the mirrored roster and channel state.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/Erikcwill/sussuros-foundry/internal/adapters/channel"
	"github.com/Erikcwill/sussuros-foundry/internal/adapters/directory"
	"github.com/Erikcwill/sussuros-foundry/internal/app"
	"github.com/Erikcwill/sussuros-foundry/internal/config"
	"github.com/Erikcwill/sussuros-foundry/internal/domain"
)

func SetupRouter(cfg *config.Config, mgr *app.Manager, dir *directory.Memory, mirror *channel.Mirror) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	log.Info().Str("module", "adapters.http").Str("transmit_mode", cfg.TransmitMode).Msg("router setup")

	api := r.Group("/api")

	// GET /api/peers — session table snapshot
	api.GET("/peers", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"peers": mgr.Peers()})
	})

	// POST /api/peers/:id/connect — open a whisper session
	api.POST("/peers/:id/connect", func(c *gin.Context) {
		id := domain.ParticipantID(c.Param("id"))
		if dir.IsLocal(id) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "cannot whisper to yourself"})
			return
		}
		if !dir.IsActive(id) {
			c.JSON(http.StatusConflict, gin.H{"error": "participant not active"})
			return
		}
		if err := mgr.Connect(id); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusAccepted)
	})

	// POST /api/peers/:id/close — tear the session down
	api.POST("/peers/:id/close", func(c *gin.Context) {
		id := domain.ParticipantID(c.Param("id"))
		if err := mgr.ClosePeer(id); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	})

	// POST /api/peers/:id/transmit — press-and-hold, push-to-talk mode only
	api.POST("/peers/:id/transmit", func(c *gin.Context) {
		if cfg.TransmitMode != config.TransmitPushToTalk {
			c.JSON(http.StatusConflict, gin.H{"error": "transmit requires push_to_talk mode"})
			return
		}
		var req struct {
			Enabled bool `json:"enabled"`
		}
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
			return
		}
		id := domain.ParticipantID(c.Param("id"))
		if err := mgr.SetOutboundEnabled(id, req.Enabled); err != nil {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	})

	// POST /api/peers/:id/toggle — toggle mode only
	api.POST("/peers/:id/toggle", func(c *gin.Context) {
		if cfg.TransmitMode != config.TransmitToggle {
			c.JSON(http.StatusConflict, gin.H{"error": "toggle requires toggle mode"})
			return
		}
		id := domain.ParticipantID(c.Param("id"))
		if err := mgr.ToggleOutbound(id); err != nil {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	})

	// POST /api/devices/changed — forwarded device-change notifications
	api.POST("/devices/changed", func(c *gin.Context) {
		var req struct {
			Keys []string `json:"keys"`
		}
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
			return
		}
		mgr.OnDeviceChange(req.Keys)
		c.Status(http.StatusNoContent)
	})

	// Mirrored always-on channel state.
	api.GET("/channel/state", func(c *gin.Context) {
		c.JSON(http.StatusOK, mirror.Snapshot())
	})
	api.PUT("/channel/state", func(c *gin.Context) {
		var st channel.State
		if err := c.BindJSON(&st); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
			return
		}
		mirror.Update(st)
		c.Status(http.StatusNoContent)
	})

	// Mirrored participant roster.
	api.GET("/directory", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"participants": dir.Active()})
	})
	api.PUT("/directory/:id", func(c *gin.Context) {
		var req struct {
			Name   string `json:"name"`
			Active bool   `json:"active"`
		}
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
			return
		}
		p, err := domain.NewParticipant(domain.ParticipantID(c.Param("id")), req.Name)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		p.Active = req.Active
		dir.Upsert(*p)
		c.Status(http.StatusNoContent)
	})
	api.DELETE("/directory/:id", func(c *gin.Context) {
		dir.Remove(domain.ParticipantID(c.Param("id")))
		c.Status(http.StatusNoContent)
	})

	return r
}
