package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/meetlink/internal/app/session"
	"github.com/dkeye/meetlink/internal/app/signaling"
	"github.com/dkeye/meetlink/internal/config"
	"github.com/dkeye/meetlink/internal/domain"
)

const RequestIDHeader = "X-Request-ID"

// Controller is the part of the session the control API drives.
type Controller interface {
	Status() session.Status
	Roster() domain.Roster
	Peers() []domain.PeerInfo
	ToggleMute() (bool, error)
	ToggleVideo() (bool, error)
	ToggleScreenShare(ctx context.Context) (bool, error)
	Call(peer domain.UserID) error
	Leave(ctx context.Context) error
}

func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

func SetupRouter(cfg *config.Config, ctrl Controller) *gin.Engine {
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	h := handlers{ctrl: ctrl}
	api := r.Group("/api")
	api.GET("/status", h.status)
	api.GET("/roster", h.roster)
	api.GET("/peers", h.peers)
	api.POST("/mute", h.mute)
	api.POST("/video", h.video)
	api.POST("/screenshare", h.screenShare)
	api.POST("/call/:peer", h.call)
	api.POST("/leave", h.leave)

	log.Info().Str("module", "adapters.http").Str("mode", cfg.Mode).Msg("router setup")
	return r
}

type handlers struct {
	ctrl Controller
}

func (h handlers) status(c *gin.Context) {
	c.JSON(http.StatusOK, h.ctrl.Status())
}

func (h handlers) roster(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"participants": h.ctrl.Roster().List()})
}

func (h handlers) peers(c *gin.Context) {
	peers := h.ctrl.Peers()
	if peers == nil {
		peers = []domain.PeerInfo{}
	}
	c.JSON(http.StatusOK, gin.H{"peers": peers})
}

func (h handlers) mute(c *gin.Context) {
	muted, err := h.ctrl.ToggleMute()
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"muted": muted})
}

func (h handlers) video(c *gin.Context) {
	off, err := h.ctrl.ToggleVideo()
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"video_off": off})
}

func (h handlers) screenShare(c *gin.Context) {
	sharing, err := h.ctrl.ToggleScreenShare(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"screen_sharing": sharing})
}

func (h handlers) call(c *gin.Context) {
	peer, err := domain.ParseUserID(c.Param("peer"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.ctrl.Call(peer); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"peer_id": peer})
}

func (h handlers) leave(c *gin.Context) {
	if err := h.ctrl.Leave(c.Request.Context()); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"left": true})
}

func fail(c *gin.Context, err error) {
	code := http.StatusInternalServerError
	var me *session.MediaError
	switch {
	case errors.As(err, &me):
		code = http.StatusUnprocessableEntity
	case errors.Is(err, session.ErrNotJoined),
		errors.Is(err, session.ErrLeft),
		errors.Is(err, signaling.ErrUnexpectedPhase):
		code = http.StatusConflict
	case errors.Is(err, signaling.ErrSelfSignal):
		code = http.StatusBadRequest
	}
	log.Warn().Str("module", "adapters.http").
		Str("request_id", c.GetString("request_id")).
		Str("path", c.FullPath()).
		Err(err).Msg("control request failed")
	c.JSON(code, gin.H{"error": err.Error()})
}
