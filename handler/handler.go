package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"recorder-agent/dto"
	"recorder-agent/media"
	"recorder-agent/relay"
	"recorder-agent/service"
)

type ServiceDependencies struct {
	SessionService *service.SessionService
	Finalizer      *service.Finalizer
	Provider       media.DeviceProvider
	Coordinator    *relay.Coordinator
	DefaultConfig  dto.RecorderConfig
}

// Register mounts the recording control surface on the gin engine.
func Register(r *gin.Engine, deps ServiceDependencies) {
	r.GET("/devices", deps.listDevices)
	r.GET("/status", deps.status)
	r.POST("/recordings", deps.startRecording)
	r.POST("/recordings/pause", deps.pauseRecording)
	r.POST("/recordings/resume", deps.resumeRecording)
	r.POST("/recordings/stop", deps.stopRecording)
	r.POST("/recordings/restart", deps.restartRecording)
	r.POST("/recordings/:id/recover", deps.recoverRecording)
	r.POST("/recordings/:id/finalize", deps.finalizeRecording)
	r.DELETE("/recordings/:id", deps.discardRecording)
}

func (d ServiceDependencies) listDevices(c *gin.Context) {
	devices, err := d.Provider.EnumerateDevices(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"devices": devices})
}

func (d ServiceDependencies) status(c *gin.Context) {
	resp := gin.H{
		"state":    d.SessionService.State(),
		"snapshot": d.SessionService.Snapshot(),
	}
	if id, ok := d.SessionService.SessionID(); ok {
		resp["sessionId"] = id
	}
	if d.Coordinator != nil {
		active, snap := d.Coordinator.State(c.Request.Context())
		resp["relay"] = gin.H{"recording": active, "snapshot": snap}
	}
	c.JSON(http.StatusOK, resp)
}

func (d ServiceDependencies) startRecording(c *gin.Context) {
	cfg := d.DefaultConfig
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&cfg); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	id, err := d.SessionService.Start(c.Request.Context(), cfg)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, service.ErrSessionActive):
			status = http.StatusConflict
		case errors.Is(err, media.ErrPermissionDenied):
			status = http.StatusForbidden
		case errors.Is(err, media.ErrDeviceNotFound), errors.Is(err, media.ErrDeviceInUse):
			status = http.StatusUnprocessableEntity
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"sessionId": id})
}

func (d ServiceDependencies) pauseRecording(c *gin.Context) {
	d.SessionService.Pause(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"state": d.SessionService.State()})
}

func (d ServiceDependencies) resumeRecording(c *gin.Context) {
	d.SessionService.Resume(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"state": d.SessionService.State()})
}

func (d ServiceDependencies) stopRecording(c *gin.Context) {
	d.SessionService.Stop(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"state": d.SessionService.State()})
}

func (d ServiceDependencies) restartRecording(c *gin.Context) {
	id, err := d.SessionService.Restart(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"sessionId": id})
}

// recoverRecording re-opens a session that survived an agent restart and
// continues appending chunks after the last stored index.
func (d ServiceDependencies) recoverRecording(c *gin.Context) {
	sessionId, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return
	}

	cfg := d.DefaultConfig
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&cfg); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	if err := d.SessionService.Recover(c.Request.Context(), sessionId, cfg); err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, service.ErrSessionActive):
			status = http.StatusConflict
		case errors.Is(err, gorm.ErrRecordNotFound):
			status = http.StatusNotFound
		case errors.Is(err, media.ErrPermissionDenied):
			status = http.StatusForbidden
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessionId": sessionId, "state": d.SessionService.State()})
}

func (d ServiceDependencies) finalizeRecording(c *gin.Context) {
	sessionId, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return
	}

	videoId := uuid.New()
	if v := c.Query("videoId"); v != "" {
		videoId, err = uuid.Parse(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid video id"})
			return
		}
	}

	asset, err := d.Finalizer.Finalize(c.Request.Context(), sessionId, videoId, func(p dto.UploadProgress) {
		zerolog.Ctx(c.Request.Context()).Info().
			Str("phase", string(p.Phase)).
			Int("attempt", p.Attempt).
			Int64("total", p.Total).
			Msg("upload progress")
	})
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, service.ErrNoChunks) {
			status = http.StatusUnprocessableEntity
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"asset": asset})
}

func (d ServiceDependencies) discardRecording(c *gin.Context) {
	sessionId, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return
	}
	if err := d.SessionService.Discard(c.Request.Context(), sessionId); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}
