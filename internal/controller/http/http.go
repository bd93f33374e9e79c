package http

import (
	"edgeml/internal/inference"
	"edgeml/internal/manager"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"net/http"
)

// AcquisitionRequest switches the pipeline on or off
type AcquisitionRequest struct {
	Running *bool `json:"running" binding:"required"`
}

type controller struct {
	manager manager.Manager
}

func errorCode(err error) int {
	switch {
	case errors.Is(err, inference.ErrEngineNotReady):
		return http.StatusPreconditionFailed
	case errors.Is(err, manager.ErrNotRunning):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (ctl *controller) status(c *gin.Context) {
	c.JSON(http.StatusOK, ctl.manager.Status())
}

func (ctl *controller) channels(c *gin.Context) {
	if !ctl.manager.Ready() {
		c.JSON(http.StatusPreconditionFailed, gin.H{
			"err":      inference.ErrEngineNotReady.Error(),
			"channels": nil,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"err":      nil,
		"channels": ctl.manager.Status().Channels,
	})
}

func (ctl *controller) devices(c *gin.Context) {
	devs, err := ctl.manager.ListDev()
	if err != nil {
		c.JSON(errorCode(err), gin.H{
			"err":     err.Error(),
			"devices": nil,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"err":     nil,
		"devices": devs,
	})
}

func (ctl *controller) classify(c *gin.Context) {
	res, err := ctl.manager.Classify()
	if err != nil {
		c.JSON(errorCode(err), gin.H{
			"err": err.Error(),
			"msg": "classification failed",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"err":    nil,
		"result": res,
		"msg":    res.String(),
	})
}

func (ctl *controller) setAcquisition(c *gin.Context) {
	req := AcquisitionRequest{}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"err": err.Error(),
		})
		return
	}
	log.Infof("SetAcquisition: %v", *req.Running)
	var err error
	if *req.Running {
		err = ctl.manager.Start()
	} else {
		err = ctl.manager.Stop()
	}
	if err != nil {
		c.JSON(errorCode(err), gin.H{
			"err":    err.Error(),
			"status": ctl.manager.Status(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"err":    nil,
		"status": ctl.manager.Status(),
	})
}

// NewRouter installs the status API of m
func NewRouter(m manager.Manager) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	ctl := &controller{manager: m}
	v1 := router.Group("/api/v1")
	{
		v1.GET("/status", ctl.status)
		v1.GET("/channels", ctl.channels)
		v1.GET("/devices", ctl.devices)
		v1.POST("/classify", ctl.classify)
		v1.PUT("/acquisition", ctl.setAcquisition)
	}
	return router
}
