package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"fimbiz-sync/config"
	"fimbiz-sync/internal/logger"
)

func NewRouter(cfg config.APIConfig, h *Handler, zaplog *zap.Logger) (*gin.Engine, error) {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.RequestLog(zaplog))

	rateLimit, err := RateLimit(cfg.RateLimit)
	if err != nil {
		return nil, err
	}

	erpAPI := r.Group("/api/v1/erp")
	erpAPI.Use(rateLimit)
	erpAPI.Use(SharedSecret(cfg.SharedSecret))
	{
		erpAPI.POST("/orders/status", h.NotifyOrderStatusChange)
		erpAPI.POST("/orders/update", h.NotifyOrderUpdate)
		erpAPI.POST("/orders/delete", h.NotifyOrderDelete)
		erpAPI.POST("/comments", h.NotifyCommentCreated)
		erpAPI.GET("/sessions", h.GetActiveSessions)
		erpAPI.POST("/sessions/control", h.ExecuteSessionControl)
	}

	return r, nil
}
