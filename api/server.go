package api

import (
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"dispatch.evalgo.org/config"
	"dispatch.evalgo.org/engine"
	"dispatch.evalgo.org/security"
	dhttp "dispatch.evalgo.org/http"
)

// NewServer builds the Echo instance exposing the dispatch engine's
// Producer/Consumer/Control/Introspection HTTP surface (spec §6), wired
// with the standard middleware stack and JWT issuance/authorization.
func NewServer(cfg *config.AllConfig, eng *engine.Engine) *echo.Echo {
	e := dhttp.NewEchoServer(dhttp.ServerConfig{
		Port:            cfg.Server.Port,
		Debug:           cfg.Server.Debug,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		AllowedOrigins:  []string{"*"},
	})
	e.HTTPErrorHandler = dhttp.CustomHTTPErrorHandler
	e.GET("/health", dhttp.HealthCheckHandlerWithDetails(cfg.Service.Name, cfg.Service.Version, func() map[string]interface{} {
		return map[string]interface{}{
			"queues":  len(eng.ListQueues()),
			"environment": cfg.Service.Environment,
		}
	}))

	jwtH := &JWTHandlers{JWT: security.NewJWTService(cfg.Auth.JWTSecret)}
	dispatchH := &DispatchHandlers{Engine: eng}
	SetupRoutes(e, jwtH, dispatchH, cfg.Auth)

	logrus.WithFields(logrus.Fields{
		"service": cfg.Service.Name,
		"port":    cfg.Server.Port,
	}).Info("http surface configured")

	return e
}
