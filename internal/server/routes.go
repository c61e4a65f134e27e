package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/berfenger/sunspec2mqtt/internal/core/domain"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	e.HideBanner = true
	if s.httpLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	e.GET("/healthcheck", s.HealthCheckHandler)
	e.GET("/device", s.DeviceHandler)
	e.POST("/refresh", s.RefreshHandler)
	if s.metrics != nil {
		e.GET("/metrics", echo.WrapHandler(s.metrics))
	}

	return e
}

func (s *Server) HealthCheckHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.ActorHealthRequest{}, 10*time.Second).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
	}
	if response, ok := res.(domain.ActorHealthResponse); ok && response.Healthy {
		return c.String(http.StatusOK, "health_check: OK")
	}
	return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
}

func (s *Server) DeviceHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.GetDeviceRequest{}, 5*time.Second).Result()
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	response, ok := res.(domain.GetDeviceResponse)
	if !ok {
		return echo.NewHTTPError(http.StatusInternalServerError)
	}
	if response.HasResponseError() {
		if errors.Is(response.GetResponseError(), domain.ErrNoDevice) {
			return echo.NewHTTPError(http.StatusNotFound, response.GetResponseError().Error())
		}
		return echo.NewHTTPError(http.StatusServiceUnavailable, response.GetResponseError().Error())
	}
	return c.JSON(http.StatusOK, NewDeviceView(response.DeviceId, response.Device))
}

func (s *Server) RefreshHandler(c echo.Context) error {
	s.rootContext.Send(s.masterActor, domain.RefreshRequest{})
	return c.NoContent(http.StatusAccepted)
}
