// Package server exposes the assistant over HTTP for the web UI.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/kubewise/kubewise/pkg/api"
	"github.com/kubewise/kubewise/pkg/config"
	"github.com/kubewise/kubewise/pkg/conversation"
	"github.com/kubewise/kubewise/pkg/environment"
	"github.com/kubewise/kubewise/pkg/model/provider"
	"github.com/kubewise/kubewise/pkg/runtime"
)

type Server struct {
	e   *echo.Echo
	rt  *runtime.Runtime
	cfg *config.Config
	env environment.Provider

	// busy guards against a second chat turn starting while one is still
	// streaming; the conversation history is strictly sequential.
	busy atomic.Bool
}

func New(rt *runtime.Runtime, cfg *config.Config, env environment.Provider) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.CORS())
	e.Use(middleware.RequestLogger())

	s := &Server{
		e:   e,
		rt:  rt,
		cfg: cfg,
		env: env,
	}

	group := e.Group("/api")

	// Run one conversation turn, streaming events
	group.POST("/chat", s.chat)
	// Deliver the confirmation decision for a pending mutation
	group.POST("/chat/resume", s.resume)
	// Clear the conversation history
	group.POST("/chat/reset", s.reset)
	// Get the visible conversation history
	group.GET("/chat/history", s.history)
	// Update the UI context the assistant sees
	group.POST("/context", s.updateContext)

	// List saved model providers
	group.GET("/providers", s.getProviders)
	// Save a model provider and make it active
	group.POST("/providers", s.saveProvider)
	// Switch to an already saved provider
	group.POST("/providers/active", s.setActiveProvider)
	// Delete a saved model provider
	group.DELETE("/providers", s.deleteProvider)

	// Health check endpoint
	group.GET("/ping", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	return s
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := http.Server{
		Handler: s.e,
	}

	if err := srv.Serve(ln); err != nil && ctx.Err() == nil {
		slog.Error("Failed to start server", "error", err)
		return err
	}

	return nil
}

func (s *Server) chat(c echo.Context) error {
	var req api.ChatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
	}
	if req.Message == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message cannot be empty")
	}

	if !s.busy.CompareAndSwap(false, true) {
		return echo.NewHTTPError(http.StatusConflict, "a conversation turn is already in progress")
	}
	defer s.busy.Store(false)

	events := s.rt.UserSend(c.Request().Context(), req.Message)

	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().WriteHeader(http.StatusOK)
	for event := range events {
		data, err := json.Marshal(event)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("failed to marshal event: %v", err))
		}
		fmt.Fprintf(c.Response(), "data: %s\n\n", string(data))
		c.Response().Flush()
	}

	return nil
}

func (s *Server) resume(c echo.Context) error {
	var req api.ResumeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
	}

	resumeType := runtime.ResumeType(req.Type)
	if !runtime.IsValidResumeType(resumeType) {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid resume type %q", req.Type))
	}

	delivered := s.rt.Resume(c.Request().Context(), runtime.Resume{
		Type:       resumeType,
		EditedBody: req.EditedBody,
	})
	if !delivered {
		return echo.NewHTTPError(http.StatusConflict, "no confirmation is pending")
	}

	return c.JSON(http.StatusOK, map[string]string{"message": "confirmation delivered"})
}

func (s *Server) reset(c echo.Context) error {
	s.rt.Reset()
	return c.JSON(http.StatusOK, map[string]string{"message": "conversation reset"})
}

func (s *Server) history(c echo.Context) error {
	return c.JSON(http.StatusOK, s.rt.Store().VisibleHistory())
}

func (s *Server) updateContext(c echo.Context) error {
	var req api.ContextRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
	}

	store := s.rt.Store()
	if req.Cluster != "" {
		store.AddContext("cluster", req.Cluster)
	}
	if req.Event != nil {
		event := conversation.ViewEvent{
			Type:     req.Event.Type,
			Title:    req.Event.Title,
			Resource: req.Event.Resource,
			Items:    req.Event.Items,
		}
		store.AddContext("view", conversation.DescribeView(event, req.Cluster, convertHealth(req.Health)))
	}

	return c.JSON(http.StatusOK, map[string]string{"message": "context updated"})
}

func convertHealth(health map[string]api.ClusterHealth) map[string]conversation.ClusterHealth {
	if len(health) == 0 {
		return nil
	}
	out := make(map[string]conversation.ClusterHealth, len(health))
	for cluster, h := range health {
		converted := conversation.ClusterHealth{Warnings: h.Warnings}
		if h.Error != "" {
			converted.Err = errors.New(h.Error)
		}
		out[cluster] = converted
	}
	return out
}

func (s *Server) getProviders(c echo.Context) error {
	active := s.cfg.ActiveProvider()

	providers := []api.ProviderInfo{}
	for _, p := range s.cfg.List() {
		providers = append(providers, api.ProviderInfo{
			ProviderID:  p.ProviderID,
			DisplayName: p.DisplayName,
			Model:       p.StringConfig()["model"],
			IsDefault:   p.IsDefault,
			Active:      active != nil && p.ProviderID == active.ProviderID,
		})
	}

	return c.JSON(http.StatusOK, providers)
}

func (s *Server) saveProvider(c echo.Context) error {
	var req api.SaveProviderRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
	}

	if err := s.cfg.SetProvider(req.ProviderID, req.Config, req.MakeDefault, req.DisplayName); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("failed to save provider: %v", err))
	}

	p, err := provider.New(c.Request().Context(), s.cfg.ActiveProvider(), s.env)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid provider configuration: %v", err))
	}

	if err := s.cfg.Save(); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("failed to persist provider: %v", err))
	}

	s.rt.SetProvider(p)
	return c.JSON(http.StatusOK, map[string]string{"message": "provider saved", "id": p.ID()})
}

func (s *Server) setActiveProvider(c echo.Context) error {
	var req api.ActivateProviderRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
	}

	if err := s.cfg.SetActive(req.ProviderID); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}

	p, err := provider.New(c.Request().Context(), s.cfg.ActiveProvider(), s.env)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid provider configuration: %v", err))
	}

	if err := s.cfg.Save(); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("failed to persist active provider: %v", err))
	}

	s.rt.SetProvider(p)
	return c.JSON(http.StatusOK, map[string]string{"message": "provider activated", "id": p.ID()})
}

func (s *Server) deleteProvider(c echo.Context) error {
	var req api.DeleteProviderRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
	}

	if !s.cfg.DeleteProvider(req.ProviderID, req.Config) {
		return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("provider %q not found", req.ProviderID))
	}
	if err := s.cfg.Save(); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("failed to persist provider removal: %v", err))
	}

	if active := s.cfg.ActiveProvider(); active != nil {
		p, err := provider.New(c.Request().Context(), active, s.env)
		if err != nil {
			slog.Error("Failed to build replacement provider", "provider", active.ProviderID, "error", err)
			s.rt.SetProvider(nil)
		} else {
			s.rt.SetProvider(p)
		}
	} else {
		s.rt.SetProvider(nil)
	}

	return c.JSON(http.StatusOK, map[string]string{"message": "provider deleted"})
}
