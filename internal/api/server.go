// Package api is the cross-process boundary between the popup and the
// daemon: a small loopback HTTP surface carrying the closed set of
// fire-and-forget messages, plus a state endpoint the popup may read.
// Senders never assume a listener is present; the client half of this
// package falls back to the shared store when the daemon is down.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"pyloadwatch/internal/badge"
	"pyloadwatch/internal/domain"
	"pyloadwatch/internal/notify"
	"pyloadwatch/internal/service"
	"pyloadwatch/internal/store"
)

// Server serves the daemon's control API.
type Server struct {
	downloads  *service.DownloadService
	badge      *badge.Manager
	dispatcher *notify.Dispatcher
	store      *store.Store
	onSettings func()
	logger     *slog.Logger
}

// NewServer creates the control API server. onSettings is invoked on the
// settings-changed message and is expected to rebuild the poll scheduler.
func NewServer(downloads *service.DownloadService, bm *badge.Manager, disp *notify.Dispatcher, st *store.Store, onSettings func(), logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		downloads:  downloads,
		badge:      bm,
		dispatcher: disp,
		store:      st,
		onSettings: onSettings,
		logger:     logger,
	}
}

// Router builds the gin handler.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	messages := router.Group("/api/messages")
	{
		messages.POST("/check", s.handleCheck)
		messages.POST("/download-added", s.handleDownloadAdded)
		messages.POST("/settings-changed", s.handleSettingsChanged)
		messages.POST("/notification-prefs-changed", s.handleNotificationPrefs)
		messages.POST("/badge-restore", s.handleBadgeRestore)
		messages.POST("/notify", s.handleNotify)
	}

	router.GET("/api/state", s.handleState)
	return router
}

// Run serves until ctx is canceled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Router()}

	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	s.logger.Info("control api listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// handleCheck triggers an immediate poll cycle.
func (s *Server) handleCheck(c *gin.Context) {
	go s.downloads.Check(context.Background())
	c.JSON(http.StatusAccepted, gin.H{"status": "checking"})
}

type downloadAddedMessage struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Notify bool   `json:"notify"`
}

// handleDownloadAdded pre-registers the new id in the ledger and optionally
// announces it, then re-polls.
func (s *Server) handleDownloadAdded(c *gin.Context) {
	var msg downloadAddedMessage
	if err := c.ShouldBindJSON(&msg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.downloads.RegisterAdded(msg.ID, msg.Name, msg.Notify)
	go s.downloads.Check(context.Background())
	c.JSON(http.StatusAccepted, gin.H{"status": "registered"})
}

// handleSettingsChanged rebuilds the scheduler with the new configuration.
func (s *Server) handleSettingsChanged(c *gin.Context) {
	if s.onSettings != nil {
		s.onSettings()
	}
	c.JSON(http.StatusOK, gin.H{"status": "reconfigured"})
}

// handleNotificationPrefs persists updated notification preferences.
func (s *Server) handleNotificationPrefs(c *gin.Context) {
	var prefs domain.NotificationPrefs
	if err := c.ShouldBindJSON(&prefs); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.store.SaveNotificationPrefs(prefs); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "saved"})
}

type badgeRestoreMessage struct {
	Count int `json:"count"`
}

// handleBadgeRestore re-applies a badge count.
func (s *Server) handleBadgeRestore(c *gin.Context) {
	var msg badgeRestoreMessage
	if err := c.ShouldBindJSON(&msg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.badge.Update(msg.Count)
	c.JSON(http.StatusOK, gin.H{"status": "restored"})
}

type notifyMessage struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

// handleNotify relays a caller-built notification.
func (s *Server) handleNotify(c *gin.Context) {
	var msg notifyMessage
	if err := c.ShouldBindJSON(&msg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.dispatcher.Custom(msg.Title, msg.Message)
	c.JSON(http.StatusAccepted, gin.H{"status": "sent"})
}

// stateResponse is the daemon's view served to the popup.
type stateResponse struct {
	Snapshot  domain.Snapshot `json:"snapshot"`
	LoggedIn  bool            `json:"loggedIn"`
	LastError string          `json:"lastError,omitempty"`
}

func (s *Server) handleState(c *gin.Context) {
	c.JSON(http.StatusOK, stateResponse{
		Snapshot:  s.downloads.Snapshot(),
		LoggedIn:  s.store.LoggedIn(),
		LastError: s.store.LastError(),
	})
}
