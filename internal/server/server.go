package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mymmrac/telego"
	"github.com/rs/zerolog/log"

	"referral-bot/internal/config"
	"referral-bot/internal/storage"
)

// Server exposes the webhook endpoint Telegram delivers updates to, plus a
// couple of operational endpoints.
type Server struct {
	cfg     *config.Config
	store   storage.Store
	updates chan<- telego.Update
	router  *gin.Engine
}

func New(cfg *config.Config, store storage.Store, updates chan<- telego.Update) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		cfg:     cfg,
		store:   store,
		updates: updates,
		router:  router,
	}

	router.GET("/", s.handleIndex)
	router.GET("/health", s.handleHealth)
	router.POST("/webhook/:token", s.handleWebhook)

	return s
}

// Handler returns the underlying HTTP handler, mostly for tests.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) Run() error {
	addr := ":" + s.cfg.HTTPPort
	log.Info().Str("addr", addr).Msg("Starting HTTP server")
	return s.router.Run(addr)
}

func (s *Server) handleIndex(c *gin.Context) {
	counts, err := s.store.Counts()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"service":           "referral-bot",
		"status":            "running",
		"users":             counts.Users,
		"channels":          counts.Channels,
		"referral_codes":    counts.ReferralCodes,
		"pending_referrals": counts.PendingReferrals,
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleWebhook(c *gin.Context) {
	if c.Param("token") != s.cfg.WebhookSecret {
		log.Warn().Str("ip", c.ClientIP()).Msg("Webhook called with invalid token")
		c.JSON(http.StatusForbidden, gin.H{"error": "invalid token"})
		return
	}

	var update telego.Update
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed update"})
		return
	}

	select {
	case s.updates <- update:
		c.JSON(http.StatusOK, gin.H{"ok": true})
	default:
		log.Warn().Msg("Update queue full, dropping webhook update")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "queue full"})
	}
}
