package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"lorequiz-service/internal/app"
	"lorequiz-service/internal/auth"
	"lorequiz-service/internal/domain"
)

const identityKey = "identity"

// RouterDeps bundles what the HTTP surface serves.
type RouterDeps struct {
	WS       *WSHandler
	Ranker   *app.Ranker
	Profiles *app.ProfileService
	Pending  *app.PendingResultQueue
	Verifier IdentityVerifier
	Logger   *zap.Logger
}

// NewRouter mounts the websocket endpoint, the REST API and the health check.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(deps.Logger))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/ws", gin.WrapF(deps.WS.ServeWS))

	h := &apiHandler{ranker: deps.Ranker, profiles: deps.Profiles, pending: deps.Pending, logger: deps.Logger}
	api := router.Group("/api")
	api.Use(identityMiddleware(deps.Verifier))
	{
		api.GET("/leaderboards/:quizId", h.leaderboard)
		api.GET("/pending/:sessionId", h.pendingResult)

		protected := api.Group("/")
		protected.Use(requireIdentity())
		{
			protected.GET("/profile", h.profile)
			protected.PATCH("/profile/settings", h.updateSettings)
		}
	}
	return router
}

type apiHandler struct {
	ranker   *app.Ranker
	profiles *app.ProfileService
	pending  *app.PendingResultQueue
	logger   *zap.Logger
}

type pendingResponse struct {
	Pending bool                `json:"pending"`
	Result  *domain.FinalResult `json:"result,omitempty"`
}

func (h *apiHandler) leaderboard(c *gin.Context) {
	viewer := ""
	if identity, ok := identityFrom(c); ok {
		viewer = identity.UID
	}
	standings, err := h.ranker.Standings(c.Request.Context(), c.Param("quizId"), viewer)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, standings)
}

// pendingResult tells a guest page whether a finished quiz is waiting for a login.
func (h *apiHandler) pendingResult(c *gin.Context) {
	result, ok, err := h.pending.Pending(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusOK, pendingResponse{})
		return
	}
	c.JSON(http.StatusOK, pendingResponse{Pending: true, Result: &result})
}

func (h *apiHandler) profile(c *gin.Context) {
	identity, _ := identityFrom(c)
	view, err := h.profiles.View(c.Request.Context(), identity.UID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *apiHandler) updateSettings(c *gin.Context) {
	identity, _ := identityFrom(c)
	var patch app.SettingsPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	settings, err := h.profiles.UpdateSettings(c.Request.Context(), identity.UID, patch)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

func (h *apiHandler) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrProfileNotFound), errors.Is(err, domain.ErrEntryNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidSettings):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthenticated):
		status = http.StatusUnauthorized
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// identityMiddleware attaches the bearer identity when one is presented.
// A malformed or expired token is rejected outright.
func identityMiddleware(verifier IdentityVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := auth.BearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.Next()
			return
		}
		identity, err := verifier.Verify(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Set(identityKey, identity)
		c.Next()
	}
}

func requireIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := identityFrom(c); !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": domain.ErrUnauthenticated.Error()})
			return
		}
		c.Next()
	}
}

func identityFrom(c *gin.Context) (domain.Identity, bool) {
	value, ok := c.Get(identityKey)
	if !ok {
		return domain.Identity{}, false
	}
	identity, ok := value.(domain.Identity)
	return identity, ok
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
}
