package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/bashirbobboi/elevator-pitch/internal/assets"
	"github.com/bashirbobboi/elevator-pitch/internal/auth"
	"github.com/bashirbobboi/elevator-pitch/internal/pitches"
	"github.com/bashirbobboi/elevator-pitch/internal/profiles"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const ownerContextKey = "pitch_owner_subject"

var (
	errMissingPasswordGate  = errors.New("password gate dependency required")
	errMissingTokenManager  = errors.New("token manager dependency required")
	errMissingPitchService  = errors.New("pitch service dependency required")
	errMissingProfiles      = errors.New("profile service dependency required")
	errMissingAssetStore    = errors.New("asset store dependency required")
	errInvalidAuthorization = errors.New("authorization header missing or invalid")
)

// PasswordChecker admits the owner.
type PasswordChecker interface {
	Check(password string) error
}

// TokenManager issues and validates owner tokens.
type TokenManager interface {
	IssueOwnerToken() (auth.IssuedToken, error)
	ValidateRequest(r *http.Request) (string, error)
	CookieName() string
}

// PitchService is the tracking, publishing and analytics surface used by the handlers.
type PitchService interface {
	RecordOpen(ctx context.Context, shareID string, viewerID string) (pitches.OpenResult, error)
	RecordProgress(ctx context.Context, shareID string, report pitches.ProgressReport) (pitches.ProgressResult, error)
	RecordClick(ctx context.Context, shareID string, viewerID string, action string) (pitches.ClickResult, error)
	PitchReport(ctx context.Context, pitchID string) (pitches.Report, error)
	AllReports(ctx context.Context) ([]pitches.Report, error)
	CreatePitch(ctx context.Context, input pitches.NewPitch) (pitches.Pitch, error)
	RenamePitch(ctx context.Context, pitchID string, title string) (pitches.Pitch, error)
	DeletePitch(ctx context.Context, pitchID string) (pitches.Pitch, error)
	ListPitches(ctx context.Context) ([]pitches.Pitch, error)
	GetPitch(ctx context.Context, pitchID string) (pitches.Pitch, error)
	GetPublicPitch(ctx context.Context, shareID string) (pitches.Pitch, error)
}

// ProfileService manages the owner profile.
type ProfileService interface {
	Create(ctx context.Context, input profiles.Input) (profiles.Profile, error)
	Current(ctx context.Context) (profiles.Profile, error)
	Update(ctx context.Context, input profiles.Input) (profiles.Profile, error)
	Delete(ctx context.Context) (profiles.Profile, error)
	SetPicture(ctx context.Context, upload assets.Upload) (profiles.Profile, error)
	SetResume(ctx context.Context, upload assets.Upload) (profiles.Profile, error)
}

// StaticAssets serves a local upload directory under a URL prefix.
type StaticAssets struct {
	URLPath string
	Dir     string
}

type Dependencies struct {
	PasswordGate    PasswordChecker
	TokenManager    TokenManager
	PitchService    PitchService
	ProfileService  ProfileService
	Assets          assets.Store
	Realtime        *RealtimeDispatcher
	TrackingLimiter *RateLimiter
	LoginLimiter    *RateLimiter
	MetricsGatherer prometheus.Gatherer
	Static          *StaticAssets
	AllowedOrigins  []string
	PublicBaseURL   string
	Logger          *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.PasswordGate == nil {
		return nil, errMissingPasswordGate
	}
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}
	if deps.PitchService == nil {
		return nil, errMissingPitchService
	}
	if deps.ProfileService == nil {
		return nil, errMissingProfiles
	}
	if deps.Assets == nil {
		return nil, errMissingAssetStore
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	realtime := deps.Realtime
	if realtime == nil {
		realtime = NewRealtimeDispatcher()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(deps.AllowedOrigins))
	// Uploads are streamed into the asset store; keep only small parts in memory.
	router.MaxMultipartMemory = 8 << 20

	handler := &httpHandler{
		passwords:     deps.PasswordGate,
		tokens:        deps.TokenManager,
		pitches:       deps.PitchService,
		profiles:      deps.ProfileService,
		assets:        deps.Assets,
		realtime:      realtime,
		publicBaseURL: strings.TrimRight(deps.PublicBaseURL, "/"),
		logger:        logger,
	}

	router.GET("/healthz", handler.handleHealth)
	if deps.MetricsGatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.MetricsGatherer, promhttp.HandlerOpts{})))
	}
	if deps.Static != nil && deps.Static.Dir != "" {
		router.Static(deps.Static.URLPath, deps.Static.Dir)
	}

	router.POST("/auth/login", deps.LoginLimiter.Middleware(), handler.handleLogin)
	router.GET("/share/:id", handler.handlePublicPitch)
	router.GET("/profile", handler.handleGetProfile)

	tracking := router.Group("/pitches/:id")
	tracking.Use(deps.TrackingLimiter.Middleware())
	tracking.POST("/open", handler.handleOpen)
	tracking.POST("/progress", handler.handleProgress)
	tracking.POST("/click", handler.handleClick)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.POST("/pitches", handler.handleCreatePitch)
	protected.GET("/pitches", handler.handleListPitches)
	protected.GET("/pitches/analytics", handler.handleAllReports)
	protected.GET("/pitches/:id", handler.handleGetPitch)
	protected.PATCH("/pitches/:id", handler.handleRenamePitch)
	protected.DELETE("/pitches/:id", handler.handleDeletePitch)
	protected.GET("/pitches/:id/analytics", handler.handlePitchReport)
	protected.POST("/profile", handler.handleCreateProfile)
	protected.PUT("/profile", handler.handleUpdateProfile)
	protected.DELETE("/profile", handler.handleDeleteProfile)
	protected.POST("/profile/picture", handler.handleProfilePicture)
	protected.POST("/profile/resume", handler.handleProfileResume)
	protected.GET("/events", handler.handleEngagementStream)

	return router, nil
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Viewer-ID"},
		ExposeHeaders:    []string{"Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	origins := make([]string, 0, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		// Credentialed requests cannot use a literal wildcard, so echo the caller's origin.
		config.AllowOriginFunc = func(string) bool { return true }
	} else {
		config.AllowOrigins = origins
	}
	return cors.New(config)
}

type httpHandler struct {
	passwords     PasswordChecker
	tokens        TokenManager
	pitches       PitchService
	profiles      ProfileService
	assets        assets.Store
	realtime      *RealtimeDispatcher
	publicBaseURL string
	logger        *zap.Logger
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type loginRequestPayload struct {
	Password string `json:"password"`
}

type loginResponsePayload struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	var request loginRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || request.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if err := h.passwords.Check(request.Password); err != nil {
		h.logger.Info("owner login rejected", zap.String("client_ip", c.ClientIP()))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	issued, err := h.tokens.IssueOwnerToken()
	if err != nil {
		h.logger.Error("failed to issue owner token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.tokens.CookieName(), issued.Token, int(issued.ExpiresIn), "/", "", c.Request.TLS != nil, true)
	c.JSON(http.StatusOK, loginResponsePayload{
		AccessToken: issued.Token,
		ExpiresIn:   issued.ExpiresIn,
		TokenType:   "Bearer",
	})
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	subject, err := h.tokens.ValidateRequest(c.Request)
	if err != nil {
		if errors.Is(err, auth.ErrMissingToken) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
			return
		}
		if errors.Is(err, auth.ErrExpiredToken) {
			h.logger.Info("token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(ownerContextKey, subject)
	c.Next()
}

type codedError interface {
	Code() string
}

// writeServiceError maps service failures onto HTTP statuses. Only server-side failures
// are logged here; the services already logged their storage errors with context.
func (h *httpHandler) writeServiceError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	slug := "internal_error"
	switch {
	case errors.Is(err, pitches.ErrNotFound), errors.Is(err, profiles.ErrNotFound):
		status, slug = http.StatusNotFound, "not_found"
	case errors.Is(err, pitches.ErrInvalidArgument), errors.Is(err, profiles.ErrInvalidArgument), errors.Is(err, assets.ErrInvalidUpload):
		status, slug = http.StatusBadRequest, "invalid_argument"
	case errors.Is(err, profiles.ErrConflict), errors.Is(err, pitches.ErrVersionConflict):
		status, slug = http.StatusConflict, "conflict"
	}

	body := gin.H{"error": slug}
	var coded codedError
	if errors.As(err, &coded) {
		body["code"] = coded.Code()
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	} else {
		body["message"] = err.Error()
	}
	c.JSON(status, body)
}
