package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/draxon/draxon-bots/internal/auth"
	"github.com/draxon/draxon-bots/internal/events"
	"github.com/draxon/draxon-bots/internal/faults"
	"github.com/draxon/draxon-bots/internal/members"
	"github.com/draxon/draxon-bots/internal/reconcile"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	claimsContextKey  = "draxon_operator_claims"
	accessTokenParam  = "access_token"
	defaultHistoryMax = 50
)

var (
	errMissingTokenValidator = errors.New("token validator dependency required")
	errMissingMemberStore    = errors.New("member store dependency required")
	errMissingReconciler     = errors.New("reconciler dependency required")
	errMissingEvents         = errors.New("event stream dependency required")
	errInvalidAuthorization  = errors.New("authorization header missing or invalid")
)

// TokenValidator verifies operator bearer tokens.
type TokenValidator interface {
	ValidateToken(token string) (auth.OperatorClaims, error)
}

// MemberStore is the read side of the member store exposed to operators.
type MemberStore interface {
	Search(ctx context.Context, filter members.Filter) ([]members.Profile, error)
	FindByHandle(ctx context.Context, handle string) (members.Profile, error)
	Get(ctx context.Context, discordID string) (members.Profile, error)
	RoleHistory(ctx context.Context, discordID string, limit int) ([]members.RoleChange, error)
	VerificationHistory(ctx context.Context, discordID string, limit int) ([]members.Verification, error)
	Stats(ctx context.Context) (members.Stats, error)
}

// Reconciler runs an on-demand pass over every guild.
type Reconciler interface {
	Run(ctx context.Context) ([]reconcile.Report, error)
}

// JobClock reports when a scheduled job last ran.
type JobClock interface {
	LastRun(name string) (time.Time, bool)
}

// EventSource streams engine events to operators.
type EventSource interface {
	Subscribe(ctx context.Context, guildID string) (<-chan events.Message, func())
}

type Dependencies struct {
	Tokens     TokenValidator
	Members    MemberStore
	Reconciler Reconciler
	Events     EventSource
	// Jobs and JobNames are optional; when set /healthz reports each job's last run.
	Jobs     JobClock
	JobNames []string
	// Heartbeat is the idle interval between keep-alive events on /api/events.
	Heartbeat time.Duration
	Logger    *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Tokens == nil {
		return nil, errMissingTokenValidator
	}
	if deps.Members == nil {
		return nil, errMissingMemberStore
	}
	if deps.Reconciler == nil {
		return nil, errMissingReconciler
	}
	if deps.Events == nil {
		return nil, errMissingEvents
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	heartbeat := deps.Heartbeat
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	handler := &httpHandler{
		tokens:     deps.Tokens,
		members:    deps.Members,
		reconciler: deps.Reconciler,
		events:     deps.Events,
		jobs:       deps.Jobs,
		jobNames:   append([]string(nil), deps.JobNames...),
		heartbeat:  heartbeat,
		logger:     logger,
	}

	router.GET("/healthz", handler.handleHealth)

	api := router.Group("/api")
	api.Use(handler.authorizeRequest)
	api.GET("/members", handler.requireScope(auth.ScopeRead), handler.handleListMembers)
	api.GET("/members/:discordID", handler.requireScope(auth.ScopeRead), handler.handleGetMember)
	api.GET("/members/:discordID/roles", handler.requireScope(auth.ScopeRead), handler.handleRoleHistory)
	api.GET("/stats", handler.requireScope(auth.ScopeRead), handler.handleStats)
	api.GET("/events", handler.requireScope(auth.ScopeRead), handler.handleEventStream)
	api.POST("/reconcile", handler.requireScope(auth.ScopeReconcile), handler.handleReconcile)

	return router, nil
}

func corsMiddleware() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	})
}

type httpHandler struct {
	tokens     TokenValidator
	members    MemberStore
	reconciler Reconciler
	events     EventSource
	jobs       JobClock
	jobNames   []string
	heartbeat  time.Duration
	logger     *zap.Logger
}

type memberDetailPayload struct {
	Profile       members.Profile        `json:"profile"`
	Verifications []members.Verification `json:"verifications"`
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	if h.jobs == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}
	lastRuns := make(map[string]*time.Time, len(h.jobNames))
	for _, name := range h.jobNames {
		if last, ok := h.jobs.LastRun(name); ok {
			utc := last.UTC()
			lastRuns[name] = &utc
		} else {
			lastRuns[name] = nil
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "jobs": lastRuns})
}

func (h *httpHandler) handleListMembers(c *gin.Context) {
	if handle := c.Query("handle"); handle != "" {
		profile, err := h.members.FindByHandle(c.Request.Context(), handle)
		if err != nil {
			h.respondError(c, "member handle lookup failed", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"members": []members.Profile{profile}})
		return
	}
	filter := members.Filter{
		Query:     c.Query("q"),
		OrgStatus: members.OrgStatus(c.Query("status")),
		OrgRank:   c.Query("rank"),
	}
	if raw := c.Query("verified"); raw != "" {
		verified, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_verified"})
			return
		}
		filter.Verified = &verified
	}
	var ok bool
	if filter.Limit, ok = intQuery(c, "limit"); !ok {
		return
	}
	if filter.Offset, ok = intQuery(c, "offset"); !ok {
		return
	}

	profiles, err := h.members.Search(c.Request.Context(), filter)
	if err != nil {
		h.respondError(c, "member search failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"members": profiles})
}

func (h *httpHandler) handleGetMember(c *gin.Context) {
	discordID := c.Param("discordID")
	profile, err := h.members.Get(c.Request.Context(), discordID)
	if err != nil {
		h.respondError(c, "member lookup failed", err)
		return
	}
	verifications, err := h.members.VerificationHistory(c.Request.Context(), discordID, defaultHistoryMax)
	if err != nil {
		h.respondError(c, "verification history failed", err)
		return
	}
	c.JSON(http.StatusOK, memberDetailPayload{Profile: profile, Verifications: verifications})
}

func (h *httpHandler) handleRoleHistory(c *gin.Context) {
	limit, ok := intQuery(c, "limit")
	if !ok {
		return
	}
	if limit == 0 {
		limit = defaultHistoryMax
	}
	changes, err := h.members.RoleHistory(c.Request.Context(), c.Param("discordID"), limit)
	if err != nil {
		h.respondError(c, "role history failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"changes": changes})
}

func (h *httpHandler) handleStats(c *gin.Context) {
	stats, err := h.members.Stats(c.Request.Context())
	if err != nil {
		h.respondError(c, "stats failed", err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *httpHandler) handleReconcile(c *gin.Context) {
	// A dropped client does not cancel a pass in flight.
	reports, err := h.reconciler.Run(context.WithoutCancel(c.Request.Context()))
	if errors.Is(err, reconcile.ErrPassInProgress) {
		c.JSON(http.StatusConflict, gin.H{"error": "pass_in_progress"})
		return
	}
	if err != nil {
		h.respondError(c, "reconciliation failed", err)
		return
	}
	h.logger.Info("reconciliation triggered", zap.String("operator", operatorSubject(c)), zap.Int("guilds", len(reports)))
	c.JSON(http.StatusOK, gin.H{"reports": reports})
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	token, ok := bearerToken(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	claims, err := h.tokens.ValidateToken(token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) {
			h.logger.Info("token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(claimsContextKey, claims)
	c.Next()
}

func (h *httpHandler) requireScope(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := operatorClaims(c)
		if !ok || !claims.HasScope(scope) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

func (h *httpHandler) respondError(c *gin.Context, message string, err error) {
	switch faults.Classify(err) {
	case faults.KindNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	case faults.KindRemoteUnavailable:
		h.logger.Warn(message, zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "remote_unavailable"})
	default:
		h.logger.Error(message, zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
	}
}

func operatorClaims(c *gin.Context) (auth.OperatorClaims, bool) {
	value, _ := c.Get(claimsContextKey)
	claims, ok := value.(auth.OperatorClaims)
	return claims, ok
}

func operatorSubject(c *gin.Context) string {
	claims, _ := operatorClaims(c)
	return claims.Subject
}

// bearerToken reads the Authorization header, falling back to the access_token
// query parameter for EventSource clients that cannot set headers.
func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if header == "" {
		token := strings.TrimSpace(c.Query(accessTokenParam))
		return token, token != ""
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	return token, token != ""
}

func intQuery(c *gin.Context, name string) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return 0, true
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_" + name})
		return 0, false
	}
	return value, true
}
