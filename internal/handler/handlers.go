package handlers

import (
	"strconv"
	"time"

	"RiderGuard/internal/alerting"
	"RiderGuard/internal/auth"
	"RiderGuard/internal/models"
	"RiderGuard/internal/presence"
	"RiderGuard/internal/routing"
	"RiderGuard/internal/session"
	"RiderGuard/internal/trajectory"
	"RiderGuard/pkg/cache"
	errs "RiderGuard/pkg/errors"
	"RiderGuard/pkg/i18n"
	"RiderGuard/pkg/metrics"
	"RiderGuard/pkg/middleware"
	"RiderGuard/pkg/response"
	"RiderGuard/pkg/sse"
	"RiderGuard/pkg/websocket"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Deps are the collaborators the HTTP surface adapts. Metrics, Routes and
// LocationLimiter are optional.
type Deps struct {
	DB       *gorm.DB
	Alerts   *alerting.Service
	Ingest   *trajectory.Ingestor
	Presence *presence.Projection
	Sessions *session.Manager
	Routes   *routing.Service
	Hub      *websocket.Hub
	Streamer *sse.Streamer
	Tokens   *auth.TokenManager
	I18n     *i18n.I18nSupport
	Metrics  *metrics.Metrics
	Cache    cache.Cache

	// limits POST /courier/location per user
	LocationLimiter *middleware.RateLimiter
	IdempotencyTTL  time.Duration
	Log             *zap.Logger
}

type Handlers struct {
	Deps
	log *zap.Logger
}

func NewHandlers(d Deps) *Handlers {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Handlers{Deps: d, log: log.Named("http")}
}

// Register mounts every route. prefix is the API prefix, e.g. "/api".
func (h *Handlers) Register(engine *gin.Engine, prefix string) {
	if h.Metrics != nil {
		engine.GET("/metrics", gin.WrapH(h.Metrics.Handler()))
	}

	r := engine.Group(prefix)
	r.Use(middleware.LanguageMiddleware(h.I18n))

	h.registerSystemRoutes(r)

	authed := r.Group("")
	authed.Use(auth.Authenticate(h.Tokens))
	h.registerAlertRoutes(authed)
	h.registerIncidentRoutes(authed)
	h.registerCourierRoutes(authed)
	h.registerOperatorRoutes(authed)
	h.registerFeedRoutes(authed)
}

func (h *Handlers) registerSystemRoutes(r *gin.RouterGroup) {
	system := r.Group("system")
	{
		system.GET("/health", h.HealthCheck)
	}
	websocket.RegisterRoutes(r, websocket.NewHandler(h.Hub))
}

func (h *Handlers) registerAlertRoutes(r *gin.RouterGroup) {
	alerts := r.Group("alerts")
	{
		alerts.POST("", middleware.IdempotencyMiddleware(middleware.IdempotencyConfig{
			TTL:   h.IdempotencyTTL,
			Store: h.Cache,
			Scope: userScope,
		}), h.handleCreateAlert)

		alerts.GET("/active", h.handleActiveAlerts)

		alerts.GET("/history", h.handleAlertHistory)

		alerts.GET("/:id", h.handleAlertDetail)

		alerts.GET("/:id/trajectory", h.handleAlertTrajectory)

		alerts.POST("/:id/cancel", h.handleCancelAlert)

		alerts.POST("/:id/attend", h.handleAttendAlert)

		alerts.POST("/:id/close", h.handleCloseAlert)

		alerts.POST("/:id/notify", h.handleNotifyContacts)
	}
}

func (h *Handlers) registerIncidentRoutes(r *gin.RouterGroup) {
	incidents := r.Group("incidents")
	{
		incidents.POST("/:id/log", h.handleAppendLog)

		incidents.PUT("/:id/case-ref", h.handleSetCaseRef)
	}
}

func (h *Handlers) registerCourierRoutes(r *gin.RouterGroup) {
	courier := r.Group("courier")
	courier.Use(auth.RequireRole(models.RoleCourier))
	{
		location := []gin.HandlerFunc{h.handleLocation}
		if h.LocationLimiter != nil {
			location = append([]gin.HandlerFunc{h.LocationLimiter.Middleware()}, location...)
		}
		courier.POST("/location", location...)

		courier.POST("/battery", h.handleBattery)

		courier.PUT("/status", h.handleStatus)

		courier.GET("/profile", h.handleOwnProfile)

		courier.GET("/contacts", h.handleListContacts)

		courier.POST("/contacts", h.handleCreateContact)

		courier.POST("/routes", h.handleRequestRoutes)

		courier.PUT("/routes/:id/select", h.handleSelectRoute)
	}
}

func (h *Handlers) registerOperatorRoutes(r *gin.RouterGroup) {
	ops := r.Group("")
	ops.Use(auth.RequireRole(models.RoleOperator, models.RoleAdministrator))
	{
		ops.GET("/couriers/:id/profile", h.handleCourierProfile)

		ops.POST("/notices", h.handleNotice)
	}

	admin := r.Group("admin")
	admin.Use(auth.RequireRole(models.RoleAdministrator))
	{
		admin.POST("/users", h.handleCreateUser)

		admin.POST("/users/:id/token", h.handleIssueToken)
	}
}

func (h *Handlers) registerFeedRoutes(r *gin.RouterGroup) {
	ws := r.Group("ws")
	{
		ws.GET("/alerts", h.feed(session.FeedAlerts))

		ws.GET("/monitoring", h.feed(session.FeedMonitoring))

		ws.GET("/location/:id", h.feed(session.FeedLocation))
	}
	r.GET("/sse/monitoring", auth.RequireRole(models.RoleOperator, models.RoleAdministrator), h.handleMonitoringStream)
}

func userScope(c *gin.Context) string {
	if id := auth.Current(c); id != nil {
		return strconv.FormatUint(uint64(id.UserID), 10)
	}
	return ""
}

func (h *Handlers) t(c *gin.Context, key string) string {
	if h.I18n == nil {
		return key
	}
	return h.I18n.T(response.Lang(c), key, nil)
}

func (h *Handlers) fail(c *gin.Context, err error) {
	if errs.GetCode(err) == 0 {
		h.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	response.Error(c, h.I18n, err)
}

// result renders an alerting result with its reason in the caller's
// language.
func (h *Handlers) result(c *gin.Context, res *alerting.Result, created bool) {
	res.Reason = h.t(c, res.MessageID)
	if created {
		response.Created(c, res.Reason, res)
		return
	}
	response.Success(c, res.Reason, res)
}

func pathUUID(c *gin.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, errs.Validation("invalid alert id %q", c.Param("id"))
	}
	return id, nil
}

func pathUint(c *gin.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, errs.Validation("invalid id %q", c.Param("id"))
	}
	return uint(id), nil
}

// bind decodes the JSON body, reporting failures as validation errors.
func bind(c *gin.Context, v interface{}) error {
	if err := c.ShouldBindJSON(v); err != nil {
		return errs.Validation("invalid request body: %v", err)
	}
	return nil
}
