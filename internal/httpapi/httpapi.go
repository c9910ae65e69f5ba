package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"posdash/internal/domain"
	"posdash/internal/export"
	"posdash/internal/loyverse"
	"posdash/internal/service"
	"posdash/internal/store"
)

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	loginLimiter  *loginLimiter
}

func New(svc *service.Service, auth *AuthManager, allowedOrigin string) *API {
	return &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newLoginLimiter(5, time.Minute),
	}
}

func (a *API) Handler() http.Handler {
	r := gin.New()
	r.Use(recovery(), requestLogger(), securityHeaders(), corsMiddleware(a.allowedOrigin))

	r.GET("/healthz", a.handleHealth)

	v1 := r.Group("/api/v1")
	v1.POST("/auth/login", a.handleLogin)

	protected := v1.Group("", a.requireAuth())
	protected.GET("/sync/plan", a.handleSyncPlan)
	protected.POST("/sync/missing", a.handleSyncMissing)
	protected.POST("/sync/receipts", a.handleSyncReceipts)
	protected.POST("/sync/metadata", a.handleSyncMetadata)

	protected.GET("/stats", a.handleStats)
	protected.GET("/reference/status", a.handleReferenceStatus)
	protected.GET("/receipts", a.handleReceipts)

	reports := protected.Group("/reports")
	reports.GET("/summary", a.handleSummary)
	reports.GET("/net-sales", a.handleNetSales)
	reports.GET("/daily", a.handleDaily)
	reports.GET("/credit", a.handleCredit)
	reports.GET("/forecast", a.handleForecast)
	reports.GET("/export.xlsx", a.handleExport)

	protected.GET("/manual-categories", a.handleListManualCategories)
	protected.PUT("/manual-categories", a.handleSaveManualCategories)
	protected.DELETE("/manual-categories", a.handleClearManualCategories)

	protected.DELETE("/data", a.handleClearData)

	r.NoRoute(func(c *gin.Context) {
		writeError(c, http.StatusNotFound, errors.New("route not found"))
	})
	return r
}

func (a *API) handleHealth(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{
		"ok":       true,
		"degraded": a.service.Degraded(),
		"at":       time.Now().UTC().Format(time.RFC3339),
	}
	if err := a.service.Ping(c.Request.Context()); err != nil {
		log.Warn().Str("component", "http").Err(err).Msg("store ping failed")
		status = http.StatusServiceUnavailable
		body["ok"] = false
	}
	c.JSON(status, body)
}

func (a *API) handleLogin(c *gin.Context) {
	if !a.loginLimiter.Allow(c.ClientIP()) {
		writeError(c, http.StatusTooManyRequests, errors.New("too many login attempts, try again later"))
		return
	}

	var req domain.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	resp, err := a.auth.Login(req)
	switch {
	case errors.Is(err, errLoginDisabled):
		writeError(c, http.StatusServiceUnavailable, err)
		return
	case err != nil:
		writeError(c, http.StatusUnauthorized, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (a *API) handleSyncPlan(c *gin.Context) {
	plan, err := a.service.PlanSync(c.Request.Context())
	if err != nil {
		writeError(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, plan)
}

func (a *API) handleSyncMissing(c *gin.Context) {
	result, err := a.service.SyncMissing(c.Request.Context())
	if err != nil {
		writeError(c, syncStatusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (a *API) handleSyncReceipts(c *gin.Context) {
	var req domain.ReceiptSyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	result, err := a.service.SyncReceipts(c.Request.Context(), req)
	if err != nil {
		writeError(c, syncStatusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (a *API) handleSyncMetadata(c *gin.Context) {
	fresh := strings.EqualFold(c.Query("fresh"), "true") || c.Query("fresh") == "1"

	results, err := a.service.SyncMetadata(c.Request.Context(), fresh)
	if err != nil {
		writeError(c, syncStatusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"results":    results,
		"references": a.service.ReferenceStatus(),
	})
}

func (a *API) handleStats(c *gin.Context) {
	stats, err := a.service.Stats(c.Request.Context())
	if err != nil {
		writeError(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (a *API) handleReferenceStatus(c *gin.Context) {
	c.JSON(http.StatusOK, a.service.ReferenceStatus())
}

func (a *API) handleReceipts(c *gin.Context) {
	filter, ok := bindFilter(c)
	if !ok {
		return
	}
	rows, err := a.service.ReceiptsView(c.Request.Context(), filter)
	if err != nil {
		writeError(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rows": rows, "count": len(rows)})
}

func (a *API) handleSummary(c *gin.Context) {
	filter, ok := bindFilter(c)
	if !ok {
		return
	}
	summary, err := a.service.Summary(c.Request.Context(), filter)
	if err != nil {
		writeError(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (a *API) handleNetSales(c *gin.Context) {
	filter, ok := bindFilter(c)
	if !ok {
		return
	}
	by := c.DefaultQuery("by", "day")

	buckets, err := a.service.NetSales(c.Request.Context(), filter, by)
	if err != nil {
		writeError(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"by": by, "buckets": buckets})
}

func (a *API) handleDaily(c *gin.Context) {
	filter, ok := bindFilter(c)
	if !ok {
		return
	}
	points, err := a.service.Daily(c.Request.Context(), filter)
	if err != nil {
		writeError(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"points": points})
}

func (a *API) handleForecast(c *gin.Context) {
	filter, ok := bindFilter(c)
	if !ok {
		return
	}
	locations, err := a.service.Forecast(c.Request.Context(), filter)
	if err != nil {
		writeError(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"locations": locations})
}

func (a *API) handleCredit(c *gin.Context) {
	filter, ok := bindFilter(c)
	if !ok {
		return
	}
	balances, err := a.service.Credit(c.Request.Context(), filter)
	if err != nil {
		writeError(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"balances": balances})
}

func (a *API) handleExport(c *gin.Context) {
	filter, ok := bindFilter(c)
	if !ok {
		return
	}

	filename := "net-sales-" + time.Now().UTC().Format("20060102-150405") + ".xlsx"
	c.Header("Content-Type", export.ContentType)
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Status(http.StatusOK)
	if err := a.service.Export(c.Request.Context(), filter, c.Writer); err != nil {
		if !c.Writer.Written() {
			c.Writer.Header().Del("Content-Disposition")
			c.Writer.Header().Del("Content-Type")
			writeError(c, statusFor(err), err)
			return
		}
		log.Error().Str("component", "http").Err(err).Msg("export aborted mid-stream")
	}
}

func (a *API) handleListManualCategories(c *gin.Context) {
	overrides, err := a.service.ListManualCategories(c.Request.Context())
	if err != nil {
		writeError(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"overrides": overrides})
}

func (a *API) handleSaveManualCategories(c *gin.Context) {
	var req domain.ManualCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	overrides, err := a.service.SaveManualCategories(c.Request.Context(), req)
	if err != nil {
		writeError(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"overrides": overrides})
}

func (a *API) handleClearManualCategories(c *gin.Context) {
	if err := a.service.ClearManualCategories(c.Request.Context()); err != nil {
		writeError(c, statusFor(err), err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *API) handleClearData(c *gin.Context) {
	if err := a.service.ClearAllData(c.Request.Context()); err != nil {
		writeError(c, statusFor(err), err)
		return
	}
	c.Status(http.StatusNoContent)
}

func bindFilter(c *gin.Context) (domain.ViewFilter, bool) {
	var filter domain.ViewFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		writeError(c, http.StatusBadRequest, fmt.Errorf("invalid query: %w", err))
		return domain.ViewFilter{}, false
	}
	if filter.StartDate != "" && filter.EndDate != "" && filter.StartDate > filter.EndDate {
		writeError(c, http.StatusBadRequest, errors.New("start must not be after end"))
		return domain.ViewFilter{}, false
	}
	return filter, true
}

func statusFor(err error) int {
	var upstream *loyverse.StatusError
	switch {
	case errors.Is(err, service.ErrInvalidInput), errors.Is(err, store.ErrInvalidRecord):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrSyncInProgress):
		return http.StatusConflict
	case errors.Is(err, service.ErrUpstreamNotConfigured):
		return http.StatusServiceUnavailable
	case errors.As(err, &upstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// syncStatusFor treats any unclassified sync failure as an upstream failure:
// nothing was committed.
func syncStatusFor(err error) int {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		return http.StatusBadGateway
	}
	return status
}

func abortError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

func writeError(c *gin.Context, status int, err error) {
	// 5xx details stay in the log.
	msg := err.Error()
	switch {
	case status == http.StatusBadGateway:
		log.Error().Str("component", "http").Err(err).Int("status", status).Msg("upstream error")
		msg = "upstream request failed"
	case status >= 500 && status != http.StatusServiceUnavailable:
		log.Error().Str("component", "http").Err(err).Int("status", status).Msg("internal error")
		msg = "internal server error"
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}
