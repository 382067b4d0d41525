package dashboard

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/zulandar/tempo/internal/goal"
	"github.com/zulandar/tempo/internal/stats"
	"gorm.io/gorm"
)

// maxChartSpan bounds the days and weeks query parameters.
const maxChartSpan = 366

type handlers struct {
	db     *gorm.DB
	stats  *stats.Aggregator
	goals  *goal.Engine
	poll   time.Duration
	beat   time.Duration
	nowUTC func() time.Time
}

// registerRoutes sets up all dashboard routes on the Gin router.
func registerRoutes(router *gin.Engine, h *handlers) {
	api := router.Group("/api")
	api.GET("/health", h.health)

	user := api.Group("/users/:user")
	user.GET("/stats/:period", h.periodStats)
	user.GET("/charts/daily", h.dailyChart)
	user.GET("/charts/weekly", h.weeklyChart)
	user.GET("/breakdown/:period", h.breakdown)
	user.GET("/streak", h.streak)
	user.GET("/goals", h.goalList)
	user.GET("/goals/events", h.goalEvents)
}

func (h *handlers) health(c *gin.Context) {
	depth, err := OutboxDepth(h.db.WithContext(c.Request.Context()))
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "events": depth})
}

func (h *handlers) periodStats(c *gin.Context) {
	p, ok := period(c)
	if !ok {
		return
	}
	report, err := h.stats.PeriodStatistics(c.Request.Context(), c.Param("user"), p)
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *handlers) dailyChart(c *gin.Context) {
	days, ok := span(c, "days", stats.DefaultChartDays)
	if !ok {
		return
	}
	buckets, err := h.stats.DailyChart(c.Request.Context(), c.Param("user"), days)
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"days": buckets})
}

func (h *handlers) weeklyChart(c *gin.Context) {
	weeks, ok := span(c, "weeks", stats.DefaultChartWeeks)
	if !ok {
		return
	}
	buckets, err := h.stats.WeeklyChart(c.Request.Context(), c.Param("user"), weeks)
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"weeks": buckets})
}

func (h *handlers) breakdown(c *gin.Context) {
	p, ok := period(c)
	if !ok {
		return
	}
	types, err := h.stats.ExerciseTypeBreakdown(c.Request.Context(), c.Param("user"), p)
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"period": p, "exercise_types": types})
}

func (h *handlers) streak(c *gin.Context) {
	s, err := h.stats.PracticeStreak(c.Request.Context(), c.Param("user"))
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *handlers) goalList(c *gin.Context) {
	activeOnly := c.Query("active") != "false"
	goals, err := h.goals.List(c.Request.Context(), c.Param("user"), activeOnly)
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"goals": GoalRows(goals)})
}

func period(c *gin.Context) (stats.Period, bool) {
	p, err := stats.ParsePeriod(c.Param("period"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "period must be day, week, month, or year"})
		return "", false
	}
	return p, true
}

func span(c *gin.Context, name string, def int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 || n > maxChartSpan {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " must be between 1 and " + strconv.Itoa(maxChartSpan)})
		return 0, false
	}
	return n, true
}

func internalError(c *gin.Context, err error) {
	if c.Request.Context().Err() != nil {
		// Client went away.
		return
	}
	logrus.WithError(err).WithFields(logrus.Fields{
		"path":    c.FullPath(),
		"user_id": c.Param("user"),
	}).Error("dashboard: request failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
