package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/freedom_case_2/crcollector/internal/db"
	"github.com/freedom_case_2/crcollector/internal/models"
	"github.com/freedom_case_2/crcollector/internal/service"
)

type Handler struct {
	Store      db.Store
	Query      *service.QueryService
	Collection *service.CollectionService
	Reports    *service.ReportService
	Validator  *validator.Validate
	Logger     zerolog.Logger
}

type ListResponse struct {
	Items  []models.Request `json:"items"`
	Count  int              `json:"count"`
	Limit  int              `json:"limit"`
	Offset int              `json:"offset"`
}

type StatusUpdate struct {
	Status   string `json:"status" validate:"required,oneof=new reviewing accepted in_progress completed rejected"`
	Assignee string `json:"assignee" validate:"omitempty,max=100"`
}

type CollectRequest struct {
	Sources []string `json:"sources" validate:"omitempty,dive,required"`
	Trigger string   `json:"trigger" validate:"omitempty,oneof=manual on_demand scheduled"`
	Days    int      `json:"days" validate:"gte=0,lte=90"`
}

type ConvertRequest struct {
	Requests []models.Request `json:"requests" validate:"required,min=1,max=500"`
}

type ReportRequest struct {
	Days   int  `json:"days" validate:"gte=0,lte=90"`
	Export bool `json:"export"`
	Post   bool `json:"post"`
}

// @Summary Health check
// @Tags health
// @Produce json
// @Success 200 {object} map[string]any
// @Router /healthz [get]
func (h *Handler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()
	if err := h.Store.Ping(ctx); err != nil {
		writeError(c, http.StatusServiceUnavailable, "DB_UNAVAILABLE", "Database unavailable", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// @Summary List customer requests
// @Tags requests
// @Produce json
// @Param project query string false "Project"
// @Param days query int false "Lookback days" default(7)
// @Param source query string false "slack, figma or confluence"
// @Param status query string false "Status"
// @Param priority query string false "Priority"
// @Param limit query int false "Limit" default(100)
// @Param offset query int false "Offset" default(0)
// @Success 200 {object} ListResponse
// @Failure 400 {object} map[string]any
// @Router /api/requests [get]
func (h *Handler) RequestsList(c *gin.Context) {
	q, ok := listQuery(c)
	if !ok {
		return
	}
	items, err := h.Query.ListRequests(c.Request.Context(), q)
	if err != nil {
		h.storeError(c, err, "Failed to list requests")
		return
	}
	if q.Limit <= 0 {
		q.Limit = service.DefaultListLimit
	}
	q.Limit = min(q.Limit, service.MaxListLimit)
	c.JSON(http.StatusOK, ListResponse{Items: items, Count: len(items), Limit: q.Limit, Offset: q.Offset})
}

// @Summary Customer request by CR number
// @Tags requests
// @Produce json
// @Param cr path string true "CR number"
// @Success 200 {object} models.Request
// @Failure 404 {object} map[string]any
// @Router /api/requests/{cr} [get]
func (h *Handler) RequestDetails(c *gin.Context) {
	r, err := h.Query.GetRequest(c.Request.Context(), c.Param("cr"))
	if err != nil {
		h.storeError(c, err, "Failed to get request")
		return
	}
	c.JSON(http.StatusOK, r)
}

// @Summary Open and answered requests digested for language models
// @Tags requests
// @Produce json
// @Param project query string false "Project"
// @Param days query int false "Lookback days" default(7)
// @Param source query string false "Source"
// @Success 200 {object} service.LLMView
// @Failure 400 {object} map[string]any
// @Router /api/requests/llm [get]
func (h *Handler) RequestsLLM(c *gin.Context) {
	q, ok := listQuery(c)
	if !ok {
		return
	}
	view, err := h.Query.LLMView(c.Request.Context(), q)
	if err != nil {
		h.storeError(c, err, "Failed to build request digest")
		return
	}
	c.JSON(http.StatusOK, view)
}

// @Summary Stored requests grouped into tasks
// @Tags tasks
// @Produce json
// @Param project query string false "Project"
// @Param days query int false "Lookback days" default(7)
// @Param source query string false "Source"
// @Success 200 {object} service.TaskList
// @Failure 400 {object} map[string]any
// @Router /api/tasks [get]
func (h *Handler) Tasks(c *gin.Context) {
	q, ok := listQuery(c)
	if !ok {
		return
	}
	tasks, err := h.Query.Tasks(c.Request.Context(), q)
	if err != nil {
		h.storeError(c, err, "Failed to build tasks")
		return
	}
	c.JSON(http.StatusOK, tasks)
}

// @Summary Group the posted requests into tasks
// @Tags tasks
// @Accept json
// @Produce json
// @Param body body ConvertRequest true "Requests"
// @Success 200 {object} service.TaskList
// @Failure 400 {object} map[string]any
// @Router /api/tasks/convert [post]
func (h *Handler) ConvertTasks(c *gin.Context) {
	var req ConvertRequest
	if !h.bind(c, &req) {
		return
	}
	conv := service.TaskConverter{InternalAuthors: h.Query.InternalAuthors}
	c.JSON(http.StatusOK, conv.Convert(req.Requests))
}

// @Summary Request counts by source, priority, category and status
// @Tags requests
// @Produce json
// @Param project query string false "Project"
// @Param days query int false "Lookback days" default(7)
// @Param source query string false "Source"
// @Success 200 {object} service.Summary
// @Router /api/summary [get]
func (h *Handler) Summary(c *gin.Context) {
	q, ok := listQuery(c)
	if !ok {
		return
	}
	sum, err := h.Query.SummaryStats(c.Request.Context(), q)
	if err != nil {
		h.storeError(c, err, "Failed to summarize requests")
		return
	}
	c.JSON(http.StatusOK, sum)
}

// @Summary Update request status
// @Tags requests
// @Accept json
// @Produce json
// @Param cr path string true "CR number"
// @Param body body StatusUpdate true "New status"
// @Success 200 {object} models.Request
// @Failure 400 {object} map[string]any
// @Failure 404 {object} map[string]any
// @Router /api/requests/{cr}/status [patch]
func (h *Handler) UpdateStatus(c *gin.Context) {
	var req StatusUpdate
	if !h.bind(c, &req) {
		return
	}
	r, err := h.Query.UpdateStatus(c.Request.Context(), c.Param("cr"), models.Status(req.Status), strings.TrimSpace(req.Assignee))
	if err != nil {
		h.storeError(c, err, "Failed to update status")
		return
	}
	c.JSON(http.StatusOK, r)
}

// @Summary Latest collection run
// @Tags runs
// @Produce json
// @Success 200 {object} models.RunResult
// @Failure 404 {object} map[string]any
// @Router /api/runs/latest [get]
func (h *Handler) RunsLatest(c *gin.Context) {
	run, err := h.Query.LatestRun(c.Request.Context())
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			writeError(c, http.StatusNotFound, "NOT_FOUND", "No runs found", nil)
			return
		}
		h.storeError(c, err, "Failed to load run")
		return
	}
	c.JSON(http.StatusOK, run)
}

// @Summary Configured collectors
// @Tags runs
// @Produce json
// @Success 200 {object} map[string]any
// @Router /api/sources [get]
func (h *Handler) Sources(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"items": h.Collection.Sources()})
}

// @Summary Run a collection pass
// @Tags runs
// @Accept json
// @Produce json
// @Param body body CollectRequest false "Sources and trigger"
// @Success 200 {object} models.RunResult
// @Failure 400 {object} map[string]any
// @Router /api/collect [post]
func (h *Handler) Collect(c *gin.Context) {
	var req CollectRequest
	if c.Request.ContentLength != 0 && !h.bind(c, &req) {
		return
	}
	if unknown := h.Collection.UnknownSources(req.Sources); len(unknown) > 0 {
		names := make([]string, 0, len(h.Collection.Collectors))
		for _, s := range h.Collection.Sources() {
			names = append(names, s.Name)
		}
		writeError(c, http.StatusBadRequest, "UNKNOWN_SOURCE", "Unknown collector names",
			gin.H{"unknown": unknown, "available": names})
		return
	}
	trigger := models.Trigger(req.Trigger)
	if trigger == "" {
		trigger = models.TriggerOnDemand
	}
	window := h.Collection.Window(req.Days)
	res := h.Collection.RunCollectionWindow(c.Request.Context(), trigger, req.Sources, window)
	c.JSON(http.StatusOK, res)
}

// @Summary Scheduled collection for external cron
// @Tags runs
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.RunResult
// @Failure 401 {object} map[string]any
// @Router /api/cron/collect [get]
func (h *Handler) CronCollect(c *gin.Context) {
	res := h.Collection.RunCollection(c.Request.Context(), models.TriggerScheduled, nil)
	c.JSON(http.StatusOK, res)
}

// @Summary Generate the daily report
// @Tags reports
// @Accept json
// @Produce json
// @Param body body ReportRequest false "Options"
// @Success 200 {object} models.DailyReport
// @Failure 400 {object} map[string]any
// @Router /api/reports/daily [post]
func (h *Handler) DailyReport(c *gin.Context) {
	var req ReportRequest
	if c.Request.ContentLength != 0 && !h.bind(c, &req) {
		return
	}
	ctx := c.Request.Context()
	rep, err := h.Reports.GenerateDaily(ctx, h.Collection.Window(req.Days))
	if err != nil {
		h.storeError(c, err, "Failed to generate report")
		return
	}
	if req.Export {
		if rep, err = h.Reports.Export(ctx, rep); err != nil {
			writeError(c, http.StatusInternalServerError, "EXPORT_ERROR", "Failed to export report", err.Error())
			return
		}
	}
	if req.Post {
		if rep, err = h.Reports.Post(ctx, rep); err != nil {
			h.storeError(c, err, "Failed to post report")
			return
		}
	}
	c.JSON(http.StatusOK, rep)
}

func (h *Handler) bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", err.Error())
		return false
	}
	if err := h.Validator.Struct(dst); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return false
	}
	return true
}

func (h *Handler) storeError(c *gin.Context, err error, message string) {
	switch {
	case errors.Is(err, db.ErrNotFound):
		writeError(c, http.StatusNotFound, "NOT_FOUND", "Request not found", nil)
	case errors.Is(err, db.ErrInvalidInput):
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
	default:
		h.Logger.Error().Err(err).Str("path", c.FullPath()).Msg(message)
		writeError(c, http.StatusInternalServerError, "DB_ERROR", message, err.Error())
	}
}

func listQuery(c *gin.Context) (service.ListQuery, bool) {
	q := service.ListQuery{
		Project:  strings.TrimSpace(c.Query("project")),
		Source:   c.Query("source"),
		Status:   c.Query("status"),
		Priority: c.Query("priority"),
	}
	for name, dst := range map[string]*int{"days": &q.Days, "limit": &q.Limit, "offset": &q.Offset} {
		raw := c.Query(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", name+" must be a non-negative integer", nil)
			return q, false
		}
		*dst = n
	}
	return q, true
}

func writeError(c *gin.Context, status int, code string, message string, details any) {
	c.JSON(status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
			"details": details,
		},
	})
}
