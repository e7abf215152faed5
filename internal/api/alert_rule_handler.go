package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fleetgrid-io/fleetgrid-ce/internal/models"
	"github.com/fleetgrid-io/fleetgrid-ce/internal/repository"
)

// AlertRuleHandler serves alert rule CRUD.
type AlertRuleHandler struct {
	rules *repository.AlertRuleRepository
}

func NewAlertRuleHandler(rules *repository.AlertRuleRepository) *AlertRuleHandler {
	return &AlertRuleHandler{rules: rules}
}

func (h *AlertRuleHandler) List(c *gin.Context) {
	rules, err := h.rules.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list alert rules"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"rules": rules, "count": len(rules)})
}

func (h *AlertRuleHandler) Get(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	rule, err := h.rules.GetByID(c.Request.Context(), id)
	if err != nil {
		writeRepoError(c, err, "alert rule")
		return
	}
	c.JSON(http.StatusOK, rule)
}

func (h *AlertRuleHandler) Create(c *gin.Context) {
	var req models.AlertRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rule := &models.AlertRule{
		Name:      req.Name,
		DeviceID:  req.DeviceID,
		Metric:    req.Metric,
		Operator:  req.Operator,
		Threshold: req.Threshold,
		Severity:  req.Severity,
		Enabled:   true,
	}
	if req.Enabled != nil {
		rule.Enabled = *req.Enabled
	}
	if err := h.rules.Create(c.Request.Context(), rule); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create alert rule"})
		return
	}
	c.JSON(http.StatusCreated, rule)
}

func (h *AlertRuleHandler) Update(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req models.AlertRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rule, err := h.rules.GetByID(c.Request.Context(), id)
	if err != nil {
		writeRepoError(c, err, "alert rule")
		return
	}
	rule.Name = req.Name
	rule.DeviceID = req.DeviceID
	rule.Metric = req.Metric
	rule.Operator = req.Operator
	rule.Threshold = req.Threshold
	rule.Severity = req.Severity
	if req.Enabled != nil {
		rule.Enabled = *req.Enabled
	}

	if err := h.rules.Update(c.Request.Context(), rule); err != nil {
		writeRepoError(c, err, "alert rule")
		return
	}
	c.JSON(http.StatusOK, rule)
}

func (h *AlertRuleHandler) Delete(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.rules.Delete(c.Request.Context(), id); err != nil {
		writeRepoError(c, err, "alert rule")
		return
	}
	c.Status(http.StatusNoContent)
}
