package api

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/fleetgrid-io/fleetgrid-ce/internal/guard"
	"github.com/fleetgrid-io/fleetgrid-ce/internal/repository"
)

// AdminGuardHandler exposes the guard's administrative surface: unlocking
// accounts, lifting bans, resetting quotas, the lockout status view and the
// live guard configuration. All routes require the Admin role.
type AdminGuardHandler struct {
	gate     *guard.Gate
	attempts *repository.AttemptRepository
}

func NewAdminGuardHandler(gate *guard.Gate, attempts *repository.AttemptRepository) *AdminGuardHandler {
	return &AdminGuardHandler{gate: gate, attempts: attempts}
}

// UnlockAccount clears an account lock in both the cache and the ledger.
func (h *AdminGuardHandler) UnlockAccount(c *gin.Context) {
	email := strings.TrimSpace(c.Param("email"))
	if email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email is required"})
		return
	}
	if err := h.gate.UnlockAccount(c.Request.Context(), email); err != nil {
		log.Printf("[SECURITY] admin unlock failed: email=%s err=%v", email, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "unlock failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"email": email, "unlocked": true})
}

// LockoutStatus reports an account's current lock state, failure count and
// recent attempt history.
func (h *AdminGuardHandler) LockoutStatus(c *gin.Context) {
	email := strings.TrimSpace(c.Param("email"))
	if email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email is required"})
		return
	}

	st, failures := h.gate.LockStatus(c.Request.Context(), email)

	recent, err := h.attempts.ListRecent(c.Request.Context(), strings.ToLower(email), 20)
	if err != nil {
		log.Printf("[SECURITY] attempt history lookup failed: email=%s err=%v", email, err)
		// Lock state is still useful without the history.
	}

	c.JSON(http.StatusOK, gin.H{
		"email":             email,
		"locked":            st.Locked,
		"remaining_seconds": st.RemainingSeconds,
		"failed_attempts":   failures,
		"recent_attempts":   recent,
	})
}

type resetLimitsRequest struct {
	Subject  string `json:"subject" binding:"required"`
	Endpoint string `json:"endpoint"`
}

// ResetLimits clears the quota counters and block marks for one identity,
// optionally narrowed to a single endpoint category.
func (h *AdminGuardHandler) ResetLimits(c *gin.Context) {
	var req resetLimitsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "subject is required"})
		return
	}

	removed, err := h.gate.ResetLimits(c.Request.Context(), req.Subject, req.Endpoint)
	if err != nil {
		log.Printf("[GUARD] limit reset failed: subject=%s err=%v", req.Subject, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reset failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"subject": req.Subject, "removed": removed})
}

// LiftBan removes an address ban ahead of its expiry.
func (h *AdminGuardHandler) LiftBan(c *gin.Context) {
	ip := strings.TrimSpace(c.Param("ip"))
	if ip == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ip is required"})
		return
	}
	if err := h.gate.LiftBan(c.Request.Context(), ip); err != nil {
		log.Printf("[SECURITY] ban lift failed: ip=%s err=%v", ip, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lift failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ip": ip, "lifted": true})
}

// GetConfig returns the live guard settings.
func (h *AdminGuardHandler) GetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, h.gate.Config().Snapshot())
}

// UpdateConfig replaces the guard settings. The new table takes effect for
// subsequent decisions; in-flight windows and locks keep their old TTLs.
func (h *AdminGuardHandler) UpdateConfig(c *gin.Context) {
	s := h.gate.Config().Snapshot()
	if err := c.ShouldBindJSON(&s); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid settings payload"})
		return
	}
	if err := validateSettings(s); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.gate.Config().Update(s)
	log.Printf("[SECURITY] guard configuration updated by admin user_id=%v", c.GetUint("user_id"))
	c.JSON(http.StatusOK, s)
}
