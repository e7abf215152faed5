package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/fleetgrid-io/fleetgrid-ce/internal/models"
	"github.com/fleetgrid-io/fleetgrid-ce/internal/repository"
)

// DeviceHandler serves fleet device CRUD and the firmware heartbeat.
type DeviceHandler struct {
	devices *repository.DeviceRepository
}

func NewDeviceHandler(devices *repository.DeviceRepository) *DeviceHandler {
	return &DeviceHandler{devices: devices}
}

func (h *DeviceHandler) List(c *gin.Context) {
	var locationID *uint
	if raw := c.Query("location_id"); raw != "" {
		id, ok := parseUint(raw)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid location_id"})
			return
		}
		locationID = &id
	}

	devices, err := h.devices.List(c.Request.Context(), locationID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list devices"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"devices": devices, "count": len(devices)})
}

func (h *DeviceHandler) Get(c *gin.Context) {
	device, err := h.devices.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeRepoError(c, err, "device")
		return
	}
	c.JSON(http.StatusOK, device)
}

func (h *DeviceHandler) Create(c *gin.Context) {
	var req models.CreateDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	device := &models.Device{
		ID:          uuid.NewString(),
		Name:        req.Name,
		Kind:        req.Kind,
		LocationID:  req.LocationID,
		FirmwareRev: req.FirmwareRev,
		Status:      "offline",
	}
	if err := h.devices.Create(c.Request.Context(), device); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create device"})
		return
	}
	c.JSON(http.StatusCreated, device)
}

func (h *DeviceHandler) Update(c *gin.Context) {
	var req models.UpdateDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	device, err := h.devices.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeRepoError(c, err, "device")
		return
	}

	if req.Name != "" {
		device.Name = req.Name
	}
	if req.Kind != "" {
		device.Kind = req.Kind
	}
	if req.LocationID != nil {
		device.LocationID = req.LocationID
	}
	if req.FirmwareRev != "" {
		device.FirmwareRev = req.FirmwareRev
	}
	if req.Status != "" {
		device.Status = req.Status
	}

	if err := h.devices.Update(c.Request.Context(), device); err != nil {
		writeRepoError(c, err, "device")
		return
	}
	c.JSON(http.StatusOK, device)
}

func (h *DeviceHandler) Delete(c *gin.Context) {
	if err := h.devices.Delete(c.Request.Context(), c.Param("id")); err != nil {
		writeRepoError(c, err, "device")
		return
	}
	c.Status(http.StatusNoContent)
}

// Heartbeat marks a device as seen. Called by the device ingestion path, so
// it sits behind the device-command quota rather than a dashboard role.
func (h *DeviceHandler) Heartbeat(c *gin.Context) {
	id := c.Param("id")
	if err := h.devices.TouchHeartbeat(c.Request.Context(), id, time.Now()); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "device not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "heartbeat failed"})
		return
	}
	c.Status(http.StatusNoContent)
}
