package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fleetgrid-io/fleetgrid-ce/internal/models"
	"github.com/fleetgrid-io/fleetgrid-ce/internal/repository"
)

// LocationHandler serves site CRUD.
type LocationHandler struct {
	locations *repository.LocationRepository
}

func NewLocationHandler(locations *repository.LocationRepository) *LocationHandler {
	return &LocationHandler{locations: locations}
}

func (h *LocationHandler) List(c *gin.Context) {
	locs, err := h.locations.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list locations"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"locations": locs, "count": len(locs)})
}

func (h *LocationHandler) Get(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	loc, err := h.locations.GetByID(c.Request.Context(), id)
	if err != nil {
		writeRepoError(c, err, "location")
		return
	}
	c.JSON(http.StatusOK, loc)
}

func (h *LocationHandler) Create(c *gin.Context) {
	var req models.LocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	loc := &models.Location{Name: req.Name, Address: req.Address, Timezone: req.Timezone}
	if loc.Timezone == "" {
		loc.Timezone = "UTC"
	}
	if err := h.locations.Create(c.Request.Context(), loc); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create location"})
		return
	}
	c.JSON(http.StatusCreated, loc)
}

func (h *LocationHandler) Update(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req models.LocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	loc, err := h.locations.GetByID(c.Request.Context(), id)
	if err != nil {
		writeRepoError(c, err, "location")
		return
	}
	loc.Name = req.Name
	if req.Address != "" {
		loc.Address = req.Address
	}
	if req.Timezone != "" {
		loc.Timezone = req.Timezone
	}

	if err := h.locations.Update(c.Request.Context(), loc); err != nil {
		writeRepoError(c, err, "location")
		return
	}
	c.JSON(http.StatusOK, loc)
}

func (h *LocationHandler) Delete(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.locations.Delete(c.Request.Context(), id); err != nil {
		writeRepoError(c, err, "location")
		return
	}
	c.Status(http.StatusNoContent)
}
