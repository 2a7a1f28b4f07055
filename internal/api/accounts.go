package api

import (
	"net/http"
	"strconv"

	"charging-service/internal/service"

	"github.com/gin-gonic/gin"
)

func (h *Handler) register(c *gin.Context) {
	var req service.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid registration details", err)
		return
	}

	user, err := h.accounts.Register(c.Request.Context(), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"userId": user.ID})
}

// login answers 401 for any credential failure
func (h *Handler) login(c *gin.Context) {
	var req service.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Missing username or password", err)
		return
	}

	resp, err := h.accounts.Login(c.Request.Context(), &req)
	if err != nil {
		if isNotAuthorized(err) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *Handler) getProfile(c *gin.Context) {
	userID := c.Param("userId")
	if !h.authorize(c, userID) {
		return
	}

	user, err := h.accounts.GetProfile(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *Handler) updateProfile(c *gin.Context) {
	userID := c.Param("userId")
	if !h.authorize(c, userID) {
		return
	}

	var req service.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid profile fields", err)
		return
	}

	user, err := h.accounts.UpdateProfile(c.Request.Context(), userID, &req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *Handler) listVehicles(c *gin.Context) {
	userID := c.Param("userId")
	if !h.authorize(c, userID) {
		return
	}

	vehicles, err := h.accounts.ListVehicles(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, vehicles)
}

func (h *Handler) addVehicle(c *gin.Context) {
	userID := c.Param("userId")
	if !h.authorize(c, userID) {
		return
	}

	var req service.VehicleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Vehicle make and model are required", err)
		return
	}

	vehicles, err := h.accounts.AddVehicle(c.Request.Context(), userID, &req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, vehicles)
}

func (h *Handler) deleteVehicle(c *gin.Context) {
	userID := c.Param("userId")
	if !h.authorize(c, userID) {
		return
	}

	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid vehicle index"})
		return
	}

	vehicles, err := h.accounts.DeleteVehicle(c.Request.Context(), userID, index)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, vehicles)
}
