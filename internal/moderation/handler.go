package moderation

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"proteinmap/internal/auth"
	"proteinmap/pkg/utils"
)

type Handler struct {
	Service *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{Service: svc}
}

// RegisterRoutes expects rg to already require authentication.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/moderation/reports", h.report)
}

type reportReq struct {
	RestaurantID string   `json:"restaurantId"`
	DeliveryApps []string `json:"deliveryApps"`
}

func (h *Handler) report(c *gin.Context) {
	userID := auth.CurrentUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req reportReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	res, err := h.Service.ReportApps(c.Request.Context(), req.RestaurantID, req.DeliveryApps, userID)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	resp := gin.H{
		"message":      message(res),
		"reportedApps": res.ReportedApps,
	}
	if len(res.RemovedApps) > 0 {
		resp["removedApps"] = res.RemovedApps
	}
	c.JSON(http.StatusOK, resp)
}

func message(res Result) string {
	if len(res.RemovedApps) > 0 {
		return "Report submitted. Removed " + strings.Join(res.RemovedApps, ", ") + " after multiple reports."
	}
	return "Report submitted. Thanks for keeping listings accurate."
}
