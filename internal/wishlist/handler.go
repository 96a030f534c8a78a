package wishlist

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"proteinmap/internal/auth"
	"proteinmap/pkg/models"
)

// DishLoader decorates wishlist entries with the current dish state.
type DishLoader interface {
	GetMany(ctx context.Context, ids []string) ([]models.Dish, error)
}

type Handler struct {
	Repo   *Repo
	Dishes DishLoader
	Log    logrus.FieldLogger
}

func NewHandler(repo *Repo, dishes DishLoader, log logrus.FieldLogger) *Handler {
	return &Handler{Repo: repo, Dishes: dishes, Log: log}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/users/wishlist", h.list)
	rg.POST("/users/wishlist", h.add)
	rg.DELETE("/users/wishlist/:dish_id", h.remove)
}

type addReq struct {
	DishID string `json:"dishId"`
}

func (h *Handler) add(c *gin.Context) {
	userID := auth.CurrentUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req addReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	dishID := strings.TrimSpace(req.DishID)
	if dishID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "dishId required"})
		return
	}

	ctx := c.Request.Context()
	exists, err := h.Repo.DishExists(ctx, dishID)
	if err != nil {
		h.Log.WithError(err).Error("wishlist dish lookup failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save failed"})
		return
	}
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "dish not found"})
		return
	}

	added, err := h.Repo.Add(ctx, userID, dishID)
	if err != nil {
		h.Log.WithError(err).Error("wishlist add failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save failed"})
		return
	}

	status := http.StatusOK
	if added {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"message": "saved", "dishId": dishID})
}

func (h *Handler) list(c *gin.Context) {
	userID := auth.CurrentUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	limit := parseInt(c.Query("limit"), 20)
	offset := parseInt(c.Query("offset"), 0)

	ctx := c.Request.Context()
	items, total, err := h.Repo.List(ctx, userID, limit, offset)
	if err != nil {
		h.Log.WithError(err).Error("wishlist list failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}

	if h.Dishes != nil && len(items) > 0 {
		ids := make([]string, len(items))
		for i := range items {
			ids[i] = items[i].DishID
		}
		dishes, err := h.Dishes.GetMany(ctx, ids)
		if err != nil {
			h.Log.WithError(err).Error("wishlist dish load failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
			return
		}
		byID := make(map[string]*models.Dish, len(dishes))
		for i := range dishes {
			byID[dishes[i].ID] = &dishes[i]
		}
		for i := range items {
			items[i].Dish = byID[items[i].DishID]
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"total":  total,
		"limit":  limit,
		"offset": offset,
		"items":  items,
	})
}

func (h *Handler) remove(c *gin.Context) {
	userID := auth.CurrentUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	dishID := strings.TrimSpace(c.Param("dish_id"))
	ok, err := h.Repo.Delete(c.Request.Context(), userID, dishID)
	if err != nil {
		h.Log.WithError(err).Error("wishlist delete failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}

func parseInt(s string, def int) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
