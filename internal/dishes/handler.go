package dishes

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"proteinmap/internal/auth"
	"proteinmap/pkg/utils"
)

const defaultRadiusKm = 10

type Handler struct {
	Service *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{Service: svc}
}

// RegisterRoutes mounts reads on public and writes on authed.
func (h *Handler) RegisterRoutes(public, authed *gin.RouterGroup) {
	public.GET("/dishes", h.list)
	public.GET("/dishes/:id", h.get)

	authed.POST("/dishes", h.create)
	authed.PUT("/dishes/:id", h.update)
	authed.DELETE("/dishes/:id", h.remove)
	authed.PUT("/dishes/:id/image", h.uploadImage)
}

func (h *Handler) list(c *gin.Context) {
	q := ListQuery{
		City:          c.Query("city"),
		ProteinSource: c.Query("protein"),
		Q:             c.Query("q"),
		MinPrice:      parseIntPtr(c.Query("minPrice")),
		MaxPrice:      parseIntPtr(c.Query("maxPrice")),
		Lat:           parseFloatPtr(c.Query("lat")),
		Lon:           parseFloatPtr(c.Query("lon")),
		Limit:         parseInt(c.Query("limit"), 20),
		Offset:        parseInt(c.Query("offset"), 0),
	}
	if r := parseFloatPtr(c.Query("radiusKm")); r != nil {
		q.RadiusKm = *r
	}
	if q.Lat != nil && (*q.Lat < -90 || *q.Lat > 90) || q.Lon != nil && (*q.Lon < -180 || *q.Lon > 180) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "lat/lon out of range"})
		return
	}
	if q.Lat != nil && q.Lon != nil && q.RadiusKm <= 0 {
		q.RadiusKm = defaultRadiusKm
	}

	q.clamp()

	items, total, err := h.Service.List(c.Request.Context(), q)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"total":  total,
		"limit":  q.Limit,
		"offset": q.Offset,
		"items":  items,
	})
}

func (h *Handler) get(c *gin.Context) {
	d, err := h.Service.Get(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *Handler) create(c *gin.Context) {
	userID := auth.CurrentUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var in CreateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	d, err := h.Service.Create(c.Request.Context(), userID, in)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, d)
}

func (h *Handler) update(c *gin.Context) {
	userID := auth.CurrentUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var in DishInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	d, err := h.Service.Update(c.Request.Context(), userID, strings.TrimSpace(c.Param("id")), in)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *Handler) remove(c *gin.Context) {
	userID := auth.CurrentUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	if err := h.Service.Delete(c.Request.Context(), userID, strings.TrimSpace(c.Param("id"))); err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}

func (h *Handler) uploadImage(c *gin.Context) {
	userID := auth.CurrentUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxImageBytes+1<<20)
	fh, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image file required"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read image"})
		return
	}
	defer f.Close()

	d, err := h.Service.SetImage(c.Request.Context(), userID, strings.TrimSpace(c.Param("id")), f, fh.Size)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
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

func parseIntPtr(s string) *int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return nil
	}
	return &n
}

func parseFloatPtr(s string) *float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return nil
	}
	return &f
}
