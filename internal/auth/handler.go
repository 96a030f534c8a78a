package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"proteinmap/internal/invites"
	"proteinmap/internal/ratelimit"
	"proteinmap/pkg/database"
	"proteinmap/pkg/models"
	"proteinmap/pkg/utils"
)

type Handler struct {
	Repo    *Repo
	Invites *invites.Repo
	OTP     *OTPStore
	Sender  OTPSender
	Limiter ratelimit.Limiter
	Tokens  TokenService
	Limits  utils.RateLimitConfig
	Log     logrus.FieldLogger

	// InvitesPerUser is how many codes a new member receives.
	InvitesPerUser int
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	authed := AuthMiddleware(h.Tokens, h.Repo)

	rg.POST("/auth/otp/request", h.requestOTP)
	rg.POST("/auth/otp/verify", h.verifyOTP)
	rg.POST("/auth/logout", authed, h.logout)
	rg.GET("/users/me", authed, h.me)
	rg.GET("/users/invites", authed, h.myInvites)
}

type otpRequestReq struct {
	Identifier string `json:"identifier"`
}

func (h *Handler) requestOTP(c *gin.Context) {
	var req otpRequestReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	id, err := ParseIdentifier(req.Identifier)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	if !h.allow(ctx, "otp:id:"+id.Value, h.Limits.OTPPerIdentifier) ||
		!h.allow(ctx, "otp:ip:"+c.ClientIP(), h.Limits.OTPPerIP) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many requests, try again later"})
		return
	}

	code, err := h.OTP.Issue(ctx, id)
	if err != nil {
		h.Log.WithError(err).Error("issue otp failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not issue code"})
		return
	}
	if err := h.Sender.Send(ctx, id, code); err != nil {
		h.Log.WithError(err).WithField("kind", id.Kind).Error("send otp failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "could not send code"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "code sent", "expires_in": int(h.OTP.TTL.Seconds())})
}

// allow fails open when the limiter backend is unavailable.
func (h *Handler) allow(ctx context.Context, key string, max int) bool {
	if h.Limiter == nil || max <= 0 {
		return true
	}
	ok, err := h.Limiter.Allow(ctx, key, max, h.Limits.Window)
	if err != nil {
		h.Log.WithError(err).WithField("key", key).Warn("rate limiter unavailable")
		return true
	}
	return ok
}

type otpVerifyReq struct {
	Identifier  string `json:"identifier"`
	Code        string `json:"code"`
	InviteCode  string `json:"inviteCode"`
	DisplayName string `json:"displayName"`
}

func (h *Handler) verifyOTP(c *gin.Context) {
	var req otpVerifyReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	id, err := ParseIdentifier(req.Identifier)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	code := strings.TrimSpace(req.Code)
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "code required"})
		return
	}

	ctx := c.Request.Context()
	switch err := h.OTP.Verify(ctx, id, code); {
	case errors.Is(err, ErrOTPTooManyAttempts):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
		return
	case errors.Is(err, ErrOTPInvalid):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	case err != nil:
		h.Log.WithError(err).Error("verify otp failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "verify failed"})
		return
	}

	u, err := h.Repo.GetByIdentifier(ctx, id)
	if err != nil {
		h.Log.WithError(err).Error("lookup user failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}

	status := http.StatusOK
	var minted []string
	if u == nil {
		u, minted, err = h.signup(ctx, id, req.DisplayName, req.InviteCode)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		status = http.StatusCreated
	}

	token, exp, err := h.Tokens.Sign(u)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token failed"})
		return
	}

	resp := gin.H{
		"user":       u,
		"token":      token,
		"expires_at": exp.UTC().Format(time.RFC3339),
	}
	if minted != nil {
		resp["invites"] = minted
	}
	c.JSON(status, resp)
}

// signup creates the user, consumes the invite and mints the new member's
// codes in one transaction.
func (h *Handler) signup(ctx context.Context, id Identifier, displayName, inviteCode string) (*models.User, []string, error) {
	if invites.Normalize(inviteCode) == "" {
		return nil, nil, utils.Forbidden("an invite code is required to join")
	}

	u := &models.User{
		ID:          uuid.NewString(),
		DisplayName: defaultDisplayName(displayName, id),
		CreatedAt:   time.Now().UTC(),
	}
	value := id.Value
	if id.Kind == KindEmail {
		u.Email = &value
	} else {
		u.Phone = &value
	}

	tx, err := h.Repo.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin signup: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := h.Repo.CreateUser(ctx, tx, u); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, nil, utils.NewDomainError(http.StatusConflict, "CONFLICT", "account already exists")
		}
		return nil, nil, err
	}
	if err := h.Invites.Consume(ctx, tx, inviteCode, u.ID); err != nil {
		if errors.Is(err, invites.ErrInvalidInvite) {
			return nil, nil, utils.Forbidden(err.Error())
		}
		return nil, nil, err
	}
	minted, err := h.Invites.Mint(ctx, tx, u.ID, h.InvitesPerUser)
	if err != nil {
		return nil, nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit signup: %w", err)
	}

	h.Log.WithFields(logrus.Fields{"user_id": u.ID, "kind": id.Kind}).Info("user signed up")
	return u, minted, nil
}

const maxDisplayName = 60

func defaultDisplayName(name string, id Identifier) string {
	name = strings.TrimSpace(name)
	if r := []rune(name); len(r) > maxDisplayName {
		name = strings.TrimSpace(string(r[:maxDisplayName]))
	}
	if name != "" {
		return name
	}
	if id.Kind == KindEmail {
		return id.Value[:strings.Index(id.Value, "@")]
	}
	return "Member"
}

func (h *Handler) logout(c *gin.Context) {
	claims := MustGetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	if err := h.Repo.BumpTokenVersion(c.Request.Context(), claims.UserID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "logout failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "logged out"})
}

func (h *Handler) me(c *gin.Context) {
	claims := MustGetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	u, err := h.Repo.GetByID(c.Request.Context(), claims.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get user failed"})
		return
	}
	if u == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, u)
}

func (h *Handler) myInvites(c *gin.Context) {
	claims := MustGetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	items, err := h.Invites.ListByOwner(c.Request.Context(), claims.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}
