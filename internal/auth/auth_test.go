package auth

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"proteinmap/internal/invites"
	"proteinmap/internal/ratelimit"
	"proteinmap/internal/testutil"
	"proteinmap/pkg/logging"
	"proteinmap/pkg/models"
	"proteinmap/pkg/utils"
)

type captureSender struct {
	codes map[string]string
}

func (s *captureSender) Send(_ context.Context, id Identifier, code string) error {
	s.codes[id.Value] = code
	return nil
}

type fixture struct {
	handler *Handler
	db      *sql.DB
	router  *gin.Engine
	sender  *captureSender
	invites *invites.Repo
	redis   *miniredis.Miniredis
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.OpenDB(t)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	otp := NewOTPStore(client, 10*time.Minute, 3)
	otp.Cost = bcrypt.MinCost

	sender := &captureSender{codes: map[string]string{}}
	inv := invites.NewRepo(db)
	h := &Handler{
		Repo:    NewRepo(db),
		Invites: inv,
		OTP:     otp,
		Sender:  sender,
		Limiter: ratelimit.NewRedis(client),
		Tokens:  TokenService{Secret: []byte("test-secret"), Issuer: "proteinmap", Duration: time.Hour},
		Limits:  utils.RateLimitConfig{OTPPerIdentifier: 3, OTPPerIP: 100, Window: time.Minute},
		Log:     logging.Discard(),

		InvitesPerUser: 3,
	}

	r := gin.New()
	h.RegisterRoutes(r.Group("/"))
	return &fixture{handler: h, db: db, router: r, sender: sender, invites: inv, redis: mr}
}

func (f *fixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

type verifyResp struct {
	User    models.User `json:"user"`
	Token   string      `json:"token"`
	Invites []string    `json:"invites"`
}

func TestSignupWithInviteThenLogin(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.invites.EnsureBootstrap(context.Background(), "WELCOME1"))

	w := f.do(t, http.MethodPost, "/auth/otp/request", "", gin.H{"identifier": "Asha@Example.com"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	code := f.sender.codes["asha@example.com"]
	require.Len(t, code, 6)

	w = f.do(t, http.MethodPost, "/auth/otp/verify", "", gin.H{
		"identifier": "asha@example.com", "code": code, "inviteCode": "welcome1", "displayName": "Asha",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var signup verifyResp
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &signup))
	assert.Equal(t, "Asha", signup.User.DisplayName)
	assert.Len(t, signup.Invites, 3)
	require.NotEmpty(t, signup.Token)

	w = f.do(t, http.MethodGet, "/users/invites", signup.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Items []models.InviteCode `json:"items"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list.Items, 3)

	// the bootstrap code is spent
	w = f.do(t, http.MethodPost, "/auth/otp/request", "", gin.H{"identifier": "ravi@example.com"})
	require.Equal(t, http.StatusOK, w.Code)
	w = f.do(t, http.MethodPost, "/auth/otp/verify", "", gin.H{
		"identifier": "ravi@example.com", "code": f.sender.codes["ravi@example.com"], "inviteCode": "WELCOME1",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)

	// existing users log in without an invite
	w = f.do(t, http.MethodPost, "/auth/otp/request", "", gin.H{"identifier": "asha@example.com"})
	require.Equal(t, http.StatusOK, w.Code)
	w = f.do(t, http.MethodPost, "/auth/otp/verify", "", gin.H{
		"identifier": "asha@example.com", "code": f.sender.codes["asha@example.com"],
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var login verifyResp
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &login))
	assert.Equal(t, signup.User.ID, login.User.ID)
	assert.Nil(t, login.Invites)
}

func TestSignupRequiresInvite(t *testing.T) {
	f := newFixture(t)

	f.do(t, http.MethodPost, "/auth/otp/request", "", gin.H{"identifier": "9876543210"})
	code := f.sender.codes["+919876543210"]
	require.NotEmpty(t, code)

	w := f.do(t, http.MethodPost, "/auth/otp/verify", "", gin.H{"identifier": "+91 98765 43210", "code": code})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestVerifyRejectsWrongCodeAndLocksOut(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, "/auth/otp/request", "", gin.H{"identifier": "asha@example.com"})
	code := f.sender.codes["asha@example.com"]

	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	for i := 0; i < 3; i++ {
		w := f.do(t, http.MethodPost, "/auth/otp/verify", "", gin.H{"identifier": "asha@example.com", "code": wrong})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	}
	w := f.do(t, http.MethodPost, "/auth/otp/verify", "", gin.H{"identifier": "asha@example.com", "code": code})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	// the code was discarded with the lockout
	w = f.do(t, http.MethodPost, "/auth/otp/verify", "", gin.H{"identifier": "asha@example.com", "code": code})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestOTPExpires(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, "/auth/otp/request", "", gin.H{"identifier": "asha@example.com"})
	code := f.sender.codes["asha@example.com"]

	f.redis.FastForward(11 * time.Minute)
	w := f.do(t, http.MethodPost, "/auth/otp/verify", "", gin.H{"identifier": "asha@example.com", "code": code})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequestOTPRateLimited(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 3; i++ {
		w := f.do(t, http.MethodPost, "/auth/otp/request", "", gin.H{"identifier": "asha@example.com"})
		require.Equal(t, http.StatusOK, w.Code)
	}
	w := f.do(t, http.MethodPost, "/auth/otp/request", "", gin.H{"identifier": "asha@example.com"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	w = f.do(t, http.MethodPost, "/auth/otp/request", "", gin.H{"identifier": "nope"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLogoutRevokesToken(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.invites.EnsureBootstrap(context.Background(), "WELCOME1"))
	f.do(t, http.MethodPost, "/auth/otp/request", "", gin.H{"identifier": "asha@example.com"})
	w := f.do(t, http.MethodPost, "/auth/otp/verify", "", gin.H{
		"identifier": "asha@example.com", "code": f.sender.codes["asha@example.com"], "inviteCode": "WELCOME1",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var resp verifyResp
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	w = f.do(t, http.MethodGet, "/users/me", resp.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodPost, "/auth/logout", resp.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/users/me", resp.Token, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(t, http.MethodGet, "/users/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestParseIdentifier(t *testing.T) {
	cases := []struct {
		in   string
		want Identifier
		ok   bool
	}{
		{"Asha@Example.com", Identifier{KindEmail, "asha@example.com"}, true},
		{"9876543210", Identifier{KindPhone, "+919876543210"}, true},
		{"+1 415-555-0100", Identifier{KindPhone, "+14155550100"}, true},
		{"12345", Identifier{}, false},
		{"not an email@", Identifier{}, false},
		{"98765x43210", Identifier{}, false},
		{"", Identifier{}, false},
	}
	for _, tc := range cases {
		got, err := ParseIdentifier(tc.in)
		if !tc.ok {
			assert.Error(t, err, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got)
	}
}

func TestTokenRoundTripAndTamper(t *testing.T) {
	ts := TokenService{Secret: []byte("s1"), Issuer: "proteinmap", Duration: time.Hour}
	tok, _, err := ts.Sign(&models.User{ID: "u1", DisplayName: "Asha", TokenVersion: 2})
	require.NoError(t, err)

	claims, err := ts.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, 2, claims.TokenVersion)

	other := TokenService{Secret: []byte("s2"), Issuer: "proteinmap", Duration: time.Hour}
	_, err = other.Parse(tok)
	assert.Error(t, err)

	expired := TokenService{Secret: []byte("s1"), Issuer: "proteinmap", Duration: -time.Minute}
	tok, _, err = expired.Sign(&models.User{ID: "u1"})
	require.NoError(t, err)
	_, err = ts.Parse(tok)
	assert.Error(t, err)
}

func TestSignupConflictOnlyForDuplicateAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.invites.EnsureBootstrap(ctx, "FOUNDER1"))
	require.NoError(t, f.invites.EnsureBootstrap(ctx, "FOUNDER2"))

	id := Identifier{Kind: KindEmail, Value: "dup@example.com"}
	_, _, err := f.handler.signup(ctx, id, "first", "FOUNDER1")
	require.NoError(t, err)

	_, _, err = f.handler.signup(ctx, id, "second", "FOUNDER2")
	var de *utils.DomainError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, http.StatusConflict, de.Status)

	// storage failures are not reported as conflicts
	_, err = f.db.Exec(`ALTER TABLE users RENAME TO users_gone`)
	require.NoError(t, err)
	_, _, err = f.handler.signup(ctx, Identifier{Kind: KindEmail, Value: "new@example.com"}, "", "FOUNDER2")
	require.Error(t, err)
	assert.False(t, errors.As(err, &de), "got domain error %v", err)
}

func TestDefaultDisplayNameTruncatesOnRunes(t *testing.T) {
	long := strings.Repeat("é", 59) + "टेस्ट"
	name := defaultDisplayName(long, Identifier{Kind: KindPhone, Value: "+919800000000"})
	assert.True(t, utf8.ValidString(name))
	assert.Equal(t, maxDisplayName, utf8.RuneCountInString(name))

	assert.Equal(t, "asha", defaultDisplayName("  ", Identifier{Kind: KindEmail, Value: "asha@example.com"}))
	assert.Equal(t, "Member", defaultDisplayName("", Identifier{Kind: KindPhone, Value: "+919800000000"}))
}
