package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrOTPInvalid         = errors.New("code is invalid or expired")
	ErrOTPTooManyAttempts = errors.New("too many attempts, request a new code")
)

// OTPStore keeps bcrypt hashes of one-time codes in Redis, one per identifier.
type OTPStore struct {
	Client      *redis.Client
	TTL         time.Duration
	MaxAttempts int
	Cost        int
}

func NewOTPStore(client *redis.Client, ttl time.Duration, maxAttempts int) *OTPStore {
	return &OTPStore{Client: client, TTL: ttl, MaxAttempts: maxAttempts, Cost: bcrypt.DefaultCost}
}

func otpKey(id Identifier) string      { return "otp:" + id.Value }
func attemptsKey(id Identifier) string { return "otp_attempts:" + id.Value }

// Issue generates a 6 digit code and replaces any outstanding one.
func (s *OTPStore) Issue(ctx context.Context, id Identifier) (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	code := fmt.Sprintf("%06d", n.Int64())

	hash, err := bcrypt.GenerateFromPassword([]byte(code), s.Cost)
	if err != nil {
		return "", fmt.Errorf("hash otp: %w", err)
	}

	pipe := s.Client.TxPipeline()
	pipe.Set(ctx, otpKey(id), hash, s.TTL)
	pipe.Del(ctx, attemptsKey(id))
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("store otp: %w", err)
	}
	return code, nil
}

// Verify checks code and deletes it on success so it cannot be replayed.
func (s *OTPStore) Verify(ctx context.Context, id Identifier, code string) error {
	hash, err := s.Client.Get(ctx, otpKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrOTPInvalid
	}
	if err != nil {
		return fmt.Errorf("load otp: %w", err)
	}

	attempts, err := s.Client.Incr(ctx, attemptsKey(id)).Result()
	if err != nil {
		return fmt.Errorf("count otp attempts: %w", err)
	}
	if attempts == 1 {
		_ = s.Client.Expire(ctx, attemptsKey(id), s.TTL).Err()
	}
	if s.MaxAttempts > 0 && attempts > int64(s.MaxAttempts) {
		_ = s.Client.Del(ctx, otpKey(id), attemptsKey(id)).Err()
		return ErrOTPTooManyAttempts
	}

	if err := bcrypt.CompareHashAndPassword(hash, []byte(code)); err != nil {
		return ErrOTPInvalid
	}

	if err := s.Client.Del(ctx, otpKey(id), attemptsKey(id)).Err(); err != nil {
		return fmt.Errorf("clear otp: %w", err)
	}
	return nil
}

// OTPSender delivers a code to the user. SMS and email gateways plug in here.
type OTPSender interface {
	Send(ctx context.Context, id Identifier, code string) error
}

// LogSender writes codes to the log; for local development only.
type LogSender struct {
	Log logrus.FieldLogger
}

func (s LogSender) Send(_ context.Context, id Identifier, code string) error {
	s.Log.WithFields(logrus.Fields{"kind": id.Kind, "to": id.Value, "code": code}).Info("otp issued")
	return nil
}
