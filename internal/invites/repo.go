package invites

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base32"
	"errors"
	"fmt"
	"strings"

	"proteinmap/pkg/database"
	"proteinmap/pkg/models"
)

var ErrInvalidInvite = errors.New("invite code is invalid or already used")

type Repo struct {
	DB *sql.DB
}

func NewRepo(db *sql.DB) *Repo {
	return &Repo{DB: db}
}

// Consume flips an unused code to used. Only one caller can win a given code;
// the rest get ErrInvalidInvite.
func (r *Repo) Consume(ctx context.Context, ex database.DBTX, code, userID string) error {
	code = Normalize(code)
	res, err := ex.ExecContext(ctx, `
		UPDATE invite_codes
		SET is_used = TRUE, used_by = $1, used_at = CURRENT_TIMESTAMP
		WHERE code = $2 AND is_used = FALSE
	`, userID, code)
	if err != nil {
		return fmt.Errorf("consume invite: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("consume invite rows: %w", err)
	}
	if n == 0 {
		return ErrInvalidInvite
	}
	return nil
}

// Mint creates n fresh codes owned by ownerID.
func (r *Repo) Mint(ctx context.Context, ex database.DBTX, ownerID string, n int) ([]string, error) {
	codes := make([]string, 0, n)
	for i := 0; i < n; i++ {
		code, err := newCode()
		if err != nil {
			return nil, err
		}
		if _, err := ex.ExecContext(ctx, `
			INSERT INTO invite_codes (code, owner_id) VALUES ($1, $2)
		`, code, ownerID); err != nil {
			return nil, fmt.Errorf("mint invite: %w", err)
		}
		codes = append(codes, code)
	}
	return codes, nil
}

// EnsureBootstrap inserts an ownerless code so the first user can sign up.
func (r *Repo) EnsureBootstrap(ctx context.Context, code string) error {
	code = Normalize(code)
	if code == "" {
		return nil
	}
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO invite_codes (code) VALUES ($1)
		ON CONFLICT (code) DO NOTHING
	`, code)
	if err != nil {
		return fmt.Errorf("ensure bootstrap invite: %w", err)
	}
	return nil
}

func (r *Repo) ListByOwner(ctx context.Context, ownerID string) ([]models.InviteCode, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT code, owner_id, is_used, used_by, created_at, used_at
		FROM invite_codes
		WHERE owner_id = $1
		ORDER BY created_at, code
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list invites: %w", err)
	}
	defer rows.Close()

	out := []models.InviteCode{}
	for rows.Next() {
		var (
			ic     models.InviteCode
			owner  sql.NullString
			usedBy sql.NullString
			usedAt sql.NullTime
		)
		if err := rows.Scan(&ic.Code, &owner, &ic.IsUsed, &usedBy, &ic.CreatedAt, &usedAt); err != nil {
			return nil, fmt.Errorf("scan invite: %w", err)
		}
		if owner.Valid {
			ic.OwnerID = &owner.String
		}
		if usedBy.Valid {
			ic.UsedBy = &usedBy.String
		}
		if usedAt.Valid {
			t := usedAt.Time
			ic.UsedAt = &t
		}
		out = append(out, ic)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows err: %w", err)
	}
	return out, nil
}

func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

var codeEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

func newCode() (string, error) {
	b := make([]byte, 5)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate invite code: %w", err)
	}
	return codeEncoding.EncodeToString(b), nil
}
