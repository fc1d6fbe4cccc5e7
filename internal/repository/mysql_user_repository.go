package repository // MySQL driver of the user store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/glukogo/authsvc/internal/model"
)

// UsersSchema creates the `users` table used by MySQLUserRepo.  Fallback ids
// are longer than 12 digits, hence VARCHAR(24).
const UsersSchema = `CREATE TABLE IF NOT EXISTS users (
	id            VARCHAR(24)  NOT NULL PRIMARY KEY,
	email         VARCHAR(255) NOT NULL,
	password_hash VARCHAR(255) NULL,
	name          VARCHAR(255) NOT NULL DEFAULT '',
	role          VARCHAR(16)  NOT NULL DEFAULT 'user',
	glukocoins    BIGINT       NOT NULL DEFAULT 0,
	rewards       JSON         NOT NULL,
	vk_id         VARCHAR(64)  NULL,
	yandex_id     VARCHAR(64)  NULL,
	avatar        VARCHAR(512) NULL,
	location      JSON         NULL,
	created_at    DATETIME     NOT NULL,
	UNIQUE KEY email (email),
	KEY idx_users_vk (vk_id),
	KEY idx_users_yandex (yandex_id)
) CHARACTER SET utf8mb4`

const userColumns = "id,email,password_hash,name,role,glukocoins,rewards,vk_id,yandex_id,avatar,location,created_at"

// mysqlDuplicateEntry is ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

// MySQLUserRepo stores users in the MySQL `users` table.
type MySQLUserRepo struct{ DB *sql.DB }

func NewMySQLUserRepo(db *sql.DB) *MySQLUserRepo { return &MySQLUserRepo{DB: db} }

// EnsureSchema creates the users table when missing.
func (r *MySQLUserRepo) EnsureSchema(ctx context.Context) error {
	_, err := r.DB.ExecContext(ctx, UsersSchema)
	return err
}

func (r *MySQLUserRepo) MaxSequentialID(ctx context.Context) (string, error) {
	var id string
	err := r.DB.QueryRowContext(ctx,
		"SELECT id FROM users WHERE id REGEXP '^[0-9]{12}$' ORDER BY id DESC LIMIT 1").Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("db error: %w", err)
	}
	return id, nil
}

// Create inserts the user.  Duplicate email and duplicate id are told apart
// by the key named in the driver error.
func (r *MySQLUserRepo) Create(ctx context.Context, u *model.User) error {
	// Rewards and location are stored as JSON columns.
	rewards, err := json.Marshal(nonNil(u.Rewards))
	if err != nil {
		return err
	}
	var location []byte
	if u.Location != nil {
		if location, err = json.Marshal(u.Location); err != nil {
			return err
		}
	}
	_, err = r.DB.ExecContext(ctx,
		"INSERT INTO users ("+userColumns+") VALUES (?,?,?,?,?,?,?,?,?,?,?,?)",
		u.ID, u.Email, nullable(u.PasswordHash), u.Name, u.Role, u.Glukocoins, rewards,
		nullable(u.VKID), nullable(u.YandexID), nullable(u.Avatar), location, u.CreatedAt.UTC())
	if err != nil {
		// MySQL reports 1062 for any unique key; the message names it.
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == mysqlDuplicateEntry {
			if strings.Contains(me.Message, "PRIMARY") {
				return ErrIDConflict
			}
			return ErrEmailExists
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// GetByID fetches a user by id.
func (r *MySQLUserRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	return r.queryOne(ctx, "SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id)
}

// GetByEmail fetches a user by normalized email.
func (r *MySQLUserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return r.queryOne(ctx, "SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", email)
}

// providerColumns maps an OAuth provider to the column holding its user id.
var providerColumns = map[string]string{
	model.ProviderVK:     "vk_id",
	model.ProviderYandex: "yandex_id",
}

// GetByProvider fetches the user linked to a provider account.
func (r *MySQLUserRepo) GetByProvider(ctx context.Context, provider, providerID string) (*model.User, error) {
	column, ok := providerColumns[provider]
	if !ok || providerID == "" {
		return nil, ErrNotFound
	}
	return r.queryOne(ctx, "SELECT "+userColumns+" FROM users WHERE "+column+"=? LIMIT 1", providerID)
}

// List pages through users in id order.
func (r *MySQLUserRepo) List(ctx context.Context, limit, offset int) ([]model.User, error) {
	// A non-positive limit still needs a LIMIT clause for OFFSET.
	if limit <= 0 {
		limit = 1000
	}
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+userColumns+" FROM users ORDER BY id LIMIT ? OFFSET ?", limit, offset)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()
	// Non-nil so an empty page encodes as [].
	out := []model.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

func (r *MySQLUserRepo) UpdateName(ctx context.Context, id, name string) error {
	return r.exec(ctx, "UPDATE users SET name=? WHERE id=?", name, id)
}

func (r *MySQLUserRepo) UpdateRole(ctx context.Context, id, role string) error {
	return r.exec(ctx, "UPDATE users SET role=? WHERE id=?", role, id)
}

func (r *MySQLUserRepo) LinkProvider(ctx context.Context, id, provider, providerID string) error {
	column, ok := providerColumns[provider]
	if !ok {
		return ErrNotFound
	}
	return r.exec(ctx, "UPDATE users SET "+column+"=? WHERE id=?", providerID, id)
}

func (r *MySQLUserRepo) Delete(ctx context.Context, id string) error {
	return r.exec(ctx, "DELETE FROM users WHERE id=?", id)
}

// exec runs a single-row statement and reports ErrNotFound when no row
// matched.
func (r *MySQLUserRepo) exec(ctx context.Context, q string, args ...any) error {
	res, err := r.DB.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// queryOne scans at most one row into a user.
func (r *MySQLUserRepo) queryOne(ctx context.Context, q string, args ...any) (*model.User, error) {
	u, err := scanUser(r.DB.QueryRowContext(ctx, q, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return u, err
}

type scanner interface{ Scan(dest ...any) error }

func scanUser(s scanner) (*model.User, error) {
	var (
		u                              model.User
		password, vkID, yandexID, avat sql.NullString
		rewards, location              []byte
		createdAt                      time.Time
	)
	err := s.Scan(&u.ID, &u.Email, &password, &u.Name, &u.Role, &u.Glukocoins, &rewards,
		&vkID, &yandexID, &avat, &location, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	// NULL columns read back as empty strings.
	u.PasswordHash, u.VKID, u.YandexID, u.Avatar = password.String, vkID.String, yandexID.String, avat.String
	u.CreatedAt = createdAt
	if len(rewards) > 0 {
		if err := json.Unmarshal(rewards, &u.Rewards); err != nil {
			return nil, fmt.Errorf("decode rewards: %w", err)
		}
	}
	if len(location) > 0 {
		if err := json.Unmarshal(location, &u.Location); err != nil {
			return nil, fmt.Errorf("decode location: %w", err)
		}
	}
	return &u, nil
}

// nullable stores empty strings as NULL; a missing password or provider id
// is absent rather than blank.
func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
