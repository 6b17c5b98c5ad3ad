package identity

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const pgErrUniqueViolation = "23505"

// PGStore persists users and tenants in PostgreSQL. Role lists are stored
// as jsonb so role vocabulary changes never require a schema migration.
type PGStore struct {
	db *sql.DB
}

// NewPGStore wraps an open database handle.
func NewPGStore(db *sql.DB) *PGStore { return &PGStore{db: db} }

// OpenPG opens a pooled connection using the pgx stdlib driver.
func OpenPG(dsn string) (*PGStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &PGStore{db: db}, nil
}

func (s *PGStore) Close() error { return s.db.Close() }

func (s *PGStore) DB() *sql.DB { return s.db }

// Users returns the user persistence view of the store.
func (s *PGStore) Users() UserStore { return &pgUsers{db: s.db} }

// Tenants returns the tenant persistence view of the store.
func (s *PGStore) Tenants() TenantStore { return &pgTenants{db: s.db} }

type pgUsers struct {
	db *sql.DB
}

var _ UserStore = (*pgUsers)(nil)

const userColumns = `id, email, username, password_hash, full_name, is_active, roles, coalesce(tenant_id, ''), last_login_at, created_at, updated_at`

func (s *pgUsers) Create(ctx context.Context, u *User) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	rolesJSON, err := json.Marshal(u.Roles)
	if err != nil {
		return fmt.Errorf("marshal roles: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		insert into users (id, email, username, password_hash, full_name, is_active, roles, tenant_id, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, u.ID, u.Email, u.Username, u.PasswordHash, u.FullName, u.IsActive, rolesJSON, nullIfEmpty(u.TenantID), u.CreatedAt, u.UpdatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return ErrAlreadyExists
		}
		return err
	}
	return nil
}

func (s *pgUsers) Find(ctx context.Context, id string) (*User, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	row := s.db.QueryRowContext(ctx, `
		select `+userColumns+`
		from users
		where id = $1
	`, id)
	return scanUser(row)
}

func (s *pgUsers) FindByLogin(ctx context.Context, login string) (*User, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	row := s.db.QueryRowContext(ctx, `
		select `+userColumns+`
		from users
		where email = $1 or username = $1
	`, strings.TrimSpace(login))
	return scanUser(row)
}

func (s *pgUsers) ListByTenant(ctx context.Context, tenantID string, skip, limit int) ([]*User, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select `+userColumns+`
		from users
		where tenant_id = $1
		order by created_at desc
		offset $2 limit $3
	`, tenantID, skip, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *pgUsers) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	res, err := s.db.ExecContext(ctx, `
		update users
		set password_hash = $2, updated_at = now()
		where id = $1
	`, userID, passwordHash)
	if err != nil {
		return err
	}
	return requireRowsAffected(res)
}

func (s *pgUsers) UpdateLastLogin(ctx context.Context, userID string, at time.Time) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	res, err := s.db.ExecContext(ctx, `
		update users
		set last_login_at = $2
		where id = $1
	`, userID, at)
	if err != nil {
		return err
	}
	return requireRowsAffected(res)
}

type pgTenants struct {
	db *sql.DB
}

var _ TenantStore = (*pgTenants)(nil)

func (s *pgTenants) Create(ctx context.Context, t *Tenant) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	_, err := s.db.ExecContext(ctx, `
		insert into tenants (id, name, slug, plan, status, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7)
	`, t.ID, t.Name, t.Slug, t.Plan, t.Status, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return ErrAlreadyExists
		}
		return err
	}
	return nil
}

func (s *pgTenants) Find(ctx context.Context, id string) (*Tenant, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	return scanTenant(s.db.QueryRowContext(ctx, `
		select id, name, slug, plan, status, created_at, updated_at
		from tenants
		where id = $1
	`, id))
}

func (s *pgTenants) FindBySlug(ctx context.Context, slug string) (*Tenant, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	return scanTenant(s.db.QueryRowContext(ctx, `
		select id, name, slug, plan, status, created_at, updated_at
		from tenants
		where slug = $1
	`, strings.ToLower(strings.TrimSpace(slug))))
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (*User, error) {
	var (
		u         User
		rolesJSON []byte
		lastLogin sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.FullName, &u.IsActive, &rolesJSON, &u.TenantID, &lastLogin, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(rolesJSON) > 0 {
		if err := json.Unmarshal(rolesJSON, &u.Roles); err != nil {
			return nil, fmt.Errorf("decode roles: %w", err)
		}
	}
	if lastLogin.Valid {
		at := lastLogin.Time
		u.LastLoginAt = &at
	}
	return &u, nil
}

func scanTenant(row scanner) (*Tenant, error) {
	var t Tenant
	err := row.Scan(&t.ID, &t.Name, &t.Slug, &t.Plan, &t.Status, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func requireRowsAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

func nullIfEmpty(s string) sql.NullString {
	s = strings.TrimSpace(s)
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
