package crm

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PGStore persists contacts and companies in PostgreSQL. The tenant
// predicate is always the first condition of every query; an empty tenant
// scope drops the predicate and is reserved for platform administrators.
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

// Contacts returns the contact persistence view of the store.
func (s *PGStore) Contacts() ContactStore { return &pgContacts{db: s.db} }

// Companies returns the company persistence view of the store.
func (s *PGStore) Companies() CompanyStore { return &pgCompanies{db: s.db} }

type pgContacts struct {
	db *sql.DB
}

var _ ContactStore = (*pgContacts)(nil)

const contactColumns = `id, tenant_id, owner_id, first_name, last_name, email, phone, coalesce(company_id, ''), tags, created_at, updated_at`

func (s *pgContacts) Create(ctx context.Context, c *Contact) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	tagsJSON, err := json.Marshal(c.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		insert into contacts (id, tenant_id, owner_id, first_name, last_name, email, phone, company_id, tags, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, c.ID, c.TenantID, c.OwnerID, c.FirstName, c.LastName, c.Email, c.Phone, nullIfEmpty(c.CompanyID), tagsJSON, c.CreatedAt, c.UpdatedAt)
	return err
}

func (s *pgContacts) Find(ctx context.Context, tenantID, id string) (*Contact, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	row := s.db.QueryRowContext(ctx, `
		select `+contactColumns+`
		from contacts
		where ($1 = '' or tenant_id = $1) and id = $2
	`, tenantID, id)
	return scanContact(row)
}

func (s *pgContacts) List(ctx context.Context, tenantID string, f ContactFilter) ([]*Contact, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	conds := []string{"($1 = '' or tenant_id = $1)"}
	args := []any{tenantID}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf("(first_name ilike $%d or last_name ilike $%d or email ilike $%d)", n, n, n))
	}
	if f.CompanyID != "" {
		args = append(args, f.CompanyID)
		conds = append(conds, fmt.Sprintf("company_id = $%d", len(args)))
	}
	if f.OwnerID != "" {
		args = append(args, f.OwnerID)
		conds = append(conds, fmt.Sprintf("owner_id = $%d", len(args)))
	}
	args = append(args, f.Skip, f.Limit)
	query := fmt.Sprintf(`
		select `+contactColumns+`
		from contacts
		where %s
		order by created_at desc
		offset $%d limit $%d
	`, strings.Join(conds, " and "), len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *pgContacts) Update(ctx context.Context, tenantID, id string, upd ContactUpdate) (*Contact, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	sets := []string{"updated_at = now()"}
	args := []any{tenantID, id}
	set := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if upd.FirstName != nil {
		set("first_name", *upd.FirstName)
	}
	if upd.LastName != nil {
		set("last_name", *upd.LastName)
	}
	if upd.Email != nil {
		set("email", *upd.Email)
	}
	if upd.Phone != nil {
		set("phone", *upd.Phone)
	}
	if upd.CompanyID != nil {
		set("company_id", nullIfEmpty(*upd.CompanyID))
	}
	if upd.Tags != nil {
		tagsJSON, err := json.Marshal(*upd.Tags)
		if err != nil {
			return nil, fmt.Errorf("marshal tags: %w", err)
		}
		set("tags", tagsJSON)
	}
	query := fmt.Sprintf(`
		update contacts
		set %s
		where ($1 = '' or tenant_id = $1) and id = $2
		returning `+contactColumns+`
	`, strings.Join(sets, ", "))
	return scanContact(s.db.QueryRowContext(ctx, query, args...))
}

func (s *pgContacts) Delete(ctx context.Context, tenantID, id string) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	res, err := s.db.ExecContext(ctx, `
		delete from contacts
		where ($1 = '' or tenant_id = $1) and id = $2
	`, tenantID, id)
	if err != nil {
		return err
	}
	return requireRowsAffected(res)
}

type pgCompanies struct {
	db *sql.DB
}

var _ CompanyStore = (*pgCompanies)(nil)

const companyColumns = `id, tenant_id, owner_id, name, domain, industry, size, created_at, updated_at`

func (s *pgCompanies) Create(ctx context.Context, c *Company) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	_, err := s.db.ExecContext(ctx, `
		insert into companies (id, tenant_id, owner_id, name, domain, industry, size, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, c.ID, c.TenantID, c.OwnerID, c.Name, c.Domain, c.Industry, c.Size, c.CreatedAt, c.UpdatedAt)
	return err
}

func (s *pgCompanies) Find(ctx context.Context, tenantID, id string) (*Company, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	row := s.db.QueryRowContext(ctx, `
		select `+companyColumns+`
		from companies
		where ($1 = '' or tenant_id = $1) and id = $2
	`, tenantID, id)
	return scanCompany(row)
}

func (s *pgCompanies) List(ctx context.Context, tenantID string, f CompanyFilter) ([]*Company, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	conds := []string{"($1 = '' or tenant_id = $1)"}
	args := []any{tenantID}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf("(name ilike $%d or domain ilike $%d)", n, n))
	}
	if f.Industry != "" {
		args = append(args, f.Industry)
		conds = append(conds, fmt.Sprintf("industry = $%d", len(args)))
	}
	args = append(args, f.Skip, f.Limit)
	query := fmt.Sprintf(`
		select `+companyColumns+`
		from companies
		where %s
		order by created_at desc
		offset $%d limit $%d
	`, strings.Join(conds, " and "), len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Company
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *pgCompanies) Update(ctx context.Context, tenantID, id string, upd CompanyUpdate) (*Company, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	sets := []string{"updated_at = now()"}
	args := []any{tenantID, id}
	set := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if upd.Name != nil {
		set("name", *upd.Name)
	}
	if upd.Domain != nil {
		set("domain", *upd.Domain)
	}
	if upd.Industry != nil {
		set("industry", *upd.Industry)
	}
	if upd.Size != nil {
		set("size", *upd.Size)
	}
	query := fmt.Sprintf(`
		update companies
		set %s
		where ($1 = '' or tenant_id = $1) and id = $2
		returning `+companyColumns+`
	`, strings.Join(sets, ", "))
	return scanCompany(s.db.QueryRowContext(ctx, query, args...))
}

func (s *pgCompanies) Delete(ctx context.Context, tenantID, id string) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	res, err := s.db.ExecContext(ctx, `
		delete from companies
		where ($1 = '' or tenant_id = $1) and id = $2
	`, tenantID, id)
	if err != nil {
		return err
	}
	return requireRowsAffected(res)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanContact(row scanner) (*Contact, error) {
	var (
		c        Contact
		tagsJSON []byte
	)
	err := row.Scan(&c.ID, &c.TenantID, &c.OwnerID, &c.FirstName, &c.LastName, &c.Email, &c.Phone, &c.CompanyID, &tagsJSON, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(tagsJSON) > 0 {
		if err := json.Unmarshal(tagsJSON, &c.Tags); err != nil {
			return nil, fmt.Errorf("decode tags: %w", err)
		}
	}
	return &c, nil
}

func scanCompany(row scanner) (*Company, error) {
	var c Company
	err := row.Scan(&c.ID, &c.TenantID, &c.OwnerID, &c.Name, &c.Domain, &c.Industry, &c.Size, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
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

func nullIfEmpty(s string) sql.NullString {
	s = strings.TrimSpace(s)
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
