package account

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store over PostgreSQL (<schema>.accounts).
//
// Design notes:
//   - The pgx pool is owned by the caller; this store must NOT close it.
//   - Schema/table identifiers are safely quoted to avoid SQL injection via identifiers.
//   - Email uniqueness is enforced by uq_accounts_email; violations map to ConflictError.
//   - Slot writes are single-row UPDATE statements, so concurrent logins resolve last-writer-wins.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// DefaultSchema is the schema created by the embedded migrations.
const DefaultSchema = "authgate"

// WithSchema sets the Postgres schema used by the store (default "authgate").
// The schema name is validated to be a legal PostgreSQL identifier.
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return fmt.Errorf("account: empty schema")
		}
		if !pgIdentIsValid(schema) {
			return fmt.Errorf("account: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: DefaultSchema,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, fmt.Errorf("account: nil pool")
	}
	return st, nil
}

const pgAccountColumns = `id, name, email, password_hash, role, active_credential, created_at`

func (s *PostgresStore) table() string { return pgIdent(s.schema, "accounts") }

// GetByID loads an account by id.
func (s *PostgresStore) GetByID(ctx context.Context, id string) (Account, error) {
	const op = "account.PostgresStore.GetByID"

	row := s.pool.QueryRow(ctx, `SELECT `+pgAccountColumns+` FROM `+s.table()+` WHERE id = $1`, id)
	a, err := pgScanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, NotFoundError{Op: op, ID: id}
	}
	if err != nil {
		return Account{}, backendError(op, err)
	}
	return a, nil
}

// GetByEmail loads an account by normalized email (indexed by uq_accounts_email).
func (s *PostgresStore) GetByEmail(ctx context.Context, email string) (Account, error) {
	const op = "account.PostgresStore.GetByEmail"

	row := s.pool.QueryRow(ctx, `SELECT `+pgAccountColumns+` FROM `+s.table()+` WHERE email = $1`, NormalizeEmail(email))
	a, err := pgScanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, NotFoundError{Op: op}
	}
	if err != nil {
		return Account{}, backendError(op, err)
	}
	return a, nil
}

// Insert creates the account row. The primary key and uq_accounts_email make it
// an atomic conditional insert.
func (s *PostgresStore) Insert(ctx context.Context, a Account) (Account, error) {
	const op = "account.PostgresStore.Insert"

	if err := validateNew(op, a); err != nil {
		return Account{}, err
	}
	a = a.clone()
	a.Email = NormalizeEmail(a.Email)
	a.CreatedAt = a.CreatedAt.UTC()

	_, err := s.pool.Exec(ctx, `
		INSERT INTO `+s.table()+` (`+pgAccountColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, a.ID, a.Name, a.Email, a.PasswordHash, string(a.Role), a.ActiveCredential, a.CreatedAt)
	if err != nil {
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return Account{}, ConflictError{Op: op, Field: field}
		}
		return Account{}, backendError(op, err)
	}
	return a, nil
}

// SetActiveCredential overwrites the session slot.
func (s *PostgresStore) SetActiveCredential(ctx context.Context, id, credential string) error {
	const op = "account.PostgresStore.SetActiveCredential"
	if credential == "" {
		return invalid(op, "empty credential")
	}

	tag, err := s.pool.Exec(ctx, `UPDATE `+s.table()+` SET active_credential = $2 WHERE id = $1`, id, credential)
	if err != nil {
		return backendError(op, err)
	}
	if tag.RowsAffected() == 0 {
		return NotFoundError{Op: op, ID: id}
	}
	return nil
}

// ClearActiveCredential empties the session slot. Missing rows are not an error.
func (s *PostgresStore) ClearActiveCredential(ctx context.Context, id string) error {
	const op = "account.PostgresStore.ClearActiveCredential"

	if _, err := s.pool.Exec(ctx, `UPDATE `+s.table()+` SET active_credential = NULL WHERE id = $1`, id); err != nil {
		return backendError(op, err)
	}
	return nil
}

// DeleteByIDAndEmail deletes the row only while its email still matches.
func (s *PostgresStore) DeleteByIDAndEmail(ctx context.Context, id, email string) (bool, error) {
	const op = "account.PostgresStore.DeleteByIDAndEmail"

	tag, err := s.pool.Exec(ctx, `DELETE FROM `+s.table()+` WHERE id = $1 AND email = $2`, id, NormalizeEmail(email))
	if err != nil {
		return false, backendError(op, err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListNonAdmin returns all non-admin accounts ordered by id.
func (s *PostgresStore) ListNonAdmin(ctx context.Context) ([]Account, error) {
	const op = "account.PostgresStore.ListNonAdmin"

	rows, err := s.pool.Query(ctx, `SELECT `+pgAccountColumns+` FROM `+s.table()+` WHERE role <> $1 ORDER BY id`, string(RoleAdmin))
	if err != nil {
		return nil, backendError(op, err)
	}
	defer rows.Close()

	out := make([]Account, 0, 16)
	for rows.Next() {
		a, err := pgScanAccount(rows)
		if err != nil {
			return nil, backendError(op, err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, backendError(op, err)
	}
	return out, nil
}

// Ping acquires a connection to prove the pool is usable.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return backendError("account.PostgresStore.Ping", err)
	}
	return nil
}

func pgScanAccount(row pgx.Row) (Account, error) {
	var (
		a    Account
		role string
	)
	if err := row.Scan(&a.ID, &a.Name, &a.Email, &a.PasswordHash, &role, &a.ActiveCredential, &a.CreatedAt); err != nil {
		return Account{}, err
	}
	r, ok := ParseRole(role)
	if !ok {
		return Account{}, fmt.Errorf("unknown role %q", role)
	}
	a.Role = r
	a.CreatedAt = a.CreatedAt.UTC()
	return a, nil
}

// pgIdentIsValid checks if a string is a safe Postgres identifier.
func pgIdentIsValid(s string) bool {
	return pgIdentRe.MatchString(s)
}

// pgIdent safely quotes a schema-qualified identifier: "schema"."name".
func pgIdent(schema, name string) string {
	return pgx.Identifier{schema, name}.Sanitize()
}

func pgClassifyUniqueViolation(err error) (field string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return "", false
	}
	if pgErr.Code != "23505" { // unique_violation
		return "", false
	}

	// Prefer stable constraint names. Fall back to substring matching.
	c := strings.ToLower(strings.TrimSpace(pgErr.ConstraintName))
	switch {
	case c == "uq_accounts_email", strings.Contains(c, "email"):
		return "email", true
	case c == "accounts_pkey", strings.Contains(c, "pkey"):
		return "id", true
	default:
		return "unique", true
	}
}
