package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"provisioner/internal/sentinel"

	"github.com/jackc/pgx/v5/pgconn"
)

// PostgresStore persists accounts in PostgreSQL. Unique indexes on
// oauth_sub and lower(email) are the authoritative dedup guard; the
// handler's lookups before Insert only reduce log noise.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed account store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const selectColumns = `email, password, name, profile_image_url, role, oauth_sub`

func (s *PostgresStore) FindByOAuthSub(ctx context.Context, oauthSub string) (*Account, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM accounts WHERE oauth_sub = $1`, oauthSub)
	return scanAccount(row, "find account by oauth_sub")
}

func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (*Account, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM accounts WHERE lower(email) = lower($1)`, email)
	return scanAccount(row, "find account by email")
}

func (s *PostgresStore) Insert(ctx context.Context, acct Account) (*Account, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (email, password, name, profile_image_url, role, oauth_sub)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		acct.Email, acct.Password, acct.Name, acct.ProfileImageURL, string(acct.Role), acct.OAuthSub)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("account %q: %w", acct.OAuthSub, sentinel.ErrAlreadyExists)
		}
		return nil, fmt.Errorf("insert account: %w", err)
	}
	return &acct, nil
}

func scanAccount(row *sql.Row, op string) (*Account, error) {
	var acct Account
	var role string
	err := row.Scan(&acct.Email, &acct.Password, &acct.Name, &acct.ProfileImageURL, &role, &acct.OAuthSub)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("account not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	acct.Role = Role(role)
	return &acct, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
