package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/emissionkeeper/internal/dbx"
	"github.com/dmitrijs2005/emissionkeeper/internal/identity"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

const accountColumns = `id, email, password_hash, display_name, provider, created_at`

// Directory implements identity.Directory.
type Directory struct {
	db *sql.DB
}

func NewDirectory(db *sql.DB) *Directory {
	return &Directory{db: db}
}

func (d *Directory) Create(ctx context.Context, acc identity.Account) (identity.Account, error) {
	return createAccount(ctx, d.db, acc)
}

func (d *Directory) GetByEmail(ctx context.Context, email string) (identity.Account, error) {
	return getAccount(ctx, d.db, `SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email)
}

func (d *Directory) GetByID(ctx context.Context, id string) (identity.Account, error) {
	return getAccount(ctx, d.db, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
}

func (d *Directory) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	res, err := d.db.ExecContext(ctx, `UPDATE accounts SET password_hash = $1 WHERE id = $2`, passwordHash, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return identity.ErrUserNotFound
	}
	return nil
}

// LinkFederated resolves p to an account inside one transaction: an
// existing (provider, subject) link wins, then an account with the same
// email, and otherwise a new account is created. New links are recorded.
func (d *Directory) LinkFederated(ctx context.Context, p identity.Profile) (identity.Account, error) {
	var out identity.Account

	err := dbx.WithTx(ctx, d.db, func(ctx context.Context, tx dbx.DBTX) error {
		acc, err := getAccount(ctx, tx, `
			SELECT a.id, a.email, a.password_hash, a.display_name, a.provider, a.created_at
			FROM federated_identities f JOIN accounts a ON a.id = f.account_id
			WHERE f.provider = $1 AND f.subject = $2`, p.Provider, p.Subject)
		if err == nil {
			out = acc
			return nil
		}
		if !errors.Is(err, identity.ErrUserNotFound) {
			return err
		}

		acc, err = getAccount(ctx, tx, `SELECT `+accountColumns+` FROM accounts WHERE email = $1`, p.Email)
		switch {
		case errors.Is(err, identity.ErrUserNotFound):
			acc, err = createAccount(ctx, tx, identity.Account{
				Email:       p.Email,
				DisplayName: p.Name,
				Provider:    p.Provider,
			})
			if err != nil {
				return err
			}
		case err != nil:
			return err
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO federated_identities (provider, subject, account_id) VALUES ($1, $2, $3)`,
			p.Provider, p.Subject, acc.ID); err != nil {
			return fmt.Errorf("db error: %w", err)
		}

		out = acc
		return nil
	})
	if err != nil {
		return identity.Account{}, err
	}
	return out, nil
}

func createAccount(ctx context.Context, db dbx.DBTX, acc identity.Account) (identity.Account, error) {
	query := `INSERT INTO accounts (email, password_hash, display_name, provider)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	err := db.QueryRowContext(ctx, query, acc.Email, acc.PasswordHash, acc.DisplayName, acc.Provider).
		Scan(&acc.ID, &acc.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return identity.Account{}, identity.ErrEmailInUse
		}
		return identity.Account{}, fmt.Errorf("db error: %w", err)
	}
	return acc, nil
}

func getAccount(ctx context.Context, db dbx.DBTX, query string, args ...any) (identity.Account, error) {
	var acc identity.Account
	err := db.QueryRowContext(ctx, query, args...).
		Scan(&acc.ID, &acc.Email, &acc.PasswordHash, &acc.DisplayName, &acc.Provider, &acc.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return identity.Account{}, identity.ErrUserNotFound
		}
		return identity.Account{}, fmt.Errorf("db error: %w", err)
	}
	return acc, nil
}
