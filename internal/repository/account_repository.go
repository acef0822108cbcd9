package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"
	"github.com/sentencevault/sentence-service/shared/models"
)

const (
	accountsTable = "accounts"

	// uniqueViolation is the Postgres SQLSTATE for a duplicate key.
	uniqueViolation = "23505"
)

var accountColumns = []string{"username", "password_hash", "tokens", "sentence", "created_at", "updated_at"}

type rowScanner interface {
	Scan(dest ...any) error
}

// AccountWriteRepository handles all state-mutating operations for accounts.
// It operates exclusively against the PostgreSQL write store (source of truth).
type AccountWriteRepository struct {
	db *sql.DB
	sb sq.StatementBuilderType
}

func NewAccountWriteRepository(db *sql.DB) *AccountWriteRepository {
	return &AccountWriteRepository{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// Create inserts a new account. Usernames are unique; a collision yields ErrDuplicateUser.
func (r *AccountWriteRepository) Create(ctx context.Context, account *models.Account) error {
	query, args, err := r.sb.
		Insert(accountsTable).
		Columns(accountColumns...).
		Values(
			account.Username, account.PasswordHash, account.Tokens, account.Sentence,
			account.CreatedAt, account.UpdatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrDuplicateUser
		}
		return storageError("create account", err)
	}
	return nil
}

// GetByUsername fetches the full write model, including the password hash.
func (r *AccountWriteRepository) GetByUsername(ctx context.Context, username string) (*models.Account, error) {
	query, args, err := r.sb.
		Select(accountColumns...).
		From(accountsTable).
		Where(sq.Eq{"username": username}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select: %w", err)
	}

	account, err := scanAccount(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storageError("get account", err)
	}
	return account, nil
}

// Update is the general patch path: it applies only the fields set in patch,
// in a single statement. It does not check the balance, so token spends must
// go through SpendToken.
func (r *AccountWriteRepository) Update(ctx context.Context, username string, patch models.AccountPatch) error {
	if patch.IsEmpty() {
		return fmt.Errorf("%w: no field to update", ErrInvalidPatch)
	}
	if patch.Tokens != nil && *patch.Tokens < 0 {
		return fmt.Errorf("%w: tokens must not be negative", ErrInvalidPatch)
	}

	builder := r.sb.Update(accountsTable)
	if patch.Sentence != nil {
		builder = builder.Set("sentence", *patch.Sentence)
	}
	if patch.Tokens != nil {
		builder = builder.Set("tokens", *patch.Tokens)
	}
	query, args, err := builder.
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"username": username}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build update: %w", err)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return storageError("update account", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return storageError("check rows affected", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// SpendToken takes one token and, when sentence is non-nil, replaces the stored
// sentence, all in one conditional statement: the decrement only happens while
// the balance is positive, so concurrent spends can never push it below zero.
// The returned account reflects the row after the update.
func (r *AccountWriteRepository) SpendToken(ctx context.Context, username string, sentence *string) (*models.Account, error) {
	builder := r.sb.
		Update(accountsTable).
		Set("tokens", sq.Expr("tokens - 1"))
	if sentence != nil {
		builder = builder.Set("sentence", *sentence)
	}
	query, args, err := builder.
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.And{sq.Eq{"username": username}, sq.Gt{"tokens": 0}}).
		Suffix("RETURNING " + strings.Join(accountColumns, ", ")).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build token spend: %w", err)
	}

	account, err := scanAccount(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		// Nothing matched: either the account is gone or its balance is spent.
		if _, findErr := r.GetByUsername(ctx, username); findErr != nil {
			return nil, findErr
		}
		return nil, ErrNoTokens
	}
	if err != nil {
		return nil, storageError("spend token", err)
	}
	return account, nil
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var account models.Account
	err := row.Scan(
		&account.Username, &account.PasswordHash, &account.Tokens, &account.Sentence,
		&account.CreatedAt, &account.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &account, nil
}
