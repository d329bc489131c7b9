package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/viralscript/viralscript/internal/identity"
)

const pgUniqueViolation = "23505"

// PostgresLedger applies credit postings to the users table and journals them
// in credit_entries, one transaction per posting with the user row locked.
type PostgresLedger struct {
	db *pgxpool.Pool
}

// NewPostgresLedger constructs a Postgres-backed ledger store.
func NewPostgresLedger(db *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{db: db}
}

// Apply runs change against the locked user row.
func (l *PostgresLedger) Apply(ctx context.Context, userID string, reason Reason, reference string, change Change) (identity.User, error) {
	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return identity.User{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	user, err := lockUser(ctx, tx, userID)
	if err != nil {
		return identity.User{}, err
	}

	if reference != "" {
		const existingQuery = `SELECT 1 FROM credit_entries WHERE reason = $1 AND reference = $2`
		var one int
		if err := tx.QueryRow(ctx, existingQuery, string(reason), reference).Scan(&one); err == nil {
			return user, ErrDuplicateTransaction
		} else if !errors.Is(err, pgx.ErrNoRows) {
			return identity.User{}, err
		}
	}

	updated := user
	delta, err := change(&updated)
	if err != nil {
		return user, err
	}
	updated.CreditsBalance += delta
	updated.UpdatedAt = time.Now().UTC()

	if _, err := tx.Exec(ctx, `UPDATE users SET credits_balance = $1, user_type = $2, updated_at = $3 WHERE id = $4`,
		updated.CreditsBalance, string(updated.UserType), updated.UpdatedAt, updated.ID); err != nil {
		return identity.User{}, err
	}

	var ref *string
	if reference != "" {
		ref = &reference
	}
	if _, err := tx.Exec(ctx, `INSERT INTO credit_entries (id, user_id, delta, balance_after, reason, reference, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.New(), updated.ID, delta, updated.CreditsBalance, string(reason), ref, updated.UpdatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return user, ErrDuplicateTransaction
		}
		return identity.User{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return identity.User{}, err
	}
	return updated, nil
}

// Load fetches the user without locking.
func (l *PostgresLedger) Load(ctx context.Context, userID string) (identity.User, error) {
	user, err := identity.ScanUser(l.db.QueryRow(ctx, `SELECT `+identity.Columns()+` FROM users WHERE id = $1`, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return identity.User{}, identity.ErrUnknownUser
	}
	return user, err
}

// History returns journal entries for the user, newest first.
func (l *PostgresLedger) History(ctx context.Context, userID string, limit int) ([]Entry, error) {
	rows, err := l.db.Query(ctx, `SELECT id, user_id, delta, balance_after, reason, reference, created_at
        FROM credit_entries WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e         Entry
			id        uuid.UUID
			reason    string
			reference *string
		)
		if err := rows.Scan(&id, &e.UserID, &e.Delta, &e.BalanceAfter, &reason, &reference, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.ID = id.String()
		e.Reason = Reason(reason)
		if reference != nil {
			e.Reference = *reference
		}
		e.CreatedAt = e.CreatedAt.UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func lockUser(ctx context.Context, tx pgx.Tx, userID string) (identity.User, error) {
	user, err := identity.ScanUser(tx.QueryRow(ctx, `SELECT `+identity.Columns()+` FROM users WHERE id = $1 FOR UPDATE`, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return identity.User{}, identity.ErrUnknownUser
	}
	return user, err
}
