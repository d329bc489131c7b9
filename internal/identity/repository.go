package identity

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists users and the address index.
//
// Create must be atomic across the email, phone and address uniqueness
// rules: it reports ErrAddressTaken when the address already has an owner
// and ErrIdentifierTaken when email or phone is registered. Finders report
// ErrUnknownUser when nothing matches.
type Repository interface {
	Create(ctx context.Context, user User) error
	FindByID(ctx context.Context, id string) (User, error)
	FindByEmail(ctx context.Context, email string) (User, error)
	FindByPhone(ctx context.Context, phone string) (User, error)
	FindByAddress(ctx context.Context, addr string) (User, error)
}

// Mutator is a Repository that can apply a read-modify-write to a single
// user atomically.
type Mutator interface {
	Repository
	Mutate(ctx context.Context, id string, fn func(*User) error) (User, error)
}

const (
	pgUniqueViolation     = "23505"
	addressConstraintName = "users_ip_address_key"
	userColumns           = `id, email, phone_number, ip_address, credits_balance, user_type, created_at, updated_at`
)

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed identity repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new user. The unique constraints on email, phone_number
// and ip_address make the insert atomic with the address binding.
func (r *PostgresRepository) Create(ctx context.Context, user User) error {
	_, err := r.db.Exec(ctx, `INSERT INTO users (`+userColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		user.ID, nullable(user.Email), nullable(user.PhoneNumber), user.IPAddress,
		user.CreditsBalance, string(user.UserType), user.CreatedAt.UTC(), user.UpdatedAt.UTC())
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		if pgErr.ConstraintName == addressConstraintName {
			return ErrAddressTaken
		}
		return ErrIdentifierTaken
	}
	return err
}

// FindByID fetches a user by id.
func (r *PostgresRepository) FindByID(ctx context.Context, id string) (User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// FindByEmail fetches a user by email address.
func (r *PostgresRepository) FindByEmail(ctx context.Context, email string) (User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

// FindByPhone fetches a user by phone number.
func (r *PostgresRepository) FindByPhone(ctx context.Context, phone string) (User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE phone_number = $1`, phone)
}

// FindByAddress returns the owner of an address.
func (r *PostgresRepository) FindByAddress(ctx context.Context, addr string) (User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE ip_address = $1`, addr)
}

func (r *PostgresRepository) findOne(ctx context.Context, query string, arg string) (User, error) {
	user, err := ScanUser(r.db.QueryRow(ctx, query, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrUnknownUser
	}
	return user, err
}

// ScanUser reads a row selected with the users column list. It is shared
// with the ledger, which locks user rows inside its own transactions.
func ScanUser(row pgx.Row) (User, error) {
	var (
		user             User
		email, phone     *string
		tier             string
		created, updated time.Time
	)
	if err := row.Scan(&user.ID, &email, &phone, &user.IPAddress, &user.CreditsBalance, &tier, &created, &updated); err != nil {
		return User{}, err
	}
	if email != nil {
		user.Email = *email
	}
	if phone != nil {
		user.PhoneNumber = *phone
	}
	user.UserType = Tier(tier)
	user.CreatedAt = created.UTC()
	user.UpdatedAt = updated.UTC()
	return user, nil
}

// Columns is the select list understood by ScanUser.
func Columns() string { return userColumns }

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
