package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrEmailTaken is returned when registering an email that already exists.
var ErrEmailTaken = errors.New("email already registered")

// Querier abstracts the subset of pgxpool.Pool used by Repository, allowing
// injection of a mock in tests.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Repository provides database access for users and their saved travel items.
type Repository struct {
	q Querier
}

// NewRepository constructs a Repository backed by the given pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{q: pool}
}

// NewRepositoryWithQuerier constructs a Repository with a custom Querier (for tests).
func NewRepositoryWithQuerier(q Querier) *Repository {
	return &Repository{q: q}
}

// ---- users ----

// User is a stored user record.
type User struct {
	ID           int64
	FirstName    string
	LastName     string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// CreateUser inserts a new user and returns the stored record.
func (r *Repository) CreateUser(ctx context.Context, firstName, lastName, email, passwordHash string) (*User, error) {
	const q = `
		INSERT INTO users (first_name, last_name, email, password_hash)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`

	u := User{
		FirstName:    firstName,
		LastName:     lastName,
		Email:        email,
		PasswordHash: passwordHash,
	}

	err := r.q.QueryRow(ctx, q, firstName, lastName, email, passwordHash).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("inserting user %s: %w", email, err)
	}

	return &u, nil
}

// UserByEmail retrieves a user by email. Returns nil, nil when not found.
func (r *Repository) UserByEmail(ctx context.Context, email string) (*User, error) {
	const q = `
		SELECT id, first_name, last_name, email, password_hash, created_at
		FROM users
		WHERE email = $1
	`
	return r.scanUser(r.q.QueryRow(ctx, q, email), email)
}

// UserByID retrieves a user by id. Returns nil, nil when not found.
func (r *Repository) UserByID(ctx context.Context, id int64) (*User, error) {
	const q = `
		SELECT id, first_name, last_name, email, password_hash, created_at
		FROM users
		WHERE id = $1
	`
	return r.scanUser(r.q.QueryRow(ctx, q, id), fmt.Sprint(id))
}

func (r *Repository) scanUser(row pgx.Row, ref string) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying user %s: %w", ref, err)
	}
	return &u, nil
}

// ---- saved items ----

// ItemKind selects which saved-item table an operation targets.
type ItemKind string

const (
	KindHotel      ItemKind = "hotel"
	KindFlight     ItemKind = "flight"
	KindAttraction ItemKind = "attraction"
)

// table maps a kind to its table name. Kinds are a closed set, so the name
// is safe to splice into SQL.
func (k ItemKind) table() (string, error) {
	switch k {
	case KindHotel:
		return "saved_hotels", nil
	case KindFlight:
		return "saved_flights", nil
	case KindAttraction:
		return "saved_attractions", nil
	}
	return "", fmt.Errorf("unknown item kind %q", k)
}

// SavedItem is one user-selected hotel, flight, or attraction. The full
// normalized record is kept as a JSONB payload alongside a display name.
type SavedItem struct {
	ID        int64           `json:"id"`
	UserID    int64           `json:"-"`
	Name      string          `json:"name"`
	Data      json.RawMessage `json:"data"`
	CreatedAt time.Time       `json:"created_at"`
}

// SaveItem inserts one saved item for the user and returns the stored record.
func (r *Repository) SaveItem(ctx context.Context, kind ItemKind, userID int64, name string, data json.RawMessage) (*SavedItem, error) {
	table, err := kind.table()
	if err != nil {
		return nil, err
	}

	q := fmt.Sprintf(`
		INSERT INTO %s (user_id, name, data)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, table)

	item := SavedItem{UserID: userID, Name: name, Data: data}
	if err := r.q.QueryRow(ctx, q, userID, name, data).Scan(&item.ID, &item.CreatedAt); err != nil {
		return nil, fmt.Errorf("inserting saved %s for user %d: %w", kind, userID, err)
	}

	return &item, nil
}

// ListItems returns every saved item of the given kind for the user, newest first.
func (r *Repository) ListItems(ctx context.Context, kind ItemKind, userID int64) ([]SavedItem, error) {
	table, err := kind.table()
	if err != nil {
		return nil, err
	}

	q := fmt.Sprintf(`
		SELECT id, user_id, name, data, created_at
		FROM %s
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, table)

	rows, err := r.q.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("querying saved %ss for user %d: %w", kind, userID, err)
	}
	defer rows.Close()

	var items []SavedItem
	for rows.Next() {
		var item SavedItem
		var data []byte
		if err := rows.Scan(&item.ID, &item.UserID, &item.Name, &data, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning saved %s row: %w", kind, err)
		}
		item.Data = data
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating saved %s rows: %w", kind, err)
	}

	return items, nil
}

// DeleteItem removes one saved item scoped by owner. Returns false when no
// row matched.
func (r *Repository) DeleteItem(ctx context.Context, kind ItemKind, userID, itemID int64) (bool, error) {
	table, err := kind.table()
	if err != nil {
		return false, err
	}

	q := fmt.Sprintf(`DELETE FROM %s WHERE id = $1 AND user_id = $2`, table)

	tag, err := r.q.Exec(ctx, q, itemID, userID)
	if err != nil {
		return false, fmt.Errorf("deleting saved %s %d for user %d: %w", kind, itemID, userID, err)
	}

	return tag.RowsAffected() > 0, nil
}
