package user

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound = errors.New("user not found")
	ErrExists   = errors.New("username already exists")
)

const uniqueViolation = "23505"

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) CreateUser(ctx context.Context, u *User) (*User, error) {
	var id int
	query := "INSERT INTO users (username, fullname, password) VALUES ($1, $2, $3) RETURNING id"

	err := r.db.QueryRowContext(ctx, query, u.Username, u.Fullname, u.Password).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, ErrExists
		}
		return nil, err
	}

	u.ID = id
	return u, nil
}

func (r *Repository) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	u := &User{}
	query := "SELECT id, username, fullname, password FROM users WHERE username = $1"

	err := r.db.QueryRowContext(ctx, query, username).Scan(&u.ID, &u.Username, &u.Fullname, &u.Password)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return u, nil
}

func (r *Repository) SearchUsers(ctx context.Context, query string) ([]User, error) {
	// We limit to 10 to keep it fast.
	q := `SELECT id, username, fullname FROM users WHERE username ILIKE $1 OR fullname ILIKE $1 LIMIT 10`
	rows, err := r.db.QueryContext(ctx, q, "%"+query+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.Fullname); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// Friends returns the usernames this user added, in the order they were
// added.
func (r *Repository) Friends(ctx context.Context, username string) ([]string, error) {
	q := "SELECT friend FROM friendships WHERE username = $1 ORDER BY id"
	rows, err := r.db.QueryContext(ctx, q, username)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var friends []string
	for rows.Next() {
		var f string
		if err := rows.Scan(&f); err != nil {
			return nil, err
		}
		friends = append(friends, f)
	}
	return friends, rows.Err()
}

// FriendDetails resolves the friend list to full roster entries, keeping the
// friend-list order.
func (r *Repository) FriendDetails(ctx context.Context, username string) ([]RosterEntry, error) {
	q := `
		SELECT u.username, u.fullname
		FROM friendships f
		JOIN users u ON u.username = f.friend
		WHERE f.username = $1
		ORDER BY f.id
	`
	rows, err := r.db.QueryContext(ctx, q, username)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []RosterEntry
	for rows.Next() {
		var e RosterEntry
		if err := rows.Scan(&e.Username, &e.Fullname); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// AddFriend records a directed friend edge. The unique constraint makes the
// operation idempotent, so adding the same friend twice stays a single edge.
func (r *Repository) AddFriend(ctx context.Context, username, friend string) error {
	var exists bool
	if err := r.db.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM users WHERE username = $1)", friend).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}

	_, err := r.db.ExecContext(ctx,
		"INSERT INTO friendships (username, friend) VALUES ($1, $2) ON CONFLICT DO NOTHING",
		username, friend)
	return err
}

func (r *Repository) RemoveFriend(ctx context.Context, username, friend string) error {
	_, err := r.db.ExecContext(ctx,
		"DELETE FROM friendships WHERE username = $1 AND friend = $2", username, friend)
	return err
}

// Roster returns every account except the excluded one, in account-creation
// order.
func (r *Repository) Roster(ctx context.Context, excluding string) ([]RosterEntry, error) {
	q := "SELECT username, fullname FROM users WHERE username <> $1 ORDER BY id"
	rows, err := r.db.QueryContext(ctx, q, excluding)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []RosterEntry
	for rows.Next() {
		var e RosterEntry
		if err := rows.Scan(&e.Username, &e.Fullname); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Fullnames maps usernames to display names for the given identities.
// Unknown usernames are simply absent from the result.
func (r *Repository) Fullnames(ctx context.Context, usernames []string) (map[string]string, error) {
	names := make(map[string]string, len(usernames))
	if len(usernames) == 0 {
		return names, nil
	}

	q := "SELECT username, fullname FROM users WHERE username = ANY($1)"
	rows, err := r.db.QueryContext(ctx, q, usernames)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var username, fullname string
		if err := rows.Scan(&username, &fullname); err != nil {
			return nil, err
		}
		names[username] = fullname
	}
	return names, rows.Err()
}
