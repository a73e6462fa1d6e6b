package user

import (
	"context"
	"errors"
	"time"

	"github.com/sweetlane/sweetshop/internal/store"
)

var (
	ErrNotFound      = errors.New("user not found")
	ErrAlreadyExists = errors.New("user already exists")
	ErrBanNotFound   = errors.New("ban not found")
	ErrAlreadyBanned = errors.New("email already banned")
)

type Repository interface {
	Create(ctx context.Context, u *User) error
	GetByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context) ([]User, error)
	Delete(ctx context.Context, id string) (bool, error)

	IsBanned(ctx context.Context, email string) (bool, error)
	ListBans(ctx context.Context) ([]Ban, error)
	Ban(ctx context.Context, b *Ban) error
	Unban(ctx context.Context, id string) (bool, error)
}

type Repo struct{ db store.DB }

func NewRepo(db store.DB) *Repo { return &Repo{db: db} }

func (r *Repo) Create(ctx context.Context, u *User) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := r.db.Exec(ctx, `
		INSERT INTO users (id, username, email, password, is_admin, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, u.ID, u.Username, u.Email, u.Password, u.IsAdmin, u.CreatedAt)
	if errors.Is(err, store.ErrDuplicate) {
		return ErrAlreadyExists
	}
	return err
}

func (r *Repo) GetByEmail(ctx context.Context, email string) (*User, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var u User
	err := r.db.QueryRow(ctx, `
		SELECT id, username, email, password, is_admin, created_at
		FROM users WHERE email = $1
	`, email).Scan(&u.ID, &u.Username, &u.Email, &u.Password, &u.IsAdmin, &u.CreatedAt)
	if errors.Is(err, store.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *Repo) List(ctx context.Context) ([]User, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := r.db.Query(ctx, `
		SELECT id, username, email, password, is_admin, created_at
		FROM users ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.Password, &u.IsAdmin, &u.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *Repo) Delete(ctx context.Context, id string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	n, err := r.db.Exec(ctx, `DELETE FROM users WHERE id=$1`, id)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *Repo) IsBanned(ctx context.Context, email string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var id string
	err := r.db.QueryRow(ctx, `SELECT id FROM banned_emails WHERE email = $1`, email).Scan(&id)
	if errors.Is(err, store.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *Repo) ListBans(ctx context.Context) ([]Ban, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := r.db.Query(ctx, `
		SELECT id, email, reason, banned_by, created_at
		FROM banned_emails ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Ban
	for rows.Next() {
		var b Ban
		if err := rows.Scan(&b.ID, &b.Email, &b.Reason, &b.BannedBy, &b.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *Repo) Ban(ctx context.Context, b *Ban) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := r.db.Exec(ctx, `
		INSERT INTO banned_emails (id, email, reason, banned_by, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, b.ID, b.Email, b.Reason, b.BannedBy, b.CreatedAt)
	if errors.Is(err, store.ErrDuplicate) {
		return ErrAlreadyBanned
	}
	return err
}

func (r *Repo) Unban(ctx context.Context, id string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	n, err := r.db.Exec(ctx, `DELETE FROM banned_emails WHERE id=$1`, id)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
