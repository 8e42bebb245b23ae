package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const userColumns = `id, email, password_hash, name, occupation, goals, personality, life_areas, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*User, error) {
	var (
		u                             User
		name, occupation              sql.NullString
		goals, personality, lifeAreas string
	)
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &name, &occupation,
		&goals, &personality, &lifeAreas, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	u.Name = stringPtr(name)
	u.Occupation = stringPtr(occupation)
	u.Goals = map[string]string{}
	u.Personality = map[string]string{}
	u.LifeAreas = []string{}
	if err := decodeJSON(goals, &u.Goals); err != nil {
		return nil, err
	}
	if err := decodeJSON(personality, &u.Personality); err != nil {
		return nil, err
	}
	if err := decodeJSON(lifeAreas, &u.LifeAreas); err != nil {
		return nil, err
	}
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return &u, nil
}

// CreateUser inserts u and fills in its ID and timestamps. Nil profile maps
// are stored as empty objects.
func (s *Store) CreateUser(ctx context.Context, u *User) error {
	goals, personality, lifeAreas, err := encodeProfile(u)
	if err != nil {
		return err
	}

	now := s.now()
	err = s.queryRow(ctx, `
		INSERT INTO users (email, password_hash, name, occupation, goals, personality, life_areas, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		u.Email, u.PasswordHash, nullString(u.Name), nullString(u.Occupation),
		goals, personality, lifeAreas, now, now,
	).Scan(&u.ID)
	if isUniqueViolation(err) {
		return ErrDuplicateEmail
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	u.CreatedAt, u.UpdatedAt = now, now
	return nil
}

// GetUser loads a user by ID.
func (s *Store) GetUser(ctx context.Context, id int64) (*User, error) {
	u, err := scanUser(s.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("get user %d: %w", id, err)
	}
	return u, err
}

// GetUserByEmail loads a user by exact email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	u, err := scanUser(s.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return u, err
}

// UpdateProfile writes the profile columns of u.
func (s *Store) UpdateProfile(ctx context.Context, u *User) error {
	goals, personality, lifeAreas, err := encodeProfile(u)
	if err != nil {
		return err
	}
	now := s.now()
	res, err := s.exec(ctx, `
		UPDATE users
		SET name = ?, occupation = ?, goals = ?, personality = ?, life_areas = ?, updated_at = ?
		WHERE id = ?`,
		nullString(u.Name), nullString(u.Occupation), goals, personality, lifeAreas, now, u.ID,
	)
	if err != nil {
		return fmt.Errorf("update user %d: %w", u.ID, err)
	}
	if err := expectOneRow(res); err != nil {
		return err
	}
	u.UpdatedAt = now
	return nil
}

// DeleteUser removes a user together with every item and conversation it
// owns, atomically.
func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	return s.WithTx(ctx, func(tx *Store) error {
		if _, err := tx.exec(ctx, `DELETE FROM items WHERE user_id = ?`, id); err != nil {
			return fmt.Errorf("delete items of user %d: %w", id, err)
		}
		if _, err := tx.exec(ctx, `DELETE FROM conversations WHERE user_id = ?`, id); err != nil {
			return fmt.Errorf("delete conversations of user %d: %w", id, err)
		}
		res, err := tx.exec(ctx, `DELETE FROM users WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete user %d: %w", id, err)
		}
		return expectOneRow(res)
	})
}

func encodeProfile(u *User) (goals, personality, lifeAreas string, err error) {
	if u.Goals == nil {
		u.Goals = map[string]string{}
	}
	if u.Personality == nil {
		u.Personality = map[string]string{}
	}
	if u.LifeAreas == nil {
		u.LifeAreas = []string{}
	}
	if goals, err = encodeJSON(u.Goals); err != nil {
		return "", "", "", fmt.Errorf("encode goals: %w", err)
	}
	if personality, err = encodeJSON(u.Personality); err != nil {
		return "", "", "", fmt.Errorf("encode personality: %w", err)
	}
	if lifeAreas, err = encodeJSON(u.LifeAreas); err != nil {
		return "", "", "", fmt.Errorf("encode life areas: %w", err)
	}
	return goals, personality, lifeAreas, nil
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
