package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

const itemColumns = `id, user_id, title, description, category, subcategory, life_area, deadline, status, priority, created_at, updated_at`

func scanItem(row rowScanner) (*Item, error) {
	var (
		it                             Item
		description, subcategory, area sql.NullString
		deadline                       sql.NullTime
		priority                       sql.NullInt64
	)
	err := row.Scan(&it.ID, &it.UserID, &it.Title, &description, &it.Category,
		&subcategory, &area, &deadline, &it.Status, &priority, &it.CreatedAt, &it.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	it.Description = stringPtr(description)
	it.Subcategory = stringPtr(subcategory)
	it.LifeArea = stringPtr(area)
	it.Deadline = timePtr(deadline)
	it.Priority = intPtr(priority)
	it.CreatedAt = it.CreatedAt.UTC()
	it.UpdatedAt = it.UpdatedAt.UTC()
	return &it, nil
}

// CreateItem inserts it for it.UserID and fills in ID and timestamps.
// An empty status becomes pending.
func (s *Store) CreateItem(ctx context.Context, it *Item) error {
	if it.Status == "" {
		it.Status = StatusPending
	}
	now := s.now()
	err := s.queryRow(ctx, `
		INSERT INTO items (user_id, title, description, category, subcategory, life_area, deadline, status, priority, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		it.UserID, it.Title, nullString(it.Description), it.Category,
		nullString(it.Subcategory), nullString(it.LifeArea), nullTime(it.Deadline),
		it.Status, nullInt(it.Priority), now, now,
	).Scan(&it.ID)
	if err != nil {
		return fmt.Errorf("insert item: %w", err)
	}
	it.CreatedAt, it.UpdatedAt = now, now
	if it.Deadline != nil {
		d := it.Deadline.UTC()
		it.Deadline = &d
	}
	return nil
}

// CreateItems inserts a batch of items in a single transaction.
func (s *Store) CreateItems(ctx context.Context, items []*Item) error {
	if len(items) == 0 {
		return nil
	}
	return s.WithTx(ctx, func(tx *Store) error {
		for _, it := range items {
			if err := tx.CreateItem(ctx, it); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetItem loads an item owned by userID.
func (s *Store) GetItem(ctx context.Context, userID, id int64) (*Item, error) {
	it, err := scanItem(s.queryRow(ctx,
		`SELECT `+itemColumns+` FROM items WHERE id = ? AND user_id = ?`, id, userID))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("get item %d: %w", id, err)
	}
	return it, err
}

// ListItems returns the items owned by userID that match every set filter,
// highest priority first (unprioritised last), then newest first.
func (s *Store) ListItems(ctx context.Context, userID int64, f ItemFilter) ([]*Item, error) {
	var (
		where = []string{"user_id = ?"}
		args  = []any{userID}
	)
	if f.Category != "" {
		where = append(where, "category = ?")
		args = append(args, f.Category)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if f.LifeArea != "" {
		where = append(where, "life_area = ?")
		args = append(args, f.LifeArea)
	}

	q := `SELECT ` + itemColumns + ` FROM items WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY priority DESC NULLS LAST, created_at DESC, id DESC`

	rows, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	items := []*Item{}
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	return items, nil
}

// UpdateItem writes every mutable column of it. The row must be owned by
// it.UserID.
func (s *Store) UpdateItem(ctx context.Context, it *Item) error {
	now := s.now()
	res, err := s.exec(ctx, `
		UPDATE items
		SET title = ?, description = ?, category = ?, subcategory = ?, life_area = ?,
		    deadline = ?, status = ?, priority = ?, updated_at = ?
		WHERE id = ? AND user_id = ?`,
		it.Title, nullString(it.Description), it.Category, nullString(it.Subcategory),
		nullString(it.LifeArea), nullTime(it.Deadline), it.Status, nullInt(it.Priority), now,
		it.ID, it.UserID,
	)
	if err != nil {
		return fmt.Errorf("update item %d: %w", it.ID, err)
	}
	if err := expectOneRow(res); err != nil {
		return err
	}
	it.UpdatedAt = now
	return nil
}

// UpdateItemStatus sets the status of an item owned by userID and returns
// the updated row.
func (s *Store) UpdateItemStatus(ctx context.Context, userID, id int64, status string) (*Item, error) {
	var out *Item
	err := s.WithTx(ctx, func(tx *Store) error {
		res, err := tx.exec(ctx,
			`UPDATE items SET status = ?, updated_at = ? WHERE id = ? AND user_id = ?`,
			status, tx.now(), id, userID)
		if err != nil {
			return fmt.Errorf("update item status %d: %w", id, err)
		}
		if err := expectOneRow(res); err != nil {
			return err
		}
		out, err = tx.GetItem(ctx, userID, id)
		return err
	})
	return out, err
}

// DeleteItem removes an item owned by userID.
func (s *Store) DeleteItem(ctx context.Context, userID, id int64) error {
	res, err := s.exec(ctx, `DELETE FROM items WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete item %d: %w", id, err)
	}
	return expectOneRow(res)
}
