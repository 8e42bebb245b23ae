// Package items implements item CRUD on behalf of an authenticated user.
package items

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/digitaltwin/internal/classification"
	"github.com/fyrsmithlabs/digitaltwin/internal/store"
	v1 "github.com/fyrsmithlabs/digitaltwin/pkg/api/v1"
)

const invalidStatusMsg = "Invalid status. Must be: pending, in_progress, done, or archived"

var validStatuses = map[string]bool{
	store.StatusPending:    true,
	store.StatusInProgress: true,
	store.StatusDone:       true,
	store.StatusArchived:   true,
}

// ValidStatus reports whether s is one of the four item statuses.
func ValidStatus(s string) bool {
	return validStatuses[s]
}

// Filter narrows List. Empty fields match everything.
type Filter struct {
	Category string
	Status   string
	LifeArea string
}

// CreateRequest is the body of a manual item creation.
type CreateRequest struct {
	Title       string  `json:"title"`
	Description *string `json:"description"`
	Category    string  `json:"category"`
	Subcategory *string `json:"subcategory"`
	LifeArea    *string `json:"life_area"`
	Deadline    *string `json:"deadline"`
	Priority    *int    `json:"priority"`
}

// UpdateRequest is a partial update. Only fields present in the payload are
// applied; a present null clears a nullable field.
type UpdateRequest struct {
	Title       Optional[string] `json:"title"`
	Description Optional[string] `json:"description"`
	Category    Optional[string] `json:"category"`
	Subcategory Optional[string] `json:"subcategory"`
	LifeArea    Optional[string] `json:"life_area"`
	Deadline    Optional[string] `json:"deadline"`
	Status      Optional[string] `json:"status"`
	Priority    Optional[int]    `json:"priority"`
}

// Service manages items.
type Service struct {
	store *store.Store
}

// NewService returns a Service backed by s.
func NewService(s *store.Store) *Service {
	return &Service{store: s}
}

// List returns the user's items matching f.
func (s *Service) List(ctx context.Context, userID int64, f Filter) ([]*store.Item, error) {
	return s.store.ListItems(ctx, userID, store.ItemFilter{
		Category: f.Category,
		Status:   f.Status,
		LifeArea: f.LifeArea,
	})
}

// Create stores a manually entered item with status pending.
func (s *Service) Create(ctx context.Context, userID int64, req CreateRequest) (*store.Item, error) {
	title := strings.TrimSpace(req.Title)
	category := strings.TrimSpace(req.Category)
	if title == "" {
		return nil, invalid("title is required")
	}
	if category == "" {
		return nil, invalid("category is required")
	}
	deadline, err := parseDeadline(req.Deadline)
	if err != nil {
		return nil, err
	}

	it := &store.Item{
		UserID:      userID,
		Title:       title,
		Description: req.Description,
		Category:    category,
		Subcategory: req.Subcategory,
		LifeArea:    req.LifeArea,
		Deadline:    deadline,
		Status:      store.StatusPending,
		Priority:    req.Priority,
	}
	if err := s.store.CreateItem(ctx, it); err != nil {
		return nil, err
	}
	return it, nil
}

// Get returns one of the user's items.
func (s *Service) Get(ctx context.Context, userID, id int64) (*store.Item, error) {
	return s.store.GetItem(ctx, userID, id)
}

// Update applies req to one of the user's items.
func (s *Service) Update(ctx context.Context, userID, id int64, req UpdateRequest) (*store.Item, error) {
	var out *store.Item
	err := s.store.WithTx(ctx, func(tx *store.Store) error {
		it, err := tx.GetItem(ctx, userID, id)
		if err != nil {
			return err
		}
		if err := Merge(it, req); err != nil {
			return err
		}
		if err := tx.UpdateItem(ctx, it); err != nil {
			return err
		}
		out = it
		return nil
	})
	return out, err
}

// UpdateStatus sets an item's status. The status is checked before storage
// is touched.
func (s *Service) UpdateStatus(ctx context.Context, userID, id int64, status string) (*store.Item, error) {
	if !ValidStatus(status) {
		return nil, invalid(invalidStatusMsg)
	}
	return s.store.UpdateItemStatus(ctx, userID, id, status)
}

// Delete removes one of the user's items.
func (s *Service) Delete(ctx context.Context, userID, id int64) error {
	return s.store.DeleteItem(ctx, userID, id)
}

// Merge applies the present fields of req to it. Title and category cannot
// be cleared, and a status must be one of the four known values.
func Merge(it *store.Item, req UpdateRequest) error {
	if req.Title.Set {
		if req.Title.Value == nil || strings.TrimSpace(*req.Title.Value) == "" {
			return invalid("title cannot be empty")
		}
	}
	if req.Category.Set {
		if req.Category.Value == nil || strings.TrimSpace(*req.Category.Value) == "" {
			return invalid("category cannot be empty")
		}
	}
	if req.Status.Set {
		if req.Status.Value == nil || !ValidStatus(*req.Status.Value) {
			return invalid(invalidStatusMsg)
		}
	}
	var deadline *time.Time
	if req.Deadline.Set {
		d, err := parseDeadline(req.Deadline.Value)
		if err != nil {
			return err
		}
		deadline = d
	}

	if req.Title.Set {
		it.Title = strings.TrimSpace(*req.Title.Value)
	}
	if req.Category.Set {
		it.Category = strings.TrimSpace(*req.Category.Value)
	}
	if req.Status.Set {
		it.Status = *req.Status.Value
	}
	if req.Description.Set {
		it.Description = req.Description.Value
	}
	if req.Subcategory.Set {
		it.Subcategory = req.Subcategory.Value
	}
	if req.LifeArea.Set {
		it.LifeArea = req.LifeArea.Value
	}
	if req.Deadline.Set {
		it.Deadline = deadline
	}
	if req.Priority.Set {
		it.Priority = req.Priority.Value
	}
	return nil
}

func parseDeadline(s *string) (*time.Time, error) {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil, nil
	}
	t := classification.ParseDeadline(*s)
	if t == nil {
		return nil, invalid(fmt.Sprintf("deadline %q is not an ISO-8601 date or datetime", *s))
	}
	return t, nil
}

func invalid(msg string) error {
	return v1.Invalid(msg)
}
