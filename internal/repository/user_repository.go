package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/noah-isme/edumatrix-api/internal/models"
	"github.com/noah-isme/edumatrix-api/pkg/kvstore"
)

// UserRepository manages the users document.
type UserRepository struct {
	doc *document[[]models.User]
}

// NewUserRepository constructs the repository.
func NewUserRepository(store kvstore.Store, maxRetries int) *UserRepository {
	return &UserRepository{doc: newDocument(store, KeyUsers, maxRetries, func() []models.User { return []models.User{} })}
}

// All returns every user in stored order.
func (r *UserRepository) All(ctx context.Context) ([]models.User, error) {
	users, _, err := r.doc.load(ctx)
	return users, err
}

// List filters and paginates users. The total is counted before paging.
func (r *UserRepository) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	users, err := r.All(ctx)
	if err != nil {
		return nil, 0, err
	}

	search := strings.ToLower(strings.TrimSpace(filter.Search))
	matched := make([]models.User, 0, len(users))
	for _, u := range users {
		if filter.Role != nil && u.Role != *filter.Role {
			continue
		}
		if filter.Status != nil && u.Status != *filter.Status {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(u.Username), search) && !strings.Contains(strings.ToLower(u.Email), search) {
			continue
		}
		matched = append(matched, u)
	}

	return paginate(matched, filter.Page, filter.PageSize), len(matched), nil
}

// FindByID returns a user by id.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	users, err := r.All(ctx)
	if err != nil {
		return nil, err
	}
	for i := range users {
		if users[i].ID == id {
			return &users[i], nil
		}
	}
	return nil, ErrNotFound
}

// FindByUsername matches case-insensitively.
func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	users, err := r.All(ctx)
	if err != nil {
		return nil, err
	}
	for i := range users {
		if users[i].SameUsername(username) {
			return &users[i], nil
		}
	}
	return nil, ErrNotFound
}

// Create appends user, rejecting a taken username.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	_, err := r.doc.mutate(ctx, func(users *[]models.User) error {
		if usernameTaken(*users, user.Username, "") {
			return fmt.Errorf("username %q: %w", user.Username, ErrDuplicate)
		}
		*users = append(*users, *user)
		return nil
	})
	return err
}

// Update applies fn to the user with id and re-checks username
// uniqueness excluding that user.
func (r *UserRepository) Update(ctx context.Context, id string, fn func(*models.User) error) (*models.User, error) {
	var updated models.User
	_, err := r.doc.mutate(ctx, func(users *[]models.User) error {
		idx := indexOfUser(*users, id)
		if idx < 0 {
			return ErrNotFound
		}
		candidate := (*users)[idx]
		if err := fn(&candidate); err != nil {
			return err
		}
		if usernameTaken(*users, candidate.Username, id) {
			return fmt.Errorf("username %q: %w", candidate.Username, ErrDuplicate)
		}
		(*users)[idx] = candidate
		updated = candidate
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// Delete removes a user and returns the removed record.
func (r *UserRepository) Delete(ctx context.Context, id string) (*models.User, error) {
	var removed models.User
	_, err := r.doc.mutate(ctx, func(users *[]models.User) error {
		idx := indexOfUser(*users, id)
		if idx < 0 {
			return ErrNotFound
		}
		removed = (*users)[idx]
		*users = append((*users)[:idx], (*users)[idx+1:]...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &removed, nil
}

// UpdateEach calls fn on every user and writes once if any call reported a
// change. It returns the number of changed users.
func (r *UserRepository) UpdateEach(ctx context.Context, fn func(*models.User) (bool, error)) (int, error) {
	var changed int
	_, err := r.doc.mutate(ctx, func(users *[]models.User) error {
		changed = 0
		for i := range *users {
			ok, err := fn(&(*users)[i])
			if err != nil {
				return err
			}
			if ok {
				changed++
			}
		}
		if changed == 0 {
			return ErrNoChange
		}
		return nil
	})
	return changed, err
}

// ReplaceAll overwrites the collection.
func (r *UserRepository) ReplaceAll(ctx context.Context, users []models.User) error {
	return r.doc.replace(ctx, users)
}

func indexOfUser(users []models.User, id string) int {
	for i := range users {
		if users[i].ID == id {
			return i
		}
	}
	return -1
}

func usernameTaken(users []models.User, username, exceptID string) bool {
	for _, u := range users {
		if u.ID != exceptID && u.SameUsername(username) {
			return true
		}
	}
	return false
}

func paginate[T any](items []T, page, size int) []T {
	if size <= 0 {
		return items
	}
	if page <= 0 {
		page = 1
	}
	start := (page - 1) * size
	if start >= len(items) {
		return []T{}
	}
	end := start + size
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
