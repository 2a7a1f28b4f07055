package memstore

import (
	"context"
	"sync"
	"time"

	"charging-service/internal/models"

	"github.com/google/uuid"
)

// Accounts is the in-memory user store.
type Accounts struct {
	mu         sync.RWMutex
	byID       map[string]*models.User
	byUsername map[string]string
	byEmail    map[string]string
}

func NewAccounts() *Accounts {
	return &Accounts{
		byID:       make(map[string]*models.User),
		byUsername: make(map[string]string),
		byEmail:    make(map[string]string),
	}
}

// Create stores a new user. Username and email must both be unused.
func (a *Accounts) Create(_ context.Context, user *models.User) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, taken := a.byUsername[user.Username]; taken {
		return models.ErrUserExists
	}
	if _, taken := a.byEmail[user.Email]; taken {
		return models.ErrUserExists
	}

	user.ID = uuid.New().String()
	user.CreatedAt = time.Now().UTC()

	stored := cloneUser(user)
	a.byID[stored.ID] = stored
	a.byUsername[stored.Username] = stored.ID
	a.byEmail[stored.Email] = stored.ID
	return nil
}

func (a *Accounts) Get(_ context.Context, userID string) (*models.User, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	user, ok := a.byID[userID]
	if !ok {
		return nil, models.ErrUserNotFound
	}
	return cloneUser(user), nil
}

func (a *Accounts) GetByUsername(_ context.Context, username string) (*models.User, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	id, ok := a.byUsername[username]
	if !ok {
		return nil, models.ErrUserNotFound
	}
	return cloneUser(a.byID[id]), nil
}

// Update applies fn to a copy of the user and stores the result if fn
// succeeds. Email changes keep the uniqueness index in sync.
func (a *Accounts) Update(_ context.Context, userID string, fn func(*models.User) error) (*models.User, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	current, ok := a.byID[userID]
	if !ok {
		return nil, models.ErrUserNotFound
	}

	updated := cloneUser(current)
	if err := fn(updated); err != nil {
		return nil, err
	}

	if updated.Email != current.Email {
		if owner, taken := a.byEmail[updated.Email]; taken && owner != userID {
			return nil, models.ErrUserExists
		}
		delete(a.byEmail, current.Email)
		a.byEmail[updated.Email] = userID
	}

	// id and username are immutable
	updated.ID = current.ID
	updated.Username = current.Username
	a.byID[userID] = updated
	return cloneUser(updated), nil
}

func cloneUser(u *models.User) *models.User {
	c := *u
	c.Vehicles = make([]models.Vehicle, len(u.Vehicles))
	copy(c.Vehicles, u.Vehicles)
	return &c
}
