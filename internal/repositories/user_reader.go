package repositories

import (
	"github.com/sbilibin2017/gw-settlement-validator/internal/logger"
	"github.com/sbilibin2017/gw-settlement-validator/internal/models"
)

// UserReadRepository indexes loaded users by identifier while keeping load order.
type UserReadRepository struct {
	users []models.User
	byID  map[string]int
}

// NewUserReadRepository builds the index. When an identifier repeats, the first
// occurrence is kept and later ones are dropped.
func NewUserReadRepository(users []models.User) *UserReadRepository {
	r := &UserReadRepository{
		users: make([]models.User, 0, len(users)),
		byID:  make(map[string]int, len(users)),
	}

	for _, u := range users {
		if _, ok := r.byID[u.ID]; ok {
			logger.Log.Warnw("duplicate user id ignored", "user_id", u.ID)
			continue
		}
		r.byID[u.ID] = len(r.users)
		r.users = append(r.users, u)
	}

	return r
}

// FindByID returns the user with the given identifier. A miss is reported
// through the boolean, never as an error.
func (r *UserReadRepository) FindByID(id string) (*models.User, bool) {
	idx, ok := r.byID[id]
	if !ok {
		return nil, false
	}
	return &r.users[idx], true
}

// All returns the users in load order.
func (r *UserReadRepository) All() []models.User {
	return r.users
}
