// Package registry holds the ordered set of participants currently present in
// the chat. Join order is preserved and is the order clients see in every
// membership snapshot.
//
// A Registry is not safe for concurrent use. The server hub owns the only
// instance and serializes every access through its event loop.
package registry

import (
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

var (
	// ErrConflict is returned when a user cannot be created because the
	// requested name is taken or missing.
	ErrConflict = errors.New("this name is already taken")
	// ErrEmptyName is a Conflict raised for an absent or empty name.
	ErrEmptyName = fmt.Errorf("%w: name is required", ErrConflict)
	// ErrNotFound is returned for operations on an unknown user id.
	ErrNotFound = errors.New("user not found")
)

// User is a participant known to the registry.
type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Registry is the ordered collection of active users.
type Registry struct {
	users []User
	newID func() string
}

// New returns an empty registry that assigns random UUIDs to new users.
func New() *Registry {
	return &Registry{
		users: make([]User, 0),
		newID: uuid.NewString,
	}
}

// Create appends a user with a fresh id. The name must be non-empty and not
// held by any existing user.
func (r *Registry) Create(name string) (User, error) {
	if name == "" {
		return User{}, ErrEmptyName
	}
	if lo.ContainsBy(r.users, func(u User) bool { return u.Name == name }) {
		return User{}, ErrConflict
	}

	id := r.newID()
	for r.indexOf(id) != -1 {
		id = r.newID()
	}

	user := User{ID: id, Name: name}
	r.users = append(r.users, user)
	return user, nil
}

// List returns a copy of every user in join order. The result is never nil so
// it encodes as an empty JSON array.
func (r *Registry) List() []User {
	return append(make([]User, 0, len(r.users)), r.users...)
}

// Get looks up a user by id.
func (r *Registry) Get(id string) (User, error) {
	user, ok := lo.Find(r.users, func(u User) bool { return u.ID == id })
	if !ok {
		return User{}, ErrNotFound
	}
	return user, nil
}

// Update renames a user in place.
//
// The new name is not checked against other users, so two users can end up
// sharing a name through Update. Create is the only operation that enforces
// uniqueness.
func (r *Registry) Update(id, name string) (User, error) {
	idx := r.indexOf(id)
	if idx == -1 {
		return User{}, ErrNotFound
	}
	r.users[idx].Name = name
	return r.users[idx], nil
}

// Remove deletes the user with the given id and returns it. The bool reports
// whether anything was removed; removing an unknown id is not an error.
func (r *Registry) Remove(id string) (User, bool) {
	idx := r.indexOf(id)
	if idx == -1 {
		return User{}, false
	}
	user := r.users[idx]
	r.users = slices.Delete(r.users, idx, idx+1)
	return user, true
}

// Len returns the number of users present.
func (r *Registry) Len() int {
	return len(r.users)
}

func (r *Registry) indexOf(id string) int {
	_, idx, _ := lo.FindIndexOf(r.users, func(u User) bool { return u.ID == id })
	return idx
}
