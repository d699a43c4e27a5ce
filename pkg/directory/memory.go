package directory

import (
	"context"
	"slices"
	"sort"
	"sync"
)

// MemoryDirectory is a thread-safe in-memory Directory.
type MemoryDirectory struct {
	mu    sync.RWMutex
	users map[string]User
}

// NewMemoryDirectory returns a directory seeded with users.
func NewMemoryDirectory(users ...User) *MemoryDirectory {
	d := &MemoryDirectory{users: make(map[string]User, len(users))}
	for _, u := range users {
		d.users[u.ID] = clone(u)
	}
	return d
}

// Put inserts or replaces a user.
func (d *MemoryDirectory) Put(u User) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[u.ID] = clone(u)
}

func (d *MemoryDirectory) FindByID(_ context.Context, id string) (User, error) {
	if id == "" {
		return User{}, ErrEmptyUserID
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return clone(u), nil
}

func (d *MemoryDirectory) FindByRoles(_ context.Context, roles ...string) ([]User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []User
	for _, u := range d.users {
		if u.IsActive && u.HasRole(roles...) {
			out = append(out, clone(u))
		}
	}
	sortByID(out)
	return out, nil
}

func (d *MemoryDirectory) FindByIDs(_ context.Context, ids []string) ([]User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]User, 0, len(ids))
	for _, id := range ids {
		if u, ok := d.users[id]; ok {
			out = append(out, clone(u))
		}
	}
	return out, nil
}

func clone(u User) User {
	u.PushTokens = slices.Clone(u.PushTokens)
	return u
}

func sortByID(users []User) {
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
}
