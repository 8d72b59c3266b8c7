package user_test

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/backend-pos/internal/common"
	"github.com/noah-isme/backend-pos/internal/user"
)

type fakeStore struct {
	mu       sync.Mutex
	users    map[string]user.User
	hashSets int
	clock    time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{users: map[string]user.User{}, clock: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)}
}

func (f *fakeStore) conflict(email, phone, except string) error {
	for id, u := range f.users {
		if id == except {
			continue
		}
		if email != "" && strings.EqualFold(u.Email, email) {
			return user.ErrDuplicateEmail
		}
		if phone != "" && u.Phone == phone {
			return user.ErrDuplicatePhone
		}
	}
	return nil
}

func (f *fakeStore) Create(_ context.Context, in user.NewUser) (user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.conflict(in.Email, in.Phone, ""); err != nil {
		return user.User{}, err
	}
	f.clock = f.clock.Add(time.Minute)
	u := user.User{
		ID:           uuid.NewString(),
		Username:     in.Username,
		Email:        in.Email,
		Phone:        in.Phone,
		Status:       user.StatusActive,
		Role:         in.Role,
		PasswordHash: in.PasswordHash,
		CreatedAt:    f.clock,
		UpdatedAt:    f.clock,
	}
	f.users[u.ID] = u
	return u, nil
}

func (f *fakeStore) Update(_ context.Context, id string, in user.UpdateInput) (user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	var email, phone string
	if in.Email != nil {
		email = *in.Email
	}
	if in.Phone != nil {
		phone = *in.Phone
	}
	if err := f.conflict(email, phone, id); err != nil {
		return user.User{}, err
	}
	if in.Username != nil {
		u.Username = *in.Username
	}
	if in.Email != nil {
		u.Email = *in.Email
	}
	if in.Phone != nil {
		u.Phone = *in.Phone
	}
	if in.Role != nil {
		u.Role = *in.Role
	}
	f.clock = f.clock.Add(time.Minute)
	u.UpdatedAt = f.clock
	f.users[id] = u
	return u, nil
}

func (f *fakeStore) SetStatus(_ context.Context, id string, status user.Status) (user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	u.Status = status
	f.users[id] = u
	return u, nil
}

func (f *fakeStore) SetPasswordHash(_ context.Context, id, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return user.ErrNotFound
	}
	u.PasswordHash = hash
	f.users[id] = u
	f.hashSets++
	return nil
}

func (f *fakeStore) Get(_ context.Context, id string) (user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	return u, nil
}

func (f *fakeStore) GetByEmail(_ context.Context, email string) (user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (f *fakeStore) List(context.Context) ([]user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]user.User, 0, len(f.users))
	for _, u := range f.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return strings.ToLower(out[i].Username) < strings.ToLower(out[j].Username) })
	return out, nil
}

func (f *fakeStore) seed(u user.User) user.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Status == "" {
		u.Status = user.StatusActive
	}
	if u.Role == "" {
		u.Role = user.RoleStaff
	}
	f.users[u.ID] = u
	return u
}

func (f *fakeStore) hash(id string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.users[id].PasswordHash
}

type fakeQueue struct {
	mu   sync.Mutex
	sent []common.Email
	err  error
}

func (q *fakeQueue) Enqueue(_ context.Context, email common.Email) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.sent = append(q.sent, email)
	return nil
}

func (q *fakeQueue) last() common.Email {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.sent[len(q.sent)-1]
}

func (q *fakeQueue) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.sent)
}
