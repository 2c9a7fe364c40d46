package store

import (
	"context"
	"errors"
	"sort"
	"sync"

	"example.com/blogfeed/internal/models"
)

// MockStore simulates Cassandra operations for testing.
type MockStore struct {
	mu         sync.Mutex
	Users      map[string]models.User
	Emails     map[string]string
	Posts      map[string]models.Post
	order      []string // post ids in insertion order
	ShouldFail bool     // flag to simulate failures
}

// NewMock initializes a new mock store
func NewMock() *MockStore {
	return &MockStore{
		Users:  make(map[string]models.User),
		Emails: make(map[string]string),
		Posts:  make(map[string]models.Post),
	}
}

func (m *MockStore) Close() {}

// CreateUser simulates the email claim and user insert
func (m *MockStore) CreateUser(ctx context.Context, user models.User) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return false, errors.New("mock: create user failed")
	}
	if _, taken := m.Emails[user.Email]; taken {
		return false, nil
	}
	m.Emails[user.Email] = user.ID
	m.Users[user.ID] = user
	return true, nil
}

func (m *MockStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return nil, errors.New("mock: get user failed")
	}
	u, ok := m.Users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (m *MockStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	if m.ShouldFail {
		m.mu.Unlock()
		return nil, errors.New("mock: get user by email failed")
	}
	id, ok := m.Emails[email]
	m.mu.Unlock()
	if !ok {
		return nil, nil
	}
	return m.GetUserByID(ctx, id)
}

func (m *MockStore) UpdateUserStatus(ctx context.Context, user models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return errors.New("mock: update status failed")
	}
	u, ok := m.Users[user.ID]
	if !ok {
		return nil
	}
	u.Status = user.Status
	u.UpdatedAt = user.UpdatedAt
	m.Users[user.ID] = u
	return nil
}

// DeleteUser removes a user, simulating an account vanishing after login.
func (m *MockStore) DeleteUser(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.Users[id]; ok {
		delete(m.Emails, u.Email)
		delete(m.Users, id)
	}
}

// CreatePost simulates adding a post
func (m *MockStore) CreatePost(ctx context.Context, post models.Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return errors.New("mock: add post failed")
	}
	post.Creator = nil
	m.Posts[post.ID] = post
	m.order = append(m.order, post.ID)
	return nil
}

func (m *MockStore) GetPost(ctx context.Context, id string) (*models.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return nil, errors.New("mock: get post failed")
	}
	if !validPostID(id) {
		return nil, nil
	}
	p, ok := m.Posts[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *MockStore) UpdatePost(ctx context.Context, post models.Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return errors.New("mock: update post failed")
	}
	p, ok := m.Posts[post.ID]
	if !ok {
		return ErrPostNotFound
	}
	p.Title = post.Title
	p.Content = post.Content
	p.UpdatedAt = post.UpdatedAt
	m.Posts[post.ID] = p
	return nil
}

func (m *MockStore) DeletePost(ctx context.Context, post models.Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return errors.New("mock: delete post failed")
	}
	delete(m.Posts, post.ID)
	for i, id := range m.order {
		if id == post.ID {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

// newestFirst returns live posts ordered by creation time, newest first.
// Posts created in the same millisecond keep reverse insertion order.
func (m *MockStore) newestFirst() []models.Post {
	res := make([]models.Post, 0, len(m.order))
	for i := len(m.order) - 1; i >= 0; i-- {
		res = append(res, m.Posts[m.order[i]])
	}
	sort.SliceStable(res, func(i, j int) bool {
		return res[i].CreatedAt.After(res[j].CreatedAt)
	})
	return res
}

func (m *MockStore) ListPosts(ctx context.Context, offset, limit int) ([]models.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return nil, errors.New("mock: list posts failed")
	}
	all := m.newestFirst()
	if offset < 0 || limit <= 0 || offset >= len(all) {
		return []models.Post{}, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (m *MockStore) CountPosts(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return 0, errors.New("mock: count posts failed")
	}
	return len(m.order), nil
}

func (m *MockStore) ListPostIDsByCreator(ctx context.Context, creatorID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return nil, errors.New("mock: list posts by creator failed")
	}
	res := []string{}
	for _, id := range m.order {
		if m.Posts[id].CreatorID == creatorID {
			res = append(res, id)
		}
	}
	return res, nil
}

// ---------------------------------------------
// MockStoreFail always returns errors for negative tests
type MockStoreFail struct{}

func (m *MockStoreFail) Close() {}

func (m *MockStoreFail) CreateUser(ctx context.Context, user models.User) (bool, error) {
	return false, errors.New("mock store create user failed")
}

func (m *MockStoreFail) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return nil, errors.New("mock store get user failed")
}

func (m *MockStoreFail) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return nil, errors.New("mock store get user by email failed")
}

func (m *MockStoreFail) UpdateUserStatus(ctx context.Context, user models.User) error {
	return errors.New("mock store update status failed")
}

func (m *MockStoreFail) CreatePost(ctx context.Context, post models.Post) error {
	return errors.New("mock store add post failed")
}

func (m *MockStoreFail) GetPost(ctx context.Context, id string) (*models.Post, error) {
	return nil, errors.New("mock store get post failed")
}

func (m *MockStoreFail) UpdatePost(ctx context.Context, post models.Post) error {
	return errors.New("mock store update post failed")
}

func (m *MockStoreFail) DeletePost(ctx context.Context, post models.Post) error {
	return errors.New("mock store delete post failed")
}

func (m *MockStoreFail) ListPosts(ctx context.Context, offset, limit int) ([]models.Post, error) {
	return nil, errors.New("mock store list posts failed")
}

func (m *MockStoreFail) CountPosts(ctx context.Context) (int, error) {
	return 0, errors.New("mock store count posts failed")
}

func (m *MockStoreFail) ListPostIDsByCreator(ctx context.Context, creatorID string) ([]string, error) {
	return nil, errors.New("mock store list posts by creator failed")
}
