package content

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"example.com/blogfeed/internal/apperr"
	"example.com/blogfeed/internal/auth"
	"example.com/blogfeed/internal/logger"
	"example.com/blogfeed/internal/models"
	"example.com/blogfeed/internal/store"
	"github.com/gocql/gocql"
	"github.com/google/uuid"
)

// PageSize is the fixed number of posts per feed page.
const PageSize = 2

var logg = logger.New()

// Notifier receives post events after successful mutations.
type Notifier interface {
	NotifyPost(ctx context.Context, event models.PostEvent) error
}

// Notifiers fans an event out to several notifiers.
type Notifiers []Notifier

func (ns Notifiers) NotifyPost(ctx context.Context, event models.PostEvent) error {
	var firstErr error
	for _, n := range ns {
		if err := n.NotifyPost(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Service validates, authorizes and performs user and post operations.
type Service struct {
	store    store.StoreInterface
	notifier Notifier
	now      func() time.Time
}

func NewService(st store.StoreInterface) *Service {
	return &Service{
		store: st,
		now:   time.Now,
	}
}

// SetNotifier sets the post event notifier (optional dependency).
func (s *Service) SetNotifier(n Notifier) {
	s.notifier = n
}

// timestamp returns the current time at the precision the store keeps.
func (s *Service) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

func requireAuth(id models.Identity) error {
	if !id.IsAuthenticated() {
		return apperr.Unauthorized("Not authenticated")
	}
	return nil
}

// --- Users ---

func (s *Service) CreateUser(ctx context.Context, email, name, password string) (*models.User, error) {
	if err := validateUserInput(email, password).Err(); err != nil {
		return nil, err
	}

	existing, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("check existing user: %w", err)
	}
	if existing != nil {
		return nil, apperr.AlreadyExists("User already exists")
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	now := s.timestamp()
	user := models.User{
		ID:           gocql.TimeUUID().String(),
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		Status:       models.DefaultStatus,
		PostIDs:      []string{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	created, err := s.store.CreateUser(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}
	if !created {
		// Lost a signup race for the same email
		return nil, apperr.AlreadyExists("User already exists")
	}

	logg.Info("content", "User created with user_id="+user.ID)
	user.PasswordHash = ""
	return &user, nil
}

func (s *Service) GetCurrentUser(ctx context.Context, id models.Identity) (*models.User, error) {
	if err := requireAuth(id); err != nil {
		return nil, err
	}
	return s.loadUser(ctx, id.UserID)
}

func (s *Service) UpdateStatus(ctx context.Context, id models.Identity, status string) (*models.User, error) {
	if err := requireAuth(id); err != nil {
		return nil, err
	}

	user, err := s.loadUser(ctx, id.UserID)
	if err != nil {
		return nil, err
	}

	user.Status = status
	user.UpdatedAt = s.timestamp()
	if err := s.store.UpdateUserStatus(ctx, *user); err != nil {
		return nil, fmt.Errorf("updating status: %w", err)
	}
	return user, nil
}

// loadUser fetches a user with its owned post list, or NotFound.
func (s *Service) loadUser(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if user == nil {
		return nil, apperr.NotFound("User not found")
	}

	ids, err := s.store.ListPostIDsByCreator(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("load owned posts: %w", err)
	}
	user.PostIDs = ids
	user.PasswordHash = ""
	return user, nil
}

// OwnedPosts resolves a user's owned list to posts, skipping dangling ids.
// The list is always read from the creator index, so it does not matter how
// user was loaded.
func (s *Service) OwnedPosts(ctx context.Context, user *models.User) ([]models.Post, error) {
	ids, err := s.store.ListPostIDsByCreator(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("load owned posts: %w", err)
	}
	user.PostIDs = ids

	res := make([]models.Post, 0, len(ids))
	for _, pid := range ids {
		p, err := s.store.GetPost(ctx, pid)
		if err != nil {
			return nil, fmt.Errorf("load owned post: %w", err)
		}
		if p == nil {
			continue
		}
		p.Creator = user
		res = append(res, *p)
	}
	return res, nil
}

// OwnsImage reports whether imagePath is the image of one of userID's posts.
// Paths are compared by file name, the way the image store resolves them.
func (s *Service) OwnsImage(ctx context.Context, userID, imagePath string) (bool, error) {
	name := path.Base(imagePath)
	if name == "." || name == "/" {
		return false, nil
	}

	ids, err := s.store.ListPostIDsByCreator(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("load owned posts: %w", err)
	}
	for _, pid := range ids {
		p, err := s.store.GetPost(ctx, pid)
		if err != nil {
			return false, fmt.Errorf("load owned post: %w", err)
		}
		if p != nil && p.ImageURL != "" && path.Base(p.ImageURL) == name {
			return true, nil
		}
	}
	return false, nil
}

// --- Posts ---

func (s *Service) CreatePost(ctx context.Context, id models.Identity, title, content, imageURL string) (*models.Post, error) {
	if err := requireAuth(id); err != nil {
		return nil, err
	}
	if err := validatePostInput(title, content).Err(); err != nil {
		return nil, err
	}

	creator, err := s.loadUser(ctx, id.UserID)
	if err != nil {
		return nil, err
	}

	now := s.timestamp()
	post := models.Post{
		ID:        uuid.NewString(),
		Title:     title,
		Content:   content,
		ImageURL:  imageURL,
		CreatorID: creator.ID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.store.CreatePost(ctx, post); err != nil {
		return nil, fmt.Errorf("creating post: %w", err)
	}

	creator.PostIDs = append(creator.PostIDs, post.ID)
	post.Creator = creator

	logg.Info("content", "Post created by user_id="+creator.ID)
	s.notify(ctx, models.PostCreated, post)
	return &post, nil
}

func (s *Service) ListPosts(ctx context.Context, id models.Identity, page int) (*models.PostPage, error) {
	if err := requireAuth(id); err != nil {
		return nil, err
	}
	if page <= 0 {
		page = 1
	}

	total, err := s.store.CountPosts(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting posts: %w", err)
	}

	posts, err := s.store.ListPosts(ctx, (page-1)*PageSize, PageSize)
	if err != nil {
		return nil, fmt.Errorf("listing posts: %w", err)
	}

	creators := make(map[string]*models.User)
	for i := range posts {
		creator, err := s.creatorOf(ctx, posts[i].CreatorID, creators)
		if err != nil {
			return nil, err
		}
		posts[i].Creator = creator
	}

	return &models.PostPage{Posts: posts, TotalPosts: total}, nil
}

func (s *Service) GetPost(ctx context.Context, id models.Identity, postID string) (*models.Post, error) {
	if err := requireAuth(id); err != nil {
		return nil, err
	}

	post, err := s.loadPost(ctx, postID)
	if err != nil {
		return nil, err
	}

	creator, err := s.creatorOf(ctx, post.CreatorID, nil)
	if err != nil {
		return nil, err
	}
	post.Creator = creator
	return post, nil
}

func (s *Service) UpdatePost(ctx context.Context, id models.Identity, postID, title, content string) (*models.Post, error) {
	if err := requireAuth(id); err != nil {
		return nil, err
	}

	post, err := s.loadOwnedPost(ctx, id, postID)
	if err != nil {
		return nil, err
	}

	if err := validatePostInput(title, content).Err(); err != nil {
		return nil, err
	}

	post.Title = title
	post.Content = content
	post.UpdatedAt = s.timestamp()
	if post.UpdatedAt.Before(post.CreatedAt) {
		post.UpdatedAt = post.CreatedAt
	}

	if err := s.store.UpdatePost(ctx, *post); err != nil {
		if errors.Is(err, store.ErrPostNotFound) {
			return nil, apperr.NotFound("No post found")
		}
		return nil, fmt.Errorf("updating post: %w", err)
	}

	creator, err := s.creatorOf(ctx, post.CreatorID, nil)
	if err != nil {
		return nil, err
	}
	post.Creator = creator

	s.notify(ctx, models.PostUpdated, *post)
	return post, nil
}

func (s *Service) DeletePost(ctx context.Context, id models.Identity, postID string) (bool, error) {
	if err := requireAuth(id); err != nil {
		return false, err
	}

	post, err := s.loadOwnedPost(ctx, id, postID)
	if err != nil {
		return false, err
	}

	if err := s.store.DeletePost(ctx, *post); err != nil {
		return false, fmt.Errorf("deleting post: %w", err)
	}

	logg.Info("content", "Post deleted by user_id="+id.UserID)
	s.notify(ctx, models.PostDeleted, *post)
	return true, nil
}

func (s *Service) loadPost(ctx context.Context, postID string) (*models.Post, error) {
	post, err := s.store.GetPost(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("load post: %w", err)
	}
	if post == nil {
		return nil, apperr.NotFound("No post found")
	}
	return post, nil
}

// loadOwnedPost loads a post and checks that the caller created it.
func (s *Service) loadOwnedPost(ctx context.Context, id models.Identity, postID string) (*models.Post, error) {
	post, err := s.loadPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post.CreatorID != id.UserID {
		logg.Info("content", "Ownership check failed for user_id="+id.UserID)
		return nil, apperr.Forbidden("Not authorized")
	}
	return post, nil
}

// GetCreator loads the public view of a post's creator.
func (s *Service) GetCreator(ctx context.Context, creatorID string) (*models.User, error) {
	return s.creatorOf(ctx, creatorID, nil)
}

// creatorOf loads a post's creator, consulting and filling cache when given.
func (s *Service) creatorOf(ctx context.Context, creatorID string, cache map[string]*models.User) (*models.User, error) {
	if u, ok := cache[creatorID]; ok {
		return u, nil
	}

	user, err := s.store.GetUserByID(ctx, creatorID)
	if err != nil {
		return nil, fmt.Errorf("load creator: %w", err)
	}
	if user == nil {
		// Creator account is gone; keep the post readable
		user = &models.User{ID: creatorID, Name: "[deleted]"}
	}
	user.PasswordHash = ""

	if cache != nil {
		cache[creatorID] = user
	}
	return user, nil
}

func (s *Service) notify(ctx context.Context, action models.PostAction, post models.Post) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyPost(ctx, models.PostEvent{Action: action, Post: post}); err != nil {
		logg.Warn("content", "Failed to publish post "+string(action)+" event", err)
	}
}
