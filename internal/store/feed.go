package store

import (
	"context"
	"errors"

	"example.com/blogfeed/internal/models"
	"github.com/gocql/gocql"
)

// ErrPostNotFound is returned by UpdatePost when the post is gone.
var ErrPostNotFound = errors.New("post not found")

// --- Post operations ---

// validPostID reports whether id can address a row of the posts table.
func validPostID(id string) bool {
	_, err := gocql.ParseUUID(id)
	return err == nil
}

// CreatePost writes the post and both of its index rows in one logged batch.
func (s *Store) CreatePost(ctx context.Context, post models.Post) error {
	batch := s.Session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(`
		INSERT INTO posts (post_id, title, content, image_url, creator_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		post.ID, post.Title, post.Content, post.ImageURL, post.CreatorID, post.CreatedAt, post.UpdatedAt,
	)
	batch.Query(`INSERT INTO posts_by_feed (bucket, created_at, post_id) VALUES (?, ?, ?)`,
		feedBucket, post.CreatedAt, post.ID)
	batch.Query(`INSERT INTO posts_by_creator (creator_id, created_at, post_id) VALUES (?, ?, ?)`,
		post.CreatorID, post.CreatedAt, post.ID)

	if err := s.Session.ExecuteBatch(batch); err != nil {
		logg.Error("store", "Failed to add post", err)
		return err
	}

	logg.Info("store", "Post added with feed and creator indexes (post content anonymized)")
	return nil
}

// GetPost returns nil without an error if the post does not exist.
func (s *Store) GetPost(ctx context.Context, id string) (*models.Post, error) {
	if !validPostID(id) {
		return nil, nil
	}

	var p models.Post
	err := s.Session.Query(`
		SELECT post_id, title, content, image_url, creator_id, created_at, updated_at
		FROM posts WHERE post_id = ?`,
		id,
	).WithContext(ctx).Scan(&p.ID, &p.Title, &p.Content, &p.ImageURL, &p.CreatorID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, nil
		}
		logg.Error("store", "Failed to query post", err)
		return nil, err
	}
	return &p, nil
}

// UpdatePost rewrites title, content and updated_at. Image and creator are
// never touched. A post deleted in the meantime is not recreated; the call
// fails with ErrPostNotFound instead.
func (s *Store) UpdatePost(ctx context.Context, post models.Post) error {
	if !validPostID(post.ID) {
		return ErrPostNotFound
	}

	applied, err := s.Session.Query(`
		UPDATE posts SET title = ?, content = ?, updated_at = ?
		WHERE post_id = ? IF EXISTS`,
		post.Title, post.Content, post.UpdatedAt, post.ID,
	).WithContext(ctx).MapScanCAS(map[string]interface{}{})
	if err != nil {
		logg.Error("store", "Failed to update post", err)
		return err
	}
	if !applied {
		return ErrPostNotFound
	}
	return nil
}

// DeletePost removes the post and its index rows in one logged batch.
func (s *Store) DeletePost(ctx context.Context, post models.Post) error {
	batch := s.Session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(`DELETE FROM posts WHERE post_id = ?`, post.ID)
	batch.Query(`DELETE FROM posts_by_feed WHERE bucket = ? AND created_at = ? AND post_id = ?`,
		feedBucket, post.CreatedAt, post.ID)
	batch.Query(`DELETE FROM posts_by_creator WHERE creator_id = ? AND created_at = ? AND post_id = ?`,
		post.CreatorID, post.CreatedAt, post.ID)

	if err := s.Session.ExecuteBatch(batch); err != nil {
		logg.Error("store", "Failed to delete post", err)
		return err
	}

	logg.Info("store", "Post deleted with its index rows")
	return nil
}

func (s *Store) ListPosts(ctx context.Context, offset, limit int) ([]models.Post, error) {
	if offset < 0 || limit <= 0 {
		return []models.Post{}, nil
	}

	iter := s.Session.Query(`
		SELECT post_id FROM posts_by_feed
		WHERE bucket = ? LIMIT ?`,
		feedBucket, offset+limit,
	).WithContext(ctx).Iter()

	var ids []string
	var id string
	var n int
	for iter.Scan(&id) {
		if n >= offset {
			ids = append(ids, id)
		}
		n++
	}

	if err := iter.Close(); err != nil {
		logg.Error("store", "Failed to read feed index", err)
		return nil, err
	}

	res := make([]models.Post, 0, len(ids))
	for _, pid := range ids {
		p, err := s.GetPost(ctx, pid)
		if err != nil {
			return nil, err
		}
		if p == nil {
			continue
		}
		res = append(res, *p)
	}
	return res, nil
}

func (s *Store) CountPosts(ctx context.Context) (int, error) {
	var count int64
	if err := s.Session.Query(
		`SELECT COUNT(*) FROM posts_by_feed WHERE bucket = ?`,
		feedBucket,
	).WithContext(ctx).Scan(&count); err != nil {
		logg.Error("store", "Failed to count posts", err)
		return 0, err
	}
	return int(count), nil
}

func (s *Store) ListPostIDsByCreator(ctx context.Context, creatorID string) ([]string, error) {
	iter := s.Session.Query(
		`SELECT post_id FROM posts_by_creator WHERE creator_id = ?`,
		creatorID,
	).WithContext(ctx).Iter()

	res := []string{}
	var id string
	for iter.Scan(&id) {
		res = append(res, id)
	}

	if err := iter.Close(); err != nil {
		logg.Error("store", "Failed to list posts by creator", err)
		return nil, err
	}
	return res, nil
}
