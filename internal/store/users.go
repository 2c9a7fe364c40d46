package store

import (
	"context"

	"example.com/blogfeed/internal/models"
	"github.com/gocql/gocql"
)

// --- User operations ---

// CreateUser claims the email with a lightweight transaction, then writes the
// user row. It returns false without an error when the email is taken.
func (s *Store) CreateUser(ctx context.Context, user models.User) (bool, error) {
	result := make(map[string]interface{})
	applied, err := s.Session.Query(`
		INSERT INTO users_by_email (email, user_id)
		VALUES (?, ?) IF NOT EXISTS`,
		user.Email, user.ID,
	).WithContext(ctx).MapScanCAS(result)
	if err != nil {
		logg.Error("store", "Failed to claim email", err)
		return false, err
	}

	if !applied {
		// Another account already owns this email
		return false, nil
	}

	err = s.Session.Query(`
		INSERT INTO users (user_id, email, name, password_hash, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.Email, user.Name, user.PasswordHash, user.Status, user.CreatedAt, user.UpdatedAt,
	).WithContext(ctx).Exec()
	if err != nil {
		logg.Error("store", "Failed to create user in main table", err)
		// Release the email so the signup can be retried
		if delErr := s.Session.Query(
			`DELETE FROM users_by_email WHERE email = ? IF user_id = ?`,
			user.Email, user.ID,
		).WithContext(ctx).Exec(); delErr != nil {
			logg.Error("store", "Failed to release claimed email", delErr)
		}
		return false, err
	}

	logg.Info("store", "User created successfully (email anonymized)")
	return true, nil
}

// GetUserByID returns nil without an error if the user does not exist.
func (s *Store) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	err := s.Session.Query(`
		SELECT user_id, email, name, password_hash, status, created_at, updated_at
		FROM users WHERE user_id = ?`,
		id,
	).WithContext(ctx).Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.Status, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, nil
		}
		logg.Error("store", "Failed to query user by id", err)
		return nil, err
	}
	return &u, nil
}

// GetUserByEmail returns nil without an error if no user has this email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var id string
	err := s.Session.Query(
		`SELECT user_id FROM users_by_email WHERE email = ?`,
		email,
	).WithContext(ctx).Scan(&id)
	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, nil
		}
		logg.Error("store", "Failed to query user by email", err)
		return nil, err
	}
	return s.GetUserByID(ctx, id)
}

func (s *Store) UpdateUserStatus(ctx context.Context, user models.User) error {
	if err := s.Session.Query(`
		UPDATE users SET status = ?, updated_at = ?
		WHERE user_id = ?`,
		user.Status, user.UpdatedAt, user.ID,
	).WithContext(ctx).Exec(); err != nil {
		logg.Error("store", "Failed to update user status", err)
		return err
	}
	return nil
}
