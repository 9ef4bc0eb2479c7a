package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sreekar-ss/devbytes-blog/database"
	"github.com/sreekar-ss/devbytes-blog/models"
)

// PostStore reads the content store's posts table. It never writes.
type PostStore struct {
	db *database.DB
}

func NewPostStore(db *database.DB) *PostStore {
	return &PostStore{db: db}
}

func (s *PostStore) GetPostByID(ctx context.Context, id string) (*models.Post, error) {
	post := &models.Post{}
	err := s.db.GetContext(ctx, post, s.db.Rebind(`SELECT id, slug, title FROM posts WHERE id = ?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPostNotFound
		}
		return nil, fmt.Errorf("failed to get post by id: %w", err)
	}
	return post, nil
}

// CreatePost inserts into the standalone posts table created by
// `migrate --content-tables`.
func (s *PostStore) CreatePost(ctx context.Context, post *models.Post) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`INSERT INTO posts (id, slug, title) VALUES (?, ?, ?)`),
		post.ID, post.Slug, post.Title)
	if err != nil {
		return fmt.Errorf("failed to create post: %w", err)
	}
	return nil
}
