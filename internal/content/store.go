// Package content is the site content store: posts, tags and categories,
// backed by SQLite.
package content

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const (
	driverName = "sqlite"
	dsnOptions = "?_pragma=busy_timeout(3000)&_pragma=journal_mode(WAL)"

	// StatusDraft is the status every new post starts in.
	StatusDraft = "draft"

	// DefaultSearchLimit bounds search results handed to the model.
	DefaultSearchLimit = 5
)

var (
	ErrPostNotFound     = errors.New("content: post not found")
	ErrCategoryNotFound = errors.New("content: category not found")
)

// Post is one stored post with its tags.
type Post struct {
	ID      int64
	Title   string
	Content string
	Status  string
	Tags    []string
}

// Category is one taxonomy term.
type Category struct {
	ID   int64
	Name string
}

// Store persists posts, tags and categories.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

func New(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("content: path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("content: create dir: %w", err)
	}
	db, err := sql.Open(driverName, path+dsnOptions)
	if err != nil {
		return nil, fmt.Errorf("content: open db: %w", err)
	}
	s := &Store{db: db, now: time.Now}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	const q = `
CREATE TABLE IF NOT EXISTS posts (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	title      TEXT NOT NULL,
	content    TEXT NOT NULL,
	status     TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS post_tags (
	post_id INTEGER NOT NULL REFERENCES posts(id),
	tag     TEXT NOT NULL,
	UNIQUE(post_id, tag)
);
CREATE TABLE IF NOT EXISTS categories (
	id   INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE
);
CREATE TABLE IF NOT EXISTS post_categories (
	post_id     INTEGER NOT NULL REFERENCES posts(id),
	category_id INTEGER NOT NULL REFERENCES categories(id),
	PRIMARY KEY(post_id, category_id)
);`
	if _, err := s.db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("content: migrate: %w", err)
	}
	return nil
}

// CreatePost inserts a new draft and returns its id.
func (s *Store) CreatePost(ctx context.Context, title, content string) (int64, error) {
	if strings.TrimSpace(title) == "" {
		return 0, fmt.Errorf("content: title is required")
	}
	const q = `INSERT INTO posts (title, content, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`
	ts := s.now().UnixMilli()
	res, err := s.db.ExecContext(ctx, q, title, content, StatusDraft, ts, ts)
	if err != nil {
		return 0, fmt.Errorf("content: create post: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("content: create post: %w", err)
	}
	return id, nil
}

// UpdatePost rewrites title, content and/or status of an existing post. Nil
// fields are left untouched.
func (s *Store) UpdatePost(ctx context.Context, id int64, title, content, status *string) error {
	if title == nil && content == nil && status == nil {
		return fmt.Errorf("content: nothing to update")
	}
	sets := []string{"updated_at = ?"}
	args := []any{s.now().UnixMilli()}
	if title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *title)
	}
	if content != nil {
		sets = append(sets, "content = ?")
		args = append(args, *content)
	}
	if status != nil {
		sets = append(sets, "status = ?")
		args = append(args, *status)
	}
	args = append(args, id)
	q := "UPDATE posts SET " + strings.Join(sets, ", ") + " WHERE id = ?"
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("content: update post: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("content: update post: %w", err)
	}
	if n == 0 {
		return ErrPostNotFound
	}
	return nil
}

// AddTags attaches tags to a post, skipping duplicates.
func (s *Store) AddTags(ctx context.Context, postID int64, tags []string) error {
	if _, err := s.GetPost(ctx, postID); err != nil {
		return err
	}
	const q = `INSERT INTO post_tags (post_id, tag) VALUES (?, ?) ON CONFLICT(post_id, tag) DO NOTHING`
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, q, postID, tag); err != nil {
			return fmt.Errorf("content: add tag: %w", err)
		}
	}
	return nil
}

// GetPost loads one post with its tags.
func (s *Store) GetPost(ctx context.Context, id int64) (*Post, error) {
	const q = `SELECT id, title, content, status FROM posts WHERE id = ?`
	var p Post
	err := s.db.QueryRowContext(ctx, q, id).Scan(&p.ID, &p.Title, &p.Content, &p.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPostNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("content: get post: %w", err)
	}
	const tq = `SELECT tag FROM post_tags WHERE post_id = ? ORDER BY tag`
	rows, err := s.db.QueryContext(ctx, tq, id)
	if err != nil {
		return nil, fmt.Errorf("content: get post tags: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, fmt.Errorf("content: scan tag: %w", err)
		}
		p.Tags = append(p.Tags, tag)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &p, nil
}

// SearchPosts finds posts whose title contains the term, newest first.
func (s *Store) SearchPosts(ctx context.Context, term string, limit int) ([]Post, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	const q = `
SELECT id, title, content, status FROM posts
WHERE title LIKE ?
ORDER BY updated_at DESC
LIMIT ?`
	rows, err := s.db.QueryContext(ctx, q, "%"+term+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("content: search posts: %w", err)
	}
	defer rows.Close()
	var out []Post
	for rows.Next() {
		var p Post
		if err := rows.Scan(&p.ID, &p.Title, &p.Content, &p.Status); err != nil {
			return nil, fmt.Errorf("content: scan post: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListCategories returns all categories ordered by name.
func (s *Store) ListCategories(ctx context.Context) ([]Category, error) {
	const q = `SELECT id, name FROM categories ORDER BY name`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("content: list categories: %w", err)
	}
	defer rows.Close()
	var out []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, fmt.Errorf("content: scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CreateCategory inserts a new category and returns its id.
func (s *Store) CreateCategory(ctx context.Context, name string) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, fmt.Errorf("content: category name is required")
	}
	const q = `INSERT INTO categories (name) VALUES (?)`
	res, err := s.db.ExecContext(ctx, q, name)
	if err != nil {
		return 0, fmt.Errorf("content: create category: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("content: create category: %w", err)
	}
	return id, nil
}

// DeleteCategory removes a category and its post assignments.
func (s *Store) DeleteCategory(ctx context.Context, id int64) error {
	const q = `DELETE FROM categories WHERE id = ?`
	res, err := s.db.ExecContext(ctx, q, id)
	if err != nil {
		return fmt.Errorf("content: delete category: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("content: delete category: %w", err)
	}
	if n == 0 {
		return ErrCategoryNotFound
	}
	const cleanup = `DELETE FROM post_categories WHERE category_id = ?`
	if _, err := s.db.ExecContext(ctx, cleanup, id); err != nil {
		return fmt.Errorf("content: delete category assignments: %w", err)
	}
	return nil
}

// AssignCategory attaches a category to a post. Both sides must exist.
func (s *Store) AssignCategory(ctx context.Context, postID, categoryID int64) error {
	if _, err := s.GetPost(ctx, postID); err != nil {
		return err
	}
	const check = `SELECT 1 FROM categories WHERE id = ?`
	var one int
	if err := s.db.QueryRowContext(ctx, check, categoryID).Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrCategoryNotFound
		}
		return fmt.Errorf("content: assign category: %w", err)
	}
	const q = `
INSERT INTO post_categories (post_id, category_id) VALUES (?, ?)
ON CONFLICT(post_id, category_id) DO NOTHING`
	if _, err := s.db.ExecContext(ctx, q, postID, categoryID); err != nil {
		return fmt.Errorf("content: assign category: %w", err)
	}
	return nil
}
