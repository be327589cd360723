package posts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"tribune/cmd/identity"
)

// DB is the narrow query surface the store needs. It is satisfied by
// *pgxpool.Pool and by pgxmock pools in tests.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresStore implements post persistence over PostgreSQL.
// The pool is owned by the caller; this store must NOT close it.
type PostgresStore struct {
	db DB
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(db DB) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("posts: nil db")
	}
	return &PostgresStore{db: db}, nil
}

const postColumns = `id, title, body, category, language, state, account_id, created_at`

// CreatePost inserts a post for its owner.
// A dangling owner reference surfaces as ErrNotFound.
func (s *PostgresStore) CreatePost(ctx context.Context, in CreatePostInput) (Post, error) {
	if err := ctx.Err(); err != nil {
		return Post{}, err
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		return Post{}, fmt.Errorf("posts.CreatePost: %w: title is required", ErrInvalidInput)
	}
	if strings.TrimSpace(in.Body) == "" {
		return Post{}, fmt.Errorf("posts.CreatePost: %w: body is required", ErrInvalidInput)
	}
	if strings.TrimSpace(in.OwnerID) == "" {
		return Post{}, fmt.Errorf("posts.CreatePost: %w: owner is required", ErrInvalidInput)
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	id, err := identity.NewULID(now)
	if err != nil {
		return Post{}, err
	}

	_, err = s.db.Exec(ctx,
		`INSERT INTO posts (
		     id, title, body, category, language, state, account_id, created_at
		   ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		id, title, in.Body, in.Category, in.Language, in.State, in.OwnerID, now,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return Post{}, fmt.Errorf("posts.CreatePost: %w: owner account", ErrNotFound)
		}
		return Post{}, err
	}

	return Post{
		ID:        id,
		Title:     title,
		Body:      in.Body,
		Category:  in.Category,
		Language:  in.Language,
		State:     in.State,
		OwnerID:   in.OwnerID,
		CreatedAt: now,
	}, nil
}

// ListPosts returns one page of posts in stored (insertion) order.
// Offset is (page-1)*limit; ULID ids sort by creation time.
func (s *PostgresStore) ListPosts(ctx context.Context, page, limit int) ([]Post, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	offset := (page - 1) * limit

	rows, err := s.db.Query(ctx,
		`SELECT `+postColumns+`
		   FROM posts
		  ORDER BY id
		  OFFSET $1 LIMIT $2`,
		offset, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectPosts(rows)
}

// ListPostsByOwner returns all posts owned by the given account, in stored order.
func (s *PostgresStore) ListPostsByOwner(ctx context.Context, ownerID string) ([]Post, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, fmt.Errorf("posts.ListPostsByOwner: %w: owner is required", ErrInvalidInput)
	}

	rows, err := s.db.Query(ctx,
		`SELECT `+postColumns+`
		   FROM posts
		  WHERE account_id = $1
		  ORDER BY id`,
		ownerID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectPosts(rows)
}

// GetPostByID returns the post with the given id.
func (s *PostgresStore) GetPostByID(ctx context.Context, id string) (Post, error) {
	if strings.TrimSpace(id) == "" {
		return Post{}, fmt.Errorf("posts.GetPostByID: %w: empty id", ErrInvalidInput)
	}

	row := s.db.QueryRow(ctx,
		`SELECT `+postColumns+` FROM posts WHERE id = $1`, id)

	p, err := scanPost(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Post{}, fmt.Errorf("posts.GetPostByID: %w", ErrNotFound)
		}
		return Post{}, err
	}
	return p, nil
}

// DeletePost deletes a post on behalf of callerID.
//
// The ownership check and the delete run in one transaction with the row
// locked, so a post cannot change hands or vanish between check and delete.
// Returns ErrNotFound if the post does not exist and ErrNotOwner if it is
// owned by someone else.
func (s *PostgresStore) DeletePost(ctx context.Context, postID, callerID string) error {
	const op = "posts.DeletePost"

	if strings.TrimSpace(postID) == "" || strings.TrimSpace(callerID) == "" {
		return fmt.Errorf("%s: %w: post id and caller are required", op, ErrInvalidInput)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var ownerID string
	err = tx.QueryRow(ctx,
		`SELECT account_id FROM posts WHERE id = $1 FOR UPDATE`, postID,
	).Scan(&ownerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%s: %w", op, ErrNotFound)
		}
		return err
	}

	if ownerID != callerID {
		return fmt.Errorf("%s: %w", op, ErrNotOwner)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM posts WHERE id = $1`, postID); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func collectPosts(rows pgx.Rows) ([]Post, error) {
	out := make([]Post, 0, 16)
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func scanPost(row pgx.Row) (Post, error) {
	var p Post
	err := row.Scan(
		&p.ID,
		&p.Title,
		&p.Body,
		&p.Category,
		&p.Language,
		&p.State,
		&p.OwnerID,
		&p.CreatedAt,
	)
	if err != nil {
		return Post{}, err
	}
	return p, nil
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	// 23503 is foreign_key_violation.
	return pgErr.Code == "23503"
}
