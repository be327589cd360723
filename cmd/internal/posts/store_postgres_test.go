package posts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
)

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()

	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	t.Cleanup(mock.Close)

	store, err := NewPostgresStore(mock)
	if err != nil {
		t.Fatalf("NewPostgresStore: %v", err)
	}
	return store, mock
}

func strPtr(s string) *string { return &s }

func postRows(posts ...Post) *pgxmock.Rows {
	rows := pgxmock.NewRows([]string{
		"id", "title", "body", "category", "language", "state", "account_id", "created_at",
	})
	for _, p := range posts {
		rows.AddRow(p.ID, p.Title, p.Body, p.Category, p.Language, p.State, p.OwnerID, p.CreatedAt)
	}
	return rows
}

func TestCreatePost_OK(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectExec(`INSERT INTO posts`).
		WithArgs(pgxmock.AnyArg(), "Hello", "first post", strPtr("news"), (*string)(nil), (*string)(nil), "acct-1", now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	p, err := store.CreatePost(context.Background(), CreatePostInput{
		Title:    "  Hello  ",
		Body:     "first post",
		Category: strPtr("news"),
		OwnerID:  "acct-1",
		Now:      now,
	})
	if err != nil {
		t.Fatalf("CreatePost: %v", err)
	}
	if p.ID == "" {
		t.Fatal("expected generated id")
	}
	if p.Title != "Hello" {
		t.Fatalf("title = %q, want %q", p.Title, "Hello")
	}
	if p.OwnerID != "acct-1" {
		t.Fatalf("owner = %q, want acct-1", p.OwnerID)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreatePost_MissingTitle(t *testing.T) {
	store, _ := newMockStore(t)

	_, err := store.CreatePost(context.Background(), CreatePostInput{
		Body:    "body",
		OwnerID: "acct-1",
	})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

func TestCreatePost_DanglingOwner(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO posts`).
		WithArgs(pgxmock.AnyArg(), "Hello", "body", (*string)(nil), (*string)(nil), (*string)(nil), "gone", pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23503", ConstraintName: "posts_account_id_fkey"})

	_, err := store.CreatePost(context.Background(), CreatePostInput{
		Title:   "Hello",
		Body:    "body",
		OwnerID: "gone",
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestListPosts_Pagination(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	want := []Post{
		{ID: "01A", Title: "a", Body: "b", OwnerID: "acct-1", CreatedAt: now},
		{ID: "01B", Title: "c", Body: "d", OwnerID: "acct-2", CreatedAt: now},
	}

	// Page 3 with limit 2 starts at offset 4.
	mock.ExpectQuery(`SELECT (.+) FROM posts ORDER BY id OFFSET \$1 LIMIT \$2`).
		WithArgs(4, 2).
		WillReturnRows(postRows(want...))

	got, err := store.ListPosts(context.Background(), 3, 2)
	if err != nil {
		t.Fatalf("ListPosts: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].ID != "01A" || got[1].ID != "01B" {
		t.Fatalf("unexpected order: %q, %q", got[0].ID, got[1].ID)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestListPosts_DefaultsBadPage(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT (.+) FROM posts ORDER BY id OFFSET \$1 LIMIT \$2`).
		WithArgs(0, 10).
		WillReturnRows(postRows())

	got, err := store.ListPosts(context.Background(), 0, 0)
	if err != nil {
		t.Fatalf("ListPosts: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("len = %d, want 0", len(got))
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestListPostsByOwner_OK(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT (.+) FROM posts WHERE account_id = \$1 ORDER BY id`).
		WithArgs("acct-1").
		WillReturnRows(postRows(Post{ID: "01A", Title: "mine", Body: "b", OwnerID: "acct-1", CreatedAt: now}))

	got, err := store.ListPostsByOwner(context.Background(), "acct-1")
	if err != nil {
		t.Fatalf("ListPostsByOwner: %v", err)
	}
	if len(got) != 1 || got[0].OwnerID != "acct-1" {
		t.Fatalf("unexpected result: %+v", got)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetPostByID_NotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT (.+) FROM posts WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := store.GetPostByID(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDeletePost_OK(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT account_id FROM posts WHERE id = \$1 FOR UPDATE`).
		WithArgs("post-1").
		WillReturnRows(pgxmock.NewRows([]string{"account_id"}).AddRow("acct-1"))
	mock.ExpectExec(`DELETE FROM posts WHERE id = \$1`).
		WithArgs("post-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCommit()

	if err := store.DeletePost(context.Background(), "post-1", "acct-1"); err != nil {
		t.Fatalf("DeletePost: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDeletePost_Missing(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT account_id FROM posts WHERE id = \$1 FOR UPDATE`).
		WithArgs("nope").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	err := store.DeletePost(context.Background(), "nope", "acct-1")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDeletePost_NotOwner(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT account_id FROM posts WHERE id = \$1 FOR UPDATE`).
		WithArgs("post-1").
		WillReturnRows(pgxmock.NewRows([]string{"account_id"}).AddRow("acct-2"))
	mock.ExpectRollback()

	err := store.DeletePost(context.Background(), "post-1", "acct-1")
	if !errors.Is(err, ErrNotOwner) {
		t.Fatalf("err = %v, want ErrNotOwner", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
