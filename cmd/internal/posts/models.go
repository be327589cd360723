package posts

import (
	"errors"
	"time"
)

// Post is an owned piece of content. Category, language and state are
// free-form optional tags.
type Post struct {
	ID       string
	Title    string
	Body     string
	Category *string
	Language *string
	State    *string

	OwnerID   string
	CreatedAt time.Time
}

// CreatePostInput describes a post creation request by an authenticated
// owner. OwnerID must reference an existing account.
type CreatePostInput struct {
	Title    string
	Body     string
	Category *string
	Language *string
	State    *string
	OwnerID  string
	Now      time.Time
}

// Sentinel errors (stable for errors.Is and for mapping to API status codes).
var (
	ErrInvalidInput = errors.New("invalid_input")
	ErrNotFound     = errors.New("not_found")

	// ErrNotOwner reports a delete attempt by an authenticated caller who
	// does not own the post.
	ErrNotOwner = errors.New("not_owner")
)
