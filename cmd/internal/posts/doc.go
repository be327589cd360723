// Package posts implements post persistence and the posts HTTP surface:
// authenticated creation, public paginated listing, per-owner listing, and
// owner-guarded deletion.
package posts
