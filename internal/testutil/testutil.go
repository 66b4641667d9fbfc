// Package testutil holds helpers shared by package tests.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/chao7150/wpmastodon/internal/database"
	"github.com/chao7150/wpmastodon/internal/model"
	"github.com/chao7150/wpmastodon/internal/store"
)

// StubClock returns a fixed time. Safe for concurrent use.
type StubClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewStubClock creates a StubClock set to the given time.
func NewStubClock(t time.Time) *StubClock {
	return &StubClock{now: t}
}

// FixedClock returns a StubClock set to 2024-01-15 10:30:00 UTC.
func FixedClock() *StubClock {
	return NewStubClock(time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC))
}

func (c *StubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *StubClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// NewTestDB opens an in-memory SQLite database with the schema applied.
func NewTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		t.Fatalf("failed to apply schema: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	return db
}

// NewTestStore returns a Store over a fresh database and the clock it uses.
func NewTestStore(t *testing.T) (*store.Store, *StubClock) {
	t.Helper()
	clock := FixedClock()
	return store.New(NewTestDB(t).DB, clock), clock
}

// Password is the plaintext password of every fixture user.
const Password = "correct horse"

// AddUser inserts a user with the given role and the fixture password.
func AddUser(t *testing.T, s *store.Store, login, role string) *model.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(Password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}
	user := &model.User{
		Login:        login,
		DisplayName:  login + " display",
		Email:        login + "@example.org",
		PasswordHash: string(hash),
		Role:         role,
		Url:          "https://blog.example.org/author/" + login,
	}
	if err := s.InsertUser(context.Background(), user); err != nil {
		t.Fatalf("failed to insert user: %v", err)
	}
	return user
}

// AddPost inserts a published post created offset minutes after the clock time.
func AddPost(t *testing.T, s *store.Store, author *model.User, content string, offset int) *model.Post {
	t.Helper()
	base := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	post := &model.Post{
		AuthorId:  author.Id,
		PostType:  model.PostTypePost,
		Status:    model.StatusPublish,
		Title:     fmt.Sprintf("Post %d", offset),
		Content:   content,
		CreatedAt: base.Add(time.Duration(offset) * time.Minute),
	}
	if err := s.InsertPost(context.Background(), post); err != nil {
		t.Fatalf("failed to insert post: %v", err)
	}
	post.Guid = fmt.Sprintf("https://blog.example.org/?p=%d", post.Id)
	if err := s.UpdatePost(context.Background(), post); err != nil {
		t.Fatalf("failed to update post: %v", err)
	}
	return post
}

// AddComment inserts an approved comment on post created offset minutes after
// the clock time.
func AddComment(t *testing.T, s *store.Store, post *model.Post, author, content string, offset int) *model.Comment {
	t.Helper()
	base := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	comment := &model.Comment{
		PostId:      post.Id,
		AuthorName:  author,
		AuthorEmail: author + "@commenter.example",
		Content:     content,
		Approved:    true,
		CreatedAt:   base.Add(time.Duration(offset) * time.Minute),
	}
	if err := s.InsertComment(context.Background(), comment); err != nil {
		t.Fatalf("failed to insert comment: %v", err)
	}
	return comment
}
