package timeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chao7150/wpmastodon/internal/mastodon"
	"github.com/chao7150/wpmastodon/internal/model"
	"github.com/chao7150/wpmastodon/internal/projection"
	"github.com/chao7150/wpmastodon/internal/testutil"
)

func notificationTypes(page *Page[mastodon.Notification]) []string {
	out := make([]string, len(page.Items))
	for i, n := range page.Items {
		out[i] = n.Type
	}
	return out
}

func TestNotifications(t *testing.T) {
	ctx := context.Background()
	e, s := newTestEngine(t)
	alice := testutil.AddUser(t, s, "alice", model.RoleAuthor)
	other := testutil.AddUser(t, s, "other", model.RoleAuthor)
	post := testutil.AddPost(t, s, alice, "hello", 0)
	mention := testutil.AddComment(t, s, post, "Carol", "hi alice", 1)
	like := &model.Comment{PostId: post.Id, AuthorName: "Dave", CommentType: model.CommentTypeLike, Approved: true}
	if err := s.InsertComment(ctx, like); err != nil {
		t.Fatal(err)
	}
	own := &model.Comment{PostId: post.Id, UserId: alice.Id, AuthorName: "alice", Content: "thanks", Approved: true}
	if err := s.InsertComment(ctx, own); err != nil {
		t.Fatal(err)
	}
	elsewhere := testutil.AddPost(t, s, other, "not alice's", 2)
	testutil.AddComment(t, s, elsewhere, "Carol", "hi other", 3)

	v := projection.Viewer{User: alice}
	page, err := e.Notifications(ctx, NotificationQuery{}, v)
	if err != nil {
		t.Fatalf("Notifications() error = %v", err)
	}
	if len(page.Items) != 2 {
		t.Fatalf("Notifications() = %v, want mention and favourite", notificationTypes(page))
	}

	page, err = e.Notifications(ctx, NotificationQuery{Types: []string{mastodon.NotificationFavourite}}, v)
	if err != nil {
		t.Fatal(err)
	}
	if got := notificationTypes(page); len(got) != 1 || got[0] != mastodon.NotificationFavourite {
		t.Errorf("Notifications(types=favourite) = %v", got)
	}
	if page.Items[0].Status == nil || page.Items[0].Status.Id != itoa(post.Id) {
		t.Errorf("favourite status = %+v, want post %d", page.Items[0].Status, post.Id)
	}

	page, err = e.Notifications(ctx, NotificationQuery{ExcludeTypes: []string{mastodon.NotificationFavourite}}, v)
	if err != nil {
		t.Fatal(err)
	}
	if got := notificationTypes(page); len(got) != 1 || got[0] != mastodon.NotificationMention {
		t.Errorf("Notifications(exclude_types=favourite) = %v", got)
	}

	if err := e.Dismiss(ctx, itoa(mention.Id), v); err != nil {
		t.Fatalf("Dismiss() error = %v", err)
	}
	if _, err := e.Notification(ctx, itoa(mention.Id), v); !errors.Is(err, projection.ErrNotFound) {
		t.Errorf("Notification(dismissed) error = %v, want ErrNotFound", err)
	}
	if _, err := e.Notification(ctx, itoa(like.Id), projection.Viewer{User: other}); !errors.Is(err, projection.ErrNotFound) {
		t.Errorf("Notification(other user) error = %v, want ErrNotFound", err)
	}

	if err := e.Clear(ctx, v); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	page, err = e.Notifications(ctx, NotificationQuery{}, v)
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Items) != 0 {
		t.Errorf("Notifications() after clear = %v, want none", notificationTypes(page))
	}
}

func TestNotificationsAnonymous(t *testing.T) {
	e, _ := newTestEngine(t)
	page, err := e.Notifications(context.Background(), NotificationQuery{}, projection.Viewer{})
	if err != nil {
		t.Fatal(err)
	}
	if page.Items == nil || len(page.Items) != 0 {
		t.Errorf("Items = %v, want empty list", page.Items)
	}
}

func TestContext(t *testing.T) {
	ctx := context.Background()
	e, s := newTestEngine(t)
	alice := testutil.AddUser(t, s, "alice", model.RoleAuthor)
	post := testutil.AddPost(t, s, alice, "hello", 0)
	top := testutil.AddComment(t, s, post, "Carol", "first", 1)
	reply := &model.Comment{PostId: post.Id, ParentId: top.Id, AuthorName: "Dave", Content: "reply", Approved: true, CreatedAt: top.CreatedAt.Add(2 * time.Minute)}
	if err := s.InsertComment(ctx, reply); err != nil {
		t.Fatal(err)
	}
	sibling := testutil.AddComment(t, s, post, "Erin", "second", 5)

	topId, replyId, siblingId := commentId(t, e, top), commentId(t, e, reply), commentId(t, e, sibling)

	postNative, err := e.proj.LoadPost(ctx, post)
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name            string
		native          projection.Native
		wantAncestors   []string
		wantDescendants []string
	}{
		{"post", postNative, nil, []string{topId, replyId, siblingId}},
		{"top comment", projection.FromComment(top), []string{itoa(post.Id)}, []string{replyId}},
		{"reply", projection.FromComment(reply), []string{itoa(post.Id), topId}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Context(ctx, tt.native, projection.Viewer{})
			if err != nil {
				t.Fatalf("Context() error = %v", err)
			}
			if !equalIds(ids(got.Ancestors), tt.wantAncestors) {
				t.Errorf("Ancestors = %v, want %v", ids(got.Ancestors), tt.wantAncestors)
			}
			if !equalIds(ids(got.Descendants), tt.wantDescendants) {
				t.Errorf("Descendants = %v, want %v", ids(got.Descendants), tt.wantDescendants)
			}
		})
	}
}

func equalIds(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}
