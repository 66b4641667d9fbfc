package timeline

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/chao7150/wpmastodon/internal/idmap"
	"github.com/chao7150/wpmastodon/internal/mastodon"
	"github.com/chao7150/wpmastodon/internal/model"
	"github.com/chao7150/wpmastodon/internal/projection"
	"github.com/chao7150/wpmastodon/internal/store"
	"github.com/chao7150/wpmastodon/internal/testutil"
)

func newTestEngine(t *testing.T) (*Engine, *store.Store) {
	t.Helper()
	s, _ := testutil.NewTestStore(t)
	p := projection.New(s, idmap.New(s), projection.Options{
		BaseURL:  "https://blog.example.org",
		Domain:   "blog.example.org",
		Language: "en",
		Logger:   zerolog.Nop(),
	})
	return New(s, p, zerolog.Nop()), s
}

func ids(statuses []mastodon.Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = s.Id
	}
	return out
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}

func commentId(t *testing.T, e *Engine, c *model.Comment) string {
	t.Helper()
	id, err := e.ids.Remap(context.Background(), idmap.Ref{Kind: idmap.KindComment, Native: itoa(c.Id)})
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func addPosts(t *testing.T, s *store.Store, author *model.User, n int) []*model.Post {
	t.Helper()
	posts := make([]*model.Post, n)
	for i := range posts {
		posts[i] = testutil.AddPost(t, s, author, "body", i+1)
	}
	return posts
}

func TestClampLimit(t *testing.T) {
	tests := []struct {
		n, want int
	}{
		{0, 20},
		{-3, 20},
		{1, 1},
		{40, 40},
		{41, 40},
	}
	for _, tt := range tests {
		if got := ClampLimit(tt.n, DefaultLimit, MaxLimit); got != tt.want {
			t.Errorf("ClampLimit(%d) = %d, want %d", tt.n, got, tt.want)
		}
	}
}

func TestPaginationBoundary(t *testing.T) {
	e, s := newTestEngine(t)
	alice := testutil.AddUser(t, s, "alice", model.RoleAuthor)
	posts := addPosts(t, s, alice, 5)

	page, err := e.Statuses(context.Background(), Query{MaxId: itoa(posts[3].Id), Limit: 2}, projection.Viewer{})
	if err != nil {
		t.Fatalf("Statuses() error = %v", err)
	}
	want := []string{itoa(posts[2].Id), itoa(posts[1].Id)}
	if got := ids(page.Items); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("Statuses() = %v, want %v", got, want)
	}
	if page.Next != want[1] || page.Prev != want[0] {
		t.Errorf("Next, Prev = %q, %q, want %q, %q", page.Next, page.Prev, want[1], want[0])
	}

	u, _ := url.Parse("https://blog.example.org/api/v1/timelines/home?limit=2&max_id=" + itoa(posts[3].Id))
	link := page.Link(u)
	if !strings.Contains(link, "max_id="+want[1]) || !strings.Contains(link, `rel="next"`) {
		t.Errorf("Link() = %q, want next with max_id=%s", link, want[1])
	}
	if !strings.Contains(link, "min_id="+want[0]) || !strings.Contains(link, `rel="prev"`) {
		t.Errorf("Link() = %q, want prev with min_id=%s", link, want[0])
	}
	if !strings.Contains(link, "limit=2") {
		t.Errorf("Link() = %q, want limit kept", link)
	}
}

func TestMinIdReturnsWindowAboveCursor(t *testing.T) {
	e, s := newTestEngine(t)
	alice := testutil.AddUser(t, s, "alice", model.RoleAuthor)
	posts := addPosts(t, s, alice, 5)

	page, err := e.Statuses(context.Background(), Query{MinId: itoa(posts[0].Id), Limit: 2}, projection.Viewer{})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{itoa(posts[2].Id), itoa(posts[1].Id)}
	if got := ids(page.Items); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Statuses(min_id) = %v, want %v", got, want)
	}
}

func TestUnknownCursors(t *testing.T) {
	e, s := newTestEngine(t)
	alice := testutil.AddUser(t, s, "alice", model.RoleAuthor)
	posts := addPosts(t, s, alice, 5)
	newest := []string{itoa(posts[4].Id), itoa(posts[3].Id)}

	page, err := e.Statuses(context.Background(), Query{MinId: "999", Limit: 2}, projection.Viewer{})
	if err != nil {
		t.Fatal(err)
	}
	if got := ids(page.Items); strings.Join(got, ",") != strings.Join(newest, ",") {
		t.Errorf("Statuses(unknown min_id) = %v, want %v", got, newest)
	}

	page, err = e.Statuses(context.Background(), Query{MaxId: "999", Limit: 2}, projection.Viewer{})
	if err != nil {
		t.Fatal(err)
	}
	if got := ids(page.Items); strings.Join(got, ",") != strings.Join(newest, ",") {
		t.Errorf("Statuses(unknown max_id) = %v, want %v", got, newest)
	}
}

func TestMergesPostsAndComments(t *testing.T) {
	e, s := newTestEngine(t)
	alice := testutil.AddUser(t, s, "alice", model.RoleAuthor)
	first := testutil.AddPost(t, s, alice, "first", 0)
	comment := testutil.AddComment(t, s, first, "Carol", "nice", 2)
	second := testutil.AddPost(t, s, alice, "second", 4)
	cid := commentId(t, e, comment)

	page, err := e.Statuses(context.Background(), Query{}, projection.Viewer{})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{itoa(second.Id), cid, itoa(first.Id)}
	if got := ids(page.Items); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("Statuses() = %v, want %v", got, want)
	}

	page, err = e.Statuses(context.Background(), Query{MaxId: cid}, projection.Viewer{})
	if err != nil {
		t.Fatal(err)
	}
	if got := ids(page.Items); len(got) != 1 || got[0] != itoa(first.Id) {
		t.Errorf("Statuses(max_id=comment) = %v, want [%d]", got, first.Id)
	}

	page, err = e.Statuses(context.Background(), Query{Kinds: []string{model.PostTypePost}}, projection.Viewer{})
	if err != nil {
		t.Fatal(err)
	}
	if got := ids(page.Items); len(got) != 2 {
		t.Errorf("Statuses(posts only) = %v, want 2 posts", got)
	}

	page, err = e.Statuses(context.Background(), Query{ExcludeReplies: true}, projection.Viewer{})
	if err != nil {
		t.Fatal(err)
	}
	if got := ids(page.Items); len(got) != 2 {
		t.Errorf("Statuses(exclude_replies) = %v, want 2 posts", got)
	}
}

func TestDropsItemsThatFailProjection(t *testing.T) {
	e, s := newTestEngine(t)
	alice := testutil.AddUser(t, s, "alice", model.RoleAuthor)
	good := testutil.AddPost(t, s, alice, "good", 0)
	orphan := &model.Post{AuthorId: 999, PostType: model.PostTypePost, Status: model.StatusPublish, Content: "orphan"}
	if err := s.InsertPost(context.Background(), orphan); err != nil {
		t.Fatal(err)
	}

	page, err := e.Statuses(context.Background(), Query{}, projection.Viewer{})
	if err != nil {
		t.Fatalf("Statuses() error = %v", err)
	}
	if got := ids(page.Items); len(got) != 1 || got[0] != itoa(good.Id) {
		t.Errorf("Statuses() = %v, want only [%d]", got, good.Id)
	}
}

func TestPrivatePostsNeedCapability(t *testing.T) {
	e, s := newTestEngine(t)
	alice := testutil.AddUser(t, s, "alice", model.RoleAuthor)
	editor := testutil.AddUser(t, s, "ed", model.RoleEditor)
	post := testutil.AddPost(t, s, alice, "secret", 0)
	post.Status = model.StatusPrivate
	if err := s.UpdatePost(context.Background(), post); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		viewer projection.Viewer
		want   int
	}{
		{"anonymous", projection.Viewer{}, 0},
		{"author role", projection.Viewer{User: alice}, 0},
		{"editor", projection.Viewer{User: editor}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := e.Statuses(context.Background(), Query{}, tt.viewer)
			if err != nil {
				t.Fatal(err)
			}
			if len(page.Items) != tt.want {
				t.Errorf("len = %d, want %d", len(page.Items), tt.want)
			}
		})
	}
}

func TestTagAndPinned(t *testing.T) {
	e, s := newTestEngine(t)
	alice := testutil.AddUser(t, s, "alice", model.RoleAuthor)
	posts := addPosts(t, s, alice, 3)
	if err := s.TagPost(context.Background(), posts[1].Id, []string{"golang"}); err != nil {
		t.Fatal(err)
	}
	posts[2].Sticky = true
	if err := s.UpdatePost(context.Background(), posts[2]); err != nil {
		t.Fatal(err)
	}
	testutil.AddComment(t, s, posts[0], "Carol", "hi", 10)

	page, err := e.Statuses(context.Background(), Query{Tag: "golang"}, projection.Viewer{})
	if err != nil {
		t.Fatal(err)
	}
	if got := ids(page.Items); len(got) != 1 || got[0] != itoa(posts[1].Id) {
		t.Errorf("Statuses(tag) = %v, want [%d]", got, posts[1].Id)
	}

	page, err = e.Statuses(context.Background(), Query{Pinned: true}, projection.Viewer{})
	if err != nil {
		t.Fatal(err)
	}
	if got := ids(page.Items); len(got) != 1 || got[0] != itoa(posts[2].Id) {
		t.Errorf("Statuses(pinned) = %v, want [%d]", got, posts[2].Id)
	}
}

func TestSearch(t *testing.T) {
	e, s := newTestEngine(t)
	alice := testutil.AddUser(t, s, "alice", model.RoleAuthor)
	post := testutil.AddPost(t, s, alice, "all about gophers", 0)
	testutil.AddPost(t, s, alice, "cats", 1)
	comment := testutil.AddComment(t, s, post, "Carol", "gophers are great", 2)

	got, err := e.Search(context.Background(), "gophers", 0, projection.Viewer{})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{commentId(t, e, comment), itoa(post.Id)}
	if strings.Join(ids(got), ",") != strings.Join(want, ",") {
		t.Errorf("Search() = %v, want %v", ids(got), want)
	}
}

func TestOnlyMediaSkipsPostsWithoutMedia(t *testing.T) {
	e, s := newTestEngine(t)
	ctx := context.Background()
	alice := testutil.AddUser(t, s, "alice", model.RoleAuthor)
	clip := projection.MediaBlockMarkup(projection.MediaBlock{Type: "video", URL: "https://cdn.example/clip.mp4"})

	posts := make([]*model.Post, 10)
	for i := range posts {
		content := "plain"
		if i == 0 || i == 1 || i == 9 {
			content = "<p>clip</p>\n" + clip
		}
		posts[i] = testutil.AddPost(t, s, alice, content, i+1)
	}
	testutil.AddComment(t, s, posts[9], "bob", "nice", 20)

	page, err := e.Statuses(ctx, Query{OnlyMedia: true, Limit: 2}, projection.Viewer{})
	if err != nil {
		t.Fatalf("Statuses() error = %v", err)
	}
	want := []string{itoa(posts[9].Id), itoa(posts[1].Id)}
	if got := ids(page.Items); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("first page = %v, want %v", got, want)
	}

	page, err = e.Statuses(ctx, Query{OnlyMedia: true, Limit: 2, MaxId: page.Next}, projection.Viewer{})
	if err != nil {
		t.Fatalf("Statuses() next page error = %v", err)
	}
	want = []string{itoa(posts[0].Id)}
	if got := ids(page.Items); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("second page = %v, want %v", got, want)
	}

	page, err = e.Statuses(ctx, Query{OnlyMedia: true, Limit: 2, MinId: itoa(posts[0].Id)}, projection.Viewer{})
	if err != nil {
		t.Fatalf("Statuses() min_id error = %v", err)
	}
	want = []string{itoa(posts[9].Id), itoa(posts[1].Id)}
	if got := ids(page.Items); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("min_id page = %v, want %v", got, want)
	}
}
