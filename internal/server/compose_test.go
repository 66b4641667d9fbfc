package server

import (
	"reflect"
	"strings"
	"testing"

	"github.com/chao7150/wpmastodon/internal/media"
	"github.com/chao7150/wpmastodon/internal/testutil"
)

func TestHashtags(t *testing.T) {
	tests := []struct {
		text string
		want []string
	}{
		{"no tags here", nil},
		{"#go is fun", []string{"go"}},
		{"a #Go and #go again", []string{"Go"}},
		{"mixed #one, #two. #three!", []string{"one", "two", "three"}},
		{"not a tag: https://x.example/#anchor and a&#39;b", nil},
		{"numbers #2024 #year2024", []string{"year2024"}},
		{"unicode #日本語", []string{"日本語"}},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			if got := Hashtags(tt.text); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Hashtags(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestComposerRender(t *testing.T) {
	s, _ := testutil.NewTestStore(t)
	m := newComposer(s, media.NewLibrary(media.NewMemoryStore(), s, "https://blog.example.org/uploads"), nil)

	tests := []struct {
		text string
		want string
	}{
		{"plain", "<p>plain</p>"},
		{"**bold** and ~~gone~~", "<p><strong>bold</strong> and <del>gone</del></p>"},
		{"line one\nline two", "<p>line one<br>\nline two</p>"},
		{"see https://example.org", `<a href="https://example.org">https://example.org</a>`},
	}
	for _, tt := range tests {
		got, err := m.render(tt.text)
		if err != nil {
			t.Fatalf("render(%q) error = %v", tt.text, err)
		}
		if !strings.Contains(got, tt.want) {
			t.Errorf("render(%q) = %q, want it to contain %q", tt.text, got, tt.want)
		}
	}
}
