package projection

import "testing"

func TestCommentHTML(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "  ", ""},
		{"plain text", "line1\nline2\n\npara2", "<p>line1<br />line2</p><p>para2</p>"},
		{"bare less than", "a < b", "<p>a &lt; b</p>"},
		{"ampersand", "Tom & Jerry", "<p>Tom &amp; Jerry</p>"},
		{"entity kept once", "Tom &amp; Jerry", "<p>Tom &amp; Jerry</p>"},
		{"script removed with contents", "hi <script>alert(1)</script>there", "<p>hi there</p>"},
		{"unknown tag keeps text", `<div onclick="x">kept text</div>`, "<p>kept text</p>"},
		{"image dropped", `<img src=x onerror=alert(1)>pic`, "<p>pic</p>"},
		{"javascript link", `<a href="javascript:alert(1)" onclick="x">x</a>`, "<p><a>x</a></p>"},
		{
			"http link",
			`<a href="https://e.example/?a=1&b=2" title="t">e</a>`,
			`<p><a href="https://e.example/?a=1&amp;b=2" rel="nofollow noopener noreferrer" target="_blank">e</a></p>`,
		},
		{"unclosed tags", "<strong>bold <em>x", "<p><strong>bold <em>x</em></strong></p>"},
		{"paragraphs kept", "<p>one</p><p>two</p>", "<p>one</p><p>two</p>"},
		{"stray end tag", "a</b> b", "<p>a b</p>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := commentHTML(tt.in); got != tt.want {
				t.Errorf("commentHTML(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
