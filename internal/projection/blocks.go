package projection

import (
	"fmt"
	"html"
	"regexp"
	"strconv"
	"strings"
)

var (
	mediaBlockPattern = regexp.MustCompile(`(?s)<!--\s*wp:(image|video)(?:\s+(\{.*?\}))?\s*/?-->(.*?)<!--\s*/wp:(?:image|video)\s*-->`)
	blockIdPattern    = regexp.MustCompile(`"id"\s*:\s*(\d+)`)
	srcPattern        = regexp.MustCompile(`\bsrc="([^"]+)"`)
	altPattern        = regexp.MustCompile(`\balt="([^"]*)"`)
	emptyParagraph    = regexp.MustCompile(`<p>\s*</p>`)
)

// MediaBlock is an image or video block lifted out of post content.
type MediaBlock struct {
	Type         string
	URL          string
	Alt          string
	AttachmentId int64
}

// ExtractMediaBlocks removes image and video blocks from content and
// returns them in document order. Blocks without a source are dropped.
func ExtractMediaBlocks(content string) (string, []MediaBlock) {
	var blocks []MediaBlock
	stripped := mediaBlockPattern.ReplaceAllStringFunc(content, func(block string) string {
		m := mediaBlockPattern.FindStringSubmatch(block)
		src := srcPattern.FindStringSubmatch(m[3])
		if src == nil {
			return ""
		}
		b := MediaBlock{Type: m[1], URL: html.UnescapeString(src[1])}
		if alt := altPattern.FindStringSubmatch(m[3]); alt != nil {
			b.Alt = html.UnescapeString(alt[1])
		}
		if id := blockIdPattern.FindStringSubmatch(m[2]); id != nil {
			b.AttachmentId, _ = strconv.ParseInt(id[1], 10, 64)
		}
		blocks = append(blocks, b)
		return ""
	})
	stripped = emptyParagraph.ReplaceAllString(stripped, "")
	return strings.TrimSpace(stripped), blocks
}

// MediaBlockMarkup renders the block that ExtractMediaBlocks reads back.
func MediaBlockMarkup(b MediaBlock) string {
	src := html.EscapeString(b.URL)
	if b.Type == "video" {
		return fmt.Sprintf(`<!-- wp:video {"id":%d} -->`+"\n"+
			`<figure class="wp-block-video"><video controls src="%s"></video></figure>`+"\n"+
			`<!-- /wp:video -->`, b.AttachmentId, src)
	}
	return fmt.Sprintf(`<!-- wp:image {"id":%d} -->`+"\n"+
		`<figure class="wp-block-image"><img src="%s" alt="%s" class="wp-image-%d"/></figure>`+"\n"+
		`<!-- /wp:image -->`, b.AttachmentId, src, html.EscapeString(b.Alt), b.AttachmentId)
}
