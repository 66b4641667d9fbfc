package projection

import (
	"fmt"
	"time"

	"github.com/tidwall/gjson"

	"github.com/chao7150/wpmastodon/internal/model"
)

// Post meta keys read during projection.
const (
	// MetaActivity holds a cached ActivityPub object for posts imported from
	// a federated source.
	MetaActivity = "activitypub_object"
	// MetaReblog marks an imported post as a boost of MetaActivity.
	MetaReblog = "reblog"
	// MetaActor overrides the actor the imported object is attributed to.
	MetaActor = "activitypub_actor"
)

type NativeKind int

const (
	KindLocalPost NativeKind = iota + 1
	KindLocalComment
	KindRemoteActivity
)

func (k NativeKind) String() string {
	switch k {
	case KindLocalPost:
		return "local_post"
	case KindLocalComment:
		return "local_comment"
	case KindRemoteActivity:
		return "remote_activity"
	default:
		return "unknown"
	}
}

// Native is the tagged union every Status is projected from. Post is set
// for local posts and for remote activities stored as posts; Comment only
// for local comments; Activity only for remote activities.
type Native struct {
	Kind     NativeKind
	Post     *model.Post
	Comment  *model.Comment
	Activity *Activity
}

// FromPost classifies a post using its meta.
func FromPost(p *model.Post, meta map[string]string) Native {
	if raw := meta[MetaActivity]; raw != "" {
		if a, err := ParseActivity([]byte(raw)); err == nil {
			if meta[MetaReblog] == "1" || meta[MetaReblog] == "true" {
				a.Reblog = true
			}
			if actor := meta[MetaActor]; actor != "" {
				a.Actor = actor
			}
			return Native{Kind: KindRemoteActivity, Post: p, Activity: a}
		}
	}
	return Native{Kind: KindLocalPost, Post: p}
}

func FromComment(c *model.Comment) Native {
	return Native{Kind: KindLocalComment, Comment: c}
}

func FromActivity(a *Activity) Native {
	return Native{Kind: KindRemoteActivity, Activity: a}
}

// CreatedAt is the timestamp items are merged by.
func (n Native) CreatedAt() time.Time {
	switch n.Kind {
	case KindLocalComment:
		return n.Comment.CreatedAt
	case KindRemoteActivity:
		if n.Post != nil {
			return n.Post.CreatedAt
		}
		return n.Activity.Published
	default:
		return n.Post.CreatedAt
	}
}

// NativeId is the numeric id of the backing row, used as tie-break.
func (n Native) NativeId() int64 {
	switch {
	case n.Comment != nil:
		return n.Comment.Id
	case n.Post != nil:
		return n.Post.Id
	default:
		return 0
	}
}

// Activity is the subset of an ActivityPub object needed for a Status.
type Activity struct {
	URI         string
	URL         string
	Actor       string
	ActorDoc    []byte
	Content     string
	Summary     string
	Sensitive   bool
	Published   time.Time
	InReplyTo   string
	Attachments []ActivityAttachment
	Reblog      bool
}

type ActivityAttachment struct {
	URL       string
	MediaType string
	Name      string
	Blurhash  string
}

// ParseActivity reads a Note-like object. An Announce wrapping an inline
// object yields that object with Reblog set.
func ParseActivity(body []byte) (*Activity, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("invalid activity document")
	}
	doc := gjson.ParseBytes(body)
	reblog := false
	if doc.Get("type").String() == "Announce" && doc.Get("object").IsObject() {
		doc = doc.Get("object")
		reblog = true
	}
	a := &Activity{
		URI:       doc.Get("id").String(),
		URL:       linkString(doc.Get("url")),
		Content:   doc.Get("content").String(),
		Summary:   doc.Get("summary").String(),
		Sensitive: doc.Get("sensitive").Bool(),
		InReplyTo: linkString(doc.Get("inReplyTo")),
		Reblog:    reblog,
	}
	if a.URI == "" {
		return nil, fmt.Errorf("activity has no id")
	}
	if a.URL == "" {
		a.URL = a.URI
	}
	attributed := doc.Get("attributedTo")
	if attributed.IsArray() {
		attributed = attributed.Get("0")
	}
	if attributed.IsObject() {
		a.Actor = attributed.Get("id").String()
		a.ActorDoc = []byte(attributed.Raw)
	} else {
		a.Actor = attributed.String()
	}
	if t, err := time.Parse(time.RFC3339, doc.Get("published").String()); err == nil {
		a.Published = t.UTC()
	}
	for _, att := range doc.Get("attachment").Array() {
		u := linkString(att.Get("url"))
		if u == "" {
			continue
		}
		a.Attachments = append(a.Attachments, ActivityAttachment{
			URL:       u,
			MediaType: att.Get("mediaType").String(),
			Name:      att.Get("name").String(),
			Blurhash:  att.Get("blurhash").String(),
		})
	}
	return a, nil
}

func linkString(v gjson.Result) string {
	switch {
	case v.IsArray():
		for _, item := range v.Array() {
			if s := linkString(item); s != "" {
				return s
			}
		}
		return ""
	case v.IsObject():
		if h := v.Get("href"); h.Exists() {
			return h.String()
		}
		return v.Get("id").String()
	default:
		return v.String()
	}
}
