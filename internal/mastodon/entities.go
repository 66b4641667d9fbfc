// Package mastodon defines the Mastodon API entities served to clients.
//
// Field presence rules are declared with the mastodon struct tag and checked
// by Validate before an entity is written:
//
//	optional    may be missing; omitted from the output (pair with omitempty)
//	nullable    may be missing; serialized as null
//	skippable   list items failing validation are dropped instead of failing the entity
//	allowempty  required but an empty string or zero time is acceptable
//
// Fields without a rule are required.
package mastodon

import "time"

type Account struct {
	Id             string        `json:"id"`
	Username       string        `json:"username"`
	Acct           string        `json:"acct"`
	DisplayName    string        `json:"display_name" mastodon:"allowempty"`
	Locked         bool          `json:"locked"`
	Bot            bool          `json:"bot"`
	Group          bool          `json:"group"`
	Discoverable   *bool         `json:"discoverable" mastodon:"nullable"`
	CreatedAt      time.Time     `json:"created_at"`
	Note           string        `json:"note" mastodon:"allowempty"`
	Url            string        `json:"url"`
	Uri            string        `json:"uri,omitempty" mastodon:"optional"`
	Avatar         string        `json:"avatar" mastodon:"allowempty"`
	AvatarStatic   string        `json:"avatar_static" mastodon:"allowempty"`
	Header         string        `json:"header" mastodon:"allowempty"`
	HeaderStatic   string        `json:"header_static" mastodon:"allowempty"`
	FollowersCount int64         `json:"followers_count"`
	FollowingCount int64         `json:"following_count"`
	StatusesCount  int64         `json:"statuses_count"`
	LastStatusAt   *string       `json:"last_status_at" mastodon:"nullable"`
	Emojis         []CustomEmoji `json:"emojis" mastodon:"skippable"`
	Fields         []Field       `json:"fields" mastodon:"skippable"`
	Source         *Source       `json:"source,omitempty" mastodon:"optional"`
}

// Source is the editable profile state returned by verify_credentials.
type Source struct {
	Privacy             string  `json:"privacy"`
	Sensitive           bool    `json:"sensitive"`
	Language            string  `json:"language" mastodon:"allowempty"`
	Note                string  `json:"note" mastodon:"allowempty"`
	Fields              []Field `json:"fields"`
	FollowRequestsCount int64   `json:"follow_requests_count"`
}

type Field struct {
	Name       string     `json:"name"`
	Value      string     `json:"value" mastodon:"allowempty"`
	VerifiedAt *time.Time `json:"verified_at" mastodon:"nullable"`
}

type CustomEmoji struct {
	Shortcode       string `json:"shortcode"`
	Url             string `json:"url"`
	StaticUrl       string `json:"static_url"`
	VisibleInPicker bool   `json:"visible_in_picker"`
}

const (
	VisibilityPublic   = "public"
	VisibilityUnlisted = "unlisted"
	VisibilityPrivate  = "private"
	VisibilityDirect   = "direct"
)

type Status struct {
	Id                 string            `json:"id"`
	Uri                string            `json:"uri"`
	Url                *string           `json:"url" mastodon:"nullable"`
	CreatedAt          time.Time         `json:"created_at"`
	EditedAt           *time.Time        `json:"edited_at" mastodon:"nullable"`
	Account            *Account          `json:"account"`
	Content            string            `json:"content" mastodon:"allowempty"`
	Text               *string           `json:"text,omitempty" mastodon:"optional"`
	Visibility         string            `json:"visibility"`
	Sensitive          bool              `json:"sensitive"`
	SpoilerText        string            `json:"spoiler_text" mastodon:"allowempty"`
	MediaAttachments   []MediaAttachment `json:"media_attachments" mastodon:"skippable"`
	Application        *Application      `json:"application,omitempty" mastodon:"optional"`
	Mentions           []Mention         `json:"mentions" mastodon:"skippable"`
	Tags               []Tag             `json:"tags" mastodon:"skippable"`
	Emojis             []CustomEmoji     `json:"emojis" mastodon:"skippable"`
	RepliesCount       int64             `json:"replies_count"`
	ReblogsCount       int64             `json:"reblogs_count"`
	FavouritesCount    int64             `json:"favourites_count"`
	InReplyToId        *string           `json:"in_reply_to_id" mastodon:"nullable"`
	InReplyToAccountId *string           `json:"in_reply_to_account_id" mastodon:"nullable"`
	Reblog             *Status           `json:"reblog" mastodon:"nullable"`
	Poll               *Poll             `json:"poll" mastodon:"nullable"`
	Card               *Card             `json:"card" mastodon:"nullable"`
	Language           *string           `json:"language,omitempty" mastodon:"optional"`
	Favourited         bool              `json:"favourited"`
	Reblogged          bool              `json:"reblogged"`
	Muted              bool              `json:"muted"`
	Bookmarked         bool              `json:"bookmarked"`
	Pinned             bool              `json:"pinned"`
}

// Poll is never populated; it exists so the null poll field has a type.
type Poll struct {
	Id string `json:"id"`
}

type Card struct {
	Url         string  `json:"url"`
	Title       string  `json:"title" mastodon:"allowempty"`
	Description string  `json:"description" mastodon:"allowempty"`
	Type        string  `json:"type"`
	Image       *string `json:"image" mastodon:"nullable"`
}

type Application struct {
	Name    string  `json:"name"`
	Website *string `json:"website" mastodon:"nullable"`
}

const (
	MediaImage   = "image"
	MediaVideo   = "video"
	MediaGifv    = "gifv"
	MediaAudio   = "audio"
	MediaUnknown = "unknown"
)

type MediaAttachment struct {
	Id          string         `json:"id"`
	Type        string         `json:"type"`
	Url         string         `json:"url"`
	PreviewUrl  *string        `json:"preview_url" mastodon:"nullable"`
	RemoteUrl   *string        `json:"remote_url" mastodon:"nullable"`
	TextUrl     *string        `json:"text_url,omitempty" mastodon:"optional"`
	Meta        map[string]any `json:"meta,omitempty" mastodon:"optional"`
	Description *string        `json:"description" mastodon:"nullable"`
	Blurhash    *string        `json:"blurhash" mastodon:"nullable"`
}

type Mention struct {
	Id       string `json:"id"`
	Username string `json:"username"`
	Url      string `json:"url"`
	Acct     string `json:"acct"`
}

type Tag struct {
	Name      string       `json:"name"`
	Url       string       `json:"url"`
	History   []TagHistory `json:"history" mastodon:"skippable"`
	Following *bool        `json:"following,omitempty" mastodon:"optional"`
}

type TagHistory struct {
	Day      string `json:"day"`
	Uses     string `json:"uses"`
	Accounts string `json:"accounts"`
}

const (
	NotificationMention   = "mention"
	NotificationFavourite = "favourite"
	NotificationReblog    = "reblog"
	NotificationFollow    = "follow"
)

type Notification struct {
	Id        string    `json:"id"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`
	Account   *Account  `json:"account"`
	Status    *Status   `json:"status,omitempty" mastodon:"optional"`
}

type Relationship struct {
	Id                  string   `json:"id"`
	Following           bool     `json:"following"`
	ShowingReblogs      bool     `json:"showing_reblogs"`
	Notifying           bool     `json:"notifying"`
	Languages           []string `json:"languages,omitempty" mastodon:"optional"`
	FollowedBy          bool     `json:"followed_by"`
	Blocking            bool     `json:"blocking"`
	BlockedBy           bool     `json:"blocked_by"`
	Muting              bool     `json:"muting"`
	MutingNotifications bool     `json:"muting_notifications"`
	Requested           bool     `json:"requested"`
	RequestedBy         bool     `json:"requested_by"`
	DomainBlocking      bool     `json:"domain_blocking"`
	Endorsed            bool     `json:"endorsed"`
	Note                string   `json:"note" mastodon:"allowempty"`
}

type Context struct {
	Ancestors   []Status `json:"ancestors" mastodon:"skippable"`
	Descendants []Status `json:"descendants" mastodon:"skippable"`
}

type SearchResults struct {
	Accounts []Account `json:"accounts" mastodon:"skippable"`
	Statuses []Status  `json:"statuses" mastodon:"skippable"`
	Hashtags []Tag     `json:"hashtags" mastodon:"skippable"`
}

// AppRegistration is the response of POST /api/v1/apps.
type AppRegistration struct {
	Id           string  `json:"id"`
	Name         string  `json:"name"`
	Website      *string `json:"website" mastodon:"nullable"`
	RedirectUri  string  `json:"redirect_uri"`
	ClientId     string  `json:"client_id"`
	ClientSecret string  `json:"client_secret"`
	VapidKey     string  `json:"vapid_key" mastodon:"allowempty"`
}

type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	Scope       string `json:"scope"`
	CreatedAt   int64  `json:"created_at"`
}
