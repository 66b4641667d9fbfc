// Package model holds the bun models for the native content store and the
// OAuth records that sit on top of it.
package model

import (
	"strings"
	"time"

	"github.com/uptrace/bun"
)

// Post statuses.
const (
	StatusPublish = "publish"
	StatusPrivate = "private"
	StatusDraft   = "draft"
	StatusTrash   = "trash"
	// StatusInherit marks attachments, which follow their parent post.
	StatusInherit = "inherit"
)

// Native kinds.
const (
	PostTypePost       = "post"
	PostTypeAttachment = "attachment"
	KindComment        = "comment"
)

// Comment types.
const (
	CommentTypeComment = "comment"
	CommentTypeLike    = "like"
	CommentTypeRepost  = "repost"
)

// Roles.
const (
	RoleAdministrator = "administrator"
	RoleEditor        = "editor"
	RoleAuthor        = "author"
	RoleContributor   = "contributor"
	RoleSubscriber    = "subscriber"
)

type User struct {
	bun.BaseModel `bun:"table:users"`
	Id            int64  `bun:",pk,autoincrement"`
	Login         string `bun:",unique"`
	DisplayName   string
	Email         string
	PasswordHash  string
	Role          string
	Url           string
	Bio           string
	AvatarUrl     string
	Registered    time.Time
}

// CanManagePrivate reports whether the user holds the capability needed to
// read private content and to authorize API clients.
func (u *User) CanManagePrivate() bool {
	return u != nil && (u.Role == RoleAdministrator || u.Role == RoleEditor)
}

type Post struct {
	bun.BaseModel `bun:"table:posts,alias:p"`
	Id            int64 `bun:",pk,autoincrement"`
	AuthorId      int64
	PostType      string
	Status        string
	Title         string
	Content       string
	Excerpt       string
	MimeType      string
	Guid          string
	ParentId      int64
	Sticky        bool
	CreatedAt     time.Time
	ModifiedAt    time.Time
}

type PostMeta struct {
	bun.BaseModel `bun:"table:post_meta"`
	Id            int64 `bun:",pk,autoincrement"`
	PostId        int64
	MetaKey       string
	MetaValue     string
}

type Comment struct {
	bun.BaseModel `bun:"table:comments,alias:c"`
	Id            int64 `bun:",pk,autoincrement"`
	PostId        int64
	ParentId      int64
	UserId        int64
	AuthorName    string
	AuthorEmail   string
	AuthorUrl     string
	Content       string
	CommentType   string
	Approved      bool
	CreatedAt     time.Time
}

type CommentMeta struct {
	bun.BaseModel `bun:"table:comment_meta"`
	Id            int64 `bun:",pk,autoincrement"`
	CommentId     int64
	MetaKey       string
	MetaValue     string
}

type Tag struct {
	bun.BaseModel `bun:"table:tags"`
	Id            int64 `bun:",pk,autoincrement"`
	Name          string
	Slug          string `bun:",unique"`
}

type PostTag struct {
	bun.BaseModel `bun:"table:post_tags"`
	PostId        int64 `bun:",pk"`
	TagId         int64 `bun:",pk"`
}

// Option is a key/value row. A non-zero ExpiresAt makes it a transient.
type Option struct {
	bun.BaseModel `bun:"table:options"`
	Name          string `bun:",pk"`
	Value         string
	ExpiresAt     int64
}

type Follow struct {
	bun.BaseModel `bun:"table:follows"`
	UserId        int64  `bun:",pk"`
	Target        string `bun:",pk"`
	CreatedAt     time.Time
}

// Reaction kinds.
const (
	ReactionFavourite = "favourite"
	ReactionReblog    = "reblog"
)

type Reaction struct {
	bun.BaseModel `bun:"table:reactions"`
	UserId        int64  `bun:",pk"`
	StatusId      string `bun:",pk"`
	Kind          string `bun:",pk"`
	CreatedAt     time.Time
}

type NotificationDismissal struct {
	bun.BaseModel  `bun:"table:notification_dismissals"`
	UserId         int64 `bun:",pk"`
	NotificationId int64 `bun:",pk"`
}

// IdMapping registers a non-numeric or colliding native reference so it can
// be exposed as row id plus a band offset.
type IdMapping struct {
	bun.BaseModel `bun:"table:id_map"`
	Id            int64 `bun:",pk,autoincrement"`
	Kind          string
	NativeRef     string
	RefHash       string
	CreatedAt     time.Time
}

type App struct {
	bun.BaseModel  `bun:"table:apps"`
	ClientId       string `bun:",pk"`
	ClientSecret   string
	ClientName     string
	RedirectUris   string
	Scopes         string
	Website        string
	PostTypes      string
	CreatePostType string
	CreationDate   time.Time
	LastUsed       time.Time
}

// RedirectUriList splits the newline separated redirect uris.
func (a *App) RedirectUriList() []string {
	var uris []string
	for _, u := range strings.Split(a.RedirectUris, "\n") {
		if u = strings.TrimSpace(u); u != "" {
			uris = append(uris, u)
		}
	}
	return uris
}

// PostTypeList returns the native kinds the app may view.
func (a *App) PostTypeList() []string {
	if strings.TrimSpace(a.PostTypes) == "" {
		return []string{PostTypePost, KindComment}
	}
	var kinds []string
	for _, k := range strings.Split(a.PostTypes, ",") {
		if k = strings.TrimSpace(k); k != "" {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

type AuthCode struct {
	bun.BaseModel `bun:"table:auth_codes"`
	Code          string `bun:",pk"`
	ClientId      string
	UserId        int64
	RedirectUri   string
	Scope         string
	Expires       int64
}

type AccessToken struct {
	bun.BaseModel `bun:"table:access_tokens"`
	AccessToken   string `bun:",pk"`
	ClientId      string
	UserId        int64
	Scope         string
	Expires       int64
	LastUsed      int64
	CreatedAt     time.Time
}
