package mastodon

type Instance struct {
	Uri              string                `json:"uri"`
	Title            string                `json:"title"`
	ShortDescription string                `json:"short_description" mastodon:"allowempty"`
	Description      string                `json:"description" mastodon:"allowempty"`
	Email            string                `json:"email" mastodon:"allowempty"`
	Version          string                `json:"version"`
	Urls             InstanceUrls          `json:"urls"`
	Stats            InstanceStats         `json:"stats"`
	Thumbnail        *string               `json:"thumbnail" mastodon:"nullable"`
	Languages        []string              `json:"languages"`
	Registrations    bool                  `json:"registrations"`
	ApprovalRequired bool                  `json:"approval_required"`
	InvitesEnabled   bool                  `json:"invites_enabled"`
	Configuration    InstanceConfiguration `json:"configuration"`
	ContactAccount   *Account              `json:"contact_account" mastodon:"nullable"`
	Rules            []Rule                `json:"rules" mastodon:"skippable"`
}

type InstanceUrls struct {
	StreamingApi string `json:"streaming_api" mastodon:"allowempty"`
}

type InstanceStats struct {
	UserCount   int64 `json:"user_count"`
	StatusCount int64 `json:"status_count"`
	DomainCount int64 `json:"domain_count"`
}

type Rule struct {
	Id   string `json:"id"`
	Text string `json:"text"`
}

type InstanceConfiguration struct {
	Urls             *InstanceUrls       `json:"urls,omitempty" mastodon:"optional"`
	Accounts         AccountLimits       `json:"accounts"`
	Statuses         StatusLimits        `json:"statuses"`
	MediaAttachments MediaLimits         `json:"media_attachments"`
	Polls            PollLimits          `json:"polls"`
	Translation      *TranslationSupport `json:"translation,omitempty" mastodon:"optional"`
}

type AccountLimits struct {
	MaxFeaturedTags int `json:"max_featured_tags"`
}

type StatusLimits struct {
	MaxCharacters            int `json:"max_characters"`
	MaxMediaAttachments      int `json:"max_media_attachments"`
	CharactersReservedPerUrl int `json:"characters_reserved_per_url"`
}

type MediaLimits struct {
	SupportedMimeTypes  []string `json:"supported_mime_types"`
	ImageSizeLimit      int64    `json:"image_size_limit"`
	ImageMatrixLimit    int64    `json:"image_matrix_limit"`
	VideoSizeLimit      int64    `json:"video_size_limit"`
	VideoFrameRateLimit int64    `json:"video_frame_rate_limit"`
	VideoMatrixLimit    int64    `json:"video_matrix_limit"`
}

type PollLimits struct {
	MaxOptions             int   `json:"max_options"`
	MaxCharactersPerOption int   `json:"max_characters_per_option"`
	MinExpiration          int64 `json:"min_expiration"`
	MaxExpiration          int64 `json:"max_expiration"`
}

type TranslationSupport struct {
	Enabled bool `json:"enabled"`
}

// InstanceV2 is the /api/v2/instance document.
type InstanceV2 struct {
	Domain        string                `json:"domain"`
	Title         string                `json:"title"`
	Version       string                `json:"version"`
	SourceUrl     string                `json:"source_url"`
	Description   string                `json:"description" mastodon:"allowempty"`
	Usage         InstanceUsage         `json:"usage"`
	Thumbnail     InstanceThumbnail     `json:"thumbnail"`
	Languages     []string              `json:"languages"`
	Configuration InstanceConfiguration `json:"configuration"`
	Registrations InstanceRegistrations `json:"registrations"`
	Contact       InstanceContact       `json:"contact"`
	Rules         []Rule                `json:"rules" mastodon:"skippable"`
}

type InstanceUsage struct {
	Users struct {
		ActiveMonth int64 `json:"active_month"`
	} `json:"users"`
}

type InstanceThumbnail struct {
	Url string `json:"url" mastodon:"allowempty"`
}

type InstanceRegistrations struct {
	Enabled          bool    `json:"enabled"`
	ApprovalRequired bool    `json:"approval_required"`
	Message          *string `json:"message" mastodon:"nullable"`
}

type InstanceContact struct {
	Email   string   `json:"email" mastodon:"allowempty"`
	Account *Account `json:"account" mastodon:"nullable"`
}

// NodeInfo is the nodeinfo 2.0 schema.
type NodeInfo struct {
	Version           string           `json:"version"`
	Software          NodeInfoSoftware `json:"software"`
	Protocols         []string         `json:"protocols"`
	Services          NodeInfoServices `json:"services"`
	Usage             NodeInfoUsage    `json:"usage"`
	OpenRegistrations bool             `json:"openRegistrations"`
	Metadata          map[string]any   `json:"metadata"`
}

type NodeInfoSoftware struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type NodeInfoServices struct {
	Inbound  []string `json:"inbound"`
	Outbound []string `json:"outbound"`
}

type NodeInfoUsage struct {
	Users struct {
		Total int64 `json:"total"`
	} `json:"users"`
	LocalPosts int64 `json:"localPosts"`
}
