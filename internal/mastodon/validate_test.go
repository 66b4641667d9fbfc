package mastodon

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func validAccount() *Account {
	return &Account{
		Id:        "1",
		Username:  "alice",
		Acct:      "alice",
		CreatedAt: time.Unix(0, 0).UTC(),
		Url:       "https://blog.example.org/author/alice",
	}
}

func validStatus() *Status {
	return &Status{
		Id:         "10",
		Uri:        "https://blog.example.org/?p=10",
		CreatedAt:  time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
		Account:    validAccount(),
		Content:    "<p>hello</p>",
		Visibility: VisibilityPublic,
	}
}

func TestValidateStatusWithoutAccountFails(t *testing.T) {
	s := validStatus()
	s.Account = nil
	err := Validate(s, nil)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Validate() error = %v, want *ValidationError", err)
	}
	if verr.Path != "account" {
		t.Errorf("Path = %q, want account", verr.Path)
	}
}

func TestValidateOmitsMissingOptional(t *testing.T) {
	s := validStatus()
	if err := Validate(s, nil); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	body, err := json.Marshal(s)
	if err != nil {
		t.Fatal(err)
	}
	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err != nil {
		t.Fatal(err)
	}
	if _, ok := fields["language"]; ok {
		t.Error("language present, want omitted")
	}
	if v, ok := fields["in_reply_to_id"]; !ok || v != nil {
		t.Errorf("in_reply_to_id = %v, %v, want null", v, ok)
	}
	if v, ok := fields["media_attachments"].([]any); !ok || len(v) != 0 {
		t.Errorf("media_attachments = %v, want []", fields["media_attachments"])
	}
}

func TestValidateNestedPath(t *testing.T) {
	s := validStatus()
	s.Account.Username = ""
	err := Validate(s, nil)
	if err == nil || !strings.HasPrefix(err.Error(), "account.username") {
		t.Errorf("Validate() error = %v, want account.username", err)
	}

	s = validStatus()
	reblog := validStatus()
	reblog.Account.Acct = ""
	s.Reblog = reblog
	if err := Validate(s, nil); err == nil || !strings.HasPrefix(err.Error(), "reblog.account.acct") {
		t.Errorf("Validate() error = %v, want reblog.account.acct", err)
	}
}

func TestValidateSkippableDropsItem(t *testing.T) {
	s := validStatus()
	s.MediaAttachments = []MediaAttachment{
		{Id: "1", Type: MediaImage, Url: "https://blog.example.org/a.png"},
		{Id: "2", Type: MediaImage},
		{Id: "3", Type: MediaVideo, Url: "https://blog.example.org/b.mp4"},
	}
	var skipped []string
	if err := Validate(s, func(e *ValidationError) { skipped = append(skipped, e.Path) }); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if len(s.MediaAttachments) != 2 || s.MediaAttachments[1].Id != "3" {
		t.Errorf("MediaAttachments = %+v, want ids 1 and 3", s.MediaAttachments)
	}
	if len(skipped) != 1 || skipped[0] != "media_attachments.1.url" {
		t.Errorf("skipped = %v", skipped)
	}
}

func TestValidateNonSkippableListFails(t *testing.T) {
	a := validAccount()
	a.Source = &Source{Privacy: "public", Fields: []Field{{Name: ""}}}
	if err := Validate(a, nil); err == nil || !strings.HasPrefix(err.Error(), "source.fields.0.name") {
		t.Errorf("Validate() error = %v, want source.fields.0.name", err)
	}
}

func TestValidateZeroTime(t *testing.T) {
	a := validAccount()
	a.CreatedAt = time.Time{}
	if err := Validate(a, nil); err == nil {
		t.Error("Validate() accepted zero created_at")
	}
}

func TestValidateNil(t *testing.T) {
	var s *Status
	if err := Validate(s, nil); err == nil {
		t.Error("Validate(nil) returned nil error")
	}
}
