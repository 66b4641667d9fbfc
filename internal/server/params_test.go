package server

import (
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestReadParams(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		key         string
		want        []string
	}{
		{"form array", echo.MIMEApplicationForm, "media_ids[]=1&media_ids[]=2", "media_ids", []string{"1", "2"}},
		{"form scalar", echo.MIMEApplicationForm, "status=hi", "status", []string{"hi"}},
		{"json array", echo.MIMEApplicationJSON, `{"media_ids":["1","2"]}`, "media_ids", []string{"1", "2"}},
		{"json number", echo.MIMEApplicationJSON, `{"limit":5}`, "limit", []string{"5"}},
		{"json null", echo.MIMEApplicationJSON, `{"in_reply_to_id":null}`, "in_reply_to_id", nil},
		{"query merged", echo.MIMEApplicationForm, "", "q", []string{"from-query"}},
	}
	e := echo.New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/?q=from-query", strings.NewReader(tt.body))
			req.Header.Set(echo.HeaderContentType, tt.contentType)
			p, err := readParams(e.NewContext(req, httptest.NewRecorder()))
			if err != nil {
				t.Fatalf("readParams() error = %v", err)
			}
			if got := p.All(tt.key); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("All(%q) = %v, want %v", tt.key, got, tt.want)
			}
		})
	}
}

func TestParamsBool(t *testing.T) {
	p := params{values: map[string][]string{"a": {"true"}, "b": {"1"}, "c": {"false"}, "d": {""}}}
	for key, want := range map[string]bool{"a": true, "b": true, "c": false, "d": false, "missing": false} {
		if got := p.Bool(key); got != want {
			t.Errorf("Bool(%q) = %v, want %v", key, got, want)
		}
	}
}
