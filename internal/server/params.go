package server

import (
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/tidwall/gjson"
)

const maxJSONBody = 1 << 20

// params merges the query string with a form or JSON body. Mastodon clients
// send either, and name arrays both "ids" and "ids[]".
type params struct {
	values url.Values
}

func readParams(c echo.Context) (params, error) {
	p := params{values: url.Values{}}
	for k, vs := range c.QueryParams() {
		p.add(k, vs...)
	}
	req := c.Request()
	if req.Method == http.MethodGet || req.Method == http.MethodHead || req.Body == nil {
		return p, nil
	}

	if strings.HasPrefix(req.Header.Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		body, err := io.ReadAll(io.LimitReader(req.Body, maxJSONBody))
		if err != nil {
			return p, err
		}
		if len(body) == 0 {
			return p, nil
		}
		if !gjson.ValidBytes(body) {
			return p, validationFailed("Request body is not valid JSON")
		}
		gjson.ParseBytes(body).ForEach(func(key, value gjson.Result) bool {
			if value.IsArray() {
				for _, v := range value.Array() {
					p.add(key.String(), v.String())
				}
				return true
			}
			if value.Type != gjson.Null {
				p.add(key.String(), value.String())
			}
			return true
		})
		return p, nil
	}

	form, err := c.FormParams()
	if err != nil {
		return p, nil
	}
	for k, vs := range form {
		p.add(k, vs...)
	}
	return p, nil
}

func (p params) add(key string, values ...string) {
	key = strings.TrimSuffix(key, "[]")
	p.values[key] = append(p.values[key], values...)
}

func (p params) Get(key string) string {
	return strings.TrimSpace(p.values.Get(key))
}

func (p params) All(key string) []string {
	return p.values[key]
}

func (p params) Int(key string) int {
	n, _ := strconv.Atoi(p.Get(key))
	return n
}

func (p params) Bool(key string) bool {
	switch strings.ToLower(p.Get(key)) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}

// absoluteURL is the url the client used for the current request.
func absoluteURL(c echo.Context) *url.URL {
	u := *c.Request().URL
	u.Scheme = c.Scheme()
	u.Host = c.Request().Host
	return &u
}
