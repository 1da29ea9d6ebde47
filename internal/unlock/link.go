package unlock

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"rvl-week-service/internal/domain"
)

// Link is a parsed /unlock?day=<int>&token=<string> deep link.
type Link struct {
	Day   int
	Token string
}

// ParseLink accepts a full URL, a path with a query, or a bare query string.
func ParseLink(raw string) (Link, error) {
	raw = strings.TrimSpace(raw)
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		raw = raw[i+1:]
	}
	values, err := url.ParseQuery(raw)
	if err != nil {
		return Link{}, fmt.Errorf("%w: %v", domain.ErrInvalidLink, err)
	}
	return ParseQuery(values)
}

// ParseQuery reads day and token from already decoded query values.
func ParseQuery(values url.Values) (Link, error) {
	day, err := strconv.Atoi(strings.TrimSpace(values.Get("day")))
	if err != nil || day <= 0 {
		return Link{}, fmt.Errorf("%w: day %q is not a positive integer", domain.ErrInvalidLink, values.Get("day"))
	}
	token := strings.TrimSpace(values.Get("token"))
	if token == "" {
		return Link{}, fmt.Errorf("%w: missing token", domain.ErrInvalidLink)
	}
	return Link{Day: day, Token: token}, nil
}

// String renders the link in its wire shape.
func (l Link) String() string {
	q := url.Values{}
	q.Set("day", strconv.Itoa(l.Day))
	q.Set("token", l.Token)
	return "/unlock?" + q.Encode()
}
