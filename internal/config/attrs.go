package config

import (
	"regexp"

	"github.com/roach88/unbundle/internal/ir"
)

type bookmarkMatcher struct {
	params  BookmarkParams
	re      *regexp.Regexp
	allowed *regexp.Regexp
}

func (m bookmarkMatcher) matches(name ir.BookmarkName) bool {
	if m.re != nil {
		return m.re.MatchString(string(name))
	}
	return m.params.Name == string(name)
}

// BookmarkAttrs resolves per-bookmark attributes. A bookmark may match
// several entries; their restrictions combine.
type BookmarkAttrs struct {
	matchers []bookmarkMatcher
}

// NewBookmarkAttrs compiles the bookmark entries of a config.
func NewBookmarkAttrs(params []BookmarkParams) (*BookmarkAttrs, error) {
	a := &BookmarkAttrs{}
	for _, p := range params {
		m := bookmarkMatcher{params: p}
		if p.Regex != "" {
			re, err := regexp.Compile(p.Regex)
			if err != nil {
				return nil, &Error{Field: "bookmarks.regex", Message: err.Error()}
			}
			m.re = re
		}
		if p.AllowedUsers != "" {
			re, err := regexp.Compile(p.AllowedUsers)
			if err != nil {
				return nil, &Error{Field: "bookmarks.allowed_users", Message: err.Error()}
			}
			m.allowed = re
		}
		a.matchers = append(a.matchers, m)
	}
	return a, nil
}

// Select returns the entries matching a bookmark, in config order.
func (a *BookmarkAttrs) Select(name ir.BookmarkName) []BookmarkParams {
	var out []BookmarkParams
	for _, m := range a.matchers {
		if m.matches(name) {
			out = append(out, m.params)
		}
	}
	return out
}

// IsFastForwardOnly reports whether any matching entry forbids
// non-fast-forward moves and deletion.
func (a *BookmarkAttrs) IsFastForwardOnly(name ir.BookmarkName) bool {
	for _, m := range a.matchers {
		if m.matches(name) && m.params.OnlyFastForward {
			return true
		}
	}
	return false
}

// IsAllowedUser reports whether user may move the bookmark: every matching
// entry that restricts users must accept it.
func (a *BookmarkAttrs) IsAllowedUser(user string, name ir.BookmarkName) bool {
	for _, m := range a.matchers {
		if m.matches(name) && m.allowed != nil && !m.allowed.MatchString(user) {
			return false
		}
	}
	return true
}

// HooksFor returns the names of hooks bound to a bookmark, without
// duplicates, in config order.
func (a *BookmarkAttrs) HooksFor(name ir.BookmarkName) []string {
	seen := map[string]bool{}
	var out []string
	for _, m := range a.matchers {
		if !m.matches(name) {
			continue
		}
		for _, h := range m.params.Hooks {
			if !seen[h] {
				seen[h] = true
				out = append(out, h)
			}
		}
	}
	return out
}
