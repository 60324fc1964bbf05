package ir

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// BookmarkName is a validated, NFC-normalized bookmark name.
type BookmarkName string

// NewBookmarkName validates and normalizes a bookmark name.
//
// Names must be non-empty, must not contain whitespace or control
// characters, and must not start or end with '/'.
func NewBookmarkName(s string) (BookmarkName, error) {
	s = norm.NFC.String(s)
	if s == "" {
		return "", fmt.Errorf("bookmark name is empty")
	}
	if strings.HasPrefix(s, "/") || strings.HasSuffix(s, "/") {
		return "", fmt.Errorf("bookmark name %q must not start or end with '/'", s)
	}
	for _, r := range s {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return "", fmt.Errorf("bookmark name %q contains whitespace or control characters", s)
		}
	}
	return BookmarkName(s), nil
}

// MustBookmarkName is like NewBookmarkName but panics on error.
func MustBookmarkName(s string) BookmarkName {
	name, err := NewBookmarkName(s)
	if err != nil {
		panic(err)
	}
	return name
}

func (b BookmarkName) String() string {
	return string(b)
}

// BookmarkKind classifies a bookmark as published history or as an
// ephemeral scratch pointer.
type BookmarkKind string

const (
	// BookmarkKindPublic bookmarks point at published history. Commits
	// reachable from them are public and subject to hooks.
	BookmarkKindPublic BookmarkKind = "public"

	// BookmarkKindScratch bookmarks point at per-developer draft stacks.
	// They are exempt from public-history checks and hooks.
	BookmarkKindScratch BookmarkKind = "scratch"
)

// ParseBookmarkKind parses a stored kind value.
func ParseBookmarkKind(s string) (BookmarkKind, error) {
	switch BookmarkKind(s) {
	case BookmarkKindPublic, BookmarkKindScratch:
		return BookmarkKind(s), nil
	default:
		return "", fmt.Errorf("unknown bookmark kind %q", s)
	}
}
