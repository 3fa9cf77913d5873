// Package parse normalises user supplied profile fields.
package parse

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	maxHandleRunes = 32
	maxHandleBytes = 64
	maxGlyphRunes  = 16
	maxGlyphBytes  = 512
)

var (
	ErrInvalidHandle = errors.New("invalid handle")
	ErrInvalidGlyph  = errors.New("invalid glyph")
)

var (
	spaceRe  = regexp.MustCompile(`\s+`)
	avatarPathRe = regexp.MustCompile(`^(?:/[A-Za-z0-9_-][A-Za-z0-9._-]*)+\.(?:png|jpe?g)$`)
)

// Handle trims and collapses whitespace in raw and checks its length.
// Case is preserved: "Alice" and "alice" are different handles.
func Handle(raw string) (string, error) {
	s := strings.TrimSpace(spaceRe.ReplaceAllString(raw, " "))
	switch {
	case s == "":
		return "", fmt.Errorf("%w: empty", ErrInvalidHandle)
	case !utf8.ValidString(s):
		return "", fmt.Errorf("%w: not utf-8", ErrInvalidHandle)
	case utf8.RuneCountInString(s) > maxHandleRunes || len(s) > maxHandleBytes:
		return "", fmt.Errorf("%w: longer than %d characters", ErrInvalidHandle, maxHandleRunes)
	}
	for _, r := range s {
		if unicode.IsControl(r) {
			return "", fmt.Errorf("%w: control character", ErrInvalidHandle)
		}
	}
	return s, nil
}

// Glyph accepts either a short symbol (usually an emoji) or the URL of an
// uploaded avatar, a local image path or an absolute http(s) URL.
func Glyph(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidGlyph)
	}
	if len(s) > maxGlyphBytes || !utf8.ValidString(s) {
		return "", fmt.Errorf("%w: too long", ErrInvalidGlyph)
	}

	if strings.HasPrefix(s, "/") {
		if !avatarPathRe.MatchString(s) {
			return "", fmt.Errorf("%w: unknown avatar path %q", ErrInvalidGlyph, s)
		}
		return s, nil
	}
	if strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") {
		u, err := url.Parse(s)
		if err != nil || u.Host == "" {
			return "", fmt.Errorf("%w: bad avatar url", ErrInvalidGlyph)
		}
		return s, nil
	}

	if utf8.RuneCountInString(s) > maxGlyphRunes {
		return "", fmt.Errorf("%w: symbol longer than %d characters", ErrInvalidGlyph, maxGlyphRunes)
	}
	for _, r := range s {
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			return "", fmt.Errorf("%w: whitespace in symbol", ErrInvalidGlyph)
		}
	}
	return s, nil
}

// IsAvatarURL reports whether a normalised glyph points at an image.
func IsAvatarURL(glyph string) bool {
	return strings.HasPrefix(glyph, "/") || strings.HasPrefix(glyph, "http://") || strings.HasPrefix(glyph, "https://")
}
