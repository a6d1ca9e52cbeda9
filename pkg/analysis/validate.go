package analysis

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Input limits, counted in characters.
const (
	MaxKeywordLength  = 50
	MaxAudienceLength = 200
)

// ErrInvalidRequest is wrapped by every validation failure.
var ErrInvalidRequest = errors.New("invalid analysis request")

// ValidationError names the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidRequest
}

// Normalize returns a copy with surrounding whitespace trimmed and inner
// whitespace runs in the keyword collapsed to a single space.
func (r Request) Normalize() Request {
	r.Keyword = strings.Join(strings.Fields(r.Keyword), " ")
	r.Audience = strings.TrimSpace(r.Audience)
	return r
}

// Validate checks the normalized request.
func (r Request) Validate() error {
	n := r.Normalize()

	if n.Keyword == "" {
		return &ValidationError{Field: "keyword", Message: "is required"}
	}
	if utf8.RuneCountInString(n.Keyword) > MaxKeywordLength {
		return &ValidationError{Field: "keyword", Message: fmt.Sprintf("must be at most %d characters", MaxKeywordLength)}
	}
	for _, ch := range n.Keyword {
		if ch == ' ' || keywordRune(ch) {
			continue
		}
		return &ValidationError{Field: "keyword", Message: fmt.Sprintf("contains unsupported character %q", ch)}
	}

	if n.Audience == "" {
		return &ValidationError{Field: "audience", Message: "is required"}
	}
	if utf8.RuneCountInString(n.Audience) > MaxAudienceLength {
		return &ValidationError{Field: "audience", Message: fmt.Sprintf("must be at most %d characters", MaxAudienceLength)}
	}
	return nil
}

// cjkScripts are the scripts accepted in keywords besides ASCII letters and digits.
var cjkScripts = []*unicode.RangeTable{unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul}

// katakanaLongVowel is the prolonged sound mark, a Common script rune used
// inside katakana words.
const katakanaLongVowel = 'ー'

func keywordRune(ch rune) bool {
	switch {
	case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9':
		return true
	case ch == katakanaLongVowel:
		return true
	}
	return unicode.IsOneOf(cjkScripts, ch)
}
