// Package identity derives the ordered token used to decide whether a feed
// entry has already been delivered.
//
// The rule is a single regular expression with exactly one capture group,
// applied to one field of the entry. The capture must be a positive base-10
// integer; IDs compare numerically, ascending is chronological.
package identity

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ID is a stable, totally ordered entry identity (for example a forum thread id).
// The zero value means "none".
type ID int64

func (id ID) String() string { return strconv.FormatInt(int64(id), 10) }

// DefaultPattern matches the last dash-delimited numeric segment of a GUID or
// URL, optionally followed by a file extension: "…/thread-12345.html" → 12345.
const DefaultPattern = `-(\d+)(?:\.[A-Za-z0-9]+)?$`

const (
	SourceGUID = "guid"
	SourceLink = "link"
)

var (
	ErrNoMatch    = errors.New("identity: no match")
	ErrAmbiguous  = errors.New("identity: ambiguous match")
	ErrNotNumeric = errors.New("identity: not a positive integer")
	ErrEmptyInput = errors.New("identity: empty input")
)

type Config struct {
	Pattern string
	// Source selects the entry field: "guid" (falls back to link when the
	// entry carries no GUID) or "link".
	Source string
}

type Extractor struct {
	re     *regexp.Regexp
	source string
}

func NewExtractor(cfg Config) (*Extractor, error) {
	pattern := strings.TrimSpace(cfg.Pattern)
	if pattern == "" {
		pattern = DefaultPattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("identity pattern %q: %w", pattern, err)
	}
	if re.NumSubexp() != 1 {
		return nil, fmt.Errorf("identity pattern %q: want exactly one capture group, got %d", pattern, re.NumSubexp())
	}

	source := strings.ToLower(strings.TrimSpace(cfg.Source))
	switch source {
	case "":
		source = SourceGUID
	case SourceGUID, SourceLink:
	default:
		return nil, fmt.Errorf("identity source %q: want %q or %q", cfg.Source, SourceGUID, SourceLink)
	}
	return &Extractor{re: re, source: source}, nil
}

// Extract returns the identity for an entry. It never guesses: zero matches,
// several distinct matches and non-numeric captures are all errors.
func (x *Extractor) Extract(link, guid string) (ID, error) {
	in := strings.TrimSpace(link)
	if x.source == SourceGUID {
		if g := strings.TrimSpace(guid); g != "" {
			in = g
		}
	}
	if in == "" {
		return 0, ErrEmptyInput
	}
	return x.match(in)
}

func (x *Extractor) match(s string) (ID, error) {
	matches := x.re.FindAllStringSubmatch(s, -1)
	if len(matches) == 0 {
		return 0, fmt.Errorf("%w in %q", ErrNoMatch, s)
	}
	capture := matches[0][1]
	for _, m := range matches[1:] {
		if m[1] != capture {
			return 0, fmt.Errorf("%w in %q: %q vs %q", ErrAmbiguous, s, capture, m[1])
		}
	}
	n, err := strconv.ParseInt(capture, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %q in %q", ErrNotNumeric, capture, s)
	}
	return ID(n), nil
}
