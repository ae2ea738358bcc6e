package tgui

import (
	"html"
	"strings"
)

const (
	ModeMarkdown   = "Markdown"
	ModeMarkdownV2 = "MarkdownV2"
	ModeHTML       = "HTML"
)

// DefaultMarkdownEscapes covers emphasis, code, header and link markers.
// URL characters (. - / : ? = &) and the at-mention sign are left alone:
// escaping them breaks link rendering or leaves stray backslashes.
const DefaultMarkdownEscapes = "_*`[]()#"

// Escaper makes user text inert for one parse mode.
type Escaper struct {
	mode  string
	chars string
}

// NewEscaper returns an escaper for mode. chars is the Markdown escape set;
// empty means DefaultMarkdownEscapes. It is ignored for HTML (entity
// escaping) and for plain text (no escaping).
func NewEscaper(mode, chars string) Escaper {
	if chars == "" {
		chars = DefaultMarkdownEscapes
	}
	return Escaper{mode: strings.TrimSpace(mode), chars: chars}
}

func (e Escaper) Mode() string { return e.mode }

func (e Escaper) Escape(s string) string {
	switch {
	case strings.EqualFold(e.mode, ModeHTML):
		return html.EscapeString(s)
	case e.mode == "":
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 8)
	for _, r := range s {
		if strings.ContainsRune(e.chars, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Bold wraps already-escaped text in the mode's bold markers.
func (e Escaper) Bold(escaped string) string {
	switch {
	case strings.EqualFold(e.mode, ModeHTML):
		return "<b>" + escaped + "</b>"
	case e.mode == "":
		return escaped
	default:
		return "*" + escaped + "*"
	}
}
