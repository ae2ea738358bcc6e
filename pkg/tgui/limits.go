package tgui

// Bot API size limits, counted in characters (runes).
const (
	MaxTextLen    = 4096
	MaxCaptionLen = 1024
)
