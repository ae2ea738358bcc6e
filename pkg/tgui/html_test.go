package tgui

import "testing"

func TestEscaper(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		mode  string
		chars string
		in    string
		want  string
	}{
		{name: "markdown default", mode: ModeMarkdown, in: "*Hot* [deal] _now_ #1 (x)", want: `\*Hot\* \[deal\] \_now\_ \#1 \(x\)`},
		{name: "markdown keeps url and mention", mode: ModeMarkdown, in: "@bob see https://a.example/x-y.html?q=1", want: "@bob see https://a.example/x-y.html?q=1"},
		{name: "custom set", mode: ModeMarkdownV2, chars: "-.!", in: "v1.2-beta!", want: `v1\.2\-beta\!`},
		{name: "html", mode: ModeHTML, in: `<b>"x" & y</b>`, want: "&lt;b&gt;&#34;x&#34; &amp; y&lt;/b&gt;"},
		{name: "plain", mode: "", in: "*as is*", want: "*as is*"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := NewEscaper(tt.mode, tt.chars).Escape(tt.in); got != tt.want {
				t.Fatalf("Escape(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestTruncRunes(t *testing.T) {
	t.Parallel()
	if got := TruncRunes("héllo wörld", 6); got != "héllo…" {
		t.Fatalf("TruncRunes = %q", got)
	}
	if got := TruncRunes("short", 10); got != "short" {
		t.Fatalf("TruncRunes = %q", got)
	}
	if got := TruncRunes("abc", 0); got != "" {
		t.Fatalf("TruncRunes = %q", got)
	}
}
