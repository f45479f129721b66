package server

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestDetectMimetype(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	tests := []struct {
		name string
		file string
		url  string
		data []byte
		want string
	}{
		{name: "name extension", file: "report.pdf", want: "application/pdf"},
		{name: "name wins over content", file: "index.html", data: png, want: "text/html"},
		{name: "url extension", url: "https://example.com/a/logo.png?x=1", want: "image/png"},
		{name: "content sniffing", file: "blob", data: png, want: "image/png"},
		{name: "fallback", file: "blob", data: []byte{0x00, 0x01, 0x02}, want: "application/octet-stream"},
		{name: "empty", want: "application/octet-stream"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := detectMimetype(tt.file, tt.url, tt.data); got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestIndexContent(t *testing.T) {
	if got := indexContent("application/pdf", []byte("text")); got != "" {
		t.Fatalf("expected no index for binary types, got %q", got)
	}
	if got := indexContent("text/plain", []byte("hello")); got != "hello" {
		t.Fatalf("expected hello, got %q", got)
	}

	long := strings.Repeat("é", indexContentMaxRunes+5)
	got := indexContent("text/plain", []byte(long))
	if utf8.RuneCountInString(got) != indexContentMaxRunes {
		t.Fatalf("expected %d runes, got %d", indexContentMaxRunes, utf8.RuneCountInString(got))
	}

	if got := indexContent("text/plain", []byte{'a', 0xff, 'b'}); got != "ab" {
		t.Fatalf("expected invalid bytes dropped, got %q", got)
	}
}
