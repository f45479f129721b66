package server

import (
	"mime"
	"net/url"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
)

const (
	defaultMimetype      = "application/octet-stream"
	indexContentMaxRunes = 10000
)

// detectMimetype guesses a media type from the name extension, then the url
// extension, then the payload bytes. The first guess that is not
// application/octet-stream wins.
func detectMimetype(name, rawURL string, data []byte) string {
	if guess := mimetypeFromExtension(path.Ext(strings.TrimSpace(name))); guess != "" {
		return guess
	}
	if guess := mimetypeFromURL(rawURL); guess != "" {
		return guess
	}
	if len(data) > 0 {
		if guess := normalizeMimetype(mimetype.Detect(data).String()); guess != "" && guess != defaultMimetype {
			return guess
		}
	}
	return defaultMimetype
}

func mimetypeFromURL(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return mimetypeFromExtension(path.Ext(u.Path))
}

func mimetypeFromExtension(ext string) string {
	if ext == "" {
		return ""
	}
	guess := normalizeMimetype(mime.TypeByExtension(strings.ToLower(ext)))
	if guess == defaultMimetype {
		return ""
	}
	return guess
}

// normalizeMimetype drops parameters and lowercases the media type.
func normalizeMimetype(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(mediaType)
}

// indexContent extracts searchable text for text/* payloads.
func indexContent(mediaType string, data []byte) string {
	if !strings.HasPrefix(mediaType, "text/") || len(data) == 0 {
		return ""
	}
	text := string(data)
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "")
	}
	if utf8.RuneCountInString(text) <= indexContentMaxRunes {
		return text
	}
	runes := []rune(text)
	return string(runes[:indexContentMaxRunes])
}
