package fetch

import (
	"mime"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/saintfish/chardet"
	"golang.org/x/net/html/charset"
)

// minConfidence is the chardet score below which a guess is ignored
const minConfidence = 50

// DetectContentType sniffs body when the server sent no Content-Type
func DetectContentType(body []byte) string {
	return mimetype.Detect(body).String()
}

// IsRenderable reports whether contentType can be shown in the document
// surface. Only HTML and plain text qualify.
func IsRenderable(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	}
	switch {
	case mediaType == "text/html", mediaType == "application/xhtml+xml":
		return true
	case mediaType == "text/css", mediaType == "text/javascript":
		return false
	case strings.HasPrefix(mediaType, "text/"):
		return true
	}
	return false
}

// Decode converts body to UTF-8. The encoding comes from a BOM, the
// Content-Type charset or a <meta> prescan; when none of those is certain,
// chardet guesses from the bytes. It returns the decoded text and the
// canonical name of the source charset.
func Decode(body []byte, contentType string) (string, string) {
	enc, name, certain := charset.DetermineEncoding(body, contentType)
	if !certain {
		if utf8.Valid(body) {
			return string(body), "utf-8"
		}
		if guess, err := chardet.NewHtmlDetector().DetectBest(body); err == nil && guess.Confidence >= minConfidence {
			if e, n := charset.Lookup(guess.Charset); e != nil {
				enc, name = e, n
			}
		}
	}

	if name == "utf-8" {
		return string(body), name
	}

	decoded, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return string(body), name
	}
	return string(decoded), name
}
