package sentiment

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"
)

// DefaultCommentSelector matches the containers YouTube renders comment text into
const DefaultCommentSelector = "div.comment-text"

// headerScanLimit bounds how far into a capture the HTTP headers are looked for
const headerScanLimit = 8 * 1024

// CommentParser extracts comment text from a raw page capture.
// Malformed markup is never an error.
type CommentParser struct {
	selector string
}

// NewCommentParser returns a parser for elements matching selector,
// or DefaultCommentSelector when it is empty.
func NewCommentParser(selector string) *CommentParser {
	if selector == "" {
		selector = DefaultCommentSelector
	}
	return &CommentParser{selector: selector}
}

// captureContentType returns the Content-Type of the HTTP response at the
// start of an ARC capture, or "" when there is none.
func captureContentType(data []byte) string {
	if len(data) > headerScanLimit {
		data = data[:headerScanLimit]
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			break
		}
		name, value, found := strings.Cut(line, ":")
		if found && strings.EqualFold(strings.TrimSpace(name), "Content-Type") {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

// decode converts the capture to UTF-8. Undecodable input is used as is.
// Without a declared charset, valid UTF-8 is kept ahead of the windows-1252
// fallback, since only the first KiB is sniffed.
func decode(data []byte) []byte {
	enc, _, certain := charset.DetermineEncoding(data, captureContentType(data))
	if !certain && utf8.Valid(data) {
		return data
	}
	utf8data, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		if utf8.Valid(data) {
			return data
		}
		return bytes.ToValidUTF8(data, []byte("�"))
	}
	return utf8data
}

// ParseComments reads the whole capture and returns the text of every
// comment container in document order. Only read errors are returned.
func (parser *CommentParser) ParseComments(page io.Reader) ([]string, error) {
	data, err := io.ReadAll(page)
	if err != nil {
		return nil, fmt.Errorf("reading page: %w", err)
	}
	return parser.ParseCommentBytes(data), nil
}

// ParseCommentBytes returns the text of every comment container in data.
func (parser *CommentParser) ParseCommentBytes(data []byte) []string {
	// the html tokenizer accepts any input, so this cannot fail on markup
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(decode(data)))
	if err != nil {
		return []string{}
	}
	comments := []string{}
	doc.Find(parser.selector).Each(func(i int, s *goquery.Selection) {
		comments = append(comments, s.Text())
	})
	return comments
}
