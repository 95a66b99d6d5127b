package loader

import (
	"context"
	"fmt"
	"mime"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/kailas-cloud/docrag/internal/domain"
)

const byteOrderMark = "\uFEFF"

// TextAdapter loads plain text files.
type TextAdapter struct{}

// Name implements Adapter.
func (TextAdapter) Name() string { return "text" }

// Extensions implements Adapter.
func (TextAdapter) Extensions() []string { return []string{".txt"} }

// Load implements Adapter.
func (TextAdapter) Load(ctx context.Context, path string) (domain.Document, error) {
	text, err := readText(ctx, path)
	if err != nil {
		return domain.Document{}, err
	}
	return newDocument(path, text), nil
}

// readText reads a file, rejects content that does not sniff as text and
// decodes it to UTF-8 using the detected charset.
func readText(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err //nolint:wrapcheck // context error
	}
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the scanned folder
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	detected := mimetype.Detect(data)
	if !isText(detected) {
		return "", fmt.Errorf("%s is %s: %w", path, detected.String(), ErrSkip)
	}
	text, err := decodeText(data, charsetOf(detected))
	if err != nil {
		return "", fmt.Errorf("%s: %w: %w", path, err, ErrSkip)
	}
	return normalizeNewlines(strings.TrimPrefix(text, byteOrderMark)), nil
}

// isText reports whether the detected type, or any of its ancestors, is text/plain.
func isText(m *mimetype.MIME) bool {
	for ; m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return true
		}
	}
	return false
}

// charsetOf returns the charset parameter of the detected type, lowercased.
func charsetOf(m *mimetype.MIME) string {
	_, params, err := mime.ParseMediaType(m.String())
	if err != nil {
		return ""
	}
	return strings.ToLower(params["charset"])
}

// decodeText converts data from charset to UTF-8. Unknown or empty charsets
// are accepted only when data is already valid UTF-8.
func decodeText(data []byte, charset string) (string, error) {
	if charset == "" || charset == "utf-8" || charset == "us-ascii" {
		if !utf8.Valid(data) {
			return "", fmt.Errorf("invalid UTF-8")
		}
		return string(data), nil
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		if utf8.Valid(data) {
			return string(data), nil
		}
		return "", fmt.Errorf("unsupported charset %q", charset)
	}
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", charset, err)
	}
	return string(out), nil
}

func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}
