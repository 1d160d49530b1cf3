// Package encoding turns raw notebook bytes into UTF-8 text and recognises
// files that are not text at all.
package encoding

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/transform"
)

const (
	sniffLen      = 512
	nullCheckLen  = 1024
	nullThreshold = 0.15
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// MIME types that http.DetectContentType may report for notebook sources.
var textMIMETypes = map[string]bool{
	"application/json":         true,
	"application/xml":          true,
	"application/yaml":         true,
	"application/toml":         true,
	"application/octet-stream": true, // inconclusive; the null-byte check decides
}

// Result is the outcome of decoding one file.
type Result struct {
	Text     []byte
	Encoding string
	Certain  bool
}

// EncodingHandler decodes document bytes and detects binary content.
type EncodingHandler interface {
	Decode(content []byte) (Result, error)
	IsBinary(content []byte) bool
}

type charsetHandler struct {
	defaultEncoding string
}

// NewCharsetHandler returns an EncodingHandler backed by
// golang.org/x/net/html/charset. defaultEncoding is used when detection is
// not certain; an unknown name is ignored.
func NewCharsetHandler(defaultEncoding string) EncodingHandler {
	return &charsetHandler{defaultEncoding: strings.TrimSpace(defaultEncoding)}
}

// Decode converts content to UTF-8. A leading UTF-8 byte order mark is
// removed so JSON and TOML decoders see a clean document.
func (h *charsetHandler) Decode(content []byte) (Result, error) {
	enc, name, certain := charset.DetermineEncoding(content, "")
	if !certain && h.defaultEncoding != "" {
		if fallback, fallbackName := charset.Lookup(h.defaultEncoding); fallback != nil {
			enc, name, certain = fallback, fallbackName, true
		}
	}
	if name == "" {
		name = "utf-8"
	}
	if enc == nil {
		return Result{Text: bytes.TrimPrefix(content, utf8BOM), Encoding: name, Certain: certain}, nil
	}

	text, err := io.ReadAll(transform.NewReader(bytes.NewReader(content), enc.NewDecoder()))
	if err != nil {
		return Result{Text: content, Encoding: name, Certain: certain}, fmt.Errorf("decode from %s: %w", name, err)
	}
	return Result{Text: bytes.TrimPrefix(text, utf8BOM), Encoding: name, Certain: certain}, nil
}

// IsBinary reports whether content looks like binary data: a non-text MIME
// sniff, or more than 15% null bytes in the first KiB.
func (h *charsetHandler) IsBinary(content []byte) bool {
	if len(content) == 0 {
		return false
	}
	if !isTextMIME(http.DetectContentType(content[:min(len(content), sniffLen)])) {
		return true
	}
	head := content[:min(len(content), nullCheckLen)]
	return float64(bytes.Count(head, []byte{0}))/float64(len(head)) > nullThreshold
}

func isTextMIME(contentType string) bool {
	mime, _, _ := strings.Cut(contentType, ";")
	mime = strings.TrimSpace(mime)
	return strings.HasPrefix(mime, "text/") ||
		textMIMETypes[mime] ||
		strings.HasSuffix(mime, "+json") ||
		strings.HasSuffix(mime, "+xml")
}
