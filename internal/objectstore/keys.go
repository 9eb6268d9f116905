package objectstore

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/readmill/pagepress/config"
)

// PageImageContentType is the content type every rendered page is stored under.
const PageImageContentType = "image/jpeg"

// KeyBuilder maps between book/page identities, object keys, and public URLs.
// The mapping is an external contract: any consumer reading rendered pages
// computes the same keys, so the functions here must stay bit-stable.
type KeyBuilder struct {
	publicBaseURL string
	bucket        string
}

// NewKeyBuilder creates a KeyBuilder from object store configuration.
func NewKeyBuilder(cfg config.ObjectStoreConfig) *KeyBuilder {
	return &KeyBuilder{
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
		bucket:        cfg.Bucket,
	}
}

// AssetsPrefix returns the key prefix under which all of a book's rendered
// pages live.
func (b *KeyBuilder) AssetsPrefix(bookID int64) string {
	return fmt.Sprintf("books/%d/pages/", bookID)
}

// PageKey returns the object key for one rendered page of a book.
func (b *KeyBuilder) PageKey(bookID int64, page int) string {
	return fmt.Sprintf("books/%d/pages/page-%04d.jpg", bookID, page)
}

// ResolveKey derives the object key from a public URL served out of the
// configured bucket. URL-encoded path segments are decoded, so keys containing
// spaces or unicode round-trip correctly.
func (b *KeyBuilder) ResolveKey(rawURL string) (string, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return "", fmt.Errorf("empty URL")
	}

	prefix := b.publicBaseURL + "/" + b.bucket + "/"
	if !strings.HasPrefix(rawURL, prefix) {
		return "", fmt.Errorf("URL %q is not under %q", rawURL, prefix)
	}

	encoded := strings.TrimPrefix(rawURL, prefix)
	if encoded == "" {
		return "", fmt.Errorf("URL %q has no object key", rawURL)
	}

	segments := strings.Split(encoded, "/")
	for i, seg := range segments {
		decoded, err := url.PathUnescape(seg)
		if err != nil {
			return "", fmt.Errorf("decode path segment %q: %w", seg, err)
		}
		segments[i] = decoded
	}

	return strings.Join(segments, "/"), nil
}
