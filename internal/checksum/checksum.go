// Package checksum fingerprints local files so they can be compared against the
// etag recorded in a manifest.
package checksum

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"sort"
	"strings"
)

const (
	MD5    = "md5"
	SHA1   = "sha1"
	SHA256 = "sha256"

	Default = MD5
)

const chunkSize = 64 * 1024

var ErrAlgorithmUnavailable = errors.New("checksum: algorithm unavailable")

var algorithms = map[string]func() hash.Hash{
	MD5:    md5.New,
	SHA1:   sha1.New,
	SHA256: sha256.New,
}

// Hasher computes hex digests of files with a fixed algorithm.
type Hasher struct {
	name    string
	newHash func() hash.Hash
}

// New returns a Hasher for the named algorithm. An empty name selects md5, which
// is what S3 reports as the etag of a single-part upload.
func New(name string) (*Hasher, error) {
	if name == "" {
		name = Default
	}
	name = strings.ToLower(name)

	newHash, ok := algorithms[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (supported: %s)", ErrAlgorithmUnavailable, name, strings.Join(Supported(), ", "))
	}

	return &Hasher{name: name, newHash: newHash}, nil
}

func (h *Hasher) Name() string {
	return h.name
}

// File streams the file at path through the digest and returns it as lowercase hex.
func (h *Hasher) File(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("checksum: open %q: %w", path, err)
	}
	defer file.Close()

	return h.Reader(file)
}

// Reader digests everything read from r.
func (h *Hasher) Reader(r io.Reader) (string, error) {
	digest := h.newHash()
	buf := make([]byte, chunkSize)
	if _, err := io.CopyBuffer(digest, r, buf); err != nil {
		return "", fmt.Errorf("checksum: read: %w", err)
	}
	return fmt.Sprintf("%x", digest.Sum(nil)), nil
}

// Supported lists the algorithm names accepted by New.
func Supported() []string {
	names := make([]string, 0, len(algorithms))
	for name := range algorithms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Normalize strips the quotes S3 puts around etags and lowercases the digest.
func Normalize(etag string) string {
	return strings.ToLower(strings.Trim(strings.TrimSpace(etag), "\""))
}

// Equal compares two digests ignoring case and etag quoting.
func Equal(a, b string) bool {
	return Normalize(a) == Normalize(b)
}

// IsComposite reports whether etag is a multipart upload etag ("<hex>-<parts>").
// Those are digests of part digests and never match a digest of the content.
func IsComposite(etag string) bool {
	return strings.Contains(Normalize(etag), "-")
}
