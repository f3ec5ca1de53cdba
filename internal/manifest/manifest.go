// Package manifest models the remote list of files a release is made of and
// fetches it from the object store.
package manifest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/openmined/modsync/internal/blob"
	"github.com/openmined/modsync/internal/utils"
)

// DefaultKey is the object key the manifest is published under.
const DefaultKey = "manifest.json"

var (
	ErrManifestUnreachable = errors.New("manifest: unreachable")
	ErrManifestMalformed   = errors.New("manifest: malformed")
)

// Manifest is the ordered list of files a release consists of.
type Manifest struct {
	Files []FileEntry
}

// FileEntry is one expected file. ETag is a hex digest compared case-insensitively.
type FileEntry struct {
	Path string
	Size int64
	ETag string
}

// RelPath is Path with separators normalized to forward slashes.
func (e FileEntry) RelPath() string {
	return utils.NormPath(e.Path)
}

func (m *Manifest) Len() int {
	return len(m.Files)
}

func (m *Manifest) IsEmpty() bool {
	return len(m.Files) == 0
}

// TotalSize is the sum of all entry sizes.
func (m *Manifest) TotalSize() int64 {
	var total int64
	for _, f := range m.Files {
		total += f.Size
	}
	return total
}

// wire types keep pointers so absent fields can be told apart from zero values
type wireManifest struct {
	Files []*wireEntry `json:"files"`
}

type wireEntry struct {
	Path *string `json:"path"`
	Size *int64  `json:"size"`
	ETag *string `json:"etag"`
}

// Parse decodes a manifest document. A document without "files" is an empty
// manifest. Any entry missing path, size or etag, or whose path escapes the
// download root, makes the whole document malformed.
func Parse(data []byte) (*Manifest, error) {
	var wire wireManifest
	if err := jsonUnmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrManifestMalformed, err)
	}

	m := &Manifest{Files: make([]FileEntry, 0, len(wire.Files))}
	for i, w := range wire.Files {
		entry, err := w.toEntry()
		if err != nil {
			return nil, fmt.Errorf("%w: files[%d]: %w", ErrManifestMalformed, i, err)
		}
		m.Files = append(m.Files, entry)
	}

	return m, nil
}

func (w *wireEntry) toEntry() (FileEntry, error) {
	switch {
	case w == nil:
		return FileEntry{}, errors.New("entry is null")
	case w.Path == nil:
		return FileEntry{}, errors.New("path missing")
	case w.Size == nil:
		return FileEntry{}, errors.New("size missing")
	case w.ETag == nil:
		return FileEntry{}, errors.New("etag missing")
	case *w.Size < 0:
		return FileEntry{}, fmt.Errorf("negative size %d", *w.Size)
	case *w.ETag == "":
		return FileEntry{}, errors.New("etag empty")
	}

	if strings.HasPrefix(strings.ReplaceAll(*w.Path, "\\", "/"), "/") {
		return FileEntry{}, fmt.Errorf("path %q is absolute", *w.Path)
	}
	if !utils.IsLocalPath(utils.NormPath(*w.Path)) {
		return FileEntry{}, fmt.Errorf("path %q is not relative to the download root", *w.Path)
	}

	return FileEntry{Path: *w.Path, Size: *w.Size, ETag: *w.ETag}, nil
}

// BodyFetcher GETs a URL and returns its body.
type BodyFetcher interface {
	FetchBody(ctx context.Context, url string) ([]byte, error)
}

// Fetch mints a long lived presigned URL for key, downloads and parses it.
func Fetch(ctx context.Context, presigner blob.Presigner, fetcher BodyFetcher, key string) (*Manifest, error) {
	if key == "" {
		key = DefaultKey
	}

	url, err := presigner.PresignGet(ctx, key, blob.ManifestExpiry)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrManifestUnreachable, err)
	}

	slog.Info("fetching manifest", "key", key)
	data, err := fetcher.FetchBody(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrManifestUnreachable, err)
	}

	m, err := Parse(data)
	if err != nil {
		return nil, err
	}

	slog.Info("manifest loaded", "files", m.Len(), "size", humanize.Bytes(uint64(m.TotalSize())))
	return m, nil
}
