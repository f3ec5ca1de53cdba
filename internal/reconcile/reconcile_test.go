package reconcile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/openmined/modsync/internal/blob"
	"github.com/openmined/modsync/internal/checksum"
	"github.com/openmined/modsync/internal/manifest"
	"github.com/openmined/modsync/internal/workspace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const helloMD5 = "5d41402abc4b2a76b9719d911017c592"

// fakeStore serves object contents by key and records every presign and download.
type fakeStore struct {
	objects   map[string]string
	presigned []string
	ttls      []time.Duration
	downloads []string
	fail      map[string]error
}

func newFakeStore(objects map[string]string) *fakeStore {
	return &fakeStore{objects: objects, fail: map[string]error{}}
}

func (f *fakeStore) PresignGet(_ context.Context, key string, ttl time.Duration) (string, error) {
	f.presigned = append(f.presigned, key)
	f.ttls = append(f.ttls, ttl)
	return "store://" + key, nil
}

func (f *fakeStore) StreamToFile(_ context.Context, url, dest string) (int64, error) {
	f.downloads = append(f.downloads, dest)
	key := url[len("store://"):]
	if err := f.fail[key]; err != nil {
		return 0, err
	}
	body, ok := f.objects[key]
	if !ok {
		return 0, errors.New("not found")
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, err
	}
	return int64(len(body)), os.WriteFile(dest, []byte(body), 0o644)
}

// countingHasher wraps md5 and counts how often a file was digested.
type countingHasher struct {
	inner *checksum.Hasher
	calls int
}

func (h *countingHasher) File(path string) (string, error) {
	h.calls++
	return h.inner.File(path)
}

type fixture struct {
	root   string
	store  *fakeStore
	hasher *countingHasher
	rec    *Reconciler
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	ws, err := workspace.New(t.TempDir())
	require.NoError(t, err)

	md5, err := checksum.New(checksum.MD5)
	require.NoError(t, err)

	f := &fixture{
		root:   ws.Root,
		store:  newFakeStore(map[string]string{"files/a/b.txt": "hello"}),
		hasher: &countingHasher{inner: md5},
	}
	f.rec, err = New(ws, f.store, f.store, f.hasher, opts)
	require.NoError(t, err)
	return f
}

func (f *fixture) write(t *testing.T, rel, content string) {
	t.Helper()
	path := filepath.Join(f.root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func helloManifest() *manifest.Manifest {
	return &manifest.Manifest{Files: []manifest.FileEntry{{Path: "a/b.txt", Size: 5, ETag: helloMD5}}}
}

func TestRun_EmptyManifest(t *testing.T) {
	f := newFixture(t, Options{})

	summary, err := f.rec.Run(context.Background(), &manifest.Manifest{})
	require.NoError(t, err)
	assert.Zero(t, summary.Total)
	assert.Zero(t, summary.Downloaded)
	assert.Empty(t, f.store.presigned)
}

func TestRun_DownloadsMissing(t *testing.T) {
	f := newFixture(t, Options{})

	summary, err := f.rec.Run(context.Background(), helloManifest())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Downloaded)
	assert.Equal(t, int64(5), summary.Bytes)

	assert.Equal(t, []string{"files/a/b.txt"}, f.store.presigned)
	assert.Equal(t, []time.Duration{blob.ObjectExpiry}, f.store.ttls)

	data, err := os.ReadFile(filepath.Join(f.root, "a", "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	assert.Zero(t, f.hasher.calls, "missing files are never hashed")
}

func TestRun_SkipsUpToDate(t *testing.T) {
	f := newFixture(t, Options{})
	f.write(t, "a/b.txt", "hello")

	summary, err := f.rec.Run(context.Background(), helloManifest())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Skipped)
	assert.Zero(t, summary.Downloaded)
	assert.Empty(t, f.store.presigned, "no network for entries already present")
	assert.Equal(t, 1, f.hasher.calls)
}

func TestRun_RoundTrip(t *testing.T) {
	f := newFixture(t, Options{})

	first, err := f.rec.Run(context.Background(), helloManifest())
	require.NoError(t, err)
	assert.Equal(t, 1, first.Downloaded)

	second, err := f.rec.Run(context.Background(), helloManifest())
	require.NoError(t, err)
	assert.Equal(t, 1, second.Skipped)
	assert.Zero(t, second.Downloaded)
	assert.Len(t, f.store.downloads, 1)
}

func TestDecide(t *testing.T) {
	cases := []struct {
		name     string
		local    *string
		entry    manifest.FileEntry
		decision Decision
		reason   Reason
		hashed   int
	}{
		{
			name:     "missing downloads regardless of fields",
			entry:    manifest.FileEntry{Path: "a/b.txt", Size: 0, ETag: "garbage"},
			decision: DecisionDownload,
			reason:   ReasonMissing,
		},
		{
			name:     "size mismatch skips hashing",
			local:    ptr("hello world"),
			entry:    manifest.FileEntry{Path: "a/b.txt", Size: 5, ETag: helloMD5},
			decision: DecisionDownload,
			reason:   ReasonSizeMismatch,
		},
		{
			name:     "checksum mismatch",
			local:    ptr("jello"),
			entry:    manifest.FileEntry{Path: "a/b.txt", Size: 5, ETag: helloMD5},
			decision: DecisionDownload,
			reason:   ReasonChecksumMismatch,
			hashed:   1,
		},
		{
			name:     "checksum compared case-insensitively",
			local:    ptr("hello"),
			entry:    manifest.FileEntry{Path: "a/b.txt", Size: 5, ETag: "5D41402ABC4B2A76B9719D911017C592"},
			decision: DecisionSkip,
			reason:   ReasonUpToDate,
			hashed:   1,
		},
		{
			name:     "backslash manifest path resolves the same file",
			local:    ptr("hello"),
			entry:    manifest.FileEntry{Path: `a\b.txt`, Size: 5, ETag: helloMD5},
			decision: DecisionSkip,
			reason:   ReasonUpToDate,
			hashed:   1,
		},
		{
			name:     "composite etag cannot be verified",
			local:    ptr("hello"),
			entry:    manifest.FileEntry{Path: "a/b.txt", Size: 5, ETag: helloMD5 + "-2"},
			decision: DecisionDownload,
			reason:   ReasonCompositeETag,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, Options{})
			if tc.local != nil {
				f.write(t, "a/b.txt", *tc.local)
			}

			plan, err := f.rec.Decide(tc.entry)
			require.NoError(t, err)
			assert.Equal(t, tc.decision, plan.Decision)
			assert.Equal(t, tc.reason, plan.Reason)
			assert.Equal(t, tc.hashed, f.hasher.calls)
			assert.Equal(t, "a/b.txt", plan.RelPath)
			assert.Equal(t, filepath.Join(f.root, "a", "b.txt"), plan.LocalPath)
			assert.Equal(t, tc.local != nil, plan.Local.Exists)
		})
	}
}

func TestDecide_DirectoryInTheWay(t *testing.T) {
	f := newFixture(t, Options{})
	require.NoError(t, os.MkdirAll(filepath.Join(f.root, "a", "b.txt"), 0o755))

	plan, err := f.rec.Decide(manifest.FileEntry{Path: "a/b.txt", Size: 5, ETag: helloMD5})
	require.NoError(t, err)
	assert.Equal(t, DecisionDownload, plan.Decision)
	assert.Equal(t, ReasonNotRegular, plan.Reason)
}

func TestObjectKey(t *testing.T) {
	assert.Equal(t, "files/a/b.txt", ObjectKey("files/", "a/b.txt"))
	assert.Equal(t, "files/a/b.txt", ObjectKey("files/", `a\b.txt`))
	assert.Equal(t, ObjectKey("files/", `mods\sub\x.jar`), ObjectKey("files/", "mods/sub/x.jar"))
	assert.Equal(t, "files/a.txt", ObjectKey("files/", "/a.txt"))
	assert.Equal(t, "release/a.txt", ObjectKey("release/", "a.txt"))
}

func TestRun_AbortsOnFirstFailure(t *testing.T) {
	f := newFixture(t, Options{})
	f.store.objects["files/c.txt"] = "ccc"
	f.store.fail["files/a/b.txt"] = errors.New("http 403")

	m := &manifest.Manifest{Files: []manifest.FileEntry{
		{Path: "a/b.txt", Size: 5, ETag: helloMD5},
		{Path: "c.txt", Size: 3, ETag: "9df62e693988eb4e1e1444ece0578579"},
	}}

	summary, err := f.rec.Run(context.Background(), m)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDownloadFailed)
	assert.Contains(t, err.Error(), "a/b.txt")
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, []string{"files/a/b.txt"}, f.store.presigned, "second entry never attempted")
	assert.NoFileExists(t, filepath.Join(f.root, "c.txt"))
}

func TestRun_ContinueOnError(t *testing.T) {
	f := newFixture(t, Options{ContinueOnError: true})
	f.store.objects["files/c.txt"] = "ccc"
	f.store.fail["files/a/b.txt"] = errors.New("http 403")

	m := &manifest.Manifest{Files: []manifest.FileEntry{
		{Path: "a/b.txt", Size: 5, ETag: helloMD5},
		{Path: "c.txt", Size: 3, ETag: "9df62e693988eb4e1e1444ece0578579"},
	}}

	summary, err := f.rec.Run(context.Background(), m)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDownloadFailed)
	assert.Contains(t, err.Error(), "1 of 2 files")
	assert.Equal(t, 1, summary.Downloaded)
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, "a/b.txt", summary.Failures[0].Path)
	assert.FileExists(t, filepath.Join(f.root, "c.txt"))
}

func TestRun_DryRun(t *testing.T) {
	f := newFixture(t, Options{DryRun: true})

	summary, err := f.rec.Run(context.Background(), helloManifest())
	require.NoError(t, err)
	assert.True(t, summary.DryRun)
	assert.Equal(t, 1, summary.Pending())
	assert.Zero(t, summary.Downloaded)
	assert.Empty(t, f.store.presigned)
	assert.NoFileExists(t, filepath.Join(f.root, "a", "b.txt"))
}

func TestRun_Ignored(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, workspace.IgnoreFile), []byte("a/b.txt\n"), 0o644))
	ignore := workspace.NewIgnoreList(root)
	ignore.Load()

	ws, err := workspace.New(root)
	require.NoError(t, err)
	md5, err := checksum.New("")
	require.NoError(t, err)
	store := newFakeStore(map[string]string{"files/a/b.txt": "hello"})

	rec, err := New(ws, store, store, md5, Options{Ignore: ignore})
	require.NoError(t, err)

	// absent: installed once
	summary, err := rec.Run(context.Background(), helloManifest())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Downloaded)

	// present but edited by the user: left alone
	require.NoError(t, os.WriteFile(filepath.Join(root, "a", "b.txt"), []byte("my settings"), 0o644))
	summary, err = rec.Run(context.Background(), helloManifest())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Ignored)
	assert.Zero(t, summary.Downloaded)

	data, err := os.ReadFile(filepath.Join(root, "a", "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "my settings", string(data))
}

func TestRun_Only(t *testing.T) {
	f := newFixture(t, Options{Only: []string{"a/**"}})

	m := &manifest.Manifest{Files: []manifest.FileEntry{
		{Path: "a/b.txt", Size: 5, ETag: helloMD5},
		{Path: "shaders/x.zip", Size: 3, ETag: "9df62e693988eb4e1e1444ece0578579"},
	}}

	summary, err := f.rec.Run(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Total)
	assert.Equal(t, 1, summary.Filtered)
	assert.Equal(t, []string{"files/a/b.txt"}, f.store.presigned)
}

func TestNew_InvalidPattern(t *testing.T) {
	ws, err := workspace.New(t.TempDir())
	require.NoError(t, err)

	_, err = New(ws, nil, nil, nil, Options{Only: []string{"a/[b"}})
	assert.Error(t, err)
}

func TestRun_CanceledContext(t *testing.T) {
	f := newFixture(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.rec.Run(ctx, helloManifest())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, f.store.presigned)
}

func ptr(s string) *string { return &s }
