// Package reconcile compares manifest entries against the local download root
// and downloads every file that is missing or differs.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/dustin/go-humanize"
	"github.com/openmined/modsync/internal/blob"
	"github.com/openmined/modsync/internal/checksum"
	"github.com/openmined/modsync/internal/manifest"
	"github.com/openmined/modsync/internal/workspace"
)

// DefaultFilesPrefix is prepended to every entry path to form its object key.
const DefaultFilesPrefix = "files/"

var ErrDownloadFailed = errors.New("download failed")

// Downloader streams a URL to a local file.
type Downloader interface {
	StreamToFile(ctx context.Context, url, destPath string) (int64, error)
}

// FileHasher computes the digest the manifest etags were produced with.
type FileHasher interface {
	File(path string) (string, error)
}

// Ignorer reports paths the user manages locally.
type Ignorer interface {
	ShouldIgnore(relPath string) bool
}

type Options struct {
	FilesPrefix string
	// ContinueOnError attempts every entry and reports all failures at the end
	// instead of stopping at the first one.
	ContinueOnError bool
	// DryRun decides every entry without presigning or downloading anything.
	DryRun bool
	// Only restricts the run to entries matching any of these doublestar patterns.
	Only   []string
	Ignore Ignorer
}

type Reconciler struct {
	ws         *workspace.Workspace
	presigner  blob.Presigner
	downloader Downloader
	hasher     FileHasher
	opts       Options
}

func New(ws *workspace.Workspace, presigner blob.Presigner, downloader Downloader, hasher FileHasher, opts Options) (*Reconciler, error) {
	if opts.FilesPrefix == "" {
		opts.FilesPrefix = DefaultFilesPrefix
	}
	for _, pattern := range opts.Only {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("reconcile: invalid pattern %q", pattern)
		}
	}

	return &Reconciler{
		ws:         ws,
		presigner:  presigner,
		downloader: downloader,
		hasher:     hasher,
		opts:       opts,
	}, nil
}

// ObjectKey derives the remote key of an entry. Backslashes are turned into
// forward slashes so the key is the same whatever OS wrote the manifest.
func ObjectKey(prefix, path string) string {
	return prefix + strings.TrimLeft(strings.ReplaceAll(path, "\\", "/"), "/")
}

// Run walks the manifest in order. By default the first failure aborts the run;
// the returned summary then covers the entries processed so far.
func (r *Reconciler) Run(ctx context.Context, m *manifest.Manifest) (*Summary, error) {
	summary := &Summary{DryRun: r.opts.DryRun}

	if m.IsEmpty() {
		slog.Info("manifest has no files, nothing to do")
		return summary, nil
	}

	slog.Info("checking files", "count", m.Len(), "root", r.ws.Root, "dryRun", r.opts.DryRun)

	var failures []error
	for _, entry := range m.Files {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		if !r.matchesOnly(entry.RelPath()) {
			summary.Filtered++
			continue
		}
		summary.Total++

		plan, err := r.Decide(entry)
		if err == nil {
			summary.Plans = append(summary.Plans, plan)
			err = r.apply(ctx, plan, summary)
		}
		if err == nil {
			continue
		}

		summary.Failures = append(summary.Failures, Failure{Path: entry.RelPath(), Err: err})
		if !r.opts.ContinueOnError {
			return summary, err
		}
		slog.Error("file failed, continuing", "path", entry.RelPath(), "error", err)
		failures = append(failures, err)
	}

	r.logSummary(summary)

	if len(failures) > 0 {
		return summary, fmt.Errorf("%w: %d of %d files: %w", ErrDownloadFailed, len(failures), summary.Total, errors.Join(failures...))
	}
	return summary, nil
}

// Decide inspects the local copy of entry without touching the network.
func (r *Reconciler) Decide(entry manifest.FileEntry) (*Plan, error) {
	relPath := entry.RelPath()
	plan := &Plan{
		Entry:     entry,
		RelPath:   relPath,
		LocalPath: r.ws.LocalPath(relPath),
		ObjectKey: ObjectKey(r.opts.FilesPrefix, entry.Path),
	}

	info, err := os.Stat(plan.LocalPath)
	if errors.Is(err, fs.ErrNotExist) {
		return plan.decide(DecisionDownload, ReasonMissing), nil
	} else if err != nil {
		return nil, fmt.Errorf("%w: %s: stat local file: %w", ErrDownloadFailed, relPath, err)
	}

	plan.Local = LocalFileState{Exists: true, Size: info.Size()}

	// ignored paths are still installed when absent, they are just never overwritten
	if r.opts.Ignore != nil && r.opts.Ignore.ShouldIgnore(relPath) {
		return plan.decide(DecisionIgnored, ReasonIgnored), nil
	}

	if !info.Mode().IsRegular() {
		return plan.decide(DecisionDownload, ReasonNotRegular), nil
	}

	// size first, hashing the file is only worth it when the sizes agree
	if info.Size() != entry.Size {
		return plan.decide(DecisionDownload, ReasonSizeMismatch), nil
	}

	if checksum.IsComposite(entry.ETag) {
		slog.Warn("multipart etag cannot be verified locally", "path", relPath, "etag", entry.ETag)
		return plan.decide(DecisionDownload, ReasonCompositeETag), nil
	}

	sum, err := r.hasher.File(plan.LocalPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDownloadFailed, relPath, err)
	}
	plan.Local.Checksum = sum

	if !checksum.Equal(sum, entry.ETag) {
		return plan.decide(DecisionDownload, ReasonChecksumMismatch), nil
	}
	return plan.decide(DecisionSkip, ReasonUpToDate), nil
}

func (p *Plan) decide(d Decision, reason Reason) *Plan {
	p.Decision = d
	p.Reason = reason
	return p
}

func (r *Reconciler) apply(ctx context.Context, plan *Plan, summary *Summary) error {
	switch plan.Decision {
	case DecisionSkip:
		summary.Skipped++
		slog.Info("already present", "path", plan.RelPath)
		return nil
	case DecisionIgnored:
		summary.Ignored++
		slog.Info("ignored, managed locally", "path", plan.RelPath)
		return nil
	}

	if r.opts.DryRun {
		slog.Info("would download", "path", plan.RelPath, "reason", plan.Reason, "size", humanize.Bytes(uint64(plan.Entry.Size)))
		return nil
	}

	slog.Info("download", "path", plan.RelPath, "dest", plan.LocalPath, "reason", plan.Reason, "size", humanize.Bytes(uint64(plan.Entry.Size)))

	url, err := r.presigner.PresignGet(ctx, plan.ObjectKey, blob.ObjectExpiry)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrDownloadFailed, plan.RelPath, err)
	}

	n, err := r.downloader.StreamToFile(ctx, url, plan.LocalPath)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrDownloadFailed, plan.RelPath, err)
	}

	summary.Downloaded++
	summary.Bytes += n
	return nil
}

func (r *Reconciler) matchesOnly(relPath string) bool {
	if len(r.opts.Only) == 0 {
		return true
	}
	for _, pattern := range r.opts.Only {
		if ok, _ := doublestar.Match(pattern, relPath); ok {
			return true
		}
	}
	return false
}

func (r *Reconciler) logSummary(s *Summary) {
	attrs := []any{
		"total", s.Total,
		"skipped", s.Skipped,
		"ignored", s.Ignored,
	}
	if s.Filtered > 0 {
		attrs = append(attrs, "filtered", s.Filtered)
	}

	if s.DryRun {
		attrs = append(attrs, "pending", s.Pending())
		slog.Info("plan complete", attrs...)
		return
	}

	attrs = append(attrs, "downloaded", s.Downloaded, "size", humanize.Bytes(uint64(s.Bytes)))
	if len(s.Failures) > 0 {
		attrs = append(attrs, "failed", len(s.Failures))
		slog.Warn("update finished with failures", attrs...)
		return
	}
	slog.Info("update complete", attrs...)
}
