package reconcile

import (
	"github.com/openmined/modsync/internal/manifest"
)

type Decision string

const (
	DecisionSkip     Decision = "SKIP"
	DecisionDownload Decision = "DOWNLOAD"
	DecisionIgnored  Decision = "IGNORED"
)

type Reason string

const (
	ReasonMissing          Reason = "missing"
	ReasonNotRegular       Reason = "not a regular file"
	ReasonSizeMismatch     Reason = "size mismatch"
	ReasonChecksumMismatch Reason = "checksum mismatch"
	ReasonCompositeETag    Reason = "composite etag"
	ReasonUpToDate         Reason = "up to date"
	ReasonIgnored          Reason = "ignored"
)

// LocalFileState is what was found on disk for an entry. Checksum is only set
// when the size matched and the digest was actually computed.
type LocalFileState struct {
	Exists   bool
	Size     int64
	Checksum string
}

// Plan is the decision taken for a single manifest entry.
type Plan struct {
	Entry     manifest.FileEntry
	RelPath   string // forward slash path relative to the root
	LocalPath string
	ObjectKey string
	Decision  Decision
	Reason    Reason
	Local     LocalFileState
}

// Failure is an entry that could not be brought up to date.
type Failure struct {
	Path string
	Err  error
}

// Summary counts what a run did. Filtered entries did not match --only and are
// not part of Total.
type Summary struct {
	Total      int
	Skipped    int
	Downloaded int
	Ignored    int
	Filtered   int
	Bytes      int64
	Failures   []Failure
	DryRun     bool
	Plans      []*Plan
}

// Pending is the number of entries that were, or in a dry run would be, downloaded.
func (s *Summary) Pending() int {
	n := 0
	for _, p := range s.Plans {
		if p.Decision == DecisionDownload {
			n++
		}
	}
	return n
}
