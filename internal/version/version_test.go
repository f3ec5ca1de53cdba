package version

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func restore(t *testing.T) {
	origVersion, origRevision, origBuildDate := Version, Revision, BuildDate
	t.Cleanup(func() {
		Version, Revision, BuildDate = origVersion, origRevision, origBuildDate
	})
}

func TestVersionStrings(t *testing.T) {
	assert.NotEmpty(t, Version)
	assert.NotEmpty(t, Revision)

	assert.Contains(t, Short(), Version)
	assert.Contains(t, Short(), Revision)

	detailed := Detailed()
	assert.Contains(t, detailed, Version)
	assert.Contains(t, detailed, "/") // GOOS/GOARCH part
	assert.True(t, strings.HasPrefix(DetailedWithApp(), "modsync "))
}

func TestApplyBuildInfo_PopulatesDefaults(t *testing.T) {
	restore(t)
	Version, Revision, BuildDate = devVersion, "HEAD", ""

	applyBuildInfo("v9.9.9", map[string]string{
		"vcs.revision": "abcdef1234567890",
		"vcs.modified": "true",
		"vcs.time":     "2025-12-12T01:00:00Z",
	})

	assert.Equal(t, "9.9.9", Version)
	assert.Equal(t, "abcdef123456-dirty", Revision)
	assert.Equal(t, "2025-12-12T01:00:00Z", BuildDate)
}

func TestApplyBuildInfo_DevelKeepsDevVersion(t *testing.T) {
	restore(t)
	Version, Revision, BuildDate = devVersion, "HEAD", ""

	applyBuildInfo("(devel)", map[string]string{})

	assert.Equal(t, devVersion, Version)
	assert.Equal(t, "HEAD", Revision)
	assert.Contains(t, Detailed(), "unknown")
}

func TestApplyBuildInfo_DoesNotOverrideLdflags(t *testing.T) {
	restore(t)
	Version, Revision, BuildDate = "1.2.3", "deadbeef", "from-ldflags"

	applyBuildInfo("v9.9.9", map[string]string{
		"vcs.revision": "abcdef",
		"vcs.time":     "2025-12-12T01:00:00Z",
	})

	assert.Equal(t, "1.2.3", Version)
	assert.Equal(t, "deadbeef", Revision)
	assert.Equal(t, "from-ldflags", BuildDate)
}
