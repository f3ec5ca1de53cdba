package workspace

import (
	"bufio"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/openmined/modsync/internal/utils"
	gitignore "github.com/sabhiram/go-gitignore"
)

// IgnoreList holds the gitignore style rules from <root>/.modsyncignore. Files
// matching a rule are managed by the user and are never overwritten.
type IgnoreList struct {
	root   string
	rules  int
	ignore *gitignore.GitIgnore
}

func NewIgnoreList(root string) *IgnoreList {
	return &IgnoreList{root: root}
}

func (s *IgnoreList) Load() {
	ignorePath := filepath.Join(s.root, IgnoreFile)
	var lines []string

	if utils.FileExists(ignorePath) {
		file, err := os.Open(ignorePath)
		if err != nil {
			slog.Warn("failed to open ignore file", "path", ignorePath, "error", err)
		} else {
			defer file.Close()

			scanner := bufio.NewScanner(file)
			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())
				if line == "" || strings.HasPrefix(line, "#") {
					continue
				}
				lines = append(lines, line)
			}

			if err := scanner.Err(); err != nil {
				slog.Warn("error reading ignore file", "path", ignorePath, "error", err)
			} else {
				slog.Info("loaded ignore file", "path", ignorePath, "rules", len(lines))
			}
		}
	}

	s.rules = len(lines)
	s.ignore = gitignore.CompileIgnoreLines(lines...)
}

// Rules is the number of rules loaded.
func (s *IgnoreList) Rules() int {
	return s.rules
}

// ShouldIgnore matches a forward slash path relative to the root.
func (s *IgnoreList) ShouldIgnore(relPath string) bool {
	if IsInternal(relPath) {
		return true
	}
	if s.ignore == nil || s.rules == 0 {
		return false
	}
	return s.ignore.MatchesPath(relPath)
}
