package changes

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strings"

	"github.com/sourcegraph/go-diff/diff"
)

// ErrNoRange — не задан диапазон сравнения (коммит или ветка).
var ErrNoRange = errors.New("changes: commit and branch are required")

// Source — источник списка изменённых файлов.
type Source interface {
	ChangedPaths(ctx context.Context) ([]string, error)
}

// GitSource получает изменения из `git diff <branch> <commit>`.
type GitSource struct {
	// Dir — рабочая копия репозитория.
	Dir string

	// Commit — проверяемый коммит (TRAVIS_COMMIT).
	Commit string

	// Branch — ветка, с которой сравнивается коммит (TRAVIS_BRANCH).
	Branch string

	// Git — путь к git. По умолчанию "git".
	Git string
}

// ChangedPaths возвращает отсортированный список изменённых путей.
func (s *GitSource) ChangedPaths(ctx context.Context) ([]string, error) {
	if s.Commit == "" || s.Branch == "" {
		return nil, ErrNoRange
	}

	git := s.Git
	if git == "" {
		git = "git"
	}

	cmd := exec.CommandContext(ctx, git, "diff", "--no-color", "--no-ext-diff", s.Branch, s.Commit)
	cmd.Dir = s.Dir

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("git diff %s %s: %w: %s", s.Branch, s.Commit, err, strings.TrimSpace(stderr.String()))
	}

	return ParsePaths(out)
}

// ParsePaths разбирает unified diff и возвращает затронутые пути
// (старые и новые имена, без префиксов a/ и b/).
func ParsePaths(unified []byte) ([]string, error) {
	if len(bytes.TrimSpace(unified)) == 0 {
		return nil, nil
	}

	fileDiffs, err := diff.NewMultiFileDiffReader(bytes.NewReader(unified)).ReadAllFiles()
	if err != nil {
		return nil, fmt.Errorf("parse diff: %w", err)
	}

	seen := make(map[string]bool)
	for _, fd := range fileDiffs {
		for _, name := range []string{fd.OrigName, fd.NewName} {
			if p := cleanName(name); p != "" {
				seen[p] = true
			}
		}
	}

	paths := make([]string, 0, len(seen))
	for p := range seen {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths, nil
}

func cleanName(name string) string {
	if name == "" || name == "/dev/null" {
		return ""
	}
	if strings.HasPrefix(name, "a/") || strings.HasPrefix(name, "b/") {
		return name[2:]
	}
	return name
}

// StaticSource — фиксированный список путей.
type StaticSource []string

// ChangedPaths возвращает список как есть.
func (s StaticSource) ChangedPaths(context.Context) ([]string, error) {
	return []string(s), nil
}
