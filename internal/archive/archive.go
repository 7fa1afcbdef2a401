// Package archive keeps a local copy of every successfully parsed reading
// file for audit and replay, laid out as <source type>/<site>/<file>.
package archive

import (
	"fmt"
	"path"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/kanna-karuppasamy/smart-grid-meter-hierarchy/internal/models"
)

// Archive writes reading files into a billy filesystem
type Archive struct {
	fs billy.Filesystem
}

// New returns an Archive rooted at fs (osfs.New(dir) in production).
func New(fs billy.Filesystem) *Archive {
	return &Archive{fs: fs}
}

// Store saves content and returns its path relative to the archive root.
// An existing copy is overwritten; remote files are immutable, so a second
// copy carries the same bytes.
func (a *Archive) Store(source models.SourceType, site, name string, content []byte) (string, error) {
	if source == "" || site == "" || name == "" {
		return "", fmt.Errorf("archive: source, site and file name are required")
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", fmt.Errorf("archive: invalid file name %q", name)
	}

	dir := path.Join(string(source), site)
	if err := a.fs.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create archive directory %s: %w", dir, err)
	}
	p := a.fs.Join(dir, name)
	if err := util.WriteFile(a.fs, p, content, 0o644); err != nil {
		return "", fmt.Errorf("write archive copy %s: %w", p, err)
	}
	return p, nil
}

// Load reads back an archived file
func (a *Archive) Load(source models.SourceType, site, name string) ([]byte, error) {
	p := a.fs.Join(string(source), site, name)
	data, err := util.ReadFile(a.fs, p)
	if err != nil {
		return nil, fmt.Errorf("read archive copy %s: %w", p, err)
	}
	return data, nil
}
