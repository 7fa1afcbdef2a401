package remote

import (
	"context"
	"fmt"
	"sort"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/kanna-karuppasamy/smart-grid-meter-hierarchy/internal/models"
)

// FSService serves reading files from a mounted or mirrored directory tree.
type FSService struct {
	fs billy.Filesystem
}

// NewFSService wraps fs; osfs.New(root) in production, memfs.New() in tests.
func NewFSService(fs billy.Filesystem) *FSService {
	return &FSService{fs: fs}
}

// List returns the regular files of <source>/<site>, sorted by name
func (s *FSService) List(ctx context.Context, source models.SourceType, site string) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir := Dir(source, site)
	infos, err := s.fs.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}

	entries := make([]Entry, 0, len(infos))
	for _, fi := range infos {
		if fi.IsDir() {
			continue
		}
		entries = append(entries, Entry{Name: fi.Name(), Size: fi.Size(), ModTime: fi.ModTime()})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

func (s *FSService) Get(ctx context.Context, source models.SourceType, site, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := s.fs.Join(Dir(source, site), name)
	data, err := util.ReadFile(s.fs, p)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", p, err)
	}
	return data, nil
}
