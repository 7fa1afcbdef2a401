package store

import (
	"context"
	"sync"

	"github.com/kanna-karuppasamy/smart-grid-meter-hierarchy/internal/models"
)

// Memory is an in-process Store partitioned by site.
type Memory struct {
	mu    sync.RWMutex
	sites map[string][]models.Reading
}

func NewMemory() *Memory {
	return &Memory{sites: make(map[string][]models.Reading)}
}

func (m *Memory) Append(ctx context.Context, site string, readings []models.Reading) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range readings {
		r.Site = site
		m.sites[site] = append(m.sites[site], r)
	}
	return nil
}

func (m *Memory) LatestPerMeter(ctx context.Context, site string) (map[string]models.Reading, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	return Latest(m.sites[site]), nil
}

// Len returns the number of readings appended for site.
func (m *Memory) Len(site string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sites[site])
}
