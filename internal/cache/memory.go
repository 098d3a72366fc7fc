package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/af-corp/aegis-moderation/internal/types"
)

// Memory is an in-process LRU with per-entry expiry. Entries are stored
// encoded so callers never share a verdict value.
type Memory struct {
	data *expirable.LRU[string, []byte]
}

var _ Cache = (*Memory)(nil)

func NewMemory(size int, ttl time.Duration) *Memory {
	if size <= 0 {
		size = 10_000
	}
	return &Memory{data: expirable.NewLRU[string, []byte](size, nil, ttl)}
}

func (m *Memory) Get(_ context.Context, key string) (*types.ModerationVerdict, error) {
	b, ok := m.data.Get(key)
	if !ok {
		return nil, nil
	}
	return decode(b)
}

func (m *Memory) Set(_ context.Context, key string, v *types.ModerationVerdict) error {
	b, err := encode(v)
	if err != nil {
		return err
	}
	m.data.Add(key, b)
	return nil
}

func (m *Memory) Len() int { return m.data.Len() }
