// Package cache stores finished verdicts keyed by request content.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/af-corp/aegis-moderation/internal/config"
	"github.com/af-corp/aegis-moderation/internal/filter/lexical"
	"github.com/af-corp/aegis-moderation/internal/types"
)

// Cache is a verdict store. A miss returns (nil, nil).
type Cache interface {
	Get(ctx context.Context, key string) (*types.ModerationVerdict, error)
	Set(ctx context.Context, key string, v *types.ModerationVerdict) error
}

// Key returns the cache key for req. The lexical rule version is mixed in so
// a rule change never serves verdicts computed under the old rules.
func Key(req *types.ModerationRequest) string {
	canonical := struct {
		Rules     string   `json:"r"`
		Text      string   `json:"t"`
		ImageKeys []string `json:"k"`
		ImageURLs []string `json:"u"`
	}{lexical.RulesVersion, req.Text, req.ImageKeys, req.ImageURLs}
	b, _ := json.Marshal(canonical)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// New builds the cache selected by cfg.Backend. rdb may be nil unless the
// backend is redis. The "none" backend returns a nil Cache.
func New(cfg config.CacheConfig, rdb redis.UniversalClient) (Cache, error) {
	switch cfg.Backend {
	case "", "none":
		return nil, nil
	case "memory":
		return NewMemory(cfg.Size, cfg.TTL), nil
	case "redis":
		if rdb == nil {
			return nil, fmt.Errorf("cache backend redis requires a redis client")
		}
		return NewRedis(rdb, cfg.TTL), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}

func encode(v *types.ModerationVerdict) ([]byte, error) {
	return json.Marshal(v)
}

func decode(b []byte) (*types.ModerationVerdict, error) {
	var v types.ModerationVerdict
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, fmt.Errorf("decode cached verdict: %w", err)
	}
	if v.Images.Images == nil {
		v.Images.Images = []types.ImageResult{}
	}
	return &v, nil
}
