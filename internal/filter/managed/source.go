// Package managed detects moderation labels on stored images with a managed
// label-detection service.
package managed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	rektypes "github.com/aws/aws-sdk-go-v2/service/rekognition/types"
	"golang.org/x/sync/errgroup"

	"github.com/af-corp/aegis-moderation/internal/config"
	"github.com/af-corp/aegis-moderation/internal/filter"
	"github.com/af-corp/aegis-moderation/internal/filter/taxonomy"
	"github.com/af-corp/aegis-moderation/internal/types"
)

const (
	DefaultMinConfidence = 70
	DefaultMaxKeys       = 6
	DefaultConcurrency   = 3
)

// DetectModerationLabelsAPI is the subset of the Rekognition client used here.
type DetectModerationLabelsAPI interface {
	DetectModerationLabels(ctx context.Context, params *rekognition.DetectModerationLabelsInput, optFns ...func(*rekognition.Options)) (*rekognition.DetectModerationLabelsOutput, error)
}

type Options struct {
	MinConfidence float64
	MaxKeys       int
	Concurrency   int
	Timeout       time.Duration
	Thresholds    filter.Thresholds
	Logger        *slog.Logger
}

// Source classifies object-storage keys. At most MaxKeys keys per request
// are inspected; the rest are ignored.
type Source struct {
	api    DetectModerationLabelsAPI
	bucket string
	opts   Options
}

func New(api DetectModerationLabelsAPI, bucket string, opts Options) *Source {
	if opts.MinConfidence <= 0 {
		opts.MinConfidence = DefaultMinConfidence
	}
	if opts.MaxKeys <= 0 {
		opts.MaxKeys = DefaultMaxKeys
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Thresholds == (filter.Thresholds{}) {
		opts.Thresholds = filter.DefaultThresholds()
	}
	return &Source{api: api, bucket: bucket, opts: opts}
}

// NewFromConfig builds a Rekognition-backed source. It returns (nil, nil)
// when the source is disabled or its region or bucket is missing.
func NewFromConfig(ctx context.Context, cfg config.ManagedVisionConfig, opts Options) (*Source, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if cfg.Region == "" || cfg.Bucket == "" {
		opts.Logger.Warn("managed vision enabled without region or bucket, skipping")
		return nil, nil
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	opts.MinConfidence = cfg.MinConfidence
	opts.MaxKeys = cfg.MaxKeys
	opts.Concurrency = cfg.Concurrency
	return New(rekognition.NewFromConfig(awsCfg), cfg.Bucket, opts), nil
}

func (s *Source) Name() string { return string(types.SourceManagedVision) }

// Calls returns the number of label detections n keys cost.
func (s *Source) Calls(n int) int { return min(n, s.opts.MaxKeys) }

// Classify returns one result per key that was inspected successfully, in
// key order. Per-key failures are logged and dropped. Timeout bounds the
// whole pass, not each key.
func (s *Source) Classify(ctx context.Context, keys []string) []types.ImageResult {
	if len(keys) > s.opts.MaxKeys {
		keys = keys[:s.opts.MaxKeys]
	}
	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	results := make([]*types.ImageResult, len(keys))
	var g errgroup.Group
	g.SetLimit(s.opts.Concurrency)
	for i, key := range keys {
		g.Go(func() error {
			res, err := s.classifyKey(ctx, key)
			if err != nil {
				s.opts.Logger.Warn("managed label detection failed", "key", key, "error", err)
				return nil
			}
			results[i] = res
			return nil
		})
	}
	g.Wait()

	out := make([]types.ImageResult, 0, len(keys))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out
}

func (s *Source) classifyKey(ctx context.Context, key string) (*types.ImageResult, error) {
	out, err := s.api.DetectModerationLabels(ctx, &rekognition.DetectModerationLabelsInput{
		Image: &rektypes.Image{
			S3Object: &rektypes.S3Object{
				Bucket: aws.String(s.bucket),
				Name:   aws.String(key),
			},
		},
		MinConfidence: aws.Float32(float32(s.opts.MinConfidence)),
	})
	if err != nil {
		return nil, err
	}

	cats := types.NewCategorySet()
	var score float64
	var raw []string
	for _, l := range out.ModerationLabels {
		name := aws.ToString(l.Name)
		confidence := float64(aws.ToFloat32(l.Confidence))
		raw = append(raw, name)
		for _, label := range []string{name, aws.ToString(l.ParentName)} {
			if label == "" {
				continue
			}
			if cat, sc, ok := taxonomy.ManagedLabel(label, confidence); ok {
				cats.Add(cat)
				score = max(score, sc)
			}
		}
	}

	return &types.ImageResult{
		Key: key,
		SignalResult: types.SignalResult{
			Score:      score,
			Categories: cats.Normalized(),
			Decision:   s.opts.Thresholds.Decide(score),
			Source:     types.SourceManagedVision,
		},
		RawLabels: raw,
	}, nil
}
