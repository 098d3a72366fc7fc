package managed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	rektypes "github.com/aws/aws-sdk-go-v2/service/rekognition/types"

	"github.com/af-corp/aegis-moderation/internal/config"
	"github.com/af-corp/aegis-moderation/internal/filter"
	"github.com/af-corp/aegis-moderation/internal/types"
)

type label struct {
	name, parent string
	confidence   float32
}

type fakeRekognition struct {
	mu       sync.Mutex
	labels   map[string][]label
	fail     map[string]bool
	inputs   []*rekognition.DetectModerationLabelsInput
	inFlight atomic.Int32
	peak     atomic.Int32
	delay    time.Duration
	hang     bool
}

func (f *fakeRekognition) DetectModerationLabels(ctx context.Context, in *rekognition.DetectModerationLabelsInput, _ ...func(*rekognition.Options)) (*rekognition.DetectModerationLabelsOutput, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	f.mu.Lock()
	f.inputs = append(f.inputs, in)
	f.mu.Unlock()

	key := aws.ToString(in.Image.S3Object.Name)
	if f.fail[key] {
		return nil, errors.New("AccessDeniedException")
	}
	out := &rekognition.DetectModerationLabelsOutput{}
	for _, l := range f.labels[key] {
		ml := rektypes.ModerationLabel{Name: aws.String(l.name), Confidence: aws.Float32(l.confidence)}
		if l.parent != "" {
			ml.ParentName = aws.String(l.parent)
		}
		out.ModerationLabels = append(out.ModerationLabels, ml)
	}
	return out, nil
}

func newTestSource(api DetectModerationLabelsAPI) *Source {
	return New(api, "uploads", Options{
		Thresholds: filter.DefaultThresholds(),
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func TestClassify_LabelMapping(t *testing.T) {
	f := &fakeRekognition{labels: map[string][]label{
		"explicit.jpg":  {{name: "Explicit Nudity", confidence: 97}},
		"suggest.jpg":   {{name: "Revealing Clothes", parent: "Suggestive", confidence: 75}},
		"gore.jpg":      {{name: "Graphic Violence Or Gore", confidence: 91}, {name: "Weapons", confidence: 80}},
		"drugs.jpg":     {{name: "Drugs", confidence: 99}},
		"landscape.jpg": nil,
	}}
	s := newTestSource(f)

	res := s.Classify(context.Background(), []string{"explicit.jpg", "suggest.jpg", "gore.jpg", "drugs.jpg", "landscape.jpg"})
	if len(res) != 5 {
		t.Fatalf("expected 5 results, got %d", len(res))
	}

	tests := []struct {
		key      string
		score    float64
		cats     []types.Category
		decision types.Decision
	}{
		{"explicit.jpg", 0.9, []types.Category{types.CategorySexualExplicit}, types.DecisionReject},
		{"suggest.jpg", 0.7, []types.Category{types.CategorySexualExplicit}, types.DecisionFlag},
		{"gore.jpg", 0.9, []types.Category{types.CategoryViolenceHard, types.CategoryHate}, types.DecisionReject},
		{"drugs.jpg", 0.65, []types.Category{types.CategoryHate}, types.DecisionFlag},
		{"landscape.jpg", 0, []types.Category{types.CategorySafe}, types.DecisionApprove},
	}
	for i, tt := range tests {
		r := res[i]
		if r.Key != tt.key || r.URL != "" || r.Source != types.SourceManagedVision {
			t.Errorf("%s: unexpected identity %+v", tt.key, r)
		}
		if r.Score != tt.score {
			t.Errorf("%s: expected score %v, got %v", tt.key, tt.score, r.Score)
		}
		if fmt.Sprint(r.Categories.Sorted()) != fmt.Sprint(tt.cats) {
			t.Errorf("%s: expected categories %v, got %v", tt.key, tt.cats, r.Categories.Sorted())
		}
		if r.Decision != tt.decision {
			t.Errorf("%s: expected %s, got %s", tt.key, tt.decision, r.Decision)
		}
	}
}

func TestClassify_RequestShape(t *testing.T) {
	f := &fakeRekognition{}
	newTestSource(f).Classify(context.Background(), []string{"a.jpg"})

	if len(f.inputs) != 1 {
		t.Fatalf("expected 1 call, got %d", len(f.inputs))
	}
	in := f.inputs[0]
	if aws.ToString(in.Image.S3Object.Bucket) != "uploads" || aws.ToString(in.Image.S3Object.Name) != "a.jpg" {
		t.Errorf("unexpected image reference %+v", in.Image.S3Object)
	}
	if aws.ToFloat32(in.MinConfidence) != 70 {
		t.Errorf("expected min confidence 70, got %v", aws.ToFloat32(in.MinConfidence))
	}
}

func TestClassify_CapsKeys(t *testing.T) {
	f := &fakeRekognition{}
	keys := make([]string, 10)
	for i := range keys {
		keys[i] = fmt.Sprintf("k%d.jpg", i)
	}
	res := newTestSource(f).Classify(context.Background(), keys)
	if len(res) != DefaultMaxKeys || len(f.inputs) != DefaultMaxKeys {
		t.Errorf("expected %d inspected keys, got %d results / %d calls", DefaultMaxKeys, len(res), len(f.inputs))
	}
	for i, r := range res {
		if r.Key != keys[i] {
			t.Errorf("result %d: expected key %s, got %s", i, keys[i], r.Key)
		}
	}
}

func TestClassify_BoundedConcurrency(t *testing.T) {
	f := &fakeRekognition{delay: 20 * time.Millisecond}
	newTestSource(f).Classify(context.Background(), []string{"1", "2", "3", "4", "5", "6"})
	if p := f.peak.Load(); p > DefaultConcurrency {
		t.Errorf("expected at most %d concurrent calls, saw %d", DefaultConcurrency, p)
	}
}

func TestClassify_PerKeyFailureSwallowed(t *testing.T) {
	f := &fakeRekognition{
		fail:   map[string]bool{"broken.jpg": true},
		labels: map[string][]label{"ok.jpg": {{name: "Violence", confidence: 85}}},
	}
	res := newTestSource(f).Classify(context.Background(), []string{"broken.jpg", "ok.jpg"})
	if len(res) != 1 || res[0].Key != "ok.jpg" {
		t.Fatalf("expected only ok.jpg result, got %+v", res)
	}
	if res[0].Score != 0.7 || !res[0].Categories.Has(types.CategoryViolenceHard) {
		t.Errorf("unexpected result %+v", res[0])
	}
}

func TestNewFromConfig_MissingConfiguration(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.ManagedVisionConfig
	}{
		{"disabled", config.ManagedVisionConfig{Region: "us-east-1", Bucket: "b"}},
		{"no region", config.ManagedVisionConfig{Enabled: true, Bucket: "b"}},
		{"no bucket", config.ManagedVisionConfig{Enabled: true, Region: "us-east-1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := NewFromConfig(context.Background(), tt.cfg, Options{})
			if err != nil || src != nil {
				t.Errorf("expected (nil, nil), got (%v, %v)", src, err)
			}
		})
	}
}

func TestNewFromConfig_StaticCredentials(t *testing.T) {
	src, err := NewFromConfig(context.Background(), config.ManagedVisionConfig{
		Enabled:         true,
		Region:          "ap-southeast-1",
		Bucket:          "uploads",
		AccessKeyID:     "AKIDEXAMPLE",
		SecretAccessKey: "secret",
	}, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if src == nil || src.bucket != "uploads" || src.opts.MinConfidence != DefaultMinConfidence {
		t.Errorf("unexpected source %+v", src)
	}
}

func TestClassify_TimeoutBoundsWholePass(t *testing.T) {
	f := &fakeRekognition{hang: true}
	s := New(f, "uploads", Options{
		Concurrency: 1,
		Timeout:     50 * time.Millisecond,
		Thresholds:  filter.DefaultThresholds(),
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	start := time.Now()
	res := s.Classify(context.Background(), []string{"a.jpg", "b.jpg", "c.jpg"})
	elapsed := time.Since(start)

	if len(res) != 0 {
		t.Errorf("expected no results, got %+v", res)
	}
	if elapsed > 140*time.Millisecond {
		t.Errorf("pass exceeded its budget: %v", elapsed)
	}
}
