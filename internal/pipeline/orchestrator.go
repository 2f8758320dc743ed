package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Yicong-Lin-213/AilyCart/internal/geometry"
	"github.com/Yicong-Lin-213/AilyCart/internal/receipt"
	"github.com/Yicong-Lin-213/AilyCart/internal/storage"
)

const (
	// DefaultBucket is where processed receipt images are stored
	DefaultBucket = "receipt_images"
	// DefaultTimeout bounds each network step
	DefaultTimeout = 30 * time.Second

	cleanupTimeout = 10 * time.Second
)

// Transformer turns a raw photo into an upload-ready image
type Transformer interface {
	Prepare(photo geometry.Photo, frame *geometry.CaptureFrame, screen geometry.ScreenContext) (*geometry.Processed, error)
}

// Analyzer extracts a receipt from a public image URL
type Analyzer interface {
	Analyze(ctx context.Context, imageURL string) (*receipt.Receipt, error)
}

// KeyGenerator names uploaded images
type KeyGenerator interface {
	Keys(n int) []string
}

// Step is a progress point reported while a run is in flight
type Step int

const (
	StepUploading Step = iota + 1
	StepAnalyzing
)

// Status is the progress text shown for the step
func (s Step) Status() string {
	switch s {
	case StepUploading:
		return "Uploading images..."
	case StepAnalyzing:
		return "Analyzing receipt..."
	default:
		return ""
	}
}

// Profile carries the user preferences a run needs
type Profile struct {
	DisplayName   string `json:"display_name"`
	VoiceFeedback bool   `json:"voice_feedback"`
}

// Input is everything one capture run needs
type Input struct {
	Photo   geometry.Photo
	Frame   *geometry.CaptureFrame
	Screen  geometry.ScreenContext
	Profile Profile

	// Progress, when set, is called as the run enters each network step
	Progress func(Step)
}

func (in Input) report(step Step) {
	if in.Progress != nil {
		in.Progress(step)
	}
}

// Result is the outcome of a successful run. Keys are the storage keys
// behind ImageURLs.
type Result struct {
	Receipt   *receipt.Receipt
	ImageURLs []string
	Keys      []string
	Profile   Profile
}

// Config holds orchestrator settings
type Config struct {
	Bucket  string
	Timeout time.Duration
}

// Orchestrator sequences transform, upload and analysis for one capture
type Orchestrator struct {
	transformer Transformer
	storage     storage.Storage
	analyzer    Analyzer
	keys        KeyGenerator
	bucket      string
	timeout     time.Duration
}

// NewOrchestrator creates an Orchestrator with the default key generator
func NewOrchestrator(transformer Transformer, store storage.Storage, analyzer Analyzer, cfg Config) *Orchestrator {
	return NewOrchestratorWithDeps(transformer, store, analyzer, storage.NewKeyGenerator(), cfg)
}

// NewOrchestratorWithDeps creates an Orchestrator with custom dependencies for testing
func NewOrchestratorWithDeps(transformer Transformer, store storage.Storage, analyzer Analyzer, keys KeyGenerator, cfg Config) *Orchestrator {
	if cfg.Bucket == "" {
		cfg.Bucket = DefaultBucket
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Orchestrator{
		transformer: transformer,
		storage:     store,
		analyzer:    analyzer,
		keys:        keys,
		bucket:      cfg.Bucket,
		timeout:     cfg.Timeout,
	}
}

// Run crops and uploads the photo, then asks the analyzer for the receipt.
// Any failure aborts the run and is returned as an *Error; a cancelled
// context is returned as is. No partial result is ever returned.
func (o *Orchestrator) Run(ctx context.Context, in Input) (*Result, error) {
	if in.Frame == nil {
		return nil, NewError(KindGeometryUnavailable, geometry.ErrGeometryUnavailable)
	}

	processed, err := o.transformer.Prepare(in.Photo, in.Frame, in.Screen)
	if err != nil {
		slog.Error("Failed to transform photo",
			"uri", in.Photo.URI,
			"content_type", in.Photo.ContentType,
			"file_size", len(in.Photo.Data),
			"error", err,
		)
		if errors.Is(err, geometry.ErrGeometryUnavailable) {
			return nil, NewError(KindGeometryUnavailable, err)
		}
		return nil, NewError(KindTransform, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	in.report(StepUploading)
	keys, urls, err := o.upload(ctx, []*geometry.Processed{processed})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		slog.Error("Failed to upload receipt images", "bucket", o.bucket, "error", err)
		return nil, NewError(KindUpload, err)
	}

	// Only the first image is analyzed
	in.report(StepAnalyzing)
	data, err := o.analyze(ctx, urls[0])
	if err != nil {
		o.cleanup(ctx, keys)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		slog.Error("Failed to analyze receipt", "image_url", urls[0], "error", err)
		if errors.Is(err, receipt.ErrInvalidShape) {
			return nil, NewError(KindParse, err)
		}
		return nil, NewError(KindAnalysis, err)
	}

	slog.Info("Receipt analyzed",
		"merchant", data.MerchantName(),
		"items", len(data.Items),
		"image_url", urls[0],
	)

	return &Result{
		Receipt:   data,
		ImageURLs: urls,
		Keys:      keys,
		Profile:   in.Profile,
	}, nil
}

// Discard deletes the uploaded images of a result that will not be used
func (o *Orchestrator) Discard(ctx context.Context, result *Result) {
	if result == nil {
		return
	}
	slog.Info("Discarding receipt images", "bucket", o.bucket, "images", len(result.Keys))
	o.cleanup(ctx, result.Keys)
}

// upload stores every image concurrently and resolves their public URLs.
// On failure the images that did upload are removed.
func (o *Orchestrator) upload(ctx context.Context, images []*geometry.Processed) ([]string, []string, error) {
	keys := o.keys.Keys(len(images))
	urls := make([]string, len(images))
	uploaded := make([]bool, len(images))

	uctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	g, gctx := errgroup.WithContext(uctx)
	for i, img := range images {
		g.Go(func() error {
			if _, err := o.storage.Upload(gctx, o.bucket, keys[i], img.Data, img.ContentType); err != nil {
				return fmt.Errorf("uploading %s: %w", keys[i], err)
			}
			uploaded[i] = true
			urls[i] = o.storage.PublicURL(o.bucket, keys[i])
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		var stored []string
		for i, ok := range uploaded {
			if ok {
				stored = append(stored, keys[i])
			}
		}
		o.cleanup(ctx, stored)
		return nil, nil, err
	}
	return keys, urls, nil
}

func (o *Orchestrator) analyze(ctx context.Context, imageURL string) (*receipt.Receipt, error) {
	actx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	data, err := o.analyzer.Analyze(actx, imageURL)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, fmt.Errorf("analyzer returned no receipt: %w", receipt.ErrInvalidShape)
	}
	return data, nil
}

// cleanup deletes uploaded objects, best effort. It runs even when ctx is cancelled.
func (o *Orchestrator) cleanup(ctx context.Context, keys []string) {
	if len(keys) == 0 {
		return
	}

	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	for _, key := range keys {
		if err := o.storage.Delete(cctx, o.bucket, key); err != nil {
			slog.Warn("Failed to delete uploaded image", "bucket", o.bucket, "key", key, "error", err)
		}
	}
}
