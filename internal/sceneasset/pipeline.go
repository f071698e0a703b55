package sceneasset

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/neurobridge-viewer/internal/platform/ctxutil"
	"github.com/yungbote/neurobridge-viewer/internal/platform/logger"
)

const tracerName = "github.com/yungbote/neurobridge-viewer/internal/sceneasset"

// Result is everything one pipeline run hands to the viewer. The caller
// owns it and must Revoke it when the scene is unloaded.
type Result struct {
	SceneID       string           `json:"sceneId"`
	Target        Target           `json:"target"`
	Filename      string           `json:"filename"`
	DisplayName   string           `json:"displayName"`
	ManifestShape string           `json:"manifestShape"`
	Default       *Resource        `json:"default,omitempty"`
	Custom        *Resource        `json:"custom,omitempty"`
	Parts         []PartDescriptor `json:"parts"`
	Fingerprint   string           `json:"fingerprint"`
	Resources     []*Resource      `json:"resources"`

	table      *ResolverTable
	reg        *BlobRegistry
	resolution *ResolutionContext
	once       sync.Once
	revoked    atomic.Bool
}

// Revoke releases every handle created by this run and, if this run's
// table is the active one, clears it. Safe to call more than once; never
// touches another run's table.
func (r *Result) Revoke() {
	if r == nil {
		return
	}
	r.once.Do(func() {
		r.revoked.Store(true)
		if r.resolution != nil {
			r.resolution.ClearIf(r.table)
		}
		for _, res := range r.Resources {
			r.reg.Revoke(res.Handle)
		}
	})
}

func (r *Result) Revoked() bool { return r != nil && r.revoked.Load() }

// Resolve maps uri through this run's own table regardless of which table
// is active.
func (r *Result) Resolve(uri string) string {
	if r == nil || r.Revoked() {
		return uri
	}
	return r.table.Resolve(uri)
}

func (r *Result) Table() *ResolverTable { return r.table }

// Part looks a part up by ID or raw name.
func (r *Result) Part(ref string) (PartDescriptor, bool) {
	return FindPart(r.Parts, ref)
}

// LoadObserver is told about every finished Load. outcome is "ok",
// "cancelled" or the failure Kind.
type LoadObserver interface {
	ObserveSceneLoad(target, outcome string, dur time.Duration, resources int)
}

type Config struct {
	Source     ArchiveSource
	Registry   *BlobRegistry
	Resolution *ResolutionContext
	Tracer     trace.Tracer
	Observer   LoadObserver

	// MaxExtractedBytes bounds the decompressed size of one archive.
	MaxExtractedBytes int64
}

// Pipeline sequences fetch, extraction, materialization and resolver
// installation, and owns the lifecycle of the result it last installed.
type Pipeline struct {
	log        *logger.Logger
	source     ArchiveSource
	reg        *BlobRegistry
	resolution *ResolutionContext
	tracer     trace.Tracer
	observer   LoadObserver

	maxExtracted int64

	// loadMu serializes Load; one scene is loaded at a time.
	loadMu  sync.Mutex
	mu      sync.Mutex
	current *Result
}

func New(log *logger.Logger, cfg Config) (*Pipeline, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if cfg.Source == nil {
		return nil, fmt.Errorf("archive source required")
	}
	reg := cfg.Registry
	if reg == nil {
		reg = NewBlobRegistry("")
	}
	resolution := cfg.Resolution
	if resolution == nil {
		resolution = DefaultResolution
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	maxExtracted := cfg.MaxExtractedBytes
	if maxExtracted <= 0 {
		maxExtracted = DefaultMaxExtractedBytes
	}
	return &Pipeline{
		log:        log.With("service", "ScenePipeline"),
		source:     cfg.Source,
		reg:        reg,
		resolution: resolution,
		tracer:     tracer,
		observer:   cfg.Observer,

		maxExtracted: maxExtracted,
	}, nil
}

func (p *Pipeline) Registry() *BlobRegistry        { return p.reg }
func (p *Pipeline) Resolution() *ResolutionContext { return p.resolution }

// Current returns the installed result, or nil.
func (p *Pipeline) Current() *Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Load fetches and materializes a scene and installs its resolver table.
// When ctx ends before the table is installed the run leaves nothing behind
// and ctx.Err() is returned; the previously installed result stays active.
// Any other failure also revokes the previously installed result so no
// stale scene stays resolvable.
func (p *Pipeline) Load(ctx context.Context, sceneID string, target Target) (res *Result, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.loadMu.Lock()
	defer p.loadMu.Unlock()

	start := time.Now()
	defer func() { p.observe(target, start, res, err) }()

	ctx, span := p.tracer.Start(ctx, "sceneasset.Load", trace.WithAttributes(
		attribute.String("scene.id", sceneID),
		attribute.String("scene.target", string(target)),
	))
	defer span.End()
	log := p.runLogger(ctx, sceneID, target)

	if err := ctx.Err(); err != nil {
		return nil, p.cancelled(log, span, err)
	}

	archive, err := p.fetch(ctx, sceneID, target)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, p.cancelled(log, span, ctxErr)
		}
		return nil, p.failed(log, span, "fetch", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, p.cancelled(log, span, err)
	}

	res, err = p.materialize(ctx, log, archive)
	archive.Data = nil
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, p.cancelled(log, span, ctxErr)
		}
		return nil, p.failed(log, span, "extract", err)
	}
	if err := ctx.Err(); err != nil {
		res.Revoke()
		return nil, p.cancelled(log, span, err)
	}

	p.mu.Lock()
	prev := p.current
	if prev != nil {
		prev.Revoke()
	}
	p.resolution.Install(res.table)
	p.current = res
	p.mu.Unlock()

	span.SetAttributes(
		attribute.Int("scene.resources", len(res.Resources)),
		attribute.Int("scene.parts", len(res.Parts)),
		attribute.String("scene.manifest_shape", res.ManifestShape),
	)
	log.Info("Scene loaded",
		"filename", res.Filename,
		"manifest_shape", res.ManifestShape,
		"resources", len(res.Resources),
		"parts", len(res.Parts),
		"has_default", res.Default != nil,
		"has_custom", res.Custom != nil,
	)
	return res, nil
}

func (p *Pipeline) observe(target Target, start time.Time, res *Result, err error) {
	if p.observer == nil {
		return
	}
	outcome, resources := "ok", 0
	switch {
	case err == nil:
		if res != nil {
			resources = len(res.Resources)
		}
	case KindOf(err) != "":
		outcome = string(KindOf(err))
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		outcome = "cancelled"
	default:
		outcome = "internal"
	}
	if target == "" {
		target = TargetBoth
	}
	p.observer.ObserveSceneLoad(string(target), outcome, time.Since(start), resources)
}

// Materialize runs extraction over an already fetched archive without
// installing anything. The caller owns the returned Result.
func (p *Pipeline) Materialize(ctx context.Context, archive *SceneArchive) (*Result, error) {
	if archive == nil {
		return nil, newError(KindInvalidRequest, "archive required", nil)
	}
	return p.materialize(ctx, p.runLogger(ctx, archive.SceneID, archive.Target), archive)
}

// Unload revokes the installed result, if any.
func (p *Pipeline) Unload() bool {
	p.mu.Lock()
	prev := p.current
	p.current = nil
	p.mu.Unlock()
	if prev == nil {
		return false
	}
	prev.Revoke()
	return true
}

func (p *Pipeline) Close() error {
	p.Unload()
	return nil
}

func (p *Pipeline) fetch(ctx context.Context, sceneID string, target Target) (*SceneArchive, error) {
	ctx, span := p.tracer.Start(ctx, "sceneasset.fetch")
	defer span.End()
	archive, err := p.source.FetchArchive(ctx, sceneID, target)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(KindOf(err)))
		return nil, err
	}
	span.SetAttributes(attribute.Int("archive.bytes", len(archive.Data)))
	return archive, nil
}

func (p *Pipeline) materialize(ctx context.Context, log *logger.Logger, archive *SceneArchive) (*Result, error) {
	ctx, span := p.tracer.Start(ctx, "sceneasset.materialize")
	defer span.End()

	target := archive.Target
	if !target.Valid() {
		target = TargetBoth
	}
	a, err := OpenArchiveLimit(archive.Data, p.maxExtracted)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	raw, err := a.Manifest()
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	manifest, err := ParseManifest(raw)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	ex, err := extract(ctx, log, p.reg, a, manifest, archive.SceneID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	res := &Result{
		SceneID:       archive.SceneID,
		Target:        target,
		Filename:      archive.Filename,
		ManifestShape: ex.shape,
		Parts:         []PartDescriptor{},
		Resources:     ex.m.resources,
		table:         ex.m.table,
		reg:           p.reg,
		resolution:    p.resolution,
	}
	if target.IncludesDefault() {
		res.Default = ex.defaultRes
	}
	if target.IncludesCustom() {
		res.Custom = ex.customRes
	}
	if ex.hasCatalog {
		res.Parts = ex.catalog.Parts
		res.Fingerprint = ex.catalog.Fingerprint
	}
	res.DisplayName = modelDisplayName(archive, ex)
	return res, nil
}

// modelDisplayName prefers the served filename; a synthesized fallback name
// yields to the scene name inside the documents.
func modelDisplayName(archive *SceneArchive, ex *extraction) string {
	name := archive.Filename
	if name == "" || name == FallbackFilename(archive.SceneID) {
		for _, doc := range []*GLTFDocument{ex.customDoc, ex.defaultDoc} {
			if s := doc.SceneName(); s != "" {
				return s
			}
		}
	}
	if name == "" {
		name = FallbackFilename(archive.SceneID)
	}
	return strings.TrimSuffix(name, path.Ext(name))
}

func (p *Pipeline) cancelled(log *logger.Logger, span trace.Span, err error) error {
	span.SetAttributes(attribute.Bool("scene.cancelled", true))
	log.Debug("Scene load cancelled", "reason", err)
	return err
}

func (p *Pipeline) failed(log *logger.Logger, span trace.Span, stage string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, string(KindOf(err)))
	if p.Unload() {
		log.Info("Previous scene revoked after failed load", "stage", stage)
	}
	// A table installed outside this pipeline must not outlive the failure
	// either.
	p.resolution.Clear()
	log.Warn("Scene load failed",
		"stage", stage,
		"kind", KindOf(err),
		"retryable", IsRetryable(err),
		"error", err,
	)
	return err
}

func (p *Pipeline) runLogger(ctx context.Context, sceneID string, target Target) *logger.Logger {
	kv := []interface{}{"scene_id", sceneID, "target", target}
	return p.log.With(append(kv, ctxutil.LogFields(ctx)...)...)
}
