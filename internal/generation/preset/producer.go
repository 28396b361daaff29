package preset

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/phrazzld/inkwell-api/internal/domain"
	"github.com/phrazzld/inkwell-api/internal/generation"
	"github.com/phrazzld/inkwell-api/internal/platform/logger"
	"github.com/phrazzld/inkwell-api/internal/storage"
	"golang.org/x/sync/errgroup"
)

// Progress checkpoints reported by Produce.
const (
	progressLoaded   = 10
	progressFitted   = 30
	progressOutlined = 60
	progressColored  = 80
	progressStored   = 95
	progressDone     = 100
)

// Producer implements generation.Producer using a preset Library.
type Producer struct {
	library   *Library
	files     storage.FileStore
	stepDelay time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

var _ generation.Producer = (*Producer)(nil)

// Option configures a Producer.
type Option func(*Producer)

// WithStepDelay pauses after each checkpoint to simulate model latency.
func WithStepDelay(d time.Duration) Option {
	return func(p *Producer) { p.stepDelay = d }
}

// WithLogger sets the producer's fallback logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Producer) { p.logger = l }
}

// NewProducer creates a Producer that writes variants to files.
func NewProducer(library *Library, files storage.FileStore, opts ...Option) (*Producer, error) {
	if library == nil {
		return nil, errors.New("library cannot be nil")
	}
	if files == nil {
		return nil, errors.New("file store cannot be nil")
	}
	p := &Producer{
		library: library,
		files:   files,
		logger:  slog.Default(),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With(slog.String("component", "preset_producer"))
	return p, nil
}

// Produce implements generation.Producer.
func (p *Producer) Produce(
	ctx context.Context,
	req generation.Request,
	progress generation.ProgressFunc,
) (*domain.Artifact, error) {
	log := logger.FromContextOrDefault(ctx, p.logger).With(
		slog.String("task_id", req.TaskID.String()),
		slog.String("task_kind", string(req.Kind)),
	)
	if progress == nil {
		progress = func(int) {}
	}

	width, height, ok := req.Input.AspectRatio.Dimensions()
	if !ok {
		return nil, fmt.Errorf("%w: unsupported aspect ratio %q", generation.ErrInvalidInput, req.Input.AspectRatio)
	}

	src, sourceName, err := p.loadSource(ctx, req, width, height)
	if err != nil {
		return nil, err
	}
	if err := p.step(ctx, progress, progressLoaded); err != nil {
		return nil, err
	}

	fitted := fit(src, width, height)
	if err := p.step(ctx, progress, progressFitted); err != nil {
		return nil, err
	}

	outline := renderOutline(fitted)
	if err := p.step(ctx, progress, progressOutlined); err != nil {
		return nil, err
	}

	colored := renderColored(fitted)
	if err := p.step(ctx, progress, progressColored); err != nil {
		return nil, err
	}

	artifact := &domain.Artifact{
		ID:          uuid.New(),
		TaskID:      req.TaskID,
		OwnerID:     req.OwnerID,
		Tags:        domain.TagsFromPrompt(req.Input.Prompt),
		SourceImage: req.Input.ReferenceImage,
		IsPublic:    req.Input.IsPublic,
		CreatedAt:   p.now(),
	}
	artifact.SourcePrompt = strings.TrimSpace(req.Input.Prompt)
	artifact.Title = title(req.Input, sourceName)

	if err := p.store(ctx, artifact, map[string]image.Image{
		domain.VariantOutline: outline,
		domain.VariantColored: colored,
	}, width, height); err != nil {
		return nil, err
	}

	if err := p.step(ctx, progress, progressStored); err != nil {
		p.discard(log, artifact)
		return nil, err
	}
	progress(progressDone)

	log.Info("artifact produced",
		slog.String("artifact_id", artifact.ID.String()),
		slog.String("source", sourceName))
	return artifact, nil
}

func (p *Producer) loadSource(ctx context.Context, req generation.Request, width, height int) (image.Image, string, error) {
	switch req.Kind {
	case domain.TaskKindTextToImage:
		name, err := p.library.Choose(req.Input.Prompt)
		if errors.Is(err, generation.ErrNoSource) {
			return Synthesize(req.Input.Prompt, width, height), "synthesized", nil
		}
		if err != nil {
			return nil, "", err
		}
		img, err := p.library.Open(name)
		return img, name, err

	case domain.TaskKindImageToImage:
		rc, err := p.files.Get(ctx, req.Input.ReferenceImage)
		if errors.Is(err, storage.ErrObjectNotFound) || errors.Is(err, storage.ErrInvalidKey) {
			return nil, "", fmt.Errorf("%w: reference image not found", generation.ErrInvalidInput)
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, "", ctxErr
			}
			return nil, "", fmt.Errorf("%w: read reference image: %v", generation.ErrStorage, err)
		}
		defer func() { _ = rc.Close() }()

		img, err := imaging.Decode(rc, imaging.AutoOrientation(true))
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, "", ctxErr
			}
			return nil, "", fmt.Errorf("%w: decode reference image: %v", generation.ErrInvalidInput, err)
		}
		name := req.Input.SourceName
		if name == "" {
			name = path.Base(req.Input.ReferenceImage)
		}
		return img, name, nil
	}
	return nil, "", fmt.Errorf("%w: unknown task kind %q", generation.ErrInvalidInput, req.Kind)
}

// store encodes and writes the variants concurrently. If any write fails,
// every variant is deleted before returning.
func (p *Producer) store(ctx context.Context, artifact *domain.Artifact, images map[string]image.Image, width, height int) error {
	owner, id := artifact.OwnerID.String(), artifact.ID.String()
	for _, name := range []string{domain.VariantOutline, domain.VariantColored} {
		artifact.Variants = append(artifact.Variants, domain.ArtifactVariant{
			Name:        name,
			Key:         storage.ArtifactKey(owner, id, name),
			ContentType: "image/png",
			Width:       width,
			Height:      height,
		})
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, v := range artifact.Variants {
		g.Go(func() error {
			data, err := encodePNG(images[v.Name])
			if err != nil {
				return fmt.Errorf("%w: %v", generation.ErrGenerationFailed, err)
			}
			if err := p.files.Put(gctx, v.Key, bytes.NewReader(data), int64(len(data)), v.ContentType); err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				return fmt.Errorf("%w: %v", generation.ErrStorage, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		p.discard(logger.FromContextOrDefault(ctx, p.logger), artifact)
		return err
	}
	return nil
}

// discard removes stored variants on a detached context so cleanup still
// runs after cancellation.
func (p *Producer) discard(log *slog.Logger, artifact *domain.Artifact) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, key := range artifact.Keys() {
		if err := p.files.Delete(ctx, key); err != nil {
			log.Warn("failed to delete artifact variant",
				slog.String("key", key),
				slog.String("error", err.Error()))
		}
	}
}

// step reports a checkpoint, then waits out the configured delay unless ctx
// ends first.
func (p *Producer) step(ctx context.Context, progress generation.ProgressFunc, value int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	progress(value)
	if p.stepDelay <= 0 {
		return nil
	}
	timer := time.NewTimer(p.stepDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func title(in domain.GenerationInput, sourceName string) string {
	if strings.TrimSpace(in.Prompt) != "" || in.SourceName == "" {
		return domain.TitleFromPrompt(in.Prompt)
	}
	name := strings.TrimSuffix(sourceName, path.Ext(sourceName))
	name = strings.NewReplacer("_", " ", "-", " ").Replace(name)
	return domain.TitleFromPrompt(name)
}
