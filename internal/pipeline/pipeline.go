package pipeline

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"

	"github.com/keagan/videomcp/internal/clips"
	"github.com/keagan/videomcp/internal/config"
	"github.com/keagan/videomcp/internal/dataset"
	"github.com/keagan/videomcp/internal/errs"
	"github.com/keagan/videomcp/internal/ffmpeg"
	"github.com/keagan/videomcp/internal/layout"
	"github.com/keagan/videomcp/internal/logging"
	"github.com/keagan/videomcp/internal/render"
	"github.com/keagan/videomcp/pkg/util"
)

// Pipeline orchestrates the whole clip generation workflow
type Pipeline struct {
	logger   zerolog.Logger
	config   *Config
	ffmpeg   *ffmpeg.Executor
	encoder  clips.Encoder
	renderer *render.Renderer
	registry *dataset.Registry
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithEncoder replaces the ffmpeg encoder. No ffmpeg lookup is done.
func WithEncoder(enc clips.Encoder) Option {
	return func(p *Pipeline) { p.encoder = enc }
}

// WithRegistry selects the registry frozen at the start of a run.
func WithRegistry(r *dataset.Registry) Option {
	return func(p *Pipeline) { p.registry = r }
}

// New creates a new pipeline instance. A missing ffmpeg is a configuration
// error unless an encoder is injected.
func New(logger zerolog.Logger, cfg *Config, appCfg *config.Config, opts ...Option) (*Pipeline, error) {
	if appCfg == nil {
		appCfg = config.Default()
	}
	if cfg == nil {
		cfg = &Config{
			Workers:     appCfg.Concurrency,
			TempDir:     appCfg.TempDir,
			ProgressBar: appCfg.Render.ProgressBar,
		}
	}

	p := &Pipeline{
		logger:   logger.With().Str("component", "pipeline").Logger(),
		config:   cfg,
		registry: dataset.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.encoder == nil {
		ffmpegExec, err := ffmpeg.New(logger, ffmpeg.Config{
			BinaryPath: appCfg.FFmpeg.BinaryPath,
			Threads:    appCfg.FFmpeg.Threads,
			Preset:     appCfg.FFmpeg.Preset,
			CRF:        appCfg.FFmpeg.CRF,
		})
		if err != nil {
			return nil, err
		}
		p.ffmpeg = ffmpegExec
		p.encoder = ffmpegExec
	}

	renderer, err := render.New()
	if err != nil {
		return nil, errs.Configuration("load fonts", err)
	}
	p.renderer = renderer

	return p, nil
}

func (p *Pipeline) workers() int {
	if p.config.Workers > 0 {
		return p.config.Workers
	}
	return runtime.NumCPU()
}

// Process renders and encodes every valid sample of adapter. Per-sample
// problems are tallied in the summary; only configuration errors and
// cancellation are returned.
func (p *Pipeline) Process(ctx context.Context, adapter dataset.Adapter, opts ProcessOptions) (*Summary, error) {
	if err := opts.Video.Validate(); err != nil {
		return nil, err
	}
	style, err := render.ParseStyle(string(opts.Style))
	if err != nil {
		return nil, err
	}
	if opts.OutDir == "" {
		return nil, errs.Configuration("process", fmt.Errorf("output directory is required"))
	}
	p.registry.Freeze()

	l := layout.New(opts.OutDir, adapter.GeneratorID(), adapter.Name())
	if err := util.EnsureDir(l.TaskDir()); err != nil {
		return nil, errs.Configuration("create output dir", err)
	}
	tempDir := p.config.TempDir
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	if err := util.EnsureDir(tempDir); err != nil {
		return nil, errs.Configuration("create temp dir", err)
	}

	runID := uuid.NewString()
	started := time.Now().UTC()
	workers := p.workers()
	logger := p.logger.With().Str("run_id", runID).Logger()

	logger.Info().
		Str("dataset", adapter.Name()).
		Str("out", l.GeneratorDir()).
		Str("video", opts.Video.String()).
		Str("lit_style", string(style)).
		Int("limit", opts.Limit).
		Int("workers", workers).
		Msg("starting process run")

	asm := clips.NewAssembler(p.logger, clips.Config{
		Layout:   l,
		Renderer: p.renderer,
		Encoder:  p.encoder,
		Spec:     opts.Video,
		Style:    style,
		TempDir:  tempDir,
	})

	summary := &Summary{
		SkipReasons: map[string]int{},
		FailReasons: map[string]int{},
		Incomplete:  []string{},
	}
	var mu sync.Mutex

	bar := p.newBar(opts.Limit)

	skip := func(sourceID string, err error) {
		kind := errs.KindOf(err)
		logging.WithSample(logger, adapter.Name(), sourceID).Warn().
			Str("kind", string(kind)).
			Err(err).
			Msg("sample skipped")
		mu.Lock()
		summary.Skipped++
		summary.SkipReasons[string(kind)]++
		mu.Unlock()
	}

	g := new(errgroup.Group)
	g.SetLimit(workers)

	next := 0
	for rec, err := range adapter.Samples(ctx) {
		if ctx.Err() != nil {
			break
		}
		if opts.Limit > 0 && next >= opts.Limit {
			break
		}
		if err != nil {
			if errs.KindOf(err) == "" {
				err = errs.Adapter(adapter.Name(), err)
			}
			skip(rec.Sample.SourceID, err)
			continue
		}
		if verr := rec.Sample.Validate(); verr != nil {
			skip(rec.Sample.SourceID, verr)
			continue
		}

		job := clips.Job{Index: next, Record: rec}
		next++

		g.Go(func() error {
			res := asm.Assemble(ctx, job)
			p.record(logger, adapter.Name(), &mu, summary, res)
			if bar != nil {
				_ = bar.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()
	if bar != nil {
		_ = bar.Finish()
	}

	slices.Sort(summary.Incomplete)

	if err := l.WriteClipConfig(opts.Video); err != nil {
		return summary, errs.Configuration("write clip config", err)
	}

	src := dataset.SourceOf(adapter)
	manifest := layout.Manifest{
		RunID:      runID,
		StartedAt:  started,
		FinishedAt: time.Now().UTC(),
		Adapter: layout.AdapterInfo{
			Name:          adapter.Name(),
			GeneratorID:   adapter.GeneratorID(),
			GeneratorName: dataset.GeneratorName(adapter),
			Dataset:       adapter.Name(),
			HFRepoID:      src.HFRepoID,
			HFConfig:      src.HFConfig,
			HFSplit:       src.HFSplit,
			HFRevision:    src.HFRevision,
		},
		Video:    layout.NewClipConfig(opts.Video),
		LitStyle: string(style),
		Limit:    opts.Limit,
		Workers:  workers,
		Summary:  *summary,
		Env:      p.environment(ctx),
	}
	histPath, err := l.WriteManifest(manifest)
	if err != nil {
		return summary, errs.Configuration("write manifest", err)
	}

	logger.Info().
		Int("processed", summary.Processed).
		Int("skipped", summary.Skipped).
		Int("failed", summary.Failed).
		Str("manifest", histPath).
		Dur("elapsed", time.Since(started)).
		Msg("process run complete")

	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}

func (p *Pipeline) record(logger zerolog.Logger, name string, mu *sync.Mutex, summary *Summary, res clips.Result) {
	l := logging.WithSample(logger, name, res.SourceID).With().Str("sample", res.SampleName).Logger()

	mu.Lock()
	defer mu.Unlock()

	switch res.Status {
	case clips.Processed:
		summary.Processed++
		l.Debug().Dur("elapsed", res.Duration).Msg("sample processed")
	case clips.Skipped:
		summary.Skipped++
		summary.SkipReasons[string(res.Kind)]++
		l.Warn().Str("kind", string(res.Kind)).Err(res.Err).Msg("sample skipped")
	case clips.Failed:
		summary.Failed++
		reason := string(res.Kind)
		if reason == "" {
			reason = "other"
		}
		summary.FailReasons[reason]++
		if res.Incomplete {
			summary.Incomplete = append(summary.Incomplete, res.SampleName)
		}
		l.Error().Str("kind", reason).Err(res.Err).Msg("sample failed")
	}
}

func (p *Pipeline) newBar(limit int) *progressbar.ProgressBar {
	if !p.config.ProgressBar {
		return nil
	}
	total := -1
	if limit > 0 {
		total = limit
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription("clips"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionClearOnFinish(),
	)
}

func (p *Pipeline) environment(ctx context.Context) layout.Environment {
	env := layout.Environment{
		GoVersion:   runtime.Version(),
		OS:          runtime.GOOS,
		Arch:        runtime.GOARCH,
		NumCPU:      runtime.NumCPU(),
		ToolVersion: p.config.ToolVersion,
	}
	if p.ffmpeg != nil {
		vctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if v, err := p.ffmpeg.Version(vctx); err == nil {
			env.FFmpegVersion = v
		} else {
			p.logger.Debug().Err(err).Msg("could not read ffmpeg version")
		}
	}
	return env
}

// Download fetches the adapter's raw artifacts.
func (p *Pipeline) Download(ctx context.Context, adapter dataset.Adapter, outDir string) (string, error) {
	p.logger.Info().Str("dataset", adapter.Name()).Str("out", outDir).Msg("downloading dataset")
	path, err := adapter.Download(ctx, outDir)
	if err != nil {
		return "", err
	}
	if path != "" {
		p.logger.Info().Str("path", path).Msg("dataset ready")
	}
	return path, nil
}

// Close releases pipeline resources
func (p *Pipeline) Close() error {
	return nil
}
