package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"iter"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keagan/videomcp/internal/config"
	"github.com/keagan/videomcp/internal/dataset"
	"github.com/keagan/videomcp/internal/errs"
	"github.com/keagan/videomcp/internal/ffmpeg"
	"github.com/keagan/videomcp/internal/layout"
	"github.com/keagan/videomcp/internal/mcqa"
	"github.com/keagan/videomcp/internal/render"
	"github.com/keagan/videomcp/internal/videospec"
)

type stubEncoder struct {
	calls atomic.Int32
	fail  map[string]bool
}

func (s *stubEncoder) Encode(ctx context.Context, req ffmpeg.EncodeRequest) error {
	s.calls.Add(1)
	if s.fail[filepath.Base(filepath.Dir(req.Output))] {
		return errs.Encode("encode", errors.New("stub failure"))
	}
	return os.WriteFile(req.Output, []byte("mp4"), 0o644)
}

// fakeAdapter yields n records; indexes in bad get an invalid answer and
// indexes in broken are yielded as adapter errors.
type fakeAdapter struct {
	n      int
	bad    map[int]bool
	broken map[int]bool
	img    []byte
}

func (f *fakeAdapter) Name() string        { return "fake" }
func (f *fakeAdapter) GeneratorID() string { return "F-1" }
func (f *fakeAdapter) Download(ctx context.Context, outDir string) (string, error) {
	return outDir, nil
}

func (f *fakeAdapter) Samples(ctx context.Context) iter.Seq2[dataset.Record, error] {
	return func(yield func(dataset.Record, error) bool) {
		for i := range f.n {
			if f.broken[i] {
				if !yield(dataset.Record{}, errs.Adapter(fmt.Sprintf("row %d", i), errors.New("unreadable"))) {
					return
				}
				continue
			}
			s := mcqa.Sample{
				Dataset:       "Fake",
				SourceID:      fmt.Sprintf("src-%02d", i),
				Question:      fmt.Sprintf("Question %d?", i),
				Choices:       map[string]string{"A": "yes", "B": "no"},
				Answer:        "A",
				ImageFilename: "img.png",
			}
			if f.bad[i] {
				s.Answer = "E"
			}
			if !yield(dataset.Record{Sample: s, Image: f.img}, nil) {
				return
			}
		}
	}
}

func tinyPNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 8, 8))))
	return buf.Bytes()
}

func testSpec() videospec.Spec {
	return videospec.Spec{FPS: 8, Width: 96, Height: 64, NumFrames: 5}
}

func newTestPipeline(t *testing.T, enc *stubEncoder) *Pipeline {
	t.Helper()
	p, err := New(zerolog.Nop(), &Config{Workers: 3, TempDir: t.TempDir()}, config.Default(),
		WithEncoder(enc), WithRegistry(dataset.NewRegistry()))
	require.NoError(t, err)
	return p
}

func sampleDirs(t *testing.T, l *layout.Layout) []string {
	t.Helper()
	entries, err := os.ReadDir(l.TaskDir())
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names
}

func TestProcessSkipsMalformedSample(t *testing.T) {
	enc := &stubEncoder{}
	p := newTestPipeline(t, enc)
	out := t.TempDir()
	a := &fakeAdapter{n: 10, bad: map[int]bool{5: true}, img: tinyPNG(t)}

	sum, err := p.Process(context.Background(), a, ProcessOptions{OutDir: out, Video: testSpec(), Style: render.StyleDarken})
	require.NoError(t, err)

	assert.Equal(t, 9, sum.Processed)
	assert.Equal(t, 1, sum.Skipped)
	assert.Equal(t, 0, sum.Failed)
	assert.Equal(t, 1, sum.SkipReasons[string(errs.KindSampleValidation)])

	l := layout.New(out, "F-1", "fake")
	dirs := sampleDirs(t, l)
	require.Len(t, dirs, 9)
	assert.Equal(t, "fake_0000", dirs[0])
	assert.Equal(t, "fake_0008", dirs[8])

	// The malformed sample does not consume an index.
	q, err := layout.ReadQuestion(l.Paths(5).Question)
	require.NoError(t, err)
	assert.Equal(t, "src-06", q.SourceID)

	assert.FileExists(t, filepath.Join(l.GeneratorDir(), layout.ClipConfigFile))
	assert.FileExists(t, filepath.Join(l.GeneratorDir(), layout.ManifestFile))
}

func TestProcessRerunIsIdempotent(t *testing.T) {
	p := newTestPipeline(t, &stubEncoder{})
	out := t.TempDir()
	a := &fakeAdapter{n: 3, img: tinyPNG(t)}
	opts := ProcessOptions{OutDir: out, Video: testSpec(), Style: render.StyleRedBorder}
	l := layout.New(out, "F-1", "fake")
	cfgPath := filepath.Join(l.GeneratorDir(), layout.ClipConfigFile)

	_, err := p.Process(context.Background(), a, opts)
	require.NoError(t, err)
	first, err := os.ReadFile(cfgPath)
	require.NoError(t, err)

	_, err = p.Process(context.Background(), a, opts)
	require.NoError(t, err)
	second, err := os.ReadFile(cfgPath)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	hist, err := l.History()
	require.NoError(t, err)
	assert.Len(t, hist, 2)
	assert.Len(t, sampleDirs(t, l), 3)
}

func TestProcessLimit(t *testing.T) {
	enc := &stubEncoder{}
	p := newTestPipeline(t, enc)
	out := t.TempDir()
	a := &fakeAdapter{n: 10, bad: map[int]bool{1: true}, img: tinyPNG(t)}

	sum, err := p.Process(context.Background(), a, ProcessOptions{OutDir: out, Video: testSpec(), Style: render.StyleDarken, Limit: 3})
	require.NoError(t, err)

	assert.Equal(t, 3, sum.Processed)
	assert.EqualValues(t, 3, enc.calls.Load())
	assert.Len(t, sampleDirs(t, layout.New(out, "F-1", "fake")), 3)
}

func TestProcessEncodeFailureIsIncomplete(t *testing.T) {
	enc := &stubEncoder{fail: map[string]bool{"fake_0001": true}}
	p := newTestPipeline(t, enc)
	out := t.TempDir()
	a := &fakeAdapter{n: 3, broken: map[int]bool{0: true}, img: tinyPNG(t)}

	sum, err := p.Process(context.Background(), a, ProcessOptions{OutDir: out, Video: testSpec(), Style: render.StyleDarken})
	require.NoError(t, err)

	assert.Equal(t, 1, sum.Processed)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, 1, sum.Skipped)
	assert.Equal(t, 1, sum.SkipReasons[string(errs.KindAdapter)])
	assert.Equal(t, 1, sum.FailReasons[string(errs.KindEncode)])
	assert.Equal(t, []string{"fake_0001"}, sum.Incomplete)

	l := layout.New(out, "F-1", "fake")
	data, err := os.ReadFile(filepath.Join(l.GeneratorDir(), layout.ManifestFile))
	require.NoError(t, err)
	var m layout.Manifest
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, []string{"fake_0001"}, m.Summary.Incomplete)
	assert.Equal(t, "F-1_fake_data-generator", m.Adapter.GeneratorName)
	assert.Equal(t, "darken", m.LitStyle)
	assert.Equal(t, 3, m.Workers)
	assert.NotEmpty(t, m.RunID)
	assert.NotEmpty(t, m.Env.GoVersion)
}

func TestProcessRejectsBadConfig(t *testing.T) {
	enc := &stubEncoder{}
	p := newTestPipeline(t, enc)
	a := &fakeAdapter{n: 2, img: tinyPNG(t)}

	_, err := p.Process(context.Background(), a, ProcessOptions{OutDir: t.TempDir(), Video: videospec.Spec{FPS: 8, Width: 100, Height: 64, NumFrames: 5}, Style: render.StyleDarken})
	assert.ErrorIs(t, err, errs.ErrConfiguration)

	_, err = p.Process(context.Background(), a, ProcessOptions{OutDir: t.TempDir(), Video: testSpec(), Style: "glow"})
	assert.ErrorIs(t, err, errs.ErrConfiguration)

	assert.EqualValues(t, 0, enc.calls.Load())
}

func TestProcessFreezesRegistry(t *testing.T) {
	reg := dataset.NewRegistry()
	p, err := New(zerolog.Nop(), &Config{Workers: 1, TempDir: t.TempDir()}, config.Default(),
		WithEncoder(&stubEncoder{}), WithRegistry(reg))
	require.NoError(t, err)

	_, err = p.Process(context.Background(), &fakeAdapter{n: 1, img: tinyPNG(t)},
		ProcessOptions{OutDir: t.TempDir(), Video: testSpec(), Style: render.StyleDarken})
	require.NoError(t, err)
	assert.True(t, reg.Frozen())
}

func TestExportRoundTrip(t *testing.T) {
	p := newTestPipeline(t, &stubEncoder{})
	out := t.TempDir()
	a := &fakeAdapter{n: 4, bad: map[int]bool{2: true}, img: tinyPNG(t)}

	res, err := p.Export(context.Background(), a, ExportOptions{OutDir: out})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Written)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 3, res.ImagesWritten)
	assert.FileExists(t, filepath.Join(out, "train", "images", "src-00__img.png"))

	again, err := p.Export(context.Background(), a, ExportOptions{OutDir: out})
	require.NoError(t, err)
	assert.Equal(t, 0, again.ImagesWritten, "existing images are kept")

	reader, err := dataset.Get("jsonl", dataset.Options{RawDir: out, Logger: zerolog.Nop()})
	require.NoError(t, err)

	var got []mcqa.Sample
	for rec, err := range reader.Samples(context.Background()) {
		require.NoError(t, err)
		got = append(got, rec.Sample)
	}
	require.Len(t, got, 3)
	assert.Equal(t, "src-00", got[0].SourceID)
	assert.Equal(t, "img.png", got[0].ImageFilename)
	assert.Equal(t, "src-03", got[2].SourceID)
}

func TestProcessTinyCanvas(t *testing.T) {
	enc := &stubEncoder{}
	p := newTestPipeline(t, enc)
	out := t.TempDir()
	a := &fakeAdapter{n: 2, img: tinyPNG(t)}

	for _, style := range []render.Style{render.StyleDarken, render.StyleRedBorder} {
		sum, err := p.Process(context.Background(), a, ProcessOptions{
			OutDir: out,
			Video:  videospec.Spec{FPS: 1, Width: 8, Height: 8, NumFrames: 5},
			Style:  style,
		})
		require.NoError(t, err)
		assert.Equal(t, 2, sum.Processed, string(style))
		assert.Equal(t, 0, sum.Failed, string(style))
	}
}
