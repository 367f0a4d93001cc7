package clips

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keagan/videomcp/internal/dataset"
	"github.com/keagan/videomcp/internal/errs"
	"github.com/keagan/videomcp/internal/ffmpeg"
	"github.com/keagan/videomcp/internal/layout"
	"github.com/keagan/videomcp/internal/mcqa"
	"github.com/keagan/videomcp/internal/render"
	"github.com/keagan/videomcp/internal/videospec"
)

type stubEncoder struct {
	err      error
	calls    atomic.Int32
	frames   atomic.Int32
	progress atomic.Bool
}

func (s *stubEncoder) Encode(ctx context.Context, req ffmpeg.EncodeRequest) error {
	s.calls.Add(1)
	entries, _ := os.ReadDir(req.FramesDir)
	s.frames.Store(int32(len(entries)))
	if req.Progress != nil {
		req.Progress(&ffmpeg.Progress{Frame: len(entries), Speed: "1x"})
		s.progress.Store(true)
	}
	if s.err != nil {
		return s.err
	}
	return os.WriteFile(req.Output, []byte("mp4"), 0o644)
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 12))
	img.SetRGBA(1, 1, color.RGBA{255, 0, 0, 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func testRecord(t *testing.T) dataset.Record {
	return dataset.Record{
		Sample: mcqa.Sample{
			Dataset:       "Test",
			SourceID:      "src-1",
			Question:      "Which?",
			Choices:       map[string]string{"A": "one", "B": "two"},
			Answer:        "B",
			ImageFilename: "pic.png",
		},
		Image: pngBytes(t),
	}
}

func newTestAssembler(t *testing.T, enc Encoder) (*Assembler, *layout.Layout, string) {
	t.Helper()
	r, err := render.New()
	require.NoError(t, err)
	l := layout.New(t.TempDir(), "T-1", "test")
	scratch := t.TempDir()
	a := NewAssembler(zerolog.Nop(), Config{
		Layout:   l,
		Renderer: r,
		Encoder:  enc,
		Spec:     videospec.Spec{FPS: 8, Width: 128, Height: 96, NumFrames: 5},
		Style:    render.StyleDarken,
		TempDir:  scratch,
	})
	return a, l, scratch
}

func TestAssembleSuccess(t *testing.T) {
	enc := &stubEncoder{}
	a, l, scratch := newTestAssembler(t, enc)

	res := a.Assemble(context.Background(), Job{Index: 0, Record: testRecord(t)})
	require.NoError(t, res.Err)
	assert.Equal(t, Processed, res.Status)
	assert.False(t, res.Incomplete)
	assert.Equal(t, "test_0000", res.SampleName)
	assert.EqualValues(t, 5, enc.frames.Load())
	assert.True(t, enc.progress.Load(), "encode progress is reported")

	p := l.Paths(0)
	for _, f := range []string{p.FirstFrame, p.FinalFrame, p.Video, p.Prompt, p.Question, p.OriginalImage("pic.png")} {
		assert.FileExists(t, f)
	}

	first, err := os.ReadFile(p.FirstFrame)
	require.NoError(t, err)
	final, err := os.ReadFile(p.FinalFrame)
	require.NoError(t, err)
	assert.NotEqual(t, first, final, "final frame is highlighted")

	entries, _ := os.ReadDir(scratch)
	assert.Empty(t, entries, "scratch frames are removed")

	prompt, err := os.ReadFile(p.Prompt)
	require.NoError(t, err)
	assert.Equal(t, "Which?\n\nA: one\nB: two\n\nAnswer: B\n", string(prompt))
}

func TestAssembleEncodeFailure(t *testing.T) {
	enc := &stubEncoder{err: errors.New("boom")}
	a, l, scratch := newTestAssembler(t, enc)

	res := a.Assemble(context.Background(), Job{Index: 2, Record: testRecord(t)})
	assert.Equal(t, Failed, res.Status)
	assert.True(t, res.Incomplete)
	assert.Equal(t, errs.KindEncode, res.Kind)
	assert.ErrorIs(t, res.Err, errs.ErrEncode)

	p := l.Paths(2)
	assert.FileExists(t, p.Prompt)
	assert.FileExists(t, p.Question)
	assert.NoFileExists(t, p.Video)
	assert.NoFileExists(t, p.FirstFrame)
	assert.NoFileExists(t, p.FinalFrame)

	entries, _ := os.ReadDir(scratch)
	assert.Empty(t, entries)
}

func TestAssembleRenderFailure(t *testing.T) {
	enc := &stubEncoder{}
	a, l, _ := newTestAssembler(t, enc)

	rec := testRecord(t)
	rec.Image = []byte("garbage")
	res := a.Assemble(context.Background(), Job{Index: 1, Record: rec})

	assert.Equal(t, Failed, res.Status)
	assert.Equal(t, errs.KindRender, res.Kind)
	assert.EqualValues(t, 0, enc.calls.Load())
	assert.FileExists(t, l.Paths(1).Prompt)
	assert.FileExists(t, l.Paths(1).OriginalImage("pic.png"))
}

func TestAssembleInvalidSample(t *testing.T) {
	a, l, _ := newTestAssembler(t, &stubEncoder{})

	rec := testRecord(t)
	rec.Sample.Answer = "E"
	res := a.Assemble(context.Background(), Job{Index: 0, Record: rec})

	assert.Equal(t, Skipped, res.Status)
	assert.Equal(t, errs.KindSampleValidation, res.Kind)
	assert.NoDirExists(t, l.Paths(0).Dir)
}

func TestAssembleResetsSampleDir(t *testing.T) {
	a, l, _ := newTestAssembler(t, &stubEncoder{})
	p := l.Paths(0)
	require.NoError(t, os.MkdirAll(p.Dir, 0o755))
	stale := filepath.Join(p.Dir, "stale.txt")
	require.NoError(t, os.WriteFile(stale, []byte("old"), 0o644))

	res := a.Assemble(context.Background(), Job{Index: 0, Record: testRecord(t)})
	require.NoError(t, res.Err)
	assert.NoFileExists(t, stale)
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "processed", Processed.String())
	assert.Equal(t, "skipped", Skipped.String())
	assert.Equal(t, "failed", Failed.String())
}
