package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/keagan/videomcp/internal/errs"
)

// skipIfNoFFmpeg skips the test if ffmpeg is not available
func skipIfNoFFmpeg(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not found in PATH - install with: brew install ffmpeg")
	}
}

func writeFrames(t *testing.T, dir string, n, w, h int) {
	t.Helper()
	for i := range n {
		img := image.NewRGBA(image.Rect(0, 0, w, h))
		c := color.RGBA{uint8(i * 20), 100, 200, 255}
		for y := range h {
			for x := range w {
				img.SetRGBA(x, y, c)
			}
		}
		f, err := os.Create(filepath.Join(dir, fmt.Sprintf("frame_%05d.png", i)))
		if err != nil {
			t.Fatal(err)
		}
		if err := png.Encode(f, img); err != nil {
			t.Fatal(err)
		}
		f.Close()
	}
}

func TestNewMissingBinary(t *testing.T) {
	_, err := New(zerolog.Nop(), Config{BinaryPath: "/nonexistent/ffmpeg-binary"})
	if !errors.Is(err, errs.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestBuildEncodeArgs(t *testing.T) {
	req := EncodeRequest{FramesDir: "/tmp/frames", FPS: 16, Width: 832, Height: 480, Output: "/out/ground_truth.mp4"}
	args := buildEncodeArgs(req, "/out/.tmp", "medium", 18)
	got := strings.Join(args, " ")

	want := "-framerate 16 -start_number 0 -i /tmp/frames/frame_%05d.png " +
		"-vf scale=832:480:flags=lanczos,fps=16,format=yuv420p -c:v libx264 -preset medium -crf 18 " +
		"-pix_fmt yuv420p -movflags +faststart -an -f mp4 /out/.tmp"
	if got != want {
		t.Errorf("args mismatch\n got: %s\nwant: %s", got, want)
	}
}

func TestValidateEncodeRequest(t *testing.T) {
	err := validateEncodeRequest(EncodeRequest{})
	if err == nil {
		t.Fatal("expected error for empty request")
	}
	for _, want := range []string{"frames directory", "output path", "fps", "invalid size"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestFilterBuilder(t *testing.T) {
	fb := NewFilterBuilder()
	filter := fb.Scale(1920, 1080).FPS(30).Build()

	expected := "scale=1920:1080:flags=lanczos,fps=30"
	if filter != expected {
		t.Errorf("expected %q, got %q", expected, filter)
	}
}

func TestFilterBuilderEmpty(t *testing.T) {
	fb := NewFilterBuilder()
	filter := fb.Scale(0, 0).FPS(0).Format("").Build()

	if filter != "" {
		t.Errorf("expected empty string, got %q", filter)
	}
}

func TestEncodeProgressIsLogged(t *testing.T) {
	var buf bytes.Buffer
	e := &Executor{logger: zerolog.New(&buf).Level(zerolog.DebugLevel)}

	e.progressHandler(EncodeRequest{Output: "/out/fake_0001/ground_truth.mp4"})(&Progress{Frame: 40, Speed: "3.2x"})

	line := buf.String()
	for _, want := range []string{`"frame":40`, `"speed":"3.2x"`, `"output":"ground_truth.mp4"`, `"level":"debug"`} {
		if !strings.Contains(line, want) {
			t.Errorf("log line %q does not contain %s", line, want)
		}
	}
}

func TestEncodeProgressIsForwarded(t *testing.T) {
	var buf bytes.Buffer
	e := &Executor{logger: zerolog.New(&buf)}

	var got []int
	h := e.progressHandler(EncodeRequest{Progress: func(p *Progress) { got = append(got, p.Frame) }})
	h(&Progress{Frame: 3})
	h(&Progress{Frame: 7})

	if len(got) != 2 || got[0] != 3 || got[1] != 7 {
		t.Errorf("expected frames [3 7], got %v", got)
	}
	if buf.Len() != 0 {
		t.Errorf("forwarded progress should not be logged, got %q", buf.String())
	}
}

func TestStreamOutputProgress(t *testing.T) {
	e := &Executor{logger: zerolog.Nop()}
	input := strings.Join([]string{
		"frame=12",
		"fps=24.5",
		"bitrate=N/A",
		"out_time=00:00:00.750000",
		"speed=2.1x",
		"progress=continue",
		"Something went wrong = badly",
		"frame=81",
		"progress=end",
	}, "\n")

	var got []Progress
	var logs []string
	e.streamOutput(strings.NewReader(input), func(p *Progress) { got = append(got, *p) }, func(l string) { logs = append(logs, l) })

	if len(got) != 2 {
		t.Fatalf("expected 2 progress blocks, got %d", len(got))
	}
	if got[0].Frame != 12 || got[0].FPS != 24.5 || got[0].Speed != "2.1x" || got[0].Time != "00:00:00.750000" {
		t.Errorf("unexpected first block: %+v", got[0])
	}
	if got[1].Frame != 81 {
		t.Errorf("expected frame 81, got %d", got[1].Frame)
	}
	if len(logs) != 1 || !strings.Contains(logs[0], "went wrong") {
		t.Errorf("expected the non-progress line to be logged, got %v", logs)
	}
}

func TestParseProbe(t *testing.T) {
	out := []byte(`{"format":{"duration":"5.062500","bit_rate":"12345"},
		"streams":[{"codec_type":"video","codec_name":"h264","width":832,"height":480,
		"pix_fmt":"yuv420p","r_frame_rate":"16/1","nb_read_frames":"81"}]}`)
	info, err := parseProbe("x.mp4", out)
	if err != nil {
		t.Fatal(err)
	}
	if info.Width != 832 || info.Height != 480 || info.Frames != 81 || info.FPS != 16 || info.PixFmt != "yuv420p" {
		t.Errorf("unexpected info: %+v", info)
	}
}

func TestEncodeFrames(t *testing.T) {
	skipIfNoFFmpeg(t)

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	e, err := New(logger, Config{Threads: 2})
	if err != nil {
		t.Fatalf("failed to create executor: %v", err)
	}

	frames := t.TempDir()
	writeFrames(t, frames, 9, 64, 48)
	out := filepath.Join(t.TempDir(), "ground_truth.mp4")

	var last Progress
	start := time.Now()
	err = e.Encode(context.Background(), EncodeRequest{
		FramesDir: frames, FPS: 16, Width: 64, Height: 48, Output: out,
		Progress: func(p *Progress) { last = *p },
	})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	t.Logf("encoded in %v", time.Since(start))
	if last.Frame != 9 {
		t.Errorf("expected final progress at frame 9, got %+v", last)
	}

	stat, err := os.Stat(out)
	if err != nil || stat.Size() == 0 {
		t.Fatalf("output missing: %v", err)
	}

	leftovers, _ := filepath.Glob(filepath.Join(filepath.Dir(out), ".ground_truth.mp4.tmp-*"))
	if len(leftovers) != 0 {
		t.Errorf("temp files left behind: %v", leftovers)
	}

	info, err := e.ProbeVideo(context.Background(), out)
	if errors.Is(err, ErrNoProbe) {
		t.Skip("ffprobe not installed")
	}
	if err != nil {
		t.Fatalf("ProbeVideo failed: %v", err)
	}
	if info.Width != 64 || info.Height != 48 {
		t.Errorf("expected 64x48, got %dx%d", info.Width, info.Height)
	}
	if info.Frames != 9 {
		t.Errorf("expected 9 frames, got %d", info.Frames)
	}
	if info.PixFmt != "yuv420p" {
		t.Errorf("expected yuv420p, got %s", info.PixFmt)
	}
}

func TestEncodeMissingFrames(t *testing.T) {
	skipIfNoFFmpeg(t)

	e, err := New(zerolog.Nop(), Config{})
	if err != nil {
		t.Fatalf("failed to create executor: %v", err)
	}

	outDir := t.TempDir()
	out := filepath.Join(outDir, "ground_truth.mp4")
	err = e.Encode(context.Background(), EncodeRequest{FramesDir: t.TempDir(), FPS: 16, Width: 64, Height: 48, Output: out})
	if !errors.Is(err, errs.ErrEncode) {
		t.Fatalf("expected encode error, got %v", err)
	}

	entries, _ := os.ReadDir(outDir)
	if len(entries) != 0 {
		t.Errorf("failed encode left files behind: %v", entries)
	}
}

func TestVersion(t *testing.T) {
	skipIfNoFFmpeg(t)

	e, err := New(zerolog.Nop(), Config{})
	if err != nil {
		t.Fatal(err)
	}
	v, err := e.Version(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(v, "ffmpeg version") {
		t.Errorf("unexpected version line %q", v)
	}
}
