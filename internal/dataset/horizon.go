package dataset

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"iter"
	"math/rand/v2"

	"github.com/rs/zerolog"

	"github.com/keagan/videomcp/internal/errs"
	"github.com/keagan/videomcp/internal/mcqa"
)

const (
	horizonDefaultCount = 100
	horizonWidth        = 320
	horizonHeight       = 240
)

func init() {
	Register("horizon", newHorizon)
}

// Horizon is a synthetic dataset: a sky over a ground plane with the sun in
// one of four positions. It needs no download and is deterministic for a
// given seed, which makes it useful for smoke runs.
type Horizon struct {
	seed   uint64
	count  int
	logger zerolog.Logger
}

func newHorizon(opts Options) Adapter {
	count := opts.Count
	if count <= 0 {
		count = horizonDefaultCount
	}
	return &Horizon{
		seed:   opts.Seed,
		count:  count,
		logger: opts.Logger.With().Str("dataset", "horizon").Logger(),
	}
}

func (h *Horizon) Name() string        { return "horizon" }
func (h *Horizon) GeneratorID() string { return "S-1" }

func (h *Horizon) Download(ctx context.Context, outDir string) (string, error) {
	h.logger.Info().Msg("synthetic dataset, nothing to download")
	return "", nil
}

var horizonChoices = map[string]string{
	"A": "left",
	"B": "right",
	"C": "down",
	"D": "up",
}

func (h *Horizon) Samples(ctx context.Context) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		rng := rand.New(rand.NewPCG(h.seed, h.seed^0x9e3779b97f4a7c15))
		for i := range h.count {
			if ctx.Err() != nil {
				return
			}
			answer, _ := mcqa.ChoiceFromIndex(rng.IntN(mcqa.MaxChoices))
			img, err := drawHorizon(rng, answer)
			if err != nil {
				err = errs.Adapter(fmt.Sprintf("horizon %06d", i), err)
			}

			choices := make(map[string]string, len(horizonChoices))
			for k, v := range horizonChoices {
				choices[k] = v
			}
			rec := Record{
				Sample: mcqa.Sample{
					Dataset:       "Horizon",
					SourceID:      fmt.Sprintf("%06d", i),
					Question:      "Where is the sun in the scene?",
					Choices:       choices,
					Answer:        answer,
					ImageFilename: fmt.Sprintf("horizon_%06d.png", i),
				},
				Image: img,
			}
			if !yield(rec, err) {
				return
			}
		}
	}
}

// drawHorizon paints the scene for answer and returns PNG bytes.
func drawHorizon(rng *rand.Rand, answer string) ([]byte, error) {
	w, h := horizonWidth, horizonHeight
	horizonY := h/2 + rng.IntN(h/8) - h/16
	img := image.NewRGBA(image.Rect(0, 0, w, h))

	for y := range h {
		var c color.RGBA
		if y < horizonY {
			t := float64(y) / float64(horizonY)
			c = color.RGBA{uint8(70 + 90*t), uint8(130 + 70*t), uint8(220 + 20*t), 255}
		} else {
			t := float64(y-horizonY) / float64(h-horizonY)
			c = color.RGBA{uint8(80 - 30*t), uint8(140 - 50*t), uint8(60 - 20*t), 255}
		}
		for x := range w {
			img.SetRGBA(x, y, c)
		}
	}

	r := 18 + rng.IntN(8)
	jitter := func(n int) int { return rng.IntN(2*n+1) - n }
	var cx, cy int
	switch answer {
	case "A":
		cx, cy = w/6+jitter(8), horizonY/2+jitter(10)
	case "B":
		cx, cy = w-w/6+jitter(8), horizonY/2+jitter(10)
	case "C":
		cx, cy = w/2+jitter(20), horizonY-r/2
	default:
		cx, cy = w/2+jitter(20), r+8+jitter(4)
	}

	sun := color.RGBA{255, 214, 64, 255}
	for y := cy - r; y <= cy+r; y++ {
		for x := cx - r; x <= cx+r; x++ {
			dx, dy := x-cx, y-cy
			if dx*dx+dy*dy > r*r || y >= horizonY || !image.Pt(x, y).In(img.Rect) {
				continue
			}
			img.SetRGBA(x, y, sun)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
