// Package render draws the frames of an MCQA clip: the question image and
// text on a white canvas with one lettered box per choice in the corners. The
// answer box lights up as the clip progresses.
package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"sync"

	"github.com/nfnt/resize"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/keagan/videomcp/internal/errs"
	"github.com/keagan/videomcp/internal/mcqa"
	"github.com/keagan/videomcp/internal/videospec"
)

// Colours.
var (
	canvasColor  = color.RGBA{255, 255, 255, 255}
	panelColor   = color.RGBA{242, 244, 247, 255}
	textColor    = color.RGBA{30, 30, 30, 255}
	outlineColor = color.RGBA{200, 200, 200, 255}
	redColor     = color.RGBA{220, 30, 30, 255}

	neutralFill uint8 = 245
	darkFill    uint8 = 70
)

const minTextSize = 8

// Renderer holds the parsed fonts. It is safe for concurrent use.
type Renderer struct {
	regular *opentype.Font
	bold    *opentype.Font
}

// New parses the embedded Go fonts.
func New() (*Renderer, error) {
	regular, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse regular font: %w", err)
	}
	bold, err := opentype.Parse(gobold.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse bold font: %w", err)
	}
	return &Renderer{regular: regular, bold: bold}, nil
}

var defaultRenderer = sync.OnceValues(New)

// Scene is one sample laid out for one video spec. The static parts are drawn
// once; Frame only repaints the answer box. A Scene owns font faces and must
// not be shared between goroutines.
type Scene struct {
	spec     videospec.Spec
	answer   string
	base     *image.RGBA
	corners  map[string]image.Rectangle
	radius   float32
	stroke   float32
	letter   font.Face
	text     font.Face
	textFits bool
}

// Layout is the geometry shared by every frame of a spec.
type Layout struct {
	Margin  int
	Corners map[string]image.Rectangle
	Panel   image.Rectangle
	Image   image.Rectangle
	Text    image.Rectangle
}

// ComputeLayout places the corner boxes and the panel for a canvas.
func ComputeLayout(spec videospec.Spec) Layout {
	w, h := spec.Width, spec.Height
	short := min(w, h)
	margin := max(2, int(math.Round(float64(short)*0.03)))
	boxW := max(8, int(math.Round(float64(short)*0.14)))
	boxH := max(6, int(math.Round(float64(boxW)*0.75)))

	l := Layout{
		Margin: margin,
		Corners: map[string]image.Rectangle{
			"A": image.Rect(margin, margin, margin+boxW, margin+boxH),
			"B": image.Rect(w-margin-boxW, margin, w-margin, margin+boxH),
			"C": image.Rect(margin, h-margin-boxH, margin+boxW, h-margin),
			"D": image.Rect(w-margin-boxW, h-margin-boxH, w-margin, h-margin),
		},
	}

	l.Panel = image.Rect(margin, margin+boxH+margin, w-margin, h-margin-boxH-margin)
	if l.Panel.Empty() {
		l.Panel = image.Rectangle{}
		return l
	}

	pad := max(1, margin/2)
	inner := l.Panel.Inset(pad)
	if inner.Empty() {
		return l
	}
	leftW := int(float64(inner.Dx()) * 0.45)
	l.Image = image.Rect(inner.Min.X, inner.Min.Y, inner.Min.X+leftW, inner.Max.Y)
	l.Text = image.Rect(inner.Min.X+leftW+pad, inner.Min.Y, inner.Max.X, inner.Max.Y)
	if l.Text.Empty() {
		l.Text = image.Rectangle{}
	}
	return l
}

// Prepare decodes the image and draws everything that does not change
// between frames.
func (r *Renderer) Prepare(s mcqa.Sample, imageBytes []byte, spec videospec.Spec) (*Scene, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	src, _, err := image.Decode(bytes.NewReader(imageBytes))
	if err != nil {
		return nil, errs.Render("decode "+s.ImageFilename, err)
	}

	l := ComputeLayout(spec)
	base := image.NewRGBA(image.Rect(0, 0, spec.Width, spec.Height))
	draw.Draw(base, base.Bounds(), image.NewUniform(canvasColor), image.Point{}, draw.Src)

	sc := &Scene{
		spec:     spec,
		answer:   s.Answer,
		base:     base,
		corners:  make(map[string]image.Rectangle),
		textFits: true,
	}

	if !l.Panel.Empty() {
		fillRoundedRect(base, l.Panel, float32(l.Margin), panelColor)
	}
	drawFitted(base, l.Image, src)

	var choices []string
	for _, k := range s.Letters() {
		choices = append(choices, k+": "+s.Choices[k])
	}
	if !l.Text.Empty() {
		maxSize := max(minTextSize, spec.Height/12)
		block, fits, err := fitText(r.regular, s.Question, choices, l.Text.Dx(), l.Text.Dy(), minTextSize, maxSize)
		if err != nil {
			return nil, errs.Render("fit text", err)
		}
		sc.text = block.face
		sc.textFits = fits
		drawBlock(base, l.Text, block)
	} else if s.Question != "" || len(choices) > 0 {
		sc.textFits = false
	}

	letterSize := max(minTextSize, int(float64(l.Corners["A"].Dy())*0.6))
	sc.letter, err = newFace(r.bold, letterSize)
	if err != nil {
		sc.Close()
		return nil, errs.Render("letter face", err)
	}
	sc.radius = float32(l.Corners["A"].Dy()) * 0.2
	sc.stroke = float32(max(2, l.Corners["A"].Dy()/8))

	for _, k := range s.Letters() {
		sc.corners[k] = l.Corners[k]
		sc.drawBox(base, k, gray(neutralFill), gray(darkFill))
	}
	return sc, nil
}

// TextFits reports whether the question and choices fit without truncation.
func (s *Scene) TextFits() bool { return s.textFits }

// Frame renders frame i of n.
func (s *Scene) Frame(i, n int, style Style) (*image.RGBA, error) {
	p, err := Progress(i, n)
	if err != nil {
		return nil, err
	}
	style, err = ParseStyle(string(style))
	if err != nil {
		return nil, err
	}

	img := image.NewRGBA(s.base.Rect)
	copy(img.Pix, s.base.Pix)

	if p == 0 {
		return img, nil
	}
	if _, ok := s.corners[s.answer]; !ok {
		return img, nil
	}

	switch style {
	case StyleDarken:
		fill := gray(lerp(neutralFill, darkFill, p))
		ink := gray(lerp(darkFill, 255, p))
		s.drawBox(img, s.answer, fill, ink)
	case StyleRedBorder:
		c := redColor
		a := uint8(math.Round(p * 255))
		// Premultiplied.
		ring := color.RGBA{
			uint8(uint16(c.R) * uint16(a) / 255),
			uint8(uint16(c.G) * uint16(a) / 255),
			uint8(uint16(c.B) * uint16(a) / 255),
			a,
		}
		strokeRoundedRect(img, s.corners[s.answer], s.radius, float32(p)*s.stroke, ring)
	}
	return img, nil
}

// Close releases the scene's font faces.
func (s *Scene) Close() error {
	if s.letter != nil {
		s.letter.Close()
	}
	if s.text != nil {
		s.text.Close()
	}
	return nil
}

func (s *Scene) drawBox(dst draw.Image, letter string, fill, ink color.RGBA) {
	r := s.corners[letter]
	fillRoundedRect(dst, r, s.radius, outlineColor)
	fillRoundedRect(dst, r.Inset(1), max(0, s.radius-1), fill)

	d := font.Drawer{Dst: dst, Src: image.NewUniform(ink), Face: s.letter}
	adv := d.MeasureString(letter)
	m := s.letter.Metrics()
	x := fixed.I(r.Min.X) + (fixed.I(r.Dx())-adv)/2
	y := fixed.I(r.Min.Y) + (fixed.I(r.Dy())-(m.Ascent+m.Descent))/2 + m.Ascent
	d.Dot = fixed.Point26_6{X: x, Y: y}
	d.DrawString(letter)
}

// RenderFrame renders a single frame. Callers producing a whole clip should
// use Prepare once and Frame per index.
func RenderFrame(s mcqa.Sample, imageBytes []byte, i, n int, spec videospec.Spec, style Style) (*image.RGBA, error) {
	if _, err := ParseStyle(string(style)); err != nil {
		return nil, err
	}
	if _, err := Progress(i, n); err != nil {
		return nil, err
	}
	r, err := defaultRenderer()
	if err != nil {
		return nil, errs.Render("load fonts", err)
	}
	sc, err := r.Prepare(s, imageBytes, spec)
	if err != nil {
		return nil, err
	}
	defer sc.Close()
	return sc.Frame(i, n, style)
}

// drawFitted scales src to fit inside r, preserving aspect, and centres it.
func drawFitted(dst draw.Image, r image.Rectangle, src image.Image) {
	sb := src.Bounds()
	if r.Empty() || sb.Empty() {
		return
	}
	scale := math.Min(float64(r.Dx())/float64(sb.Dx()), float64(r.Dy())/float64(sb.Dy()))
	w := max(1, int(float64(sb.Dx())*scale))
	h := max(1, int(float64(sb.Dy())*scale))

	scaled := resize.Resize(uint(w), uint(h), src, resize.Bilinear)
	off := image.Pt(r.Min.X+(r.Dx()-w)/2, r.Min.Y+(r.Dy()-h)/2)
	draw.Draw(dst, image.Rectangle{Min: off, Max: off.Add(image.Pt(w, h))}, scaled, scaled.Bounds().Min, draw.Over)
}

func drawBlock(dst draw.Image, r image.Rectangle, b textBlock) {
	d := font.Drawer{Dst: dst, Src: image.NewUniform(textColor), Face: b.face}
	ascent := b.face.Metrics().Ascent
	y := r.Min.Y

	line := func(s string) {
		d.Dot = fixed.Point26_6{X: fixed.I(r.Min.X), Y: fixed.I(y) + ascent}
		d.DrawString(s)
		y += b.lineHeight
	}
	for _, s := range b.question {
		line(s)
	}
	if len(b.choices) > 0 {
		y += b.lineHeight / 2
	}
	for _, s := range b.choices {
		line(s)
	}
}
