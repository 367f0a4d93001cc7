// Package videospec validates the numeric clip configuration shared by the
// renderer and the encoder.
package videospec

import (
	"errors"
	"fmt"

	"github.com/keagan/videomcp/internal/errs"
)

// Defaults target Wan2.2-I2V: 480p, 16 fps, 81 frames (~5 s).
const (
	DefaultFPS       = 16
	DefaultWidth     = 832
	DefaultHeight    = 480
	DefaultNumFrames = 81
)

// Spec is a validated clip configuration. Seconds is derived, never stored.
type Spec struct {
	FPS       int `json:"fps" yaml:"fps"`
	Width     int `json:"width" yaml:"width"`
	Height    int `json:"height" yaml:"height"`
	NumFrames int `json:"num_frames" yaml:"num_frames"`
}

// FieldError names the offending field and the rule it broke.
type FieldError struct {
	Field string
	Value int
	Rule  string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s=%d: %s", e.Field, e.Value, e.Rule)
}

// Default returns the default spec.
func Default() Spec {
	return Spec{
		FPS:       DefaultFPS,
		Width:     DefaultWidth,
		Height:    DefaultHeight,
		NumFrames: DefaultNumFrames,
	}
}

// New validates the four raw inputs together and returns the spec, or a
// configuration error listing every violated rule.
func New(fps, width, height, numFrames int) (Spec, error) {
	s := Spec{FPS: fps, Width: width, Height: height, NumFrames: numFrames}
	if err := s.Validate(); err != nil {
		return Spec{}, err
	}
	return s, nil
}

// Validate checks all rules without short-circuiting. Values are never
// rounded or corrected.
func (s Spec) Validate() error {
	var problems []error

	if s.FPS <= 0 {
		problems = append(problems, &FieldError{"fps", s.FPS, "must be > 0"})
	}
	problems = append(problems, dimension("width", s.Width)...)
	problems = append(problems, dimension("height", s.Height)...)

	switch {
	case s.NumFrames < 1:
		problems = append(problems, &FieldError{"num_frames", s.NumFrames, "must be >= 1"})
	case (s.NumFrames-1)%4 != 0:
		problems = append(problems, &FieldError{"num_frames", s.NumFrames, "must be of the form 1+4k"})
	}

	if len(problems) == 0 {
		return nil
	}
	return errs.Configuration("video spec", errors.Join(problems...))
}

func dimension(field string, v int) []error {
	if v <= 0 {
		return []error{&FieldError{field, v, "must be > 0"}}
	}
	if v%8 != 0 {
		return []error{&FieldError{field, v, "must be divisible by 8"}}
	}
	return nil
}

// Seconds is NumFrames / FPS.
func (s Spec) Seconds() float64 {
	if s.FPS <= 0 {
		return 0
	}
	return float64(s.NumFrames) / float64(s.FPS)
}

// Fields returns the offending field names of a validation error.
func Fields(err error) []string {
	var out []string
	var walk func(error)
	walk = func(e error) {
		if e == nil {
			return
		}
		if fe, ok := e.(*FieldError); ok {
			out = append(out, fe.Field)
			return
		}
		if j, ok := e.(interface{ Unwrap() []error }); ok {
			for _, inner := range j.Unwrap() {
				walk(inner)
			}
			return
		}
		walk(errors.Unwrap(e))
	}
	walk(err)
	return out
}

func (s Spec) String() string {
	return fmt.Sprintf("%dx%d %dfps %d frames (%.4gs)", s.Width, s.Height, s.FPS, s.NumFrames, s.Seconds())
}
