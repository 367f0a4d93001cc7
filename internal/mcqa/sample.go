// Package mcqa holds the dataset-agnostic multiple-choice VQA sample that
// every adapter produces and the clip pipeline consumes.
package mcqa

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/keagan/videomcp/internal/errs"
)

// Choice letters in corner order: A top-left, B top-right, C bottom-left,
// D bottom-right.
var Letters = []string{"A", "B", "C", "D"}

const (
	MinChoices = 2
	MaxChoices = 4
)

// Sample is one MCQA example. It is created by an adapter, consumed once by
// the clip assembler and never mutated afterwards.
type Sample struct {
	Dataset       string            `json:"dataset"`
	SourceID      string            `json:"source_id"`
	Question      string            `json:"question"`
	Choices       map[string]string `json:"choices"`
	Answer        string            `json:"answer"`
	ImageFilename string            `json:"image_filename"`
}

// Letters returns the present choice keys in A..D order.
func (s Sample) Letters() []string {
	out := make([]string, 0, len(s.Choices))
	for _, l := range Letters {
		if _, ok := s.Choices[l]; ok {
			out = append(out, l)
		}
	}
	return out
}

// Validate checks every sample invariant and reports all violations at once.
func (s Sample) Validate() error {
	var problems []error

	if strings.TrimSpace(s.Question) == "" {
		problems = append(problems, errors.New("question is empty"))
	}

	n := len(s.Choices)
	if n < MinChoices || n > MaxChoices {
		problems = append(problems, fmt.Errorf("choices: have %d entries, want %d-%d", n, MinChoices, MaxChoices))
	}
	for k, v := range s.Choices {
		if !isLetter(k) {
			problems = append(problems, fmt.Errorf("choices: key %q is not one of A-D", k))
			continue
		}
		if strings.TrimSpace(v) == "" {
			problems = append(problems, fmt.Errorf("choices: %s has empty text", k))
		}
	}

	if !isLetter(s.Answer) {
		problems = append(problems, fmt.Errorf("answer %q is not one of A-D", s.Answer))
	} else if _, ok := s.Choices[s.Answer]; !ok {
		problems = append(problems, fmt.Errorf("answer %q is not a key of choices", s.Answer))
	}

	name := strings.TrimSpace(s.ImageFilename)
	if name == "" {
		problems = append(problems, errors.New("image_filename is empty"))
	} else if name == "." || name == ".." || filepath.Base(name) != name {
		problems = append(problems, fmt.Errorf("image_filename %q is not a basename", name))
	}

	if len(problems) == 0 {
		return nil
	}
	return errs.SampleValidation(s.SourceID, errors.Join(problems...))
}

// NormalizeChoice maps a raw answer such as " b " to its letter. Only A-D are
// accepted.
func NormalizeChoice(raw string) (string, bool) {
	v := strings.ToUpper(strings.TrimSpace(raw))
	if isLetter(v) {
		return v, true
	}
	return "", false
}

// ChoiceFromIndex maps 0..3 to A..D.
func ChoiceFromIndex(i int) (string, bool) {
	if i < 0 || i >= len(Letters) {
		return "", false
	}
	return Letters[i], true
}

func isLetter(s string) bool {
	for _, l := range Letters {
		if s == l {
			return true
		}
	}
	return false
}
