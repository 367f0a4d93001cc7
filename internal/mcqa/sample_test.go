package mcqa

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keagan/videomcp/internal/errs"
)

func validSample() Sample {
	return Sample{
		Dataset:       "Test",
		SourceID:      "row-1",
		Question:      "What colour is the sky?",
		Choices:       map[string]string{"A": "Red", "B": "Blue"},
		Answer:        "B",
		ImageFilename: "sky.png",
	}
}

func TestValidateAcceptsValidSample(t *testing.T) {
	require.NoError(t, validSample().Validate())

	s := validSample()
	s.Choices = map[string]string{"A": "1", "B": "2", "C": "3", "D": "4"}
	s.Answer = "D"
	require.NoError(t, s.Validate())
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Sample)
		want   string
	}{
		{"answer E", func(s *Sample) { s.Answer = "E" }, `answer "E" is not one of A-D`},
		{"answer missing from choices", func(s *Sample) { s.Answer = "C" }, `answer "C" is not a key of choices`},
		{"five choices", func(s *Sample) {
			s.Choices = map[string]string{"A": "1", "B": "2", "C": "3", "D": "4", "E": "5"}
		}, "have 5 entries"},
		{"one choice", func(s *Sample) {
			s.Choices = map[string]string{"B": "Blue"}
		}, "have 1 entries"},
		{"lowercase key", func(s *Sample) { s.Choices = map[string]string{"a": "Red", "B": "Blue"} }, `key "a"`},
		{"empty question", func(s *Sample) { s.Question = "  " }, "question is empty"},
		{"empty choice text", func(s *Sample) { s.Choices["A"] = "" }, "A has empty text"},
		{"path in filename", func(s *Sample) { s.ImageFilename = "media/sky.png" }, "not a basename"},
		{"dot filename", func(s *Sample) { s.ImageFilename = "." }, "not a basename"},
		{"dot dot filename", func(s *Sample) { s.ImageFilename = ".." }, "not a basename"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSample()
			tt.mutate(&s)

			err := s.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, errs.ErrSampleValidation)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateReportsEveryViolation(t *testing.T) {
	s := validSample()
	s.Question = ""
	s.Answer = "E"

	err := s.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "question is empty")
	assert.Contains(t, err.Error(), `answer "E"`)
}

func TestLettersOrder(t *testing.T) {
	s := validSample()
	s.Choices = map[string]string{"D": "4", "B": "2", "A": "1"}
	assert.Equal(t, []string{"A", "B", "D"}, s.Letters())
}

func TestNormalizeChoice(t *testing.T) {
	got, ok := NormalizeChoice(" c ")
	assert.True(t, ok)
	assert.Equal(t, "C", got)

	_, ok = NormalizeChoice("E")
	assert.False(t, ok)
	_, ok = NormalizeChoice("1")
	assert.False(t, ok)
}

func TestChoiceFromIndex(t *testing.T) {
	got, ok := ChoiceFromIndex(3)
	assert.True(t, ok)
	assert.Equal(t, "D", got)

	_, ok = ChoiceFromIndex(4)
	assert.False(t, ok)
	_, ok = ChoiceFromIndex(-1)
	assert.False(t, ok)
}
