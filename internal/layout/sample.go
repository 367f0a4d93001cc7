package layout

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/keagan/videomcp/internal/mcqa"
	"github.com/keagan/videomcp/pkg/util"
)

// Question is original/question.json.
type Question struct {
	Dataset               string            `json:"dataset"`
	SourceID              string            `json:"source_id"`
	Question              string            `json:"question"`
	Choices               map[string]string `json:"choices"`
	Answer                string            `json:"answer"`
	OriginalImageFilename string            `json:"original_image_filename"`
}

func QuestionFromSample(s mcqa.Sample) Question {
	return Question{
		Dataset:               s.Dataset,
		SourceID:              s.SourceID,
		Question:              s.Question,
		Choices:               s.Choices,
		Answer:                s.Answer,
		OriginalImageFilename: s.ImageFilename,
	}
}

func (q Question) Sample() mcqa.Sample {
	return mcqa.Sample{
		Dataset:       q.Dataset,
		SourceID:      q.SourceID,
		Question:      q.Question,
		Choices:       q.Choices,
		Answer:        q.Answer,
		ImageFilename: q.OriginalImageFilename,
	}
}

func WriteQuestion(path string, s mcqa.Sample) error {
	data, err := marshal(QuestionFromSample(s))
	if err != nil {
		return err
	}
	return util.WriteFileAtomic(path, data, 0o644)
}

func ReadQuestion(path string) (mcqa.Sample, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return mcqa.Sample{}, err
	}
	var q Question
	if err := json.Unmarshal(data, &q); err != nil {
		return mcqa.Sample{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return q.Sample(), nil
}

// FormatPrompt renders prompt.txt: the question, a blank line, one line per
// present choice in A..D order, a blank line and the answer.
func FormatPrompt(s mcqa.Sample) string {
	var b strings.Builder
	b.WriteString(s.Question)
	b.WriteString("\n\n")
	for _, k := range s.Letters() {
		fmt.Fprintf(&b, "%s: %s\n", k, s.Choices[k])
	}
	fmt.Fprintf(&b, "\nAnswer: %s\n", s.Answer)
	return b.String()
}

func WritePrompt(path string, s mcqa.Sample) error {
	return util.WriteFileAtomic(path, []byte(FormatPrompt(s)), 0o644)
}
