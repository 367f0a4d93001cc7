package dataset

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/keagan/videomcp/internal/errs"
	"github.com/keagan/videomcp/internal/mcqa"
)

// MetadataFile is the name of the per-split index written by export.
const MetadataFile = "metadata.jsonl"

// ImagesDir holds the images referenced from metadata.jsonl.
const ImagesDir = "images"

func init() {
	Register("jsonl", newJSONL)
}

// Row is one line of metadata.jsonl. The layout is
// <root>/<split>/metadata.jsonl with images under <root>/<split>/images/.
type Row struct {
	Dataset   string            `json:"dataset"`
	Split     string            `json:"split"`
	SourceID  string            `json:"source_id"`
	Task      string            `json:"task,omitempty"`
	Question  string            `json:"question"`
	Choices   map[string]string `json:"choices"`
	Answer    string            `json:"answer"`
	ImagePath string            `json:"image_path"`
}

// TaskMCQA is the only task written by export.
const TaskMCQA = "mcqa_vqa"

// ExportImageName is the file name export gives a sample's image.
func ExportImageName(s mcqa.Sample) string {
	return s.SourceID + "__" + s.ImageFilename
}

// RowFromSample builds the row export writes for s.
func RowFromSample(s mcqa.Sample, split string) Row {
	return Row{
		Dataset:   s.Dataset,
		Split:     split,
		SourceID:  s.SourceID,
		Task:      TaskMCQA,
		Question:  s.Question,
		Choices:   s.Choices,
		Answer:    s.Answer,
		ImagePath: ImagesDir + "/" + ExportImageName(s),
	}
}

// JSONL reads samples previously exported to the intermediate format.
type JSONL struct {
	rawDir string
	split  string
	logger zerolog.Logger
}

func newJSONL(opts Options) Adapter {
	split := opts.Split
	if split == "" {
		split = "train"
	}
	return &JSONL{
		rawDir: opts.RawDir,
		split:  split,
		logger: opts.Logger.With().Str("dataset", "jsonl").Logger(),
	}
}

func (j *JSONL) Name() string        { return "jsonl" }
func (j *JSONL) GeneratorID() string { return "L-1" }

func (j *JSONL) metadataPath() string {
	return filepath.Join(j.rawDir, j.split, MetadataFile)
}

// Download has nothing to fetch; it only checks that the export exists.
func (j *JSONL) Download(ctx context.Context, outDir string) (string, error) {
	p := j.metadataPath()
	if outDir != "" {
		p = filepath.Join(outDir, j.split, MetadataFile)
	}
	if _, err := os.Stat(p); err != nil {
		return "", errs.Adapter("locate jsonl export",
			fmt.Errorf("%w (produce one with `videomcp export`)", err))
	}
	return p, nil
}

func (j *JSONL) Samples(ctx context.Context) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		f, err := os.Open(j.metadataPath())
		if err != nil {
			yield(Record{}, errs.Adapter("open "+MetadataFile, err))
			return
		}
		defer f.Close()

		splitDir := filepath.Dir(j.metadataPath())
		sc := bufio.NewScanner(f)
		sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

		line := 0
		for sc.Scan() {
			if ctx.Err() != nil {
				return
			}
			line++
			b := sc.Bytes()
			if len(b) == 0 {
				continue
			}

			rec, err := j.readRow(splitDir, b)
			if err != nil {
				err = errs.Adapter(fmt.Sprintf("%s line %d", MetadataFile, line), err)
			}
			if !yield(rec, err) {
				return
			}
		}
		if err := sc.Err(); err != nil {
			yield(Record{}, errs.Adapter("scan "+MetadataFile, err))
		}
	}
}

func (j *JSONL) readRow(splitDir string, b []byte) (Record, error) {
	var row Row
	if err := json.Unmarshal(b, &row); err != nil {
		return Record{}, err
	}
	if row.ImagePath == "" {
		return Record{}, errors.New("image_path is empty")
	}
	img, err := os.ReadFile(filepath.Join(splitDir, filepath.FromSlash(row.ImagePath)))
	if err != nil {
		return Record{}, err
	}

	answer := row.Answer
	if letter, ok := mcqa.NormalizeChoice(answer); ok {
		answer = letter
	}
	return Record{
		Sample: mcqa.Sample{
			Dataset:       row.Dataset,
			SourceID:      row.SourceID,
			Question:      row.Question,
			Choices:       row.Choices,
			Answer:        answer,
			ImageFilename: strings.TrimPrefix(path.Base(row.ImagePath), row.SourceID+"__"),
		},
		Image: img,
	}, nil
}
