package dataset

import (
	"archive/zip"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/keagan/videomcp/internal/errs"
	"github.com/keagan/videomcp/internal/hub"
	"github.com/keagan/videomcp/internal/mcqa"
)

const (
	coreCognitionRepo    = "williamium/CoreCognition"
	coreCognitionArchive = "CoreCognition_20250622.zip"
	coreCognitionRoot    = "CoreCognition_20250622"
)

func init() {
	Register("corecognition", newCoreCognition)
}

// CoreCognition reads the "complete" release of CoreCognition: a ZIP holding
// CoreCognition.csv and a media/ directory. Only multiple-choice questions
// with exactly one image and no video are kept.
type CoreCognition struct {
	rawDir string
	hub    *hub.Client
	logger zerolog.Logger
}

func newCoreCognition(opts Options) Adapter {
	return &CoreCognition{
		rawDir: opts.RawDir,
		hub:    opts.Hub,
		logger: opts.Logger.With().Str("dataset", "corecognition").Logger(),
	}
}

func (c *CoreCognition) Name() string        { return "corecognition" }
func (c *CoreCognition) GeneratorID() string { return "M-1" }

func (c *CoreCognition) Source() SourceInfo {
	return SourceInfo{
		HFRepoID:   coreCognitionRepo,
		HFConfig:   "complete",
		HFSplit:    "train",
		HFRevision: "main",
	}
}

// Download fetches the release ZIP (gated; needs HF_TOKEN).
func (c *CoreCognition) Download(ctx context.Context, outDir string) (string, error) {
	if outDir == "" {
		outDir = c.rawDir
	}
	if c.hub == nil {
		return "", errs.Configuration("download corecognition", errors.New("no hub client configured"))
	}
	p, err := c.hub.Download(ctx, hub.FileRequest{
		RepoID:   coreCognitionRepo,
		Filename: coreCognitionArchive,
	}, outDir)
	if err != nil {
		return "", errs.Adapter("download corecognition", err)
	}
	return p, nil
}

func (c *CoreCognition) archivePath() string {
	return filepath.Join(c.rawDir, coreCognitionArchive)
}

// Samples streams rows from the CSV inside the release ZIP.
func (c *CoreCognition) Samples(ctx context.Context) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		zr, err := zip.OpenReader(c.archivePath())
		if err != nil {
			yield(Record{}, errs.Adapter("open corecognition archive",
				fmt.Errorf("%w (run `videomcp download --dataset corecognition` first)", err)))
			return
		}
		defer zr.Close()

		readCoreCognition(ctx, &zr.Reader, c.logger, yield)
	}
}

// readCoreCognition is split out so tests can feed an in-memory archive.
func readCoreCognition(ctx context.Context, zr *zip.Reader, logger zerolog.Logger, yield func(Record, error) bool) {
	f, err := zr.Open(path.Join(coreCognitionRoot, "CoreCognition.csv"))
	if err != nil {
		yield(Record{}, errs.Adapter("open CoreCognition.csv", err))
		return
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.LazyQuotes = true
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		yield(Record{}, errs.Adapter("read CoreCognition.csv header", err))
		return
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.TrimSpace(strings.TrimPrefix(h, "﻿"))] = i
	}
	get := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	line := 1
	for {
		if ctx.Err() != nil {
			return
		}
		row, err := r.Read()
		line++
		if err == io.EOF {
			return
		}
		if err != nil {
			if !yield(Record{}, errs.Adapter(fmt.Sprintf("CoreCognition.csv line %d", line), err)) {
				return
			}
			continue
		}

		raw := coreCognitionRow{
			ID:       get(row, "id"),
			Type:     get(row, "type"),
			Question: get(row, "question"),
			Images:   get(row, "images"),
			Videos:   get(row, "videos"),
			Answer:   get(row, "answer"),
			Choices:  get(row, "choices"),
		}
		sample, image, keep := raw.toSample()
		if !keep {
			continue
		}

		data, err := readZipFile(zr, path.Join(coreCognitionRoot, "media", image))
		if err != nil {
			logger.Debug().Str("source_id", raw.ID).Err(err).Msg("media missing from archive")
			if !yield(Record{}, errs.Adapter("read media "+image+" for "+raw.ID, err)) {
				return
			}
			continue
		}

		if !yield(Record{Sample: sample, Image: data}, nil) {
			return
		}
	}
}

type coreCognitionRow struct {
	ID       string
	Type     string
	Question string
	Images   string
	Videos   string
	Answer   string
	Choices  string
}

var (
	imagePlaceholderRe = regexp.MustCompile(`(?i)^<image-placeholder:\s*([^>]+)>\s*`)
	videoPlaceholderRe = regexp.MustCompile(`(?i)<video-placeholder:`)
	choicesKVRe        = regexp.MustCompile(`(?i)(['"]?[A-Z]['"]?)\s*:\s*(nan|None|'.*?'|".*?")`)
)

// toSample applies the single-image MC filter. keep is false for rows that
// are not in scope (true/false questions, videos, multi-image).
func (r coreCognitionRow) toSample() (sample mcqa.Sample, image string, keep bool) {
	if strings.ToUpper(strings.TrimSpace(r.Type)) != "MC" {
		return sample, "", false
	}
	if strings.TrimSpace(r.Videos) != "" || videoPlaceholderRe.MatchString(r.Question) {
		return sample, "", false
	}

	fromCol := splitSingleImage(r.Images)
	fromQuestion, question := stripImagePlaceholder(r.Question)
	image = fromCol
	if image == "" {
		image = fromQuestion
	}
	if image == "" {
		return sample, "", false
	}

	choices := parseChoices(r.Choices)
	if len(choices) == 0 {
		return sample, "", false
	}

	answer := strings.TrimSpace(r.Answer)
	if letter, ok := mcqa.NormalizeChoice(answer); ok {
		answer = letter
	}

	return mcqa.Sample{
		Dataset:       "CoreCognition",
		SourceID:      strings.TrimSpace(r.ID),
		Question:      question,
		Choices:       choices,
		Answer:        answer,
		ImageFilename: path.Base(image),
	}, image, true
}

// parseChoices reads CoreCognition's Python-dict-like choices column, e.g.
// {'A': '0', 'B': '1', 'E': nan}. nan/None values and empty texts are dropped.
func parseChoices(s string) map[string]string {
	out := make(map[string]string)
	for _, m := range choicesKVRe.FindAllStringSubmatch(strings.TrimSpace(s), -1) {
		key := strings.ToUpper(strings.Trim(strings.TrimSpace(m[1]), `'"`))
		val := strings.TrimSpace(m[2])
		if key == "" {
			continue
		}
		switch strings.ToLower(val) {
		case "nan", "none":
			continue
		}
		if len(val) >= 2 && (val[0] == '\'' || val[0] == '"') && val[len(val)-1] == val[0] {
			val = val[1 : len(val)-1]
		}
		val = strings.TrimSpace(val)
		if val == "" || strings.EqualFold(val, "nan") {
			continue
		}
		out[key] = val
	}
	return out
}

func splitSingleImage(images string) string {
	var parts []string
	for _, p := range strings.Split(images, ";") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) != 1 {
		return ""
	}
	return parts[0]
}

func stripImagePlaceholder(q string) (image, rest string) {
	loc := imagePlaceholderRe.FindStringSubmatchIndex(q)
	if loc == nil {
		return "", strings.TrimSpace(q)
	}
	return strings.TrimSpace(q[loc[2]:loc[3]]), strings.TrimSpace(q[loc[1]:])
}

func readZipFile(zr *zip.Reader, name string) ([]byte, error) {
	f, err := zr.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
