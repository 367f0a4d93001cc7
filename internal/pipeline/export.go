package pipeline

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/keagan/videomcp/internal/dataset"
	"github.com/keagan/videomcp/internal/errs"
	"github.com/keagan/videomcp/internal/logging"
	"github.com/keagan/videomcp/pkg/util"
)

// Export writes the adapter's samples to <OutDir>/<Split>/metadata.jsonl with
// images under images/. Existing images are kept; metadata.jsonl is replaced
// once the export completes.
func (p *Pipeline) Export(ctx context.Context, adapter dataset.Adapter, opts ExportOptions) (*ExportResult, error) {
	if opts.OutDir == "" {
		return nil, errs.Configuration("export", fmt.Errorf("output directory is required"))
	}
	split := opts.Split
	if split == "" {
		split = "train"
	}
	p.registry.Freeze()

	splitDir := filepath.Join(opts.OutDir, split)
	imagesDir := filepath.Join(splitDir, dataset.ImagesDir)
	if err := util.EnsureDir(imagesDir); err != nil {
		return nil, errs.Configuration("create export dir", err)
	}

	res := &ExportResult{MetadataPath: filepath.Join(splitDir, dataset.MetadataFile)}
	tmp, err := os.CreateTemp(splitDir, "."+dataset.MetadataFile+".tmp-*")
	if err != nil {
		return nil, err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return nil, err
	}

	w := bufio.NewWriter(tmp)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	p.logger.Info().Str("dataset", adapter.Name()).Str("out", splitDir).Msg("exporting samples")

	for rec, err := range adapter.Samples(ctx) {
		if ctx.Err() != nil {
			break
		}
		if opts.Limit > 0 && res.Written >= opts.Limit {
			break
		}
		if err == nil {
			err = rec.Sample.Validate()
		}
		if err != nil {
			res.Skipped++
			logging.WithSample(p.logger, adapter.Name(), rec.Sample.SourceID).Warn().
				Str("kind", string(errs.KindOf(err))).
				Err(err).
				Msg("sample skipped")
			continue
		}

		imgPath := filepath.Join(imagesDir, dataset.ExportImageName(rec.Sample))
		if !util.FileExists(imgPath) {
			if err := util.WriteFileAtomic(imgPath, rec.Image, 0o644); err != nil {
				tmp.Close()
				return res, fmt.Errorf("write image: %w", err)
			}
			res.ImagesWritten++
		}
		if err := enc.Encode(dataset.RowFromSample(rec.Sample, split)); err != nil {
			tmp.Close()
			return res, fmt.Errorf("write metadata: %w", err)
		}
		res.Written++
	}

	if err := w.Flush(); err != nil {
		tmp.Close()
		return res, err
	}
	if err := tmp.Close(); err != nil {
		return res, err
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}
	if err := os.Rename(tmpPath, res.MetadataPath); err != nil {
		return res, err
	}

	p.logger.Info().
		Int("written", res.Written).
		Int("skipped", res.Skipped).
		Int("images_written", res.ImagesWritten).
		Str("metadata", res.MetadataPath).
		Msg("export complete")
	return res, nil
}
