// Package dataset defines the adapter contract every MCQA source implements
// and the process-wide registry that maps a CLI slug to an adapter.
//
// To add a dataset, create a file in this package with a type implementing
// Adapter and register its factory from init():
//
//	func init() { Register("mydataset", newMyDataset) }
//
// Factories must not perform I/O; listing datasets never fails.
package dataset

import (
	"context"
	"fmt"
	"iter"

	"github.com/rs/zerolog"

	"github.com/keagan/videomcp/internal/hub"
	"github.com/keagan/videomcp/internal/mcqa"
)

// Record is one sample paired with the raw bytes of its image.
type Record struct {
	Sample mcqa.Sample
	Image  []byte
}

// Adapter turns one source dataset into MCQA samples.
type Adapter interface {
	// Name is the slug used by --dataset and in output directory names.
	Name() string

	// GeneratorID is the short code prefixing the generator directory, e.g. "M-1".
	GeneratorID() string

	// Download fetches the raw dataset into outDir and returns the local
	// artifact path. Existing artifacts are reused.
	Download(ctx context.Context, outDir string) (string, error)

	// Samples yields records lazily. The sequence is finite and single-pass.
	// A per-record problem is yielded as a non-nil error (kind adapter) and
	// iteration continues.
	Samples(ctx context.Context) iter.Seq2[Record, error]
}

// SourceInfo identifies where an adapter's data comes from. It is recorded in
// run manifests for provenance only.
type SourceInfo struct {
	HFRepoID   string `json:"hf_repo_id,omitempty"`
	HFConfig   string `json:"hf_config,omitempty"`
	HFSplit    string `json:"hf_split,omitempty"`
	HFRevision string `json:"hf_revision,omitempty"`
}

// Provenance is implemented by adapters that know their upstream source.
type Provenance interface {
	Source() SourceInfo
}

// SourceOf returns a's provenance, or the zero value when a does not
// implement Provenance.
func SourceOf(a Adapter) SourceInfo {
	if p, ok := a.(Provenance); ok {
		return p.Source()
	}
	return SourceInfo{}
}

// GeneratorName is the generator directory name: <id>_<name>_data-generator.
func GeneratorName(a Adapter) string {
	return fmt.Sprintf("%s_%s_data-generator", a.GeneratorID(), a.Name())
}

// Options are handed to every factory.
type Options struct {
	// RawDir is where downloaded artifacts for this dataset live.
	RawDir string

	// Hub is used by adapters that download from the Hugging Face Hub.
	Hub *hub.Client

	// Seed drives synthetic adapters.
	Seed uint64

	// Count bounds synthetic adapters; 0 selects the adapter default.
	Count int

	// Split selects a split for adapters that have several.
	Split string

	Logger zerolog.Logger
}

// Factory builds an adapter. It must not perform I/O.
type Factory func(opts Options) Adapter
