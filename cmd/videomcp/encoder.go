package main

import (
	"context"
	"errors"

	"github.com/keagan/videomcp/internal/errs"
	"github.com/keagan/videomcp/internal/ffmpeg"
)

// noEncoder satisfies the pipeline for commands that never encode.
type noEncoder struct{}

func (noEncoder) Encode(context.Context, ffmpeg.EncodeRequest) error {
	return errs.Encode("encode", errors.New("encoding is not available for this command"))
}
