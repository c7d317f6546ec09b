package export

import (
	"errors"
	"io"

	"example.com/alsepgate/internal/alsep"
)

// BatchSource yields decoded batches; *alsep.TapeReader satisfies it.
type BatchSource interface {
	Next() (alsep.Batch, error)
}

// BatchWriter consumes decoded batches.
type BatchWriter interface {
	WriteBatch(b alsep.Batch) error
}

// DrainResult counts what Drain passed to its writers.
type DrainResult struct {
	Batches     int
	Frames      int
	ErrorFrames int
	// Truncated holds the short block error that ended the input, if any.
	Truncated error
}

// Drain feeds every batch of src to each writer in order. A partial
// trailing block ends the input without failing the drain.
func Drain(src BatchSource, writers ...BatchWriter) (DrainResult, error) {
	var res DrainResult
	for {
		b, err := src.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return res, nil
			}
			if errors.Is(err, alsep.ErrShortBlock) {
				res.Truncated = err
				return res, nil
			}
			return res, err
		}
		res.Batches++
		res.Frames += len(b.Frames)
		res.ErrorFrames += b.ErrorFrames()
		for _, w := range writers {
			if err := w.WriteBatch(b); err != nil {
				return res, err
			}
		}
	}
}
