package alsep

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"

	"example.com/alsepgate/internal/common"
)

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// HeaderPolicy decides what happens when a work tape's header is not
// followed by an identical copy.
type HeaderPolicy int

const (
	// HeaderStrict stops with ErrHeaderNotDuplicated.
	HeaderStrict HeaderPolicy = iota
	// HeaderTolerant treats the second 16 bytes as the start of frame data.
	HeaderTolerant
)

type ReaderOptions struct {
	Format       Format
	HeaderPolicy HeaderPolicy
	// YearOverride replaces the header year when non-zero.
	YearOverride int
	// Package keeps only work tape frames from this package when non-zero.
	// Frames are stitched before filtering.
	Package Package
	Stitch  StitchOptions
}

// TapeReader reads logical records from a tape image. PSE tapes yield one
// batch per 19456-byte record; WTN and WTH files yield a single batch holding
// every frame after the header.
type TapeReader struct {
	src      io.Reader
	closer   func() error
	opts     ReaderOptions
	stitcher *Stitcher
	metrics  *common.Metrics

	offset     int64
	index      int
	done       bool
	pending    error
	headerDup  bool
	headerSeen bool
}

// Open opens path as a tape image. Files starting with the zstd frame magic
// are decompressed on the fly.
func Open(path string, opts ReaderOptions) (*TapeReader, error) {
	if !opts.Format.valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownFormat, int(opts.Format))
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	br := bufio.NewReaderSize(f, PSERecordSize)
	head, _ := br.Peek(len(zstdMagic))
	if bytes.Equal(head, zstdMagic) {
		dec, err := zstd.NewReader(br)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("open zstd stream: %w", err)
		}
		r := NewTapeReader(dec, opts)
		r.closer = func() error {
			dec.Close()
			return f.Close()
		}
		return r, nil
	}
	r := NewTapeReader(br, opts)
	r.closer = f.Close
	return r, nil
}

// NewTapeReader reads tape data from src.
func NewTapeReader(src io.Reader, opts ReaderOptions) *TapeReader {
	return &TapeReader{
		src:      src,
		opts:     opts,
		stitcher: NewStitcher(opts.Stitch),
	}
}

func (r *TapeReader) Close() error {
	if r.closer == nil {
		return nil
	}
	err := r.closer()
	r.closer = nil
	return err
}

func (r *TapeReader) SetMetrics(m *common.Metrics) {
	r.metrics = m
}

// HeaderDuplicated reports whether the work tape header was followed by an
// identical copy. It is true for PSE tapes.
func (r *TapeReader) HeaderDuplicated() bool {
	if r.opts.Format == FormatPSE {
		return true
	}
	return r.headerDup
}

// Offset is the number of bytes consumed so far.
func (r *TapeReader) Offset() int64 {
	return r.offset
}

// Next returns the next batch. It returns io.EOF after the last batch and an
// error wrapping ErrShortBlock when the input ends inside a block.
func (r *TapeReader) Next() (Batch, error) {
	if r.pending != nil {
		err := r.pending
		r.pending = nil
		r.done = true
		return Batch{}, err
	}
	if r.done {
		return Batch{}, io.EOF
	}
	if r.opts.Format == FormatPSE {
		return r.nextPSE()
	}
	return r.nextWork()
}

func (r *TapeReader) readBlock(buf []byte) (int, error) {
	n, err := io.ReadFull(r.src, buf)
	if n > 0 {
		r.offset += int64(n)
		if r.metrics != nil {
			r.metrics.AddBytes(int64(n))
		}
	}
	switch {
	case err == nil:
		return n, nil
	case errors.Is(err, io.ErrUnexpectedEOF):
		return n, fmt.Errorf("%w at offset %d (%d of %d bytes): %w", ErrShortBlock, r.offset-int64(n), n, len(buf), io.ErrUnexpectedEOF)
	}
	return n, err
}

func (r *TapeReader) applyYear(rec *Record) {
	if r.opts.YearOverride != 0 {
		rec.Year = r.opts.YearOverride
		rec.Errors = ValidateRecord(*rec)
	}
}

func (r *TapeReader) nextPSE() (Batch, error) {
	start := r.offset
	buf := make([]byte, PSERecordSize)
	if _, err := r.readBlock(buf); err != nil {
		r.done = true
		return Batch{}, err
	}
	rec, err := DecodeRecord(FormatPSE, buf)
	if err != nil {
		return Batch{}, err
	}
	r.applyYear(&rec)

	size := FrameSize(rec)
	n := PSEFrameCount(rec)
	blocks := make([][]byte, n)
	for i := range blocks {
		off := HeaderSize + i*size
		blocks[i] = buf[off : off+size]
	}
	b := Batch{
		Index:       r.index,
		Offset:      start,
		FrameOffset: start + HeaderSize,
		FrameSize:   size,
		Record:      rec,
		Frames:      r.stitcher.Stitch(rec, blocks),
	}
	r.finishBatch(&b)
	return b, nil
}

func (r *TapeReader) nextWork() (Batch, error) {
	if r.headerSeen {
		r.done = true
		return Batch{}, io.EOF
	}
	r.headerSeen = true

	header := make([]byte, HeaderSize)
	if _, err := r.readBlock(header); err != nil {
		r.done = true
		return Batch{}, err
	}
	rec, err := DecodeRecord(r.opts.Format, header)
	if err != nil {
		return Batch{}, err
	}
	r.applyYear(&rec)

	var carry []byte
	dup := make([]byte, HeaderSize)
	n, err := r.readBlock(dup)
	switch {
	case err == nil && bytes.Equal(dup, header):
		r.headerDup = true
	case err == nil || errors.Is(err, ErrShortBlock):
		if r.opts.HeaderPolicy == HeaderStrict {
			r.done = true
			return Batch{}, fmt.Errorf("%w at offset %d", ErrHeaderNotDuplicated, int64(HeaderSize))
		}
		common.Warnf("%s header is not duplicated; reading frames from offset %d", r.opts.Format, HeaderSize)
		carry = dup[:n]
	case errors.Is(err, io.EOF):
		r.done = true
		return Batch{}, fmt.Errorf("%w: no data after header", ErrShortBlock)
	default:
		return Batch{}, err
	}

	frameStart := r.offset - int64(len(carry))
	var blocks [][]byte
	for {
		frame := make([]byte, WorkFrameSize)
		copy(frame, carry)
		got, err := r.readBlock(frame[len(carry):])
		got += len(carry)
		carry = nil
		if err == nil {
			blocks = append(blocks, frame)
			continue
		}
		if errors.Is(err, io.EOF) && got == 0 {
			break
		}
		if errors.Is(err, io.EOF) || errors.Is(err, ErrShortBlock) {
			r.pending = fmt.Errorf("%w: trailing %d bytes of a %d-byte frame", ErrShortBlock, got, WorkFrameSize)
			break
		}
		return Batch{}, err
	}

	b := Batch{
		Index:       r.index,
		Offset:      0,
		FrameOffset: frameStart,
		FrameSize:   WorkFrameSize,
		Record:      rec,
		Frames:      r.stitcher.Stitch(rec, blocks),
	}
	r.finishBatch(&b)
	return b, nil
}

func (r *TapeReader) finishBatch(b *Batch) {
	for i := range b.Frames {
		b.Frames[i].Offset = b.FrameOffset + int64(i*b.FrameSize)
	}
	if r.opts.Package != 0 && r.opts.Format != FormatPSE {
		kept := b.Frames[:0]
		for _, f := range b.Frames {
			if f.Package == r.opts.Package {
				kept = append(kept, f)
			}
		}
		b.Frames = kept
	}
	r.index++
	if r.metrics != nil {
		r.metrics.AddRecord(len(b.Frames), b.ErrorFrames())
	}
}
