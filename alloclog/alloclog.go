// Package alloclog emits structured allocation event records to an
// io.Writer.
//
// Each event becomes one JSON record carrying the calling operation,
// the byte count, a stack hash id, and optionally the captured call
// stack. Records are newline-delimited when written uncompressed;
// with compression enabled they are buffered and written as framed
// LZ4 or ZSTD blocks.
//
// The stack hash id is deliberately not a table key: hash index keys
// resolve collisions in-program, but hash ids in an event log need
// collisions to be improbable, so they hash the full program counter
// chain.
//
// A Writer is single-caller, like the containers it observes. Nothing
// blocks: when a rate limit is configured, events over the limit are
// dropped and counted, never delayed.
package alloclog

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"runtime"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"golang.org/x/time/rate"
)

// Compression selects the block compression applied to the record
// stream.
type Compression uint8

const (
	// CompressionNone writes newline-delimited JSON records directly.
	CompressionNone Compression = iota
	// CompressionLZ4 writes framed LZ4-compressed blocks (fast).
	CompressionLZ4
	// CompressionZSTD writes framed ZSTD-compressed blocks (smaller).
	CompressionZSTD
)

// ErrClosed is returned when logging to a closed Writer.
var ErrClosed = errors.New("alloclog: writer is closed")

const (
	// DefaultMaxFrames bounds captured stack depth.
	DefaultMaxFrames = 32

	// blockSize is the buffered record threshold that triggers a
	// compressed block flush.
	blockSize = 64 << 10

	// blockHeaderSize frames a compressed block:
	// [UncompressedSize uint32][CompressedSize uint32][Data...].
	// CompressedSize 0 means the block is stored raw.
	blockHeaderSize = 8
)

// Options configure a Writer.
type Options struct {
	// Compression selects the output framing.
	Compression Compression

	// RatePerSec caps emitted records per second; 0 means unlimited.
	// Records over the cap are dropped, never delayed.
	RatePerSec float64

	// IncludeStack captures and emits the call stack per record.
	IncludeStack bool

	// MaxFrames bounds the captured stack depth.
	MaxFrames int
}

// DefaultOptions are the defaults applied by New.
var DefaultOptions = Options{
	Compression:  CompressionNone,
	IncludeStack: true,
	MaxFrames:    DefaultMaxFrames,
}

// Frame is one resolved stack frame of a logged event.
type Frame struct {
	Func string `json:"func"`
	File string `json:"file"`
	Line int    `json:"line"`
}

// Entry is one allocation event record.
type Entry struct {
	Call   string  `json:"call"`
	Bytes  int64   `json:"bytes,omitempty"`
	Ptr    uint64  `json:"ptr,omitempty"`
	HashID uint32  `json:"hash_id,omitempty"`
	Stack  []Frame `json:"stack,omitempty"`
}

// Writer logs allocation events. Not safe for concurrent use; callers
// serialize, like with every container in this module.
type Writer struct {
	w       io.Writer
	opts    Options
	limiter *rate.Limiter
	block   []byte // pending records awaiting a compressed flush
	scratch []byte
	enc     *zstd.Encoder
	dropped uint64
	closed  bool
}

// New creates a Writer emitting to w.
func New(w io.Writer, optFns ...func(o *Options)) (*Writer, error) {
	opts := DefaultOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.MaxFrames <= 0 {
		opts.MaxFrames = DefaultMaxFrames
	}

	lw := &Writer{
		w:    w,
		opts: opts,
	}

	if opts.RatePerSec > 0 {
		burst := int(opts.RatePerSec)
		if burst < 1 {
			burst = 1
		}
		lw.limiter = rate.NewLimiter(rate.Limit(opts.RatePerSec), burst)
	}

	if opts.Compression == CompressionZSTD {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, fmt.Errorf("alloclog: create zstd encoder: %w", err)
		}
		lw.enc = enc
	}

	return lw, nil
}

// LogAlloc logs an allocation event for the named call. The stack of
// the caller is captured when IncludeStack is set.
func (lw *Writer) LogAlloc(call string, bytes int64) error {
	e := Entry{Call: call, Bytes: bytes}
	if lw.opts.IncludeStack {
		pcs := callers(3, lw.opts.MaxFrames)
		e.HashID = hashPCs(pcs)
		e.Stack = resolveFrames(pcs)
	}
	return lw.emit(e)
}

// LogFree logs a release event for the named call and address.
func (lw *Writer) LogFree(call string, ptr uintptr) error {
	e := Entry{Call: call, Ptr: uint64(ptr)}
	if lw.opts.IncludeStack {
		pcs := callers(3, lw.opts.MaxFrames)
		e.HashID = hashPCs(pcs)
	}
	return lw.emit(e)
}

// LogEntry logs a caller-assembled record.
func (lw *Writer) LogEntry(e Entry) error {
	return lw.emit(e)
}

// Dropped returns the number of records discarded by the rate limit.
func (lw *Writer) Dropped() uint64 { return lw.dropped }

// Flush writes any pending compressed block.
func (lw *Writer) Flush() error {
	if lw.closed {
		return ErrClosed
	}
	return lw.flushBlock()
}

// Close flushes pending records and releases the compressor. Safe to
// call twice.
func (lw *Writer) Close() error {
	if lw.closed {
		return nil
	}
	err := lw.flushBlock()
	if lw.enc != nil {
		lw.enc.Close()
		lw.enc = nil
	}
	lw.closed = true
	return err
}

func (lw *Writer) emit(e Entry) error {
	if lw.closed {
		return ErrClosed
	}
	if lw.limiter != nil && !lw.limiter.AllowN(time.Now(), 1) {
		lw.dropped++
		return nil
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("alloclog: marshal entry: %w", err)
	}
	data = append(data, '\n')

	if lw.opts.Compression == CompressionNone {
		_, err = lw.w.Write(data)
		return err
	}

	lw.block = append(lw.block, data...)
	if len(lw.block) >= blockSize {
		return lw.flushBlock()
	}
	return nil
}

func (lw *Writer) flushBlock() error {
	if len(lw.block) == 0 {
		return nil
	}
	data := lw.block

	var compressed []byte
	var err error
	switch lw.opts.Compression {
	case CompressionLZ4:
		compressed, err = lw.compressLZ4(data)
	case CompressionZSTD:
		compressed = lw.enc.EncodeAll(data, lw.scratch[:0])
	default:
		// Uncompressed mode never buffers.
		return nil
	}
	if err != nil {
		return err
	}

	// Store raw if compression does not pay for itself.
	var header [blockHeaderSize]byte
	binary.LittleEndian.PutUint32(header[0:], uint32(len(data)))
	payload := compressed
	if len(compressed) == 0 || len(compressed) >= len(data) {
		binary.LittleEndian.PutUint32(header[4:], 0)
		payload = data
	} else {
		binary.LittleEndian.PutUint32(header[4:], uint32(len(compressed)))
	}

	if _, err := lw.w.Write(header[:]); err != nil {
		return err
	}
	if _, err := lw.w.Write(payload); err != nil {
		return err
	}

	lw.block = lw.block[:0]
	return nil
}

func (lw *Writer) compressLZ4(data []byte) ([]byte, error) {
	bound := lz4.CompressBlockBound(len(data))
	if cap(lw.scratch) < bound {
		lw.scratch = make([]byte, bound)
	}
	var c lz4.Compressor
	n, err := c.CompressBlock(data, lw.scratch[:bound])
	if err != nil {
		return nil, fmt.Errorf("alloclog: lz4 compress: %w", err)
	}
	return lw.scratch[:n], nil
}

// ReadAll decodes a record stream written with the given compression.
// It is primarily a verification and tooling aid; the hot path only
// ever appends.
func ReadAll(r io.Reader, compression Compression) ([]Entry, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var stream []byte
	if compression == CompressionNone {
		stream = raw
	} else {
		stream, err = decodeBlocks(raw, compression)
		if err != nil {
			return nil, err
		}
	}

	var entries []Entry
	dec := json.NewDecoder(bytes.NewReader(stream))
	for {
		var e Entry
		if err := dec.Decode(&e); err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("alloclog: decode entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func decodeBlocks(raw []byte, compression Compression) ([]byte, error) {
	var out []byte
	var zdec *zstd.Decoder

	for len(raw) > 0 {
		if len(raw) < blockHeaderSize {
			return nil, errors.New("alloclog: truncated block header")
		}
		uncompressedSize := binary.LittleEndian.Uint32(raw[0:])
		compressedSize := binary.LittleEndian.Uint32(raw[4:])
		raw = raw[blockHeaderSize:]

		payloadSize := compressedSize
		if payloadSize == 0 {
			payloadSize = uncompressedSize
		}
		if uint32(len(raw)) < payloadSize {
			return nil, errors.New("alloclog: truncated block payload")
		}
		payload := raw[:payloadSize]
		raw = raw[payloadSize:]

		if compressedSize == 0 {
			out = append(out, payload...)
			continue
		}

		switch compression {
		case CompressionLZ4:
			dst := make([]byte, uncompressedSize)
			n, err := lz4.UncompressBlock(payload, dst)
			if err != nil {
				return nil, fmt.Errorf("alloclog: lz4 decompress: %w", err)
			}
			out = append(out, dst[:n]...)
		case CompressionZSTD:
			if zdec == nil {
				var err error
				zdec, err = zstd.NewReader(nil)
				if err != nil {
					return nil, err
				}
				defer zdec.Close()
			}
			dst, err := zdec.DecodeAll(payload, nil)
			if err != nil {
				return nil, fmt.Errorf("alloclog: zstd decompress: %w", err)
			}
			out = append(out, dst...)
		default:
			return nil, errors.New("alloclog: unknown compression")
		}
	}
	return out, nil
}

// StackHash returns a hash id for the current call stack, skipping
// skip frames above the caller. Distinct call sites should produce
// distinct ids with high probability.
func StackHash(skip int) uint32 {
	return hashPCs(callers(skip+3, DefaultMaxFrames))
}

func callers(skip, maxFrames int) []uintptr {
	pcs := make([]uintptr, maxFrames)
	n := runtime.Callers(skip, pcs)
	return pcs[:n]
}

func hashPCs(pcs []uintptr) uint32 {
	h := fnv.New32a()
	var b [8]byte
	for _, pc := range pcs {
		binary.LittleEndian.PutUint64(b[:], uint64(pc))
		_, _ = h.Write(b[:])
	}
	return h.Sum32()
}

func resolveFrames(pcs []uintptr) []Frame {
	if len(pcs) == 0 {
		return nil
	}
	frames := runtime.CallersFrames(pcs)
	out := make([]Frame, 0, len(pcs))
	for {
		f, more := frames.Next()
		out = append(out, Frame{Func: f.Function, File: f.File, Line: f.Line})
		if !more {
			break
		}
	}
	return out
}
