package stream

import "bytes"

// MaxLineSize is the longest line a Decoder buffers by default.
const MaxLineSize = 1024 * 1024 // 1MB

// Decoder splits a raw event stream into frames. Chunk boundaries carry no
// meaning: a line may arrive split over any number of Feed calls.
//
// A Decoder is not safe for concurrent use.
type Decoder struct {
	buf     []byte
	maxLine int

	// discarding is set while the rest of an over-long line is skipped.
	discarding bool
	overflows  int
}

func NewDecoder() *Decoder {
	return NewDecoderSize(MaxLineSize)
}

// NewDecoderSize returns a Decoder that drops lines longer than size bytes
// instead of buffering them. A size of zero or less means MaxLineSize.
func NewDecoderSize(size int) *Decoder {
	if size <= 0 {
		size = MaxLineSize
	}
	return &Decoder{maxLine: size}
}

// Feed appends chunk to the pending buffer and returns every complete
// "data: " line, in order. Other complete lines are dropped, as are lines
// longer than the decoder's limit. After Feed returns, the pending buffer
// holds no newline and is never longer than the limit.
func (d *Decoder) Feed(chunk []byte) []Frame {
	// Everything already buffered is newline free, so only scan the new bytes.
	from := len(d.buf)
	d.buf = append(d.buf, chunk...)

	var frames []Frame
	start := 0
	for {
		i := bytes.IndexByte(d.buf[from:], '\n')
		if i < 0 {
			break
		}
		end := from + i
		line := d.buf[start:end]
		switch {
		case d.discarding:
			d.discarding = false
		case len(line) > d.maxLine:
			d.overflows++
		case bytes.HasPrefix(line, prefix):
			frames = append(frames, Frame{line: bytes.Clone(line)})
		}
		start = end + 1
		from = start
	}

	if start > 0 {
		d.buf = d.buf[:copy(d.buf, d.buf[start:])]
	}
	if d.discarding || len(d.buf) > d.maxLine {
		if !d.discarding {
			d.discarding = true
			d.overflows++
		}
		d.buf = d.buf[:0]
	}
	return frames
}

// Overflows reports how many lines were dropped for exceeding the limit.
func (d *Decoder) Overflows() int {
	return d.overflows
}

// Pending returns the unterminated tail of the stream. It is never emitted
// as a frame, even at end of stream.
func (d *Decoder) Pending() []byte {
	return bytes.Clone(d.buf)
}

// Reset discards any pending bytes.
func (d *Decoder) Reset() {
	d.buf = d.buf[:0]
	d.discarding = false
}
