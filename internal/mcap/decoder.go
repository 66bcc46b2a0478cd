package mcap

import (
	"bytes"
	"encoding/binary"
	stderrors "errors"
	"fmt"
	"hash/crc32"

	"github.com/roverlog/roverlog/internal/decompress"
	rlerrors "github.com/roverlog/roverlog/internal/errors"
)

// ErrMoreData is returned by Next when the buffered bytes do not yet hold a
// complete record. The caller appends another chunk and retries.
var ErrMoreData = stderrors.New("mcap: need more data")

// recordHeaderSize is opcode (1) plus length (8 LE).
const recordHeaderSize = 9

// maxRecordLength bounds any length declared by the stream, framing and
// chunk uncompressed sizes alike. Declarations above it are treated as
// corruption before any allocation happens.
const maxRecordLength = uint64(1) << 40

// Decoder turns an incrementally supplied byte stream into a sequence of
// typed records. Each instance is single-pass and single-use: feed bytes
// with Append, drain records with Next, and call Finish once the stream is
// exhausted to validate clean termination.
type Decoder struct {
	registry *decompress.Registry

	buf []byte
	off int

	sawMagic  bool
	sawFooter bool
	appended  int64

	// pending holds records inflated from a chunk, drained before the
	// outer stream advances
	pending []Record

	corruptTrailer bool
	trailerChecked bool

	chunksInflated int64
	inflatedBytes  int64
}

// NewDecoder creates a decoder resolving compressed chunks through the
// given registry. A nil registry gets the built-in defaults.
func NewDecoder(registry *decompress.Registry) *Decoder {
	if registry == nil {
		registry = decompress.DefaultRegistry()
	}
	return &Decoder{registry: registry}
}

// Append buffers the next chunk of raw bytes from the stream.
func (d *Decoder) Append(p []byte) {
	if len(p) == 0 {
		return
	}
	d.appended += int64(len(p))
	// compact consumed prefix before growing
	if d.off > 0 {
		d.buf = d.buf[:copy(d.buf, d.buf[d.off:])]
		d.off = 0
	}
	d.buf = append(d.buf, p...)
}

// Buffered returns the number of bytes appended but not yet consumed.
func (d *Decoder) Buffered() int {
	return len(d.buf) - d.off
}

// Next returns the next decoded record, ErrMoreData if the buffer holds
// only a partial record, or a fatal format error. After the Footer record
// is returned, Next consumes the trailing magic and reports ErrMoreData.
func (d *Decoder) Next() (Record, error) {
	for {
		if len(d.pending) > 0 {
			rec := d.pending[0]
			d.pending = d.pending[1:]
			return rec, nil
		}

		if !d.sawMagic {
			if d.Buffered() < MagicSize {
				return nil, ErrMoreData
			}
			if !bytes.Equal(d.buf[d.off:d.off+MagicSize], Magic) {
				return nil, rlerrors.NewFormatError(rlerrors.CodeBadMagic,
					"stream does not begin with MCAP magic")
			}
			d.off += MagicSize
			d.sawMagic = true
		}

		if d.sawFooter {
			if !d.trailerChecked && d.Buffered() >= MagicSize {
				d.corruptTrailer = !bytes.Equal(d.buf[d.off:d.off+MagicSize], Magic)
				d.off += MagicSize
				d.trailerChecked = true
			}
			return nil, ErrMoreData
		}

		if d.Buffered() < recordHeaderSize {
			return nil, ErrMoreData
		}

		op := Opcode(d.buf[d.off])
		if op == OpInvalid {
			return nil, rlerrors.NewFormatError(rlerrors.CodeInvalidOpcode,
				"record opcode 0x00 is invalid")
		}
		length := binary.LittleEndian.Uint64(d.buf[d.off+1 : d.off+recordHeaderSize])
		if length > maxRecordLength {
			return nil, rlerrors.NewFormatError(rlerrors.CodeTruncatedRecord,
				fmt.Sprintf("implausible record length %d for opcode %s", length, op))
		}
		if uint64(d.Buffered()-recordHeaderSize) < length {
			return nil, ErrMoreData
		}

		body := d.buf[d.off+recordHeaderSize : d.off+recordHeaderSize+int(length)]
		d.off += recordHeaderSize + int(length)

		if op == OpChunk {
			// inflated records land on d.pending and are popped on the
			// next loop iteration; an empty chunk just advances
			if err := d.inflateChunk(body); err != nil {
				return nil, err
			}
			continue
		}

		rec, err := d.parseRecord(op, body)
		if err != nil {
			return nil, err
		}
		if _, ok := rec.(*Footer); ok {
			d.sawFooter = true
		}
		return rec, nil
	}
}

// Finish validates clean termination once the caller has exhausted the
// stream and drained Next. A completely empty stream is acceptable; any
// leftover partial record is a fatal framing error. A missing or corrupt
// trailing magic after a Footer is reported by CorruptTrailer, not here,
// to keep partially-written files readable.
func (d *Decoder) Finish() error {
	if d.appended == 0 {
		return nil
	}
	if !d.sawMagic {
		return rlerrors.NewFormatError(rlerrors.CodeBadMagic,
			"stream shorter than MCAP magic")
	}
	if d.sawFooter {
		if !d.trailerChecked {
			d.corruptTrailer = true
		}
		return nil
	}
	if d.Buffered() > 0 {
		return rlerrors.NewFormatError(rlerrors.CodeTruncatedRecord,
			fmt.Sprintf("stream ends inside a record (%d bytes pending)", d.Buffered()))
	}
	return nil
}

// CorruptTrailer reports whether the bytes following the Footer record were
// not the expected trailing magic.
func (d *Decoder) CorruptTrailer() bool {
	return d.corruptTrailer
}

// ChunksInflated returns the number of chunk records decompressed so far.
func (d *Decoder) ChunksInflated() int64 {
	return d.chunksInflated
}

// InflatedBytes returns the total uncompressed size of inflated chunks.
func (d *Decoder) InflatedBytes() int64 {
	return d.inflatedBytes
}

// parseRecord decodes one record body. Chunk records never reach here from
// the outer stream; inside a chunk they are forbidden by the format.
func (d *Decoder) parseRecord(op Opcode, body []byte) (Record, error) {
	switch op {
	case OpHeader:
		r := newRecordReader(body)
		h := &Header{Profile: r.str(), Library: r.str()}
		return finishParse(h, r, op)
	case OpFooter:
		r := newRecordReader(body)
		f := &Footer{SummaryStart: r.u64(), SummaryOffsetStart: r.u64(), SummaryCRC: r.u32()}
		return finishParse(f, r, op)
	case OpSchema:
		r := newRecordReader(body)
		s := &Schema{ID: r.u16(), Name: r.str(), Encoding: r.str(), Data: r.prefixedBytes()}
		return finishParse(s, r, op)
	case OpChannel:
		r := newRecordReader(body)
		c := &Channel{
			ID:              r.u16(),
			SchemaID:        r.u16(),
			Topic:           r.str(),
			MessageEncoding: r.str(),
			Metadata:        r.strMap(),
		}
		return finishParse(c, r, op)
	case OpMessage:
		r := newRecordReader(body)
		m := &Message{
			ChannelID:   r.u16(),
			Sequence:    r.u32(),
			LogTime:     r.u64(),
			PublishTime: r.u64(),
		}
		if r.failed() {
			return nil, truncated(op)
		}
		m.Data = r.rest()
		return m, nil
	case OpChunk:
		return nil, rlerrors.NewFormatError(rlerrors.CodeInvalidOpcode,
			"chunk record nested inside a chunk")
	case OpMetadata:
		r := newRecordReader(body)
		m := &MetadataRecord{Name: r.str(), Metadata: r.strMap()}
		return finishParse(m, r, op)
	case OpDataEnd:
		r := newRecordReader(body)
		e := &DataEnd{DataSectionCRC: r.u32()}
		return finishParse(e, r, op)
	default:
		return &Skipped{Op: op, Length: uint64(len(body))}, nil
	}
}

// inflateChunk decompresses a chunk record and queues its nested records on
// d.pending.
func (d *Decoder) inflateChunk(body []byte) error {
	r := newRecordReader(body)
	r.u64() // message start time, recomputed from the messages themselves
	r.u64() // message end time
	uncompressedSize := r.u64()
	uncompressedCRC := r.u32()
	compression := r.str()
	recordsLen := r.u64()
	if r.failed() {
		return truncated(OpChunk)
	}
	// the declared size feeds handler allocation hints and must be bounded
	// before any handler runs
	if uncompressedSize > maxRecordLength {
		return rlerrors.NewFormatError(rlerrors.CodeTruncatedRecord,
			fmt.Sprintf("implausible chunk uncompressed size %d", uncompressedSize))
	}
	compressed := r.bytesN(int(recordsLen))
	if r.failed() {
		return truncated(OpChunk)
	}

	handler, err := d.registry.Lookup(compression)
	if err != nil {
		return err
	}
	records, err := handler.Decompress(compressed, uncompressedSize)
	if err != nil {
		return err
	}
	if uncompressedCRC != 0 {
		if got := crc32.ChecksumIEEE(records); got != uncompressedCRC {
			return rlerrors.NewFormatError(rlerrors.CodeCRCMismatch,
				fmt.Sprintf("chunk CRC mismatch: declared %08x, computed %08x", uncompressedCRC, got))
		}
	}
	d.chunksInflated++
	d.inflatedBytes += int64(len(records))

	// the nested stream must hold complete records only
	off := 0
	for off < len(records) {
		if len(records)-off < recordHeaderSize {
			return truncated(OpChunk)
		}
		op := Opcode(records[off])
		if op == OpInvalid {
			return rlerrors.NewFormatError(rlerrors.CodeInvalidOpcode,
				"record opcode 0x00 inside chunk")
		}
		length := binary.LittleEndian.Uint64(records[off+1 : off+recordHeaderSize])
		if uint64(len(records)-off-recordHeaderSize) < length {
			return truncated(OpChunk)
		}
		rec, err := d.parseRecord(op, records[off+recordHeaderSize:off+recordHeaderSize+int(length)])
		if err != nil {
			return err
		}
		d.pending = append(d.pending, rec)
		off += recordHeaderSize + int(length)
	}
	return nil
}

func truncated(op Opcode) error {
	return rlerrors.NewFormatError(rlerrors.CodeTruncatedRecord,
		fmt.Sprintf("%s record body truncated", op))
}

func finishParse(rec Record, r *recordReader, op Opcode) (Record, error) {
	if r.failed() {
		return nil, truncated(op)
	}
	return rec, nil
}

// recordReader is a cursor over one record body. Short reads latch the
// fail flag and subsequent reads return zero values, so parse sites check
// failed() once at the end.
type recordReader struct {
	buf  []byte
	off  int
	fail bool
}

func newRecordReader(buf []byte) *recordReader {
	return &recordReader{buf: buf}
}

func (r *recordReader) failed() bool { return r.fail }

func (r *recordReader) need(n int) bool {
	if r.fail || len(r.buf)-r.off < n {
		r.fail = true
		return false
	}
	return true
}

func (r *recordReader) u16() uint16 {
	if !r.need(2) {
		return 0
	}
	v := binary.LittleEndian.Uint16(r.buf[r.off:])
	r.off += 2
	return v
}

func (r *recordReader) u32() uint32 {
	if !r.need(4) {
		return 0
	}
	v := binary.LittleEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v
}

func (r *recordReader) u64() uint64 {
	if !r.need(8) {
		return 0
	}
	v := binary.LittleEndian.Uint64(r.buf[r.off:])
	r.off += 8
	return v
}

// str reads a u32 length-prefixed UTF-8 string.
func (r *recordReader) str() string {
	n := int(r.u32())
	if !r.need(n) {
		return ""
	}
	s := string(r.buf[r.off : r.off+n])
	r.off += n
	return s
}

// bytesN returns n raw bytes, copied out of the shared buffer.
func (r *recordReader) bytesN(n int) []byte {
	if !r.need(n) {
		return nil
	}
	out := make([]byte, n)
	copy(out, r.buf[r.off:])
	r.off += n
	return out
}

// prefixedBytes reads a u32 length-prefixed byte blob.
func (r *recordReader) prefixedBytes() []byte {
	n := int(r.u32())
	return r.bytesN(n)
}

// strMap reads a u32 byte-length-prefixed map of string pairs.
func (r *recordReader) strMap() map[string]string {
	total := int(r.u32())
	if !r.need(total) {
		return nil
	}
	end := r.off + total
	m := make(map[string]string)
	for r.off < end && !r.fail {
		k := r.str()
		v := r.str()
		if r.fail {
			return nil
		}
		m[k] = v
	}
	if r.off != end {
		r.fail = true
		return nil
	}
	return m
}

// rest returns all remaining bytes, copied.
func (r *recordReader) rest() []byte {
	out := make([]byte, len(r.buf)-r.off)
	copy(out, r.buf[r.off:])
	r.off = len(r.buf)
	return out
}
