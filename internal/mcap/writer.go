package mcap

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"sort"

	"github.com/roverlog/roverlog/internal/decompress"
	rlerrors "github.com/roverlog/roverlog/internal/errors"
)

// Writer emits a well-formed MCAP stream. It is the counterpart of Decoder
// and is used by the export tooling and test fixtures. Records written
// between BeginChunk and EndChunk are buffered and emitted as a single
// compressed chunk record.
type Writer struct {
	w        io.Writer
	registry *decompress.Registry

	wroteMagic bool
	closed     bool

	chunking    bool
	chunkScheme string
	chunkBuf    bytes.Buffer
	chunkStart  uint64
	chunkEnd    uint64
	chunkHasMsg bool
}

// NewWriter creates a writer. A nil registry gets the built-in defaults.
func NewWriter(w io.Writer, registry *decompress.Registry) *Writer {
	if registry == nil {
		registry = decompress.DefaultRegistry()
	}
	return &Writer{w: w, registry: registry}
}

// WriteHeader emits a Header record. Headers always go to the outer stream.
func (w *Writer) WriteHeader(h *Header) error {
	var b recordBuilder
	b.str(h.Profile)
	b.str(h.Library)
	return w.emitOuter(OpHeader, b.buf)
}

// WriteSchema emits a Schema record, into the open chunk if one is active.
func (w *Writer) WriteSchema(s *Schema) error {
	var b recordBuilder
	b.u16(s.ID)
	b.str(s.Name)
	b.str(s.Encoding)
	b.prefixedBytes(s.Data)
	return w.emit(OpSchema, b.buf)
}

// WriteChannel emits a Channel record, into the open chunk if one is active.
func (w *Writer) WriteChannel(c *Channel) error {
	var b recordBuilder
	b.u16(c.ID)
	b.u16(c.SchemaID)
	b.str(c.Topic)
	b.str(c.MessageEncoding)
	b.strMap(c.Metadata)
	return w.emit(OpChannel, b.buf)
}

// WriteMessage emits a Message record, into the open chunk if one is active.
func (w *Writer) WriteMessage(m *Message) error {
	var b recordBuilder
	b.u16(m.ChannelID)
	b.u32(m.Sequence)
	b.u64(m.LogTime)
	b.u64(m.PublishTime)
	b.buf = append(b.buf, m.Data...)
	if w.chunking {
		if !w.chunkHasMsg || m.LogTime < w.chunkStart {
			w.chunkStart = m.LogTime
		}
		if !w.chunkHasMsg || m.LogTime > w.chunkEnd {
			w.chunkEnd = m.LogTime
		}
		w.chunkHasMsg = true
	}
	return w.emit(OpMessage, b.buf)
}

// WriteMetadata emits a Metadata record to the outer stream.
func (w *Writer) WriteMetadata(m *MetadataRecord) error {
	var b recordBuilder
	b.str(m.Name)
	b.strMap(m.Metadata)
	return w.emitOuter(OpMetadata, b.buf)
}

// WriteDataEnd emits a DataEnd record to the outer stream.
func (w *Writer) WriteDataEnd(dataSectionCRC uint32) error {
	var b recordBuilder
	b.u32(dataSectionCRC)
	return w.emitOuter(OpDataEnd, b.buf)
}

// BeginChunk starts buffering schema/channel/message records into a chunk
// compressed with the named scheme. The scheme must be registered.
func (w *Writer) BeginChunk(scheme string) error {
	if w.chunking {
		return rlerrors.NewInternalError("chunk already open", nil)
	}
	if _, err := w.registry.Lookup(scheme); err != nil {
		return err
	}
	w.chunking = true
	w.chunkScheme = scheme
	w.chunkBuf.Reset()
	w.chunkHasMsg = false
	w.chunkStart = 0
	w.chunkEnd = 0
	return nil
}

// EndChunk compresses the buffered records and emits the chunk record.
func (w *Writer) EndChunk() error {
	if !w.chunking {
		return rlerrors.NewInternalError("no chunk open", nil)
	}
	w.chunking = false

	records := w.chunkBuf.Bytes()
	handler, err := w.registry.Lookup(w.chunkScheme)
	if err != nil {
		return err
	}
	compressed, err := handler.Compress(records)
	if err != nil {
		return err
	}

	var b recordBuilder
	b.u64(w.chunkStart)
	b.u64(w.chunkEnd)
	b.u64(uint64(len(records)))
	b.u32(crc32.ChecksumIEEE(records))
	b.str(w.chunkScheme)
	b.u64(uint64(len(compressed)))
	b.buf = append(b.buf, compressed...)
	return w.emitOuter(OpChunk, b.buf)
}

// Close finalizes the stream with a Footer record and the trailing magic.
// An open chunk is flushed first.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	if w.chunking {
		if err := w.EndChunk(); err != nil {
			return err
		}
	}
	var b recordBuilder
	b.u64(0) // no summary section
	b.u64(0)
	b.u32(0)
	if err := w.emitOuter(OpFooter, b.buf); err != nil {
		return err
	}
	w.closed = true
	if _, err := w.w.Write(Magic); err != nil {
		return fmt.Errorf("failed to write trailing magic: %w", err)
	}
	return nil
}

// emit routes a record to the open chunk or the outer stream.
func (w *Writer) emit(op Opcode, body []byte) error {
	if w.chunking {
		writeFramed(&w.chunkBuf, op, body)
		return nil
	}
	return w.emitOuter(op, body)
}

// emitOuter writes a framed record directly to the underlying stream,
// emitting the leading magic first if needed.
func (w *Writer) emitOuter(op Opcode, body []byte) error {
	if w.closed {
		return rlerrors.NewInternalError("writer already closed", nil)
	}
	if !w.wroteMagic {
		if _, err := w.w.Write(Magic); err != nil {
			return fmt.Errorf("failed to write magic: %w", err)
		}
		w.wroteMagic = true
	}
	var framed bytes.Buffer
	writeFramed(&framed, op, body)
	if _, err := w.w.Write(framed.Bytes()); err != nil {
		return fmt.Errorf("failed to write %s record: %w", op, err)
	}
	return nil
}

func writeFramed(buf *bytes.Buffer, op Opcode, body []byte) {
	var hdr [recordHeaderSize]byte
	hdr[0] = byte(op)
	binary.LittleEndian.PutUint64(hdr[1:], uint64(len(body)))
	buf.Write(hdr[:])
	buf.Write(body)
}

// recordBuilder accumulates one record body.
type recordBuilder struct {
	buf []byte
}

func (b *recordBuilder) u16(v uint16) {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	b.buf = append(b.buf, tmp[:]...)
}

func (b *recordBuilder) u32(v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	b.buf = append(b.buf, tmp[:]...)
}

func (b *recordBuilder) u64(v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	b.buf = append(b.buf, tmp[:]...)
}

func (b *recordBuilder) str(s string) {
	b.u32(uint32(len(s)))
	b.buf = append(b.buf, s...)
}

func (b *recordBuilder) prefixedBytes(p []byte) {
	b.u32(uint32(len(p)))
	b.buf = append(b.buf, p...)
}

// strMap writes the map with sorted keys so output is deterministic.
func (b *recordBuilder) strMap(m map[string]string) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var inner recordBuilder
	for _, k := range keys {
		inner.str(k)
		inner.str(m[k])
	}
	b.u32(uint32(len(inner.buf)))
	b.buf = append(b.buf, inner.buf...)
}
