package mcap

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roverlog/roverlog/internal/decompress"
	rlerrors "github.com/roverlog/roverlog/internal/errors"
)

// drainAll feeds the whole stream at once and collects every record.
func drainAll(t *testing.T, data []byte) ([]Record, error) {
	t.Helper()
	dec := NewDecoder(nil)
	dec.Append(data)
	var records []Record
	for {
		rec, err := dec.Next()
		if err == ErrMoreData {
			break
		}
		if err != nil {
			return records, err
		}
		records = append(records, rec)
	}
	if err := dec.Finish(); err != nil {
		return records, err
	}
	return records, nil
}

func buildStream(t *testing.T, build func(w *Writer)) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := NewWriter(&buf, nil)
	build(w)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestDecoder_RoundTripAllRecordKinds(t *testing.T) {
	data := buildStream(t, func(w *Writer) {
		require.NoError(t, w.WriteHeader(&Header{Profile: "ros2", Library: "roverlog"}))
		require.NoError(t, w.WriteSchema(&Schema{ID: 1, Name: "geometry/Pose", Encoding: "protobuf", Data: []byte{1, 2, 3}}))
		require.NoError(t, w.WriteChannel(&Channel{
			ID: 1, SchemaID: 1, Topic: "/pose", MessageEncoding: "protobuf",
			Metadata: map[string]string{"callerid": "nav_node"},
		}))
		require.NoError(t, w.WriteMessage(&Message{
			ChannelID: 1, Sequence: 7, LogTime: 42, PublishTime: 40, Data: []byte("payload"),
		}))
		require.NoError(t, w.WriteMetadata(&MetadataRecord{Name: "bag_info", Metadata: map[string]string{"robot": "r2"}}))
		require.NoError(t, w.WriteDataEnd(0))
	})

	records, err := drainAll(t, data)
	require.NoError(t, err)
	require.Len(t, records, 6)

	h, ok := records[0].(*Header)
	require.True(t, ok)
	assert.Equal(t, "ros2", h.Profile)
	assert.Equal(t, "roverlog", h.Library)

	s, ok := records[1].(*Schema)
	require.True(t, ok)
	assert.Equal(t, uint16(1), s.ID)
	assert.Equal(t, "geometry/Pose", s.Name)
	assert.Equal(t, []byte{1, 2, 3}, s.Data)

	c, ok := records[2].(*Channel)
	require.True(t, ok)
	assert.Equal(t, "/pose", c.Topic)
	assert.Equal(t, map[string]string{"callerid": "nav_node"}, c.Metadata)

	m, ok := records[3].(*Message)
	require.True(t, ok)
	assert.Equal(t, uint16(1), m.ChannelID)
	assert.Equal(t, uint32(7), m.Sequence)
	assert.Equal(t, uint64(42), m.LogTime)
	assert.Equal(t, uint64(40), m.PublishTime)
	assert.Equal(t, []byte("payload"), m.Data)

	md, ok := records[4].(*MetadataRecord)
	require.True(t, ok)
	assert.Equal(t, "bag_info", md.Name)

	_, ok = records[5].(*DataEnd)
	require.True(t, ok)
}

func TestDecoder_PartialChunksByteByByte(t *testing.T) {
	data := buildStream(t, func(w *Writer) {
		require.NoError(t, w.WriteHeader(&Header{Profile: "ros2"}))
		require.NoError(t, w.WriteMessage(&Message{ChannelID: 3, LogTime: 9, Data: []byte{0xAA}}))
	})

	dec := NewDecoder(nil)
	var records []Record
	for i := 0; i < len(data); i++ {
		dec.Append(data[i : i+1])
		for {
			rec, err := dec.Next()
			if err == ErrMoreData {
				break
			}
			require.NoError(t, err)
			records = append(records, rec)
		}
	}
	require.NoError(t, dec.Finish())
	// header, message, footer
	require.Len(t, records, 3)
	assert.IsType(t, &Header{}, records[0])
	assert.IsType(t, &Message{}, records[1])
	assert.IsType(t, &Footer{}, records[2])
}

func TestDecoder_ChunkedCompressionRoundTrip(t *testing.T) {
	for _, scheme := range []string{"", "snappy", "lz4", "zstd"} {
		t.Run("scheme_"+scheme, func(t *testing.T) {
			data := buildStream(t, func(w *Writer) {
				require.NoError(t, w.WriteHeader(&Header{Profile: "ros2"}))
				require.NoError(t, w.BeginChunk(scheme))
				require.NoError(t, w.WriteSchema(&Schema{ID: 1, Name: "T", Encoding: "jsonschema", Data: []byte(`{}`)}))
				require.NoError(t, w.WriteChannel(&Channel{ID: 1, SchemaID: 1, Topic: "/t", MessageEncoding: "json"}))
				require.NoError(t, w.WriteMessage(&Message{ChannelID: 1, LogTime: 5, Data: []byte(`{"a":1}`)}))
				require.NoError(t, w.WriteMessage(&Message{ChannelID: 1, LogTime: 6, Data: []byte(`{"a":2}`)}))
				require.NoError(t, w.EndChunk())
			})

			records, err := drainAll(t, data)
			require.NoError(t, err)
			// header, schema, channel, 2 messages, footer
			require.Len(t, records, 6)
			m, ok := records[3].(*Message)
			require.True(t, ok)
			assert.Equal(t, []byte(`{"a":1}`), m.Data)
		})
	}
}

func TestDecoder_UnknownCompressionSchemeFails(t *testing.T) {
	// registry without zstd
	reg := decompress.NewRegistry()
	data := buildStream(t, func(w *Writer) {
		require.NoError(t, w.BeginChunk("zstd"))
		require.NoError(t, w.WriteMessage(&Message{ChannelID: 1, LogTime: 1}))
		require.NoError(t, w.EndChunk())
	})

	dec := NewDecoder(reg)
	dec.Append(data)
	_, err := dec.Next()
	require.Error(t, err)
	assert.Equal(t, rlerrors.CodeUnknownCompression, rlerrors.GetCode(err))
}

func TestDecoder_ChunkCRCMismatchFails(t *testing.T) {
	// uncompressed chunk with one message record and a wrong declared CRC
	var inner recordBuilder
	inner.u16(1)
	inner.u32(0)
	inner.u64(1)
	inner.u64(1)
	var chunkRecords bytes.Buffer
	writeFramed(&chunkRecords, OpMessage, inner.buf)

	var b recordBuilder
	b.u64(1)
	b.u64(1)
	b.u64(uint64(chunkRecords.Len()))
	b.u32(0xDEADBEEF)
	b.str("")
	b.u64(uint64(chunkRecords.Len()))
	b.buf = append(b.buf, chunkRecords.Bytes()...)

	var stream bytes.Buffer
	stream.Write(Magic)
	writeFramed(&stream, OpChunk, b.buf)

	dec := NewDecoder(nil)
	dec.Append(stream.Bytes())
	_, err := dec.Next()
	require.Error(t, err)
	assert.Equal(t, rlerrors.CodeCRCMismatch, rlerrors.GetCode(err))
}

func TestDecoder_ChunkImplausibleUncompressedSizeFails(t *testing.T) {
	// crafted chunk declaring an absurd uncompressed size; must fail as a
	// decode error before the handler can allocate anything
	var b recordBuilder
	b.u64(1)
	b.u64(1)
	b.u64(uint64(1) << 62)
	b.u32(0)
	b.str("zstd")
	b.u64(4)
	b.buf = append(b.buf, 0xDE, 0xAD, 0xBE, 0xEF)

	var stream bytes.Buffer
	stream.Write(Magic)
	writeFramed(&stream, OpChunk, b.buf)

	dec := NewDecoder(nil)
	dec.Append(stream.Bytes())
	_, err := dec.Next()
	require.Error(t, err)
	assert.Equal(t, rlerrors.CodeTruncatedRecord, rlerrors.GetCode(err))
}

func TestDecoder_BadMagicFails(t *testing.T) {
	dec := NewDecoder(nil)
	dec.Append([]byte("definitely not an mcap file"))
	_, err := dec.Next()
	require.Error(t, err)
	assert.Equal(t, rlerrors.CodeBadMagic, rlerrors.GetCode(err))
}

func TestDecoder_InvalidOpcodeFails(t *testing.T) {
	var stream bytes.Buffer
	stream.Write(Magic)
	var hdr [recordHeaderSize]byte
	binary.LittleEndian.PutUint64(hdr[1:], 0)
	stream.Write(hdr[:]) // opcode 0x00
	dec := NewDecoder(nil)
	dec.Append(stream.Bytes())
	_, err := dec.Next()
	require.Error(t, err)
	assert.Equal(t, rlerrors.CodeInvalidOpcode, rlerrors.GetCode(err))
}

func TestDecoder_TruncatedStreamFailsOnFinish(t *testing.T) {
	data := buildStream(t, func(w *Writer) {
		require.NoError(t, w.WriteHeader(&Header{Profile: "ros2"}))
	})
	dec := NewDecoder(nil)
	dec.Append(data[:len(data)-12]) // cut into the footer record
	for {
		_, err := dec.Next()
		if err == ErrMoreData {
			break
		}
		require.NoError(t, err)
	}
	err := dec.Finish()
	require.Error(t, err)
	assert.Equal(t, rlerrors.CodeTruncatedRecord, rlerrors.GetCode(err))
}

func TestDecoder_EmptyStreamIsClean(t *testing.T) {
	dec := NewDecoder(nil)
	_, err := dec.Next()
	assert.Equal(t, ErrMoreData, err)
	assert.NoError(t, dec.Finish())
}

func TestDecoder_CorruptTrailerDetected(t *testing.T) {
	data := buildStream(t, func(w *Writer) {
		require.NoError(t, w.WriteHeader(&Header{Profile: "ros2"}))
	})
	data[len(data)-1] ^= 0xFF

	dec := NewDecoder(nil)
	dec.Append(data)
	for {
		_, err := dec.Next()
		if err == ErrMoreData {
			break
		}
		require.NoError(t, err)
	}
	require.NoError(t, dec.Finish())
	assert.True(t, dec.CorruptTrailer())
}

func TestDecoder_SkippedOpcodesSurfaceAsSkipped(t *testing.T) {
	var stream bytes.Buffer
	stream.Write(Magic)
	body := []byte{1, 2, 3, 4}
	writeFramed(&stream, OpAttachment, body)

	records, err := drainAll(t, stream.Bytes())
	require.NoError(t, err)
	require.Len(t, records, 1)
	sk, ok := records[0].(*Skipped)
	require.True(t, ok)
	assert.Equal(t, OpAttachment, sk.Op)
	assert.Equal(t, uint64(len(body)), sk.Length)
}

func TestDecoder_ChunkCountersTrack(t *testing.T) {
	data := buildStream(t, func(w *Writer) {
		require.NoError(t, w.BeginChunk("snappy"))
		require.NoError(t, w.WriteMessage(&Message{ChannelID: 1, LogTime: 1, Data: []byte("x")}))
		require.NoError(t, w.EndChunk())
	})
	dec := NewDecoder(nil)
	dec.Append(data)
	for {
		_, err := dec.Next()
		if err == ErrMoreData {
			break
		}
		require.NoError(t, err)
	}
	assert.Equal(t, int64(1), dec.ChunksInflated())
	assert.Greater(t, dec.InflatedBytes(), int64(0))
}
