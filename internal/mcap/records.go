// Package mcap decodes and encodes the MCAP binary container format: a
// leading magic, a sequence of opcode/length framed records, and a trailing
// magic. The decoder is incremental (partial chunks may arrive over time)
// and single-pass; compressed chunk records are inflated through the
// decompress registry and their nested records surfaced inline.
package mcap

// Magic is the 8-byte sequence framing the container at both ends.
var Magic = []byte{0x89, 'M', 'C', 'A', 'P', 0x30, '\r', '\n'}

// MagicSize is the byte length of the leading and trailing magic.
const MagicSize = 8

// Opcode identifies a record kind.
type Opcode uint8

// Record opcodes fixed by the container format.
const (
	OpInvalid         Opcode = 0x00
	OpHeader          Opcode = 0x01
	OpFooter          Opcode = 0x02
	OpSchema          Opcode = 0x03
	OpChannel         Opcode = 0x04
	OpMessage         Opcode = 0x05
	OpChunk           Opcode = 0x06
	OpMessageIndex    Opcode = 0x07
	OpChunkIndex      Opcode = 0x08
	OpAttachment      Opcode = 0x09
	OpAttachmentIndex Opcode = 0x0A
	OpStatistics      Opcode = 0x0B
	OpMetadata        Opcode = 0x0C
	OpMetadataIndex   Opcode = 0x0D
	OpSummaryOffset   Opcode = 0x0E
	OpDataEnd         Opcode = 0x0F
)

// String returns the record kind name for an opcode.
func (op Opcode) String() string {
	switch op {
	case OpHeader:
		return "header"
	case OpFooter:
		return "footer"
	case OpSchema:
		return "schema"
	case OpChannel:
		return "channel"
	case OpMessage:
		return "message"
	case OpChunk:
		return "chunk"
	case OpMessageIndex:
		return "message_index"
	case OpChunkIndex:
		return "chunk_index"
	case OpAttachment:
		return "attachment"
	case OpAttachmentIndex:
		return "attachment_index"
	case OpStatistics:
		return "statistics"
	case OpMetadata:
		return "metadata"
	case OpMetadataIndex:
		return "metadata_index"
	case OpSummaryOffset:
		return "summary_offset"
	case OpDataEnd:
		return "data_end"
	default:
		return "unknown"
	}
}

// Record is the closed set of decoded record variants. Dispatch points are
// expected to type-switch exhaustively over the concrete types below.
type Record interface {
	isRecord()
	Opcode() Opcode
}

// Header declares the container's profile and writing library.
type Header struct {
	Profile string
	Library string
}

// Footer terminates the data section and points at the summary section.
type Footer struct {
	SummaryStart       uint64
	SummaryOffsetStart uint64
	SummaryCRC         uint32
}

// Schema is a reusable type definition referenced by channels. ID 0 is
// reserved to mean "no schema".
type Schema struct {
	ID       uint16
	Name     string
	Encoding string
	Data     []byte
}

// Channel is a named, schema-typed message stream.
type Channel struct {
	ID              uint16
	SchemaID        uint16
	Topic           string
	MessageEncoding string
	Metadata        map[string]string
}

// Message is one encoded payload on a channel. LogTime and PublishTime are
// epoch nanoseconds.
type Message struct {
	ChannelID   uint16
	Sequence    uint32
	LogTime     uint64
	PublishTime uint64
	Data        []byte
}

// MetadataRecord carries free-form name/dict pairs in file order.
type MetadataRecord struct {
	Name     string
	Metadata map[string]string
}

// DataEnd marks the end of the data section.
type DataEnd struct {
	DataSectionCRC uint32
}

// Skipped stands in for record kinds the core ignores (indexes,
// attachments, statistics, summary offsets). Only the opcode and byte
// length are retained, for read statistics.
type Skipped struct {
	Op     Opcode
	Length uint64
}

func (*Header) isRecord()         {}
func (*Footer) isRecord()         {}
func (*Schema) isRecord()         {}
func (*Channel) isRecord()        {}
func (*Message) isRecord()        {}
func (*MetadataRecord) isRecord() {}
func (*DataEnd) isRecord()        {}
func (*Skipped) isRecord()        {}

func (*Header) Opcode() Opcode         { return OpHeader }
func (*Footer) Opcode() Opcode         { return OpFooter }
func (*Schema) Opcode() Opcode         { return OpSchema }
func (*Channel) Opcode() Opcode        { return OpChannel }
func (*Message) Opcode() Opcode        { return OpMessage }
func (*MetadataRecord) Opcode() Opcode { return OpMetadata }
func (*DataEnd) Opcode() Opcode        { return OpDataEnd }
func (s *Skipped) Opcode() Opcode      { return s.Op }
