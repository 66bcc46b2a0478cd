package types

// Topic describes one successfully registered channel.
type Topic struct {
	// Name is the topic name
	Name string `json:"name"`

	// SchemaName is the referenced schema's name, empty for schemaless channels
	SchemaName string `json:"schemaName,omitempty"`

	// SchemaEncoding is the schema definition encoding (e.g. "protobuf", "jsonschema")
	SchemaEncoding string `json:"schemaEncoding,omitempty"`

	// SchemaData is the raw schema definition blob
	SchemaData []byte `json:"schemaData,omitempty"`

	// MessageEncoding is the payload encoding (e.g. "protobuf", "json")
	MessageEncoding string `json:"messageEncoding"`
}

// TopicStats holds per-topic aggregate counters.
type TopicStats struct {
	// NumMessages is the number of messages ingested on the topic
	NumMessages int64 `json:"numMessages"`
}

// Datatype is one named entry in the merged type table built from all
// channels' parsed schemas.
type Datatype struct {
	// Name is the fully qualified type name
	Name string `json:"name"`

	// Fields lists the type's fields in declaration order
	Fields []Field `json:"fields,omitempty"`
}

// Field is a single field of a Datatype.
type Field struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Metadata is one free-form name/dict record collected in file order.
type Metadata struct {
	// Name is the metadata record name
	Name string `json:"name"`

	// Values holds the record's key/value pairs
	Values map[string]string `json:"values"`
}

// Initialization is the immutable result of a completed ingestion pass.
type Initialization struct {
	// SessionID uniquely identifies this source instance
	SessionID string `json:"sessionId"`

	// Profile is the container's declared profile string (last Header wins)
	Profile string `json:"profile"`

	// Start is the earliest receive time across all messages
	Start Time `json:"start"`

	// End is the latest receive time across all messages
	End Time `json:"end"`

	// Topics lists one entry per successfully registered channel
	Topics []Topic `json:"topics"`

	// TopicStats maps topic name to aggregate counters
	TopicStats map[string]TopicStats `json:"topicStats"`

	// Datatypes is the merged named-type table across all channels' schemas.
	// Later channels silently overwrite same-named entries from earlier ones.
	Datatypes map[string]Datatype `json:"datatypes"`

	// PublishersByTopic maps topic name to the sorted set of publisher
	// identities recovered from channel metadata
	PublishersByTopic map[string][]string `json:"publishersByTopic"`

	// Alerts accumulates structural warnings and per-channel errors
	Alerts []Alert `json:"alerts"`

	// Metadata holds the file's metadata records in file order
	Metadata []Metadata `json:"metadata"`
}
