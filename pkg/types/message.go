// Package types provides the public data types exposed by the roverlog
// ingestion core: timestamps, message events, topic metadata and alerts.
package types

// MessageEvent is a single decoded message attributed to a channel.
// Events are owned by the bucket that accumulated them during ingestion;
// Clone hands an independent copy across the boundary to consumers.
type MessageEvent struct {
	// Topic is the topic name of the channel the message arrived on
	Topic string `json:"topic"`

	// ReceiveTime is when the message was recorded (log time)
	ReceiveTime Time `json:"receiveTime"`

	// PublishTime is when the message was originally published
	PublishTime Time `json:"publishTime"`

	// Data is the raw encoded payload
	Data []byte `json:"data"`

	// SizeBytes is the payload length in bytes
	SizeBytes int64 `json:"sizeBytes"`

	// SchemaName is the channel's schema name, empty for schemaless channels
	SchemaName string `json:"schemaName"`
}

// Clone returns a deep copy of the event, including the payload buffer.
func (m *MessageEvent) Clone() *MessageEvent {
	cp := *m
	cp.Data = make([]byte, len(m.Data))
	copy(cp.Data, m.Data)
	return &cp
}
