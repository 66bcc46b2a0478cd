package types

// AlertSeverity classifies structural alerts surfaced to the playback layer.
type AlertSeverity string

const (
	// SeverityWarn marks advisory conditions that never block ingestion
	SeverityWarn AlertSeverity = "warn"

	// SeverityError marks per-channel recoverable failures
	SeverityError AlertSeverity = "error"
)

// Alert is one structural condition discovered during ingestion. The
// playback layer surfaces the list verbatim without inspecting internals.
type Alert struct {
	// Severity tags the alert for display
	Severity AlertSeverity `json:"severity"`

	// Message is the human-readable condition
	Message string `json:"message"`

	// Detail carries optional supporting detail (e.g. the underlying error)
	Detail string `json:"detail,omitempty"`
}
