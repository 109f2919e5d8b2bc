package events

import (
	"github.com/asaskevich/EventBus"
)

const (
	TopicVerified        = "verify:completed"
	TopicScanRecorded    = "scan:recorded"
	TopicReportSubmitted = "report:submitted"
	TopicReportStatus    = "report:status"
)

// VerifyEvent published once per verification call
type VerifyEvent struct {
	Verdict  string
	TokenID  string
	BatchID  int64
	Degraded bool
}

// ScanEvent published after a scan record is stored
type ScanEvent struct {
	ScanID  int64
	BatchID int64
	Result  string
}

// ReportEvent published on submission and on every status change
type ReportEvent struct {
	ReportID int64
	BatchID  *int64
	Status   string
}

// Publisher the publishing half of EventBus.Bus
type Publisher interface {
	Publish(topic string, args ...interface{})
}

// NewBus creates an in-process bus
func NewBus() EventBus.Bus {
	return EventBus.New()
}

// Discard drops every event
type Discard struct{}

func (Discard) Publish(string, ...interface{}) {}
