package dispatch

import (
	"encoding/json"
	"strconv"

	"github.com/ashutoshpw/coolify/pkg/deployment"
)

// Control tokens understood on the control channel
const (
	CancelToken  = "cancel"
	StatusPrefix = "status:"
	FlushToken   = "action:flushQueue"

	// CancelledAck is the reply to a cancel message
	CancelledAck = "cancelled"
)

// MessageKind classifies a control message
type MessageKind string

const (
	KindSubmit MessageKind = "submit"
	KindCancel MessageKind = "cancel"
	KindStatus MessageKind = "status"
	KindFlush  MessageKind = "flush"
)

// Message is a decoded control message
type Message struct {
	Kind MessageKind

	// Caller identifies who asked for a status report
	Caller string

	// Request is set for submit messages
	Request *deployment.Request
}

// StatusReport answers a status query. The JSON names follow the platform's queue
// vocabulary: size is what waits, pending is what runs. The counts are also
// emitted as queueDepth and activeCount.
type StatusReport struct {
	QueueDepth  int    `json:"size"`
	ActiveCount int    `json:"pending"`
	Caller      string `json:"caller"`
}

// MarshalJSON writes both key sets of the report
func (s StatusReport) MarshalJSON() ([]byte, error) {
	type report StatusReport
	return json.Marshal(struct {
		report
		QueueDepth  int `json:"queueDepth"`
		ActiveCount int `json:"activeCount"`
	}{report(s), s.QueueDepth, s.ActiveCount})
}

// FlexInt is a type that can unmarshal from both string and int
type FlexInt int

// UnmarshalJSON implements json.Unmarshaler for FlexInt
func (fi *FlexInt) UnmarshalJSON(data []byte) error {
	// Try to unmarshal as int first
	var i int
	if err := json.Unmarshal(data, &i); err == nil {
		*fi = FlexInt(i)
		return nil
	}

	// Try to unmarshal as string
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	// Convert string to int
	if s == "" {
		*fi = FlexInt(0)
		return nil
	}

	i, err := strconv.Atoi(s)
	if err != nil {
		return err
	}

	*fi = FlexInt(i)
	return nil
}

// FlexString is a type that can unmarshal from both string and int/number
type FlexString string

// UnmarshalJSON implements json.Unmarshaler for FlexString
func (fs *FlexString) UnmarshalJSON(data []byte) error {
	// Try to unmarshal as string first
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*fs = FlexString(s)
		return nil
	}

	// Try to unmarshal as int
	var i int
	if err := json.Unmarshal(data, &i); err == nil {
		*fs = FlexString(strconv.Itoa(i))
		return nil
	}

	// Try to unmarshal as float (in case it's a large number represented as float)
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}

	*fs = FlexString(strconv.FormatFloat(f, 'f', 0, 64))
	return nil
}

// DeployPayload is the wire form of a deployment request. The platform sends some
// numeric fields as strings and some ids as numbers; those fields shadow the
// embedded request's and are normalized by ToRequest.
type DeployPayload struct {
	deployment.Request

	ProjectID     FlexInt    `json:"projectId,omitempty"`
	Port          FlexInt    `json:"port,omitempty"`
	ExposePort    FlexInt    `json:"exposePort,omitempty"`
	PullRequestID FlexString `json:"pullmergeRequestId,omitempty"`
}

// ToRequest returns the normalized request
func (p DeployPayload) ToRequest() deployment.Request {
	req := p.Request
	req.ProjectID = int(p.ProjectID)
	req.Port = int(p.Port)
	req.ExposePort = int(p.ExposePort)
	req.PullRequestID = string(p.PullRequestID)
	return req
}
