// Package forward republishes collected batches as JSON documents on MQTT
// and Kafka.
package forward

import (
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"

	"sensenode/codec"
	"sensenode/types"
)

// Document is the JSON form of one batch.
type Document struct {
	Node       string    `json:"node"`
	Seq        uint32    `json:"seq"`
	ReceivedAt time.Time `json:"received_at"`
	Payloads   []Entry   `json:"payloads"`
}

// Entry is one payload. Type is "reading", "fault" or "critical".
type Entry struct {
	Type    string   `json:"type"`
	Kind    string   `json:"kind,omitempty"`
	Value   *float32 `json:"value,omitempty"`
	Button  string   `json:"button,omitempty"`
	PressMs uint16   `json:"press_ms,omitempty"`
	Device  string   `json:"device,omitempty"`
	Class   string   `json:"class,omitempty"`
	Cause   string   `json:"cause,omitempty"`
}

func NewDocument(b codec.Batch, received time.Time) Document {
	doc := Document{
		Node:       b.Node,
		Seq:        b.Seq,
		ReceivedAt: received.UTC(),
		Payloads:   make([]Entry, 0, len(b.Payloads)),
	}
	for _, p := range b.Payloads {
		doc.Payloads = append(doc.Payloads, entry(p))
	}
	return doc
}

func entry(p types.Payload) Entry {
	switch v := p.(type) {
	case types.Reading:
		e := Entry{Type: "reading", Kind: v.Kind.String()}
		if v.Kind == types.KindButtonPress {
			e.Button = v.Button.String()
			e.PressMs = v.PressMs
			return e
		}
		val := v.Value
		e.Value = &val
		return e
	case types.Fault:
		return Entry{Type: "fault", Device: v.Device.String(), Class: v.Class.String(), Cause: v.Cause}
	case types.Critical:
		return Entry{Type: "critical", Cause: v.Cause}
	default:
		return Entry{Type: "unknown"}
	}
}

func Encode(doc Document) ([]byte, error) {
	out, err := json.Marshal(doc)
	return out, errors.Wrap(err, "forward: encode")
}

func hasCritical(b codec.Batch) (types.Critical, bool) {
	for _, p := range b.Payloads {
		if c, ok := p.(types.Critical); ok {
			return c, true
		}
	}
	return types.Critical{}, false
}
