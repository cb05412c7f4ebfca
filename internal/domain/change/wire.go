package change

import (
	"encoding/json"
	"fmt"

	"github.com/kailas-cloud/omniview/internal/domain"
)

// StreamEvent is the JSON envelope of a change-stream delivery.
type StreamEvent struct {
	Records []StreamRecord `json:"Records"`
}

// StreamRecord is one record of a StreamEvent.
type StreamRecord struct {
	EventID   string        `json:"eventID,omitempty"`
	EventName string        `json:"eventName,omitempty"`
	Dynamodb  StreamPayload `json:"dynamodb"`
}

// StreamPayload carries the key and images of a StreamRecord.
type StreamPayload struct {
	Keys     Image `json:"Keys,omitempty"`
	NewImage Image `json:"NewImage,omitempty"`
	OldImage Image `json:"OldImage,omitempty"`
}

// Record converts the wire form to a domain record.
func (sr StreamRecord) Record() Record {
	return Record{
		EventID:   sr.EventID,
		EventName: sr.EventName,
		Keys:      sr.Dynamodb.Keys,
		Old:       sr.Dynamodb.OldImage,
		New:       sr.Dynamodb.NewImage,
	}
}

// DecodeEvent parses a stream event envelope into records.
func DecodeEvent(data []byte) ([]Record, error) {
	var ev StreamEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("decode stream event: %v: %w", err, domain.ErrInvalidBatch)
	}
	records := make([]Record, len(ev.Records))
	for i, sr := range ev.Records {
		records[i] = sr.Record()
	}
	return records, nil
}

// DecodeRecord parses a single stream record.
func DecodeRecord(data []byte) (Record, error) {
	var sr StreamRecord
	if err := json.Unmarshal(data, &sr); err != nil {
		return Record{}, fmt.Errorf("decode stream record: %v: %w", err, domain.ErrInvalidBatch)
	}
	return sr.Record(), nil
}
