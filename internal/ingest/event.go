package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/irisdrone/echallan/internal/detection"
)

// Event is one detection submission from a producer.
type Event struct {
	Source    string            `json:"source"`
	Timestamp EventTime         `json:"timestamp"`
	Detection detection.Payload `json:"detection"`
	VehicleNo *string           `json:"vehicle_no"`
	ImagePath *string           `json:"image_path"`
}

// DecodeEvent parses a submission body. Malformed JSON and unparseable
// timestamps are errors; odd detection shapes are not.
func DecodeEvent(data []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("invalid event: %w", err)
	}
	if strings.TrimSpace(ev.Source) == "" {
		ev.Source = "unknown"
	}
	return &ev, nil
}

// EventTime accepts RFC 3339 as well as the zone-less ISO form some
// producers emit, which is read as UTC.
type EventTime struct {
	time.Time
	Set bool
}

var eventTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// ParseEventTime parses s with the accepted layouts.
func ParseEventTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range eventTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}

// UnmarshalJSON implements json.Unmarshaler
func (t *EventTime) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*t = EventTime{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp must be a string")
	}
	if s == "" {
		*t = EventTime{}
		return nil
	}
	parsed, err := ParseEventTime(s)
	if err != nil {
		return err
	}
	*t = EventTime{Time: parsed, Set: true}
	return nil
}

// MarshalJSON implements json.Marshaler
func (t EventTime) MarshalJSON() ([]byte, error) {
	if !t.Set {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time.UTC().Format(time.RFC3339Nano))
}

func (ev *Event) vehicleNo() string {
	if ev.VehicleNo == nil {
		return ""
	}
	return strings.TrimSpace(*ev.VehicleNo)
}
