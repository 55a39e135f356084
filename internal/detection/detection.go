// Package detection turns the producer's loosely shaped detection payload
// into an ordered list of classified detections.
package detection

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Detection is one classified object reported by the perception pipeline.
type Detection struct {
	Class      string  `json:"class"`
	Confidence float64 `json:"confidence"`
	PlateText  string  `json:"plate_text,omitempty"`
}

// Plate returns the canonical plate text, or "" when the reader produced
// nothing usable.
func (d Detection) Plate() string {
	p := strings.TrimSpace(d.PlateText)
	if p == "" || strings.EqualFold(p, "N/A") {
		return ""
	}
	return p
}

// Kind tags which shape a payload arrived in.
type Kind int

const (
	KindNone     Kind = iota // null, scalar or unrecognised object
	KindSingle               // a single detection object
	KindList                 // a bare array of detections
	KindEnvelope             // an object carrying a "detections" array
)

func (k Kind) String() string {
	switch k {
	case KindSingle:
		return "single"
	case KindList:
		return "list"
	case KindEnvelope:
		return "envelope"
	default:
		return "none"
	}
}

// Payload is the detection field of an event. It keeps the raw bytes for
// the audit log alongside the decoded detections.
type Payload struct {
	Kind   Kind
	Single *Detection
	List   []Detection
	Raw    json.RawMessage
}

// Detections returns the payload's detections in arrival order. Shapes
// that carry none yield an empty slice.
func (p Payload) Detections() []Detection {
	switch p.Kind {
	case KindSingle:
		if p.Single == nil {
			return []Detection{}
		}
		return []Detection{*p.Single}
	case KindList, KindEnvelope:
		out := make([]Detection, len(p.List))
		copy(out, p.List)
		return out
	default:
		return []Detection{}
	}
}

// FirstPlate returns the first usable plate text among the detections.
func (p Payload) FirstPlate() string {
	for _, d := range p.Detections() {
		if plate := d.Plate(); plate != "" {
			return plate
		}
	}
	return ""
}

// Parse decodes a raw payload. It never fails: unknown shapes become KindNone.
func Parse(raw []byte) Payload {
	p := Payload{Kind: KindNone}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 {
		p.Raw = append(json.RawMessage(nil), trimmed...)
	}
	if len(trimmed) == 0 {
		return p
	}

	switch trimmed[0] {
	case '[':
		if list, ok := decodeList(trimmed); ok {
			p.Kind = KindList
			p.List = list
		}
	case '{':
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &fields); err != nil {
			return p
		}
		if inner, ok := fields["detections"]; ok {
			if list, ok := decodeList(bytes.TrimSpace(inner)); ok {
				p.Kind = KindEnvelope
				p.List = list
			}
			return p
		}
		if _, ok := fields["class"]; ok {
			d := decodeFields(fields)
			p.Kind = KindSingle
			p.Single = &d
		}
	}
	return p
}

// UnmarshalJSON implements json.Unmarshaler
func (p *Payload) UnmarshalJSON(data []byte) error {
	*p = Parse(data)
	return nil
}

// MarshalJSON writes the payload back out verbatim.
func (p Payload) MarshalJSON() ([]byte, error) {
	if len(p.Raw) == 0 {
		return []byte("null"), nil
	}
	return p.Raw, nil
}

func decodeList(raw []byte) ([]Detection, bool) {
	var items []json.RawMessage
	if len(raw) == 0 || raw[0] != '[' {
		return nil, false
	}
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, false
	}
	list := make([]Detection, 0, len(items))
	for _, item := range items {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(item, &fields); err != nil || fields == nil {
			continue
		}
		list = append(list, decodeFields(fields))
	}
	return list, true
}

func decodeFields(fields map[string]json.RawMessage) Detection {
	var d Detection
	d.Class = strings.TrimSpace(decodeString(fields["class"]))
	if c, ok := decodeNumber(fields["confidence"]); ok {
		d.Confidence = c
	} else if c, ok := decodeNumber(fields["conf"]); ok {
		d.Confidence = c
	}
	d.PlateText = decodeString(fields["plate_text"])
	return d
}

func decodeString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// decodeNumber accepts a JSON number or a numeric string.
func decodeNumber(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
