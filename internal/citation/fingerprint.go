package citation

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"
)

// Fingerprint identifies one physical event: sha256 over the source, the
// UTC event time and the canonical JSON of the raw detection payload. A
// zero ts stands for an event submitted without a timestamp.
// Resubmitting the same event yields the same fingerprint regardless of
// key order or whitespace in the payload.
func Fingerprint(source string, ts time.Time, rawDetection []byte) string {
	h := sha256.New()
	h.Write([]byte(source))
	h.Write([]byte{0})
	h.Write([]byte(ts.UTC().Format(time.RFC3339Nano)))
	h.Write([]byte{0})
	h.Write(canonicalJSON(rawDetection))
	return hex.EncodeToString(h.Sum(nil))
}

// canonicalJSON re-encodes raw with sorted object keys and no insignificant
// whitespace. Numbers keep their literal text.
func canonicalJSON(raw []byte) []byte {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return []byte("null")
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return trimmed
	}
	out, err := json.Marshal(v)
	if err != nil {
		return trimmed
	}
	return out
}

// Number derives the challan number from the event date and fingerprint,
// e.g. CH20251028-3FA2C9D01B7E.
func Number(eventTime time.Time, fingerprint string) string {
	return numberWithSuffix(eventTime, fingerprint, numberSuffixLen)
}

const numberSuffixLen = 12

// numberWithSuffix uses the first n hex digits of the fingerprint, or all
// of them when n exceeds its length.
func numberWithSuffix(eventTime time.Time, fingerprint string, n int) string {
	suffix := fingerprint
	if len(suffix) > n {
		suffix = suffix[:n]
	}
	return "CH" + eventTime.UTC().Format("20060102") + "-" + strings.ToUpper(suffix)
}
