// Package envelope defines the Application Insights wire record and its
// JSON serialization contract, which pkg/spool relies on to persist and
// recover batches.
package envelope

import (
	"encoding/json"
	"fmt"
	"time"
)

// Well-known envelope names (Data.BaseType discriminators pair with these).
const (
	NameRequest          = "Microsoft.ApplicationInsights.Request"
	NameRemoteDependency = "Microsoft.ApplicationInsights.RemoteDependency"
)

// Well-known base_data type discriminators.
const (
	BaseTypeRequest          = "RequestData"
	BaseTypeRemoteDependency = "RemoteDependencyData"
)

// Well-known tag keys.
const (
	TagOperationID       = "ai.operation.id"
	TagOperationParentID = "ai.operation.parentId"
	TagOperationName     = "ai.operation.name"
)

// Data carries the base_type discriminator and its associated payload.
type Data struct {
	BaseType string `json:"baseType"`
	BaseData any    `json:"baseData"`
}

// Envelope is one telemetry record destined for the ingestion endpoint.
//
// Time is stored as a string already formatted as ISO-8601 UTC with a
// literal Z suffix (the translator writes microsecond precision; FormatTime
// produces millisecond precision) rather than as a time.Time, so that
// round-tripping through JSON never re-derives a different string
// representation of the same instant.
type Envelope struct {
	Ver        int               `json:"ver"`
	Name       string            `json:"name"`
	Time       string            `json:"time"`
	SampleRate float64           `json:"sampleRate,omitempty"`
	Seq        string            `json:"seq,omitempty"`
	IKey       string            `json:"iKey"`
	Flags      int64             `json:"flags,omitempty"`
	Tags       map[string]string `json:"tags"`
	Data       *Data             `json:"data,omitempty"`
}

// New returns an Envelope with the defaults the wire schema expects
// (ver=1, sampleRate=100) for the given instrumentation key and name.
func New(ikey, name string) *Envelope {
	return &Envelope{
		Ver:        1,
		Name:       name,
		IKey:       ikey,
		SampleRate: 100,
		Tags:       make(map[string]string),
	}
}

// FormatTime renders t as the wire's UTC ISO-8601 form with millisecond
// precision and a literal Z suffix, e.g. "2019-12-04T21:18:36.027Z".
func FormatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// Marshal serializes a batch of envelopes to the JSON array the ingestion
// endpoint expects as a POST body.
func Marshal(envelopes []*Envelope) ([]byte, error) {
	b, err := json.Marshal(envelopes)
	if err != nil {
		return nil, fmt.Errorf("envelope: marshal batch: %w", err)
	}
	return b, nil
}

// Unmarshal deserializes a JSON array of envelopes previously produced by
// Marshal. It is the counterpart Blob.get relies on when reading a
// persisted batch back off disk.
func Unmarshal(data []byte) ([]*Envelope, error) {
	var envelopes []*Envelope
	if err := json.Unmarshal(data, &envelopes); err != nil {
		return nil, fmt.Errorf("envelope: unmarshal batch: %w", err)
	}
	return envelopes, nil
}
