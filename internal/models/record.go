package models

import "time"

// SourceKind tells how a conversion source reached the service.
type SourceKind string

const (
	SourceDirect SourceKind = "direct"
	SourceRemote SourceKind = "remote"
	SourceUpload SourceKind = "upload"
)

// RecordStatus represents the outcome of a conversion.
type RecordStatus string

const (
	RecordSucceeded RecordStatus = "succeeded"
	RecordFailed    RecordStatus = "failed"
)

// ConversionRecord is one row of the conversion audit ledger.
type ConversionRecord struct {
	ID           string       `json:"id" msgpack:"id"`
	Kind         SourceKind   `json:"kind" msgpack:"kind"`
	Source       string       `json:"source" msgpack:"source"`
	OutputFormat OutputFormat `json:"outputFormat" msgpack:"outputFormat"`
	Backend      string       `json:"backend" msgpack:"backend"`
	Status       RecordStatus `json:"status" msgpack:"status"`
	ErrorKind    string       `json:"errorKind,omitempty" msgpack:"errorKind,omitempty"`
	Error        string       `json:"error,omitempty" msgpack:"error,omitempty"`
	DurationMs   int64        `json:"durationMs" msgpack:"durationMs"`
	CreatedAt    time.Time    `json:"createdAt" msgpack:"createdAt"`
}
