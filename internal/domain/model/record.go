package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// RecordKind identifies which entity table a record belongs to.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type RecordKind string

const (
	// RecordKindInstance is a bibliographic instance record.
	RecordKindInstance RecordKind = "instance"
	// RecordKindHolding is a holdings record attached to an instance.
	RecordKindHolding RecordKind = "holding"
	// RecordKindItem is a physical item record.
	RecordKindItem RecordKind = "item"
	// RecordKindAuthority is an authority record.
	RecordKindAuthority RecordKind = "authority"
)

// Valid returns true if the RecordKind is one of the known entity kinds.
func (k RecordKind) Valid() bool {
	return k == RecordKindInstance || k == RecordKindHolding ||
		k == RecordKindItem || k == RecordKindAuthority
}

// UnmarshalText implements encoding.TextUnmarshaler so the kind can be parsed
// from env vars and query parameters.
func (k *RecordKind) UnmarshalText(text []byte) error {
	v := RecordKind(strings.ToLower(strings.TrimSpace(string(text))))
	if !v.Valid() {
		return fmt.Errorf("invalid RecordKind: %q", string(text))
	}
	*k = v
	return nil
}

// Record is one stored entity. The document column carries the full JSON body;
// top-level columns exist only for addressing and scanning.
type Record struct {
	ID        string          `json:"id"         db:"id"`
	Tenant    string          `json:"tenant"     db:"tenant"`
	Kind      RecordKind      `json:"kind"       db:"kind"`
	Document  json.RawMessage `json:"document"   db:"document"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// CreateRecordRequest is the payload for creating a record. ID is generated
// when absent.
type CreateRecordRequest struct {
	ID       string          `json:"id,omitempty"`
	Kind     RecordKind      `json:"kind"`
	Document json.RawMessage `json:"document"`
}

// Validate validates the CreateRecordRequest fields.
func (r *CreateRecordRequest) Validate() error {
	if !r.Kind.Valid() {
		return errors.New("invalid record kind")
	}
	if len(r.Document) == 0 {
		return errors.New("document is required")
	}
	if !json.Valid(r.Document) {
		return errors.New("document must be valid JSON")
	}
	return nil
}

// RecordListOptions control list pagination and filtering.
type RecordListOptions struct {
	Kind         RecordKind
	UpdatedAfter *time.Time
	Limit        int
	Offset       int
}
