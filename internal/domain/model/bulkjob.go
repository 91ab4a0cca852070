package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// JobKind selects which transform/sink pairing a bulk job uses.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type JobKind string

// JobStatus is the single source of truth for cancellation and completion of
// a bulk job.
type JobStatus string

const (
	// JobKindMigration runs named data migrations over stored records.
	JobKindMigration JobKind = "migration"
	// JobKindIteration republishes every record id as an event on a
	// caller-named topic.
	JobKindIteration JobKind = "iteration"
	// JobKindReindex publishes reindex events for every record of one kind.
	JobKindReindex JobKind = "reindex"

	// JobStatusInProgress indicates the job is running.
	JobStatusInProgress JobStatus = "in_progress"
	// JobStatusCompleted indicates the row source was exhausted with no failure.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusCancelled indicates the job stopped at a cancellation poll point.
	JobStatusCancelled JobStatus = "cancelled"
	// JobStatusFailed indicates a fatal row-source or transform failure.
	JobStatusFailed JobStatus = "failed"

	// JobStatusIDsPublished marks a reindex job whose identifiers have all been
	// handed to the sink while downstream consumption is still draining.
	JobStatusIDsPublished JobStatus = "ids_published"
	// JobStatusIDPublishingCancelled is the cancelled terminal of the reindex
	// variant.
	JobStatusIDPublishingCancelled JobStatus = "id_publishing_cancelled"
	// JobStatusIDPublishingFailed is the failed terminal of the reindex variant.
	JobStatusIDPublishingFailed JobStatus = "id_publishing_failed"
)

// Valid returns true if the JobKind is a known job family.
func (k JobKind) Valid() bool {
	return k == JobKindMigration || k == JobKindIteration || k == JobKindReindex
}

// UnmarshalText implements encoding.TextUnmarshaler for JobKind.
func (k *JobKind) UnmarshalText(text []byte) error {
	v := JobKind(strings.ToLower(strings.TrimSpace(string(text))))
	if !v.Valid() {
		return fmt.Errorf("invalid JobKind: %q", string(text))
	}
	*k = v
	return nil
}

// Valid returns true if the JobStatus is a known status.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusInProgress, JobStatusCompleted, JobStatusCancelled,
		JobStatusFailed, JobStatusIDsPublished,
		JobStatusIDPublishingCancelled, JobStatusIDPublishingFailed:
		return true
	}
	return false
}

// Terminal reports whether no further status transitions are allowed.
// JobStatusIDsPublished is intentionally non-terminal: the reindex runner
// still moves it to completed once the sink confirms full drain.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusCancelled, JobStatusFailed,
		JobStatusIDPublishingCancelled, JobStatusIDPublishingFailed:
		return true
	}
	return false
}

// CategoryCounter tracks progress for one sub-operation of a job, e.g. one
// migration name.
type CategoryCounter struct {
	Processed int64 `json:"processed"`
	Published int64 `json:"published"`
}

// BulkJob is the persisted record describing one run of the streaming engine.
// Counters are monotonically non-decreasing and only move while the job is
// running; published never exceeds processed.
type BulkJob struct {
	ID            string                     `json:"id"             db:"id"`
	Tenant        string                     `json:"tenant"         db:"tenant"`
	Kind          JobKind                    `json:"kind"           db:"kind"`
	Status        JobStatus                  `json:"status"         db:"status"`
	Parameters    json.RawMessage            `json:"parameters"     db:"parameters"`
	Processed     int64                      `json:"processed"      db:"processed"`
	Published     int64                      `json:"published"      db:"published"`
	Counters      map[string]CategoryCounter `json:"counters,omitempty" db:"counters"`
	LastError     *string                    `json:"last_error,omitempty" db:"last_error"`
	SubmittedDate time.Time                  `json:"submitted_date" db:"submitted_date"`
	UpdatedAt     time.Time                  `json:"updated_at"     db:"updated_at"`
}

// SubmitJobRequest is the payload for submitting a bulk job. Parameters are
// kind-specific and validated by the owning service.
type SubmitJobRequest struct {
	ID         string          `json:"id,omitempty"`
	Kind       JobKind         `json:"kind"`
	Parameters json.RawMessage `json:"parameters,omitempty"`
}

// Validate validates the SubmitJobRequest fields.
func (r *SubmitJobRequest) Validate() error {
	if !r.Kind.Valid() {
		return errors.New("invalid job kind")
	}
	return nil
}

// JobListOptions control bulk job list filtering and pagination.
type JobListOptions struct {
	Kind   JobKind
	Status JobStatus
	Limit  int
	Offset int
}

// ReindexParameters are the kind-specific parameters of a reindex job.
type ReindexParameters struct {
	RecordKind RecordKind `json:"recordKind"`
}

// IterationParameters are the kind-specific parameters of an iteration job.
// Filter, when present, is a JMESPath expression evaluated against the record
// document; rows for which it yields a falsy result are skipped.
type IterationParameters struct {
	TopicName string `json:"topicName"`
	EventType string `json:"eventType"`
	Filter    string `json:"filter,omitempty"`
}

// MigrationParameters are the kind-specific parameters of a migration job.
type MigrationParameters struct {
	Migrations []string `json:"migrations"`
}

// ErrJobNotFound is returned when a bulk job id does not exist.
var ErrJobNotFound = errors.New("bulk job not found")
