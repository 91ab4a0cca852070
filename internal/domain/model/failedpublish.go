package model

import (
	"errors"
	"time"
)

// FailedPublish is a durable dead-letter record of a publish attempt that
// exhausted its retries. It is never mutated after creation; operators read it
// for reconciliation.
type FailedPublish struct {
	ID               string    `json:"id"                 db:"id"`
	Tenant           string    `json:"tenant"             db:"tenant"`
	TopicName        string    `json:"topic_name"         db:"topic_name"`
	PartitionKey     string    `json:"partition_key"      db:"partition_key"`
	Payload          string    `json:"payload"            db:"payload"`
	Error            string    `json:"error"              db:"error"`
	IncidentDateTime time.Time `json:"incident_date_time" db:"incident_date_time"`
}

// CreateFailedPublishRequest captures one failed publish attempt. The error
// text is free-form and may span multiple lines.
type CreateFailedPublishRequest struct {
	Tenant       string
	TopicName    string
	PartitionKey string
	Payload      string
	Error        string
}

// Validate validates the CreateFailedPublishRequest fields.
func (r *CreateFailedPublishRequest) Validate() error {
	if r.TopicName == "" {
		return errors.New("topic name is required")
	}
	if r.Error == "" {
		return errors.New("error text is required")
	}
	return nil
}

// FailedPublishListOptions control dead-letter list filtering and pagination.
type FailedPublishListOptions struct {
	TopicName string
	Limit     int
	Offset    int
}

// ErrFailedPublishNotFound is returned when a dead-letter record id does not exist.
var ErrFailedPublishNotFound = errors.New("failed publish record not found")
