// Package testutil provides testing utilities and helpers for the marcbase
// record store and bulk job engine.
package testutil

import (
	"encoding/json"
	"fmt"

	"github.com/marcbase/marcbase/internal/domain/model"
)

// JobRequestBuilder provides a fluent interface for building SubmitJobRequest objects for testing.
type JobRequestBuilder struct {
	req *model.SubmitJobRequest
}

// NewJobRequest creates a new JobRequestBuilder with sensible defaults: a
// reindex job over instance records.
func NewJobRequest() *JobRequestBuilder {
	return &JobRequestBuilder{
		req: &model.SubmitJobRequest{
			Kind:       model.JobKindReindex,
			Parameters: json.RawMessage(`{"recordKind": "instance"}`),
		},
	}
}

// WithID sets an explicit job id.
func (b *JobRequestBuilder) WithID(id string) *JobRequestBuilder {
	b.req.ID = id
	return b
}

// WithKind sets the job kind.
func (b *JobRequestBuilder) WithKind(kind model.JobKind) *JobRequestBuilder {
	b.req.Kind = kind
	return b
}

// WithParameters sets the kind-specific parameters.
func (b *JobRequestBuilder) WithParameters(params json.RawMessage) *JobRequestBuilder {
	b.req.Parameters = params
	return b
}

// WithParametersString sets the kind-specific parameters from a string.
func (b *JobRequestBuilder) WithParametersString(params string) *JobRequestBuilder {
	b.req.Parameters = json.RawMessage(params)
	return b
}

// Build returns the constructed SubmitJobRequest.
func (b *JobRequestBuilder) Build() *model.SubmitJobRequest {
	return b.req
}

// Common job request presets

// ReindexJobRequest creates a reindex job request over the given record kind.
func ReindexJobRequest(kind model.RecordKind) *model.SubmitJobRequest {
	return NewJobRequest().
		WithKind(model.JobKindReindex).
		WithParametersString(fmt.Sprintf(`{"recordKind": %q}`, kind)).
		Build()
}

// IterationJobRequest creates an iteration job request on the given topic.
func IterationJobRequest(topic string) *model.SubmitJobRequest {
	return NewJobRequest().
		WithKind(model.JobKindIteration).
		WithParametersString(fmt.Sprintf(`{"topicName": %q, "eventType": "ITERATE"}`, topic)).
		Build()
}

// MigrationJobRequest creates a migration job request for the named migrations.
func MigrationJobRequest(migrations ...string) *model.SubmitJobRequest {
	names, _ := json.Marshal(migrations)
	return NewJobRequest().
		WithKind(model.JobKindMigration).
		WithParametersString(fmt.Sprintf(`{"migrations": %s}`, names)).
		Build()
}

// RecordRequestBuilder provides a fluent interface for building CreateRecordRequest objects for testing.
type RecordRequestBuilder struct {
	req *model.CreateRecordRequest
}

// NewRecordRequest creates a new RecordRequestBuilder with sensible defaults:
// an instance record with a minimal document.
func NewRecordRequest() *RecordRequestBuilder {
	return &RecordRequestBuilder{
		req: &model.CreateRecordRequest{
			Kind:     model.RecordKindInstance,
			Document: json.RawMessage(`{"title": "Test Instance", "source": "MARC"}`),
		},
	}
}

// WithID sets an explicit record id.
func (b *RecordRequestBuilder) WithID(id string) *RecordRequestBuilder {
	b.req.ID = id
	return b
}

// WithKind sets the record kind.
func (b *RecordRequestBuilder) WithKind(kind model.RecordKind) *RecordRequestBuilder {
	b.req.Kind = kind
	return b
}

// WithDocument sets the record document.
func (b *RecordRequestBuilder) WithDocument(doc json.RawMessage) *RecordRequestBuilder {
	b.req.Document = doc
	return b
}

// WithDocumentString sets the record document from a string.
func (b *RecordRequestBuilder) WithDocumentString(doc string) *RecordRequestBuilder {
	b.req.Document = json.RawMessage(doc)
	return b
}

// Build returns the constructed CreateRecordRequest.
func (b *RecordRequestBuilder) Build() *model.CreateRecordRequest {
	return b.req
}

// Common record request presets

// InstanceRecordRequest creates an instance record request with the given title.
func InstanceRecordRequest(title string) *model.CreateRecordRequest {
	return NewRecordRequest().
		WithDocumentString(fmt.Sprintf(`{"title": %q, "source": "MARC"}`, title)).
		Build()
}

// HoldingRecordRequest creates a holding record request attached to an instance.
func HoldingRecordRequest(instanceID string) *model.CreateRecordRequest {
	return NewRecordRequest().
		WithKind(model.RecordKindHolding).
		WithDocumentString(fmt.Sprintf(`{"instanceId": %q, "callNumber": "TEST 1 .T47"}`, instanceID)).
		Build()
}

// AuthorityRecordRequest creates an authority record request with the given heading.
func AuthorityRecordRequest(heading string) *model.CreateRecordRequest {
	return NewRecordRequest().
		WithKind(model.RecordKindAuthority).
		WithDocumentString(fmt.Sprintf(`{"personalName": %q}`, heading)).
		Build()
}
