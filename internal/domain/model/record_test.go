package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordKind_Valid(t *testing.T) {
	assert.True(t, RecordKindInstance.Valid())
	assert.True(t, RecordKindHolding.Valid())
	assert.True(t, RecordKindItem.Valid())
	assert.True(t, RecordKindAuthority.Valid())
	assert.False(t, RecordKind("bib").Valid())
}

func TestRecordKind_UnmarshalText(t *testing.T) {
	var k RecordKind
	err := k.UnmarshalText([]byte(" Instance "))
	require.NoError(t, err)
	assert.Equal(t, RecordKindInstance, k)

	err = k.UnmarshalText([]byte("marc"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid RecordKind")
}

func TestCreateRecordRequest_Validate(t *testing.T) {
	tests := []struct {
		name        string
		req         CreateRecordRequest
		expectError bool
		errorMsg    string
	}{
		{
			name: "valid request",
			req: CreateRecordRequest{
				Kind:     RecordKindInstance,
				Document: json.RawMessage(`{"title":"Moby Dick"}`),
			},
			expectError: false,
		},
		{
			name: "invalid kind",
			req: CreateRecordRequest{
				Kind:     RecordKind("bib"),
				Document: json.RawMessage(`{}`),
			},
			expectError: true,
			errorMsg:    "invalid record kind",
		},
		{
			name: "missing document",
			req: CreateRecordRequest{
				Kind: RecordKindItem,
			},
			expectError: true,
			errorMsg:    "document is required",
		},
		{
			name: "malformed document",
			req: CreateRecordRequest{
				Kind:     RecordKindHolding,
				Document: json.RawMessage(`{"title":`),
			},
			expectError: true,
			errorMsg:    "document must be valid JSON",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.expectError {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCreateFailedPublishRequest_Validate(t *testing.T) {
	req := CreateFailedPublishRequest{
		Tenant:       "diku",
		TopicName:    "inventory.instance",
		PartitionKey: "rec-1",
		Payload:      `{"id":"rec-1"}`,
		Error:        "broker unavailable",
	}
	assert.NoError(t, req.Validate())

	req.TopicName = ""
	err := req.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "topic name is required")

	req.TopicName = "inventory.instance"
	req.Error = ""
	err = req.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error text is required")
}
