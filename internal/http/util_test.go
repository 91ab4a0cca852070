package httpx

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLimitOffset(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantLimit  int
		wantOffset int
	}{
		{"defaults", "", 100, 0},
		{"explicit values", "limit=25&offset=50", 25, 50},
		{"limit clamped to max", "limit=99999", 1000, 0},
		{"limit floor of one", "limit=0", 1, 0},
		{"negative offset ignored", "offset=-5", 100, 0},
		{"garbage falls back to defaults", "limit=ten&offset=zero", 100, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/api/records?"+tt.query, nil)
			limit, offset := ParseLimitOffset(r, 100, 1000)
			assert.Equal(t, tt.wantLimit, limit)
			assert.Equal(t, tt.wantOffset, offset)
		})
	}
}
