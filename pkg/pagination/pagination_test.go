package pagination

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromRequest(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		page    int
		perPage int
		offset  int
	}{
		{"defaults", "", 1, 20, 0},
		{"custom", "?page=3&per_page=10", 3, 10, 20},
		{"negative page", "?page=-1", 1, 20, 0},
		{"non numeric", "?page=abc&per_page=x", 1, 20, 0},
		{"per page over cap", "?per_page=500", 1, 20, 0},
		{"per page at cap", "?page=2&per_page=100", 2, 100, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := FromRequest(httptest.NewRequest("GET", "/api/v1/pos/parked-sales"+tt.query, nil))
			assert.Equal(t, tt.page, p.Page)
			assert.Equal(t, tt.perPage, p.PerPage)
			assert.Equal(t, tt.offset, p.Offset())
		})
	}
}

func TestNewResult(t *testing.T) {
	r := NewResult([]string{"a", "b"}, 45, Params{Page: 2, PerPage: 20})
	assert.Equal(t, 3, r.TotalPages)
	assert.True(t, r.HasNext)

	last := NewResult([]string{"z"}, 45, Params{Page: 3, PerPage: 20})
	assert.False(t, last.HasNext)
}

func TestNewResult_EmptyDataIsNotNil(t *testing.T) {
	r := NewResult[int](nil, 0, Params{Page: 1, PerPage: 20})
	assert.NotNil(t, r.Data)
	assert.Equal(t, 0, r.TotalPages)
	assert.False(t, r.HasNext)
}
