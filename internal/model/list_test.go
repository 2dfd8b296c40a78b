package model_test

import (
	"testing"

	"github.com/Totarae/firefly/internal/model"
	"github.com/stretchr/testify/assert"
)

func TestListOptions_Sanitize(t *testing.T) {
	tests := []struct {
		name string
		in   model.ListOptions
		want model.ListOptions
	}{
		{
			name: "defaults",
			in:   model.ListOptions{},
			want: model.ListOptions{SortColumn: "created_at", SortOrder: "desc", Limit: 25},
		},
		{
			name: "valid values kept",
			in:   model.ListOptions{User: "bob", SortColumn: "clicks", SortOrder: "asc", Limit: 5},
			want: model.ListOptions{User: "bob", SortColumn: "clicks", SortOrder: "asc", Limit: 5},
		},
		{
			name: "case insensitive",
			in:   model.ListOptions{SortColumn: " URL ", SortOrder: "ASC", Limit: 3},
			want: model.ListOptions{SortColumn: "url", SortOrder: "asc", Limit: 3},
		},
		{
			name: "injection falls back",
			in:   model.ListOptions{SortColumn: "clicks; DROP TABLE urls", SortOrder: "sideways", Limit: -1},
			want: model.ListOptions{SortColumn: "created_at", SortOrder: "desc", Limit: 25},
		},
		{
			name: "limit capped",
			in:   model.ListOptions{Limit: 5000, All: true},
			want: model.ListOptions{SortColumn: "created_at", SortOrder: "desc", Limit: 1000, All: true},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.in.Sanitize(25, 1000))
		})
	}
}
