package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConstructDatabaseURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		baseURL  string
		dbName   string
		expected string
	}{
		{
			name:     "no database name keeps base",
			baseURL:  "postgres://u:p@localhost:5432/lotto",
			dbName:   "",
			expected: "postgres://u:p@localhost:5432/lotto",
		},
		{
			name:     "appends name and sslmode",
			baseURL:  "postgres://u:p@localhost:5432/",
			dbName:   "lotto",
			expected: "postgres://u:p@localhost:5432/lotto?sslmode=disable",
		},
		{
			name:     "keeps existing query",
			baseURL:  "postgres://u:p@localhost:5432?connect_timeout=5",
			dbName:   "lotto",
			expected: "postgres://u:p@localhost:5432/lotto?connect_timeout=5&sslmode=disable",
		},
		{
			name:     "respects explicit sslmode",
			baseURL:  "postgres://u:p@db:5432?sslmode=require",
			dbName:   "lotto",
			expected: "postgres://u:p@db:5432/lotto?sslmode=require",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, ConstructDatabaseURL(tt.baseURL, tt.dbName))
		})
	}
}
