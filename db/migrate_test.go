package db

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertToMigrateURL(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{
			name: "postgres scheme",
			in:   "postgres://growlog:pw@localhost:5432/growlog?sslmode=disable",
			want: "pgx5://growlog:pw@localhost:5432/growlog?sslmode=disable",
		},
		{
			name: "postgresql scheme",
			in:   "postgresql://growlog@localhost:5432/growlog",
			want: "pgx5://growlog@localhost:5432/growlog",
		},
		{
			name:    "mysql rejected",
			in:      "mysql://root@localhost:3306/growlog",
			wantErr: true,
		},
		{
			name:    "garbage",
			in:      "://not-a-url",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := convertToMigrateURL(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	// Every up migration must have a matching down migration.
	files := make(map[string]bool, len(entries))
	for _, e := range entries {
		files[e.Name()] = true
	}
	for name := range files {
		if base, ok := strings.CutSuffix(name, ".up.sql"); ok {
			assert.True(t, files[base+".down.sql"], "missing down migration for %s", name)
		}
	}
}
