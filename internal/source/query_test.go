package source

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ghgquant/internal/config"
	apperrors "ghgquant/internal/errors"
)

func TestQueryValidate(t *testing.T) {
	nextYear := time.Now().Year() + 1

	tests := []struct {
		name    string
		query   Query
		wantErr bool
	}{
		{name: "valid state only", query: Query{SourceID: "epa", StateCode: "NJ"}},
		{name: "valid with year", query: Query{SourceID: "epa", StateCode: "TX", Year: 2020}},
		{name: "territory code", query: Query{SourceID: "epa", StateCode: "PR"}},
		{name: "year in progress plus one", query: Query{SourceID: "epa", StateCode: "CA", Year: nextYear}},
		{name: "missing source", query: Query{StateCode: "NJ"}, wantErr: true},
		{name: "unknown state", query: Query{SourceID: "epa", StateCode: "XX"}, wantErr: true},
		{name: "empty state", query: Query{SourceID: "epa"}, wantErr: true},
		{name: "year too early", query: Query{SourceID: "epa", StateCode: "NJ", Year: 1989}, wantErr: true},
		{name: "year too late", query: Query{SourceID: "epa", StateCode: "NJ", Year: nextYear + 1}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.query.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, apperrors.IsType(err, apperrors.ErrTypeValidation))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRegistryLookup(t *testing.T) {
	registry := NewRegistry(config.SourceConfig{
		EPABaseURL:   "https://data.epa.gov/efservice",
		DefaultTable: "pub_facts_sector_ghg_emission",
		BatchSize:    1000,
		Timeout:      30 * time.Second,
		RateLimitRPS: 5,
		RawDataDir:   t.TempDir(),
	}, nil)

	epa, err := registry.Lookup(SourceIDEPA)
	require.NoError(t, err)
	assert.IsType(t, &EPAClient{}, epa)

	local, err := registry.Lookup(SourceIDStateFile)
	require.NoError(t, err)
	assert.IsType(t, &LocalDirSource{}, local)

	_, err = registry.Lookup("nope")
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeConfig))

	assert.ElementsMatch(t, []string{SourceIDEPA, SourceIDStateFile}, registry.SourceIDs())
}

func TestRegistryRegisterReplaces(t *testing.T) {
	registry := &Registry{}
	stub := NewLocalDirSource(t.TempDir(), nil)

	registry.Register("custom", stub)

	got, err := registry.Lookup("custom")
	require.NoError(t, err)
	assert.Same(t, stub, got)
}
