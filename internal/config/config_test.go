package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mdvrp/internal/opt"
)

func TestLoadParametersDefaults(t *testing.T) {
	p, err := LoadParameters("")
	require.NoError(t, err)
	assert.Equal(t, opt.DefaultParameters(), p)
}

func TestLoadParametersOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "params.yaml")
	body := `
populationSize: 50
elitismCount: 2
fitnessTarget: 600.5
mutationWeights:
  migrate: 0.1
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	p, err := LoadParameters(path)
	require.NoError(t, err)
	assert.Equal(t, 50, p.PopulationSize)
	assert.Equal(t, 2, p.ElitismCount)
	require.NotNil(t, p.FitnessTarget)
	assert.Equal(t, 600.5, *p.FitnessTarget)
	assert.Equal(t, 0.1, p.MutationWeights.Migrate)
	// untouched keys keep their defaults
	assert.Equal(t, 0.5, p.MutationWeights.Reroute)
	assert.Equal(t, 0.6, p.CrossoverProbability)
}

func TestParseParametersRejects(t *testing.T) {
	_, err := ParseParameters([]byte("populationSiz: 10\n"), opt.DefaultParameters())
	assert.Error(t, err, "unknown key")
	_, err = ParseParameters([]byte("crossoverProbability: 2\n"), opt.DefaultParameters())
	assert.Error(t, err, "out of range")
}

func TestOverlayJSON(t *testing.T) {
	p, err := OverlayJSON(opt.DefaultParameters(), []byte(`{"generations":10,"seed":7}`))
	require.NoError(t, err)
	assert.Equal(t, 10, p.Generations)
	assert.Equal(t, int64(7), p.Seed)
	assert.Equal(t, 400, p.PopulationSize)

	_, err = OverlayJSON(opt.DefaultParameters(), []byte(`{"bogus":1}`))
	assert.Error(t, err)

	_, err = OverlayJSON(opt.DefaultParameters(), []byte(`{"generations":0,"timeBudgetSeconds":0}`))
	assert.ErrorIs(t, err, opt.ErrNoStopCondition)

	same, err := OverlayJSON(opt.DefaultParameters(), nil)
	require.NoError(t, err)
	assert.Equal(t, opt.DefaultParameters(), same)
}

func TestLoadSettings(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("MAX_CONCURRENT_RUNS", "0")
	t.Setenv("AUTH_MODE", "dev")
	s, err := LoadSettings()
	require.NoError(t, err)
	assert.Equal(t, "9090", s.Port)
	assert.Equal(t, 1, s.MaxConcurrentRuns)
	assert.True(t, s.DBMigrate)

	t.Setenv("AUTH_MODE", "hmac")
	t.Setenv("JWT_SECRET", "")
	_, err = LoadSettings()
	assert.Error(t, err)
}
