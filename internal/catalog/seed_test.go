package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"go-stepflow/internal/core/postgres/repository"
	"go-stepflow/internal/database/dbtest"
	"go-stepflow/internal/domain"
	"go-stepflow/internal/logging"
	"go-stepflow/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seedYAML = `
steps:
  - name: upload
    prompt: index the uploaded documents
    order: 0
    result_kind: bootstrap
  - name: macro
    description: sector analysis
    prompt: analyse the sector
    order: 1
    result_kind: macro_analysis
`

func TestParseSeedYAML(t *testing.T) {
	file, err := ParseSeedYAML([]byte(seedYAML))
	require.NoError(t, err)
	require.Len(t, file.Steps, 2)
	assert.Equal(t, domain.ResultMacroAnalysis, file.Steps[1].ResultKind)
	assert.Equal(t, "sector analysis", file.Steps[1].Description)

	_, err = ParseSeedYAML([]byte("  "))
	assert.Error(t, err)
	_, err = ParseSeedYAML([]byte("steps:\n  - name: x\n    colour: red\n"))
	assert.Error(t, err)
}

func TestSeed(t *testing.T) {
	ctx := context.Background()
	db := dbtest.New(t)
	steps := service.NewStepCatalog(repository.NewTransactor(db), repository.NewStepRepository(db), logging.Discard())

	path := filepath.Join(t.TempDir(), "steps.yaml")
	require.NoError(t, os.WriteFile(path, []byte(seedYAML), 0o600))
	file, err := LoadSeedFile(path)
	require.NoError(t, err)

	created, err := Seed(ctx, steps, file, logging.Discard())
	require.NoError(t, err)
	assert.Equal(t, 2, created)

	created, err = Seed(ctx, steps, file, logging.Discard())
	require.NoError(t, err)
	assert.Zero(t, created)

	active, err := steps.ListActiveSteps(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 2)
}

func TestDefaultSeedFile(t *testing.T) {
	file, err := LoadSeedFile(filepath.Join("..", "..", "config", "steps.yaml"))
	require.NoError(t, err)

	orders := map[int]bool{}
	for _, s := range file.Steps {
		assert.True(t, s.ResultKind.Valid(), s.Name)
		assert.False(t, orders[s.Order], "order %d used twice", s.Order)
		orders[s.Order] = true
	}
	assert.True(t, orders[0])
}
