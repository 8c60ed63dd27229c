package database

import (
	"path/filepath"
	"testing"

	"go-stepflow/internal/domain"
	"go-stepflow/internal/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDialector(t *testing.T) {
	d, err := Dialector("sqlite://./x.db")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", d.Name())

	d, err = Dialector("postgres://u:p@localhost:5432/db")
	require.NoError(t, err)
	assert.Equal(t, "postgres", d.Name())

	_, err = Dialector("mysql://nope")
	assert.Error(t, err)
}

func TestOpenAndMigrate(t *testing.T) {
	t.Run("Should open a sqlite file and create every table", func(t *testing.T) {
		url := "sqlite://" + filepath.Join(t.TempDir(), "stepflow.db")

		db, err := Open(Options{URL: url, MaxOpenConns: 1}, logging.Discard())
		require.NoError(t, err)
		defer Close(db)

		require.NoError(t, AutoMigrate(db))
		for _, table := range []interface{}{&domain.StepDefinition{}, &domain.Progress{}, &domain.FinalMessage{}} {
			assert.True(t, db.Migrator().HasTable(table))
		}
	})
}
