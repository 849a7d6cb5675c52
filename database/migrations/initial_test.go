package migrations

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/shashiranjanraj/vidorder/app/models"
	"github.com/shashiranjanraj/vidorder/pkg/migration"
	"github.com/shashiranjanraj/vidorder/pkg/queue"
)

func TestInitialSchemaUpAndDown(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "schema.db")), &gorm.Config{})
	require.NoError(t, err)

	r := migration.New(db)
	applied, err := r.Up()
	require.NoError(t, err)
	assert.Len(t, applied, 3)

	assert.True(t, db.Migrator().HasTable(&models.User{}))
	assert.True(t, db.Migrator().HasTable(&models.Order{}))
	assert.True(t, db.Migrator().HasTable(&queue.FailedJobRecord{}))

	reverted, err := r.Rollback()
	require.NoError(t, err)
	assert.Len(t, reverted, 3)
	assert.False(t, db.Migrator().HasTable(&models.Order{}))
}
