package migration

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type widget struct {
	ID   uint
	Name string
}

type createWidgets struct{}

func (createWidgets) Up(db *gorm.DB) error   { return db.AutoMigrate(&widget{}) }
func (createWidgets) Down(db *gorm.DB) error { return db.Migrator().DropTable(&widget{}) }

func TestUpRollbackStatus(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "m.db")), &gorm.Config{})
	require.NoError(t, err)

	Register("20250101000000_create_widgets", createWidgets{})
	r := New(db)

	applied, err := r.Up()
	require.NoError(t, err)
	assert.Contains(t, applied, "20250101000000_create_widgets")
	assert.True(t, db.Migrator().HasTable(&widget{}))

	again, err := r.Up()
	require.NoError(t, err)
	assert.Empty(t, again)

	status, err := r.Status()
	require.NoError(t, err)
	for _, s := range status {
		if s.Name == "20250101000000_create_widgets" {
			assert.True(t, s.Ran)
			assert.Equal(t, 1, s.Batch)
		}
	}

	reverted, err := r.Rollback()
	require.NoError(t, err)
	assert.Contains(t, reverted, "20250101000000_create_widgets")
	assert.False(t, db.Migrator().HasTable(&widget{}))
}
