package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sports-registration/internal/model"
	"sports-registration/internal/repository"
)

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, "sportsreg "+version+"\n", out.String())
}

func TestMigrateCommand(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "data", "reg.db")
	t.Setenv("BOT_TOKEN", "")
	t.Setenv("DATABASE_URL", dsn)
	t.Setenv("LOG_LEVEL", "error")

	cmd := rootCmd()
	cmd.SetArgs([]string{"migrate"})
	require.NoError(t, cmd.Execute())

	db, err := repository.NewDB(dsn, zerolog.Nop())
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	defer sqlDB.Close()

	assert.True(t, db.Migrator().HasTable(&model.Registration{}))
	assert.True(t, db.Migrator().HasTable(&model.SessionRecord{}))
	assert.True(t, db.Migrator().HasColumn(&model.Registration{}, "stream"))
}

func TestRootCommandRequiresToken(t *testing.T) {
	t.Setenv("BOT_TOKEN", "")
	t.Setenv("TELEGRAM_TOKEN", "")

	cmd := rootCmd()
	cmd.SetArgs([]string{})
	err := cmd.Execute()

	assert.ErrorContains(t, err, "BOT_TOKEN is required")
}
