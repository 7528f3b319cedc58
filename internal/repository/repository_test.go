package repository

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"sports-registration/internal/model"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := NewDB(dsn, zerolog.Nop())
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func TestRegistrationRepository_Create(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewRegistrationRepository(db)

	stream := "Science"
	junior := model.Registration{UserID: 1, Name: "Ravi", Phone: "8", Stream: &stream, Course: "FYJC",
		CollegeType: "Junior College", RollNumber: "J-7", Sport: "Chess"}
	degree := model.Registration{UserID: 2, Name: "Jane Doe", Phone: "9", Course: "B.Com.",
		CollegeType: "Degree College", RollNumber: "ROLL123", Sport: "Football"}

	require.NoError(t, repo.Create(ctx, &junior))
	require.NoError(t, repo.Create(ctx, &degree))
	assert.NotZero(t, junior.ID)
	assert.Greater(t, degree.ID, junior.ID)

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	var stored model.Registration
	require.NoError(t, db.First(&stored, degree.ID).Error)
	assert.Nil(t, stored.Stream)
	assert.Equal(t, "B.Com.", stored.Course)

	var nulls int64
	require.NoError(t, db.Model(&model.Registration{}).Where("stream IS NULL").Count(&nulls).Error)
	assert.EqualValues(t, 1, nulls)
}

func TestRegistrationRepository_CreateFailsOnClosedDB(t *testing.T) {
	db := newTestDB(t)
	repo := NewRegistrationRepository(db)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	err = repo.Create(context.Background(), &model.Registration{UserID: 1, Name: "n", Phone: "p",
		Course: "c", CollegeType: "Masters", RollNumber: "r", Sport: "Chess"})
	assert.ErrorContains(t, err, "create registration")
}

func TestSessionRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewSessionRepository(newTestDB(t))

	got, err := repo.Get(ctx, 5)
	require.NoError(t, err)
	assert.Nil(t, got)

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, repo.Put(ctx, model.Session{UserID: 5, Step: model.StepPhone,
		Fields: model.Fields{Name: "Jane"}, UpdatedAt: now}))

	stream := "Arts"
	require.NoError(t, repo.Put(ctx, model.Session{UserID: 5, Step: model.StepCourse,
		Fields: model.Fields{Name: "Jane", Phone: "9", CollegeType: "Junior College", Stream: &stream}, UpdatedAt: now}))

	got, err = repo.Get(ctx, 5)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.StepCourse, got.Step)
	assert.Equal(t, "9", got.Fields.Phone)
	require.NotNil(t, got.Fields.Stream)
	assert.Equal(t, "Arts", *got.Fields.Stream)

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	require.NoError(t, repo.Delete(ctx, 5))
	got, err = repo.Get(ctx, 5)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestEnsureDirForSQLite(t *testing.T) {
	dir := t.TempDir()
	dsn := filepath.Join(dir, "nested", "data", "reg.db")

	require.NoError(t, ensureDirForSQLite("file:"+dsn+"?_busy_timeout=5000"))
	assert.DirExists(t, filepath.Join(dir, "nested", "data"))
	assert.NoError(t, ensureDirForSQLite(":memory:"))
}
