// Package storetest opens throwaway sqlite-backed stores for tests.
package storetest

import (
	"context"
	"path/filepath"
	"testing"

	"epoch/internal/model"
	"epoch/internal/store"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open returns a migrated store on a fresh database file under t.TempDir.
func Open(t testing.TB) (*store.Store, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "epoch.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	s := store.New(db)
	require.NoError(t, s.Migrate())
	return s, db
}

// User registers a user with the given id and name in team 1.
func User(t testing.TB, s *store.Store, id, name string) *model.User {
	t.Helper()
	ctx := context.Background()
	teams, err := s.Teams(ctx)
	require.NoError(t, err)
	if len(teams) == 0 {
		require.NoError(t, s.CreateTeam(ctx, &model.Team{ID: 1, Name: "core"}))
	}
	u := &model.User{ID: id, Username: name, Title: "Engineer", TeamID: 1, MonthlyHours: 160}
	require.NoError(t, s.CreateUser(ctx, u))
	return u
}
