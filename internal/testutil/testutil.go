// Package testutil holds fixtures shared by the package tests.
package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"

	"RiderGuard/internal/models"
	"RiderGuard/pkg/util"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var dbSeq int64

// NewDB opens a private in-memory sqlite database with every table
// migrated. It is closed when the test ends.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:riderguard_test_%d?mode=memory&cache=shared", atomic.AddInt64(&dbSeq, 1))
	db, err := util.OpenDatabase(util.DriverSQLite, dsn, gormlogger.Silent)
	require.NoError(t, err)
	require.NoError(t, models.AutoMigrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// SeedCourier creates a courier account with an available profile.
func SeedCourier(t testing.TB, db *gorm.DB, name string) *models.User {
	t.Helper()
	u := &models.User{Name: name, Phone: "+52 55 5555 0101", Role: models.RoleCourier, Active: true}
	require.NoError(t, models.CreateUser(db, u))
	_, err := models.CreateProfile(db, u.ID)
	require.NoError(t, err)
	return u
}

// SeedOperator creates an operator account.
func SeedOperator(t testing.TB, db *gorm.DB, name string) *models.User {
	t.Helper()
	u := &models.User{Name: name, Phone: "+52 55 5555 0202", Role: models.RoleOperator, Active: true}
	require.NoError(t, models.CreateUser(db, u))
	return u
}
