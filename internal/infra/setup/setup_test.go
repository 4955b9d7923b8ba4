package setup_test

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collaborative-board/internal/infra/setup"
)

func TestDBConfig_DSN(t *testing.T) {
	dsn, err := setup.DBConfig{Driver: "mysql", User: "u", Password: "p", Host: "db", Port: "3307", Name: "x"}.DSN()
	require.NoError(t, err)
	assert.Equal(t, "u:p@tcp(db:3307)/x?charset=utf8mb4&parseTime=True&loc=Local", dsn)

	_, err = setup.DBConfig{Driver: "mysql"}.DSN()
	assert.Error(t, err, "缺少 DB_USER 时应返回错误")

	_, err = setup.DBConfig{Driver: "oracle"}.DSN()
	assert.Error(t, err)
}

func TestInitDB_SQLiteAndMigrate(t *testing.T) {
	db, err := setup.InitDB(setup.DBConfig{Driver: setup.DriverSQLite, SQLitePath: "file:setup_test?mode=memory&cache=shared"})
	require.NoError(t, err)
	require.NoError(t, setup.MigrateDB(db))

	for _, table := range []string{"users", "boards", "board_collaborators", "actions"} {
		assert.True(t, db.Migrator().HasTable(table), "表 %s 应已创建", table)
	}
	assert.Error(t, setup.MigrateDB(nil))
}

func TestInitRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := setup.InitRedis(mr.Addr(), "", 0)
	require.NoError(t, err)
	defer client.Close()

	mr.Close()
	_, err = setup.InitRedis(mr.Addr(), "", 0)
	assert.Error(t, err)
}
