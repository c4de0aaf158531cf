package db

import (
	"testing"

	"MTCPlayer/config"

	"github.com/stretchr/testify/assert"
)

func TestDSN(t *testing.T) {
	cfg := &config.Config{DBUser: "root", DBPassword: "p@ss", DBHost: "db", DBPort: "3306", DBName: "mtcplayer"}
	dsn := DSN(cfg)
	assert.Contains(t, dsn, "root:p@ss@tcp(db:3306)/mtcplayer?")
	assert.Contains(t, dsn, "parseTime=true")
	assert.Contains(t, dsn, "charset=utf8mb4")
}

func TestAutoMigrateWithoutDB(t *testing.T) {
	assert.Error(t, AutoMigrateModels(nil))
}
