package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	gormlogger "gorm.io/gorm/logger"

	"github.com/customeros/mailpulse/config"
)

func TestValidateConfig(t *testing.T) {
	valid := &config.MailpulseDatabaseConfig{
		Host: "localhost", Port: "5432", User: "u", Password: "p", DBName: "db", SSLMode: "disable",
	}
	assert.NoError(t, validateConfig(valid))

	assert.Error(t, validateConfig(nil))

	missingHost := *valid
	missingHost.Host = ""
	assert.EqualError(t, validateConfig(&missingHost), "database host config is empty")

	missingSSL := *valid
	missingSSL.SSLMode = ""
	assert.Error(t, validateConfig(&missingSSL))
}

func TestNewConnection_InvalidPort(t *testing.T) {
	_, err := NewConnection(&config.MailpulseDatabaseConfig{
		Host: "localhost", Port: "not-a-port", User: "u", Password: "p", DBName: "db", SSLMode: "disable",
	})
	assert.ErrorContains(t, err, "invalid port number")
}

func TestGormLogLevel(t *testing.T) {
	assert.Equal(t, gormlogger.Warn, gormLogLevel("WARN"))
	assert.Equal(t, gormlogger.Info, gormLogLevel("info"))
	assert.Equal(t, gormlogger.Silent, gormLogLevel("silent"))
	assert.Equal(t, gormlogger.Warn, gormLogLevel(""))
}
