package logger

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"courier/config"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.InfoLevel, parseLevel(""))
	assert.Equal(t, zerolog.DebugLevel, parseLevel("DEBUG"))
	assert.Equal(t, zerolog.WarnLevel, parseLevel("warn"))
	assert.Equal(t, zerolog.InfoLevel, parseLevel("loud"))
}

func TestNew_AppliesLevel(t *testing.T) {
	log := New(&config.Config{ServiceName: "courier", Environment: "production", LogLevel: "error"})
	assert.Equal(t, zerolog.ErrorLevel, log.GetLevel())
}
