package logging

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestNew_Level(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, New("prod", "debug", "test").GetLevel())
	assert.Equal(t, zerolog.WarnLevel, New("prod", "warn", "test").GetLevel())
}

func TestNew_UnknownLevelFallsBackToInfo(t *testing.T) {
	assert.Equal(t, zerolog.InfoLevel, New("prod", "chatty", "test").GetLevel())
	assert.Equal(t, zerolog.InfoLevel, New("dev", "", "test").GetLevel())
}
