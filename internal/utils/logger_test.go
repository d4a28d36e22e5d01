package utils

import (
	"bytes"
	"os"
	"testing"

	log1 "github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
)

func TestInitLevel(t *testing.T) {
	defer SetOutput(os.Stderr)

	Init("warn")
	assert.Equal(t, log1.WarnLevel, Log.GetLevel())

	// 非法级别保持默认 info
	Init("loud")
	assert.Equal(t, log1.InfoLevel, Log.GetLevel())
}

func TestSetOutput(t *testing.T) {
	defer SetOutput(os.Stderr)

	var buf bytes.Buffer
	SetOutput(&buf)
	Log.Info("room created", "roomId", "abc123")

	out := buf.String()
	assert.Contains(t, out, "room created")
	assert.Contains(t, out, "roomId=abc123")
}
