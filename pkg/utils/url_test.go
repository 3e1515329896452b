package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLinkUrl(t *testing.T) {
	host, err := ParseLinkUrl("tcp://127.0.0.1:9999")
	assert.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9999", host)

	host, err = ParseLinkUrl("tcp://executor.local")
	assert.NoError(t, err)
	assert.Equal(t, "executor.local:9090", host)

	_, err = ParseLinkUrl("udp://127.0.0.1:9999")
	assert.Error(t, err)
}

func TestParseHttpUrl(t *testing.T) {
	host, err := ParseHttpUrl("tcp://0.0.0.0")
	assert.NoError(t, err)
	assert.Equal(t, "0.0.0.0:8080", host)

	_, err = ParseHttpUrl("unix:///tmp/executor.sock")
	assert.Error(t, err)
}
