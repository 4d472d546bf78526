package errtypes

import (
	"errors"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadError(t *testing.T) {
	err := error(&LoadError{Path: "vocab.txt", Reason: "truncated", Err: fs.ErrNotExist})
	assert.Equal(t, `failed to load "vocab.txt": truncated: file does not exist`, err.Error())
	require.ErrorIs(t, err, fs.ErrNotExist)

	var le *LoadError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, "vocab.txt", le.Path)

	assert.Equal(t, `failed to load "x"`, (&LoadError{Path: "x"}).Error())
}

func TestConfigError(t *testing.T) {
	err := &ConfigError{Key: "batch_size", Reason: "missing"}
	assert.Equal(t, `invalid configuration "batch_size": missing`, err.Error())
}
