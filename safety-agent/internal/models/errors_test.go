package models

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IsMatchesKind(t *testing.T) {
	err := fmt.Errorf("photo branch: %w", NewError(KindCapture, "capture photo", io.ErrUnexpectedEOF))

	assert.True(t, errors.Is(err, ErrCapture))
	assert.False(t, errors.Is(err, ErrNetwork))
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
	assert.Equal(t, KindCapture, KindOf(err))
}

func TestServerError(t *testing.T) {
	err := NewServerError("upload report", 503)

	assert.True(t, errors.Is(err, ErrServer))
	assert.Equal(t, 503, StatusCode(err))
	assert.Equal(t, "upload report: server (status 503)", err.Error())
	assert.Equal(t, 0, StatusCode(errors.New("plain")))
	assert.Equal(t, ErrorKind(""), KindOf(errors.New("plain")))
}
