// SPDX-License-Identifier: GPL-2.0-or-later

package bitio

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriter(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewWriter(buf)
	w.TryWrite([]byte("RIFF"))
	w.TryWriteByte(1)
	w.TryWriteUint16(0x0302)
	w.TryWriteUint32(0x07060504)
	w.TryWriteUint64(0x0f0e0d0c0b0a0908)
	w.TryWriteZeros(600)
	require.NoError(t, w.TryError)

	expected := append([]byte("RIFF"), 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15)
	expected = append(expected, make([]byte, 600)...)
	require.Equal(t, expected, buf.Bytes())
	require.Equal(t, int64(len(expected)), w.Written())
}

type limitedWriter struct {
	limit int
}

func (w *limitedWriter) Write(p []byte) (int, error) {
	if len(p) > w.limit {
		n := w.limit
		w.limit = 0
		return n, nil
	}
	w.limit -= len(p)
	return len(p), nil
}

type errWriter struct{}

var errMock = errors.New("mock")

func (errWriter) Write([]byte) (int, error) { return 0, errMock }

func TestWriterErrors(t *testing.T) {
	t.Run("short", func(t *testing.T) {
		w := NewWriter(&limitedWriter{limit: 5})
		w.TryWriteUint32(1)
		w.TryWriteUint32(2)
		w.TryWriteUint32(3)
		require.ErrorIs(t, w.TryError, io.ErrShortWrite)
		require.Equal(t, int64(5), w.Written())
	})
	t.Run("latch", func(t *testing.T) {
		w := NewWriter(errWriter{})
		w.TryWriteZeros(10)
		require.ErrorIs(t, w.TryError, errMock)
		w.TryWriteByte(1)
		require.ErrorIs(t, w.TryError, errMock)
		require.Zero(t, w.Written())
	})
}
