package handler

import (
	"bytes"
	"errors"
	"testing"

	"github.com/fzft/go-frame-reactor/node"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompressRoundTrip(t *testing.T) {
	for _, payload := range [][]byte{[]byte("hello"), bytes.Repeat([]byte("abc"), 10000)} {
		out, err := Decompress(Compress(payload))
		require.NoError(t, err)
		assert.Equal(t, len(payload), len(out))
		assert.True(t, bytes.Equal(payload, out))
	}
}

func TestDecompressGarbage(t *testing.T) {
	_, err := Decompress([]byte("not zstd at all"))
	assert.Error(t, err)
}

func TestZstdWrapsEcho(t *testing.T) {
	c := &fakeConn{}
	z := NewZstd(Echo{})

	require.NoError(t, z.OnMessageReceived(c, Compress([]byte("hello"))))
	require.Len(t, c.sent, 1)

	plain, err := Decompress(c.sent[0])
	require.NoError(t, err)
	assert.Equal(t, "hello", string(plain))
}

func TestZstdRejectsPlainPayload(t *testing.T) {
	called := false
	z := NewZstd(node.HandlerFunc(func(node.Conn, []byte) error {
		called = true
		return nil
	}))

	assert.Error(t, z.OnMessageReceived(&fakeConn{}, []byte("plain")))
	assert.False(t, called)
}

func TestZstdPassesHandlerError(t *testing.T) {
	boom := errors.New("boom")
	z := NewZstd(node.HandlerFunc(func(node.Conn, []byte) error { return boom }))

	assert.ErrorIs(t, z.OnMessageReceived(&fakeConn{}, Compress([]byte("x"))), boom)
}
