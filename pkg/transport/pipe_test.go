package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipe(t *testing.T) {
	a, b := Pipe()

	require.NoError(t, a.Send([]byte("ping")))
	bs, err := b.Receive()
	require.NoError(t, err)
	assert.Equal(t, []byte("ping"), bs)

	require.NoError(t, b.Send([]byte("pong")))
	bs, err = a.Receive()
	require.NoError(t, err)
	assert.Equal(t, []byte("pong"), bs)
}

func TestPipeClose(t *testing.T) {
	a, b := Pipe()

	require.NoError(t, a.Close())
	require.NoError(t, a.Close())

	_, err := b.Receive()
	assert.ErrorIs(t, err, ErrConnectionClosed)
	assert.ErrorIs(t, b.Send([]byte("late")), ErrConnectionClosed)
}
