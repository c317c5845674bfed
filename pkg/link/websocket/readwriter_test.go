package websocket

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/eda.go/pkg/link"
)

func TestSession(t *testing.T) {
	ln, err := Listen("127.0.0.1:0", "/eda")
	require.NoError(t, err)
	defer ln.Close()
	require.True(t, strings.HasPrefix(ln.Addr(), "ws://127.0.0.1:"))

	accepted := make(chan link.PacketReadWriter, 1)
	go func() {
		rw, err := ln.Accept()
		if err == nil {
			accepted <- rw
		}
	}()

	client, err := Dial(ln.Addr())
	require.NoError(t, err)
	defer client.Close()
	server := <-accepted
	assert.Equal(t, DefaultMTU, server.(link.MTUProvider).MTU())

	require.NoError(t, client.WritePacket([]byte{1, 2, 0}))
	pkt, err := server.ReadPacket()
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 0}, pkt)

	require.NoError(t, server.WritePacket([]byte{3, 0}))
	pkt, err = client.ReadPacket()
	require.NoError(t, err)
	assert.Equal(t, []byte{3, 0}, pkt)

	require.NoError(t, link.Close(server))
}
