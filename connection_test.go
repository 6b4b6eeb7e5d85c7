package sonic

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/searchbound/sonic/protocol"
)

func TestConnectionHandshake(t *testing.T) {
	server, addr := startSonicServer(t, nil)

	conn := connectTestConnection(t, addr, protocol.ChannelSearch)

	assert.Equal(t, addr, conn.Addr())
	assert.Equal(t, protocol.ChannelSearch, conn.Channel())
	assert.Equal(t, 1, conn.ProtocolVersion())
	assert.Equal(t, 20000, conn.BufferSize())
	assert.False(t, conn.IsClosed())

	received := server.Received()
	require.Len(t, received, 2)
	assert.Equal(t, "START search "+testPassword, received[0])
	assert.Equal(t, "PING ", received[1])
}

func TestConnectionHandshakeNonStandardBanner(t *testing.T) {
	// A banner without the CONNECTED marker is tolerated; the handshake
	// itself decides whether the endpoint speaks the protocol.
	addr := createListener(t, func(c net.Conn) {
		writer := bufio.NewWriter(c)
		reader := bufio.NewReader(c)

		_, _ = writer.WriteString("WELCOME\r\n")
		_ = writer.Flush()

		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				return
			}
			switch {
			case strings.HasPrefix(line, "START"):
				_, _ = writer.WriteString("STARTED search protocol(1) buffer(20000)\r\n")
			case strings.HasPrefix(line, "PING"):
				_, _ = writer.WriteString("PONG\r\n")
			default:
				return
			}
			_ = writer.Flush()
		}
	})

	conn := NewConnection(addr, protocol.ChannelSearch, ConnectionConfig{
		Password: testPassword,
		Timeout:  time.Second,
	})
	require.NoError(t, conn.Connect(context.Background()))
	defer conn.Close()

	assert.Equal(t, 1, conn.ProtocolVersion())
	assert.Equal(t, 20000, conn.BufferSize())
}

func TestConnectionHandshakeBannerOnly(t *testing.T) {
	// Banner present but nothing else: START never answered.
	addr := createListener(t, func(c net.Conn) {
		_, _ = c.Write([]byte(testGreeting))
		time.Sleep(500 * time.Millisecond)
	})

	conn := NewConnection(addr, protocol.ChannelSearch, ConnectionConfig{
		Password: testPassword,
		Timeout:  100 * time.Millisecond,
	})
	err := conn.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, protocol.ShouldCloseConnection(err))
	assert.True(t, conn.IsClosed())
}

func TestConnectionHandshakeBadPassword(t *testing.T) {
	_, addr := startSonicServer(t, nil)

	conn := NewConnection(addr, protocol.ChannelSearch, ConnectionConfig{
		Password: "wrong",
		Timeout:  time.Second,
	})
	err := conn.Connect(context.Background())
	require.Error(t, err)

	var serverErr *protocol.ServerError
	require.ErrorAs(t, err, &serverErr)
	assert.Equal(t, "authentication_required", serverErr.Message)
	assert.True(t, conn.IsClosed())
}

func TestConnectionConnectRefused(t *testing.T) {
	conn := NewConnection("127.0.0.1:1", protocol.ChannelSearch, ConnectionConfig{
		Password:       testPassword,
		ConnectTimeout: 500 * time.Millisecond,
	})
	err := conn.Connect(context.Background())
	require.Error(t, err)

	var connErr *protocol.ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, "dial", connErr.Op)
}

func TestConnectionConnectTwice(t *testing.T) {
	_, addr := startSonicServer(t, nil)

	conn := connectTestConnection(t, addr, protocol.ChannelSearch)
	assert.ErrorIs(t, conn.Connect(context.Background()), ErrAlreadyConnected)
}

func TestConnectionExecuteBeforeConnect(t *testing.T) {
	conn := NewConnection("127.0.0.1:1491", protocol.ChannelIngest, ConnectionConfig{})

	_, err := conn.Execute(protocol.CmdCount, "messages")
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestConnectionChannelCatalog(t *testing.T) {
	server, addr := startSonicServer(t, nil)

	conn := connectTestConnection(t, addr, protocol.ChannelIngest)
	handshakeLines := len(server.Received())

	_, err := conn.Execute(protocol.CmdQuery, "messages", "default", `"meeting"`)
	require.Error(t, err)

	var channelErr *protocol.ChannelError
	require.ErrorAs(t, err, &channelErr)
	assert.Equal(t, protocol.CmdQuery, channelErr.Verb)
	assert.False(t, protocol.ShouldCloseConnection(err))

	// The rejected command never reached the wire.
	assert.Len(t, server.Received(), handshakeLines)
}

func TestConnectionServerErrorKeepsConnectionUsable(t *testing.T) {
	_, addr := startSonicServer(t, func(line string) string {
		if strings.HasPrefix(line, "FLUSHB") {
			return "ERR invalid_format(FLUSHB <collection> <bucket>)"
		}
		return "RESULT 7"
	})

	conn := connectTestConnection(t, addr, protocol.ChannelIngest)

	_, err := conn.Execute(protocol.CmdFlushB, "messages")
	require.Error(t, err)
	assert.False(t, protocol.ShouldCloseConnection(err))

	// Same connection, next command.
	resp, err := conn.Execute(protocol.CmdCount, "messages", "", "")
	require.NoError(t, err)
	assert.Equal(t, 7, resp.Count)
}

func TestConnectionExecuteAsync(t *testing.T) {
	_, addr := startSonicServer(t, func(line string) string {
		return "PENDING Bt2m2gYa\r\nEVENT QUERY Bt2m2gYa conversation:71f3d63b conversation:6501e83a"
	})

	conn := connectTestConnection(t, addr, protocol.ChannelSearch)

	ids, err := conn.ExecuteAsync(protocol.CmdQuery, "messages", "default", `"valerian"`)
	require.NoError(t, err)
	assert.Equal(t, []string{"conversation:71f3d63b", "conversation:6501e83a"}, ids)
}

func TestConnectionExecuteAsyncEmptyResult(t *testing.T) {
	_, addr := startSonicServer(t, func(line string) string {
		return "PENDING gBnBK2kS\r\nEVENT QUERY gBnBK2kS"
	})

	conn := connectTestConnection(t, addr, protocol.ChannelSearch)

	ids, err := conn.ExecuteAsync(protocol.CmdQuery, "messages", "default", `"nothing"`)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestConnectionExecuteAsyncStashesForeignEvents(t *testing.T) {
	queries := 0
	_, addr := startSonicServer(t, func(line string) string {
		queries++
		if queries == 1 {
			// The event for the second token arrives before ours.
			return "PENDING tok1\r\nEVENT QUERY tok2 other:1\r\nEVENT QUERY tok1 mine:1 mine:2"
		}
		// Its event was already delivered and stashed.
		return "PENDING tok2"
	})

	conn := connectTestConnection(t, addr, protocol.ChannelSearch)

	ids, err := conn.ExecuteAsync(protocol.CmdQuery, "messages", "default", `"first"`)
	require.NoError(t, err)
	assert.Equal(t, []string{"mine:1", "mine:2"}, ids)

	ids, err = conn.ExecuteAsync(protocol.CmdQuery, "messages", "default", `"second"`)
	require.NoError(t, err)
	assert.Equal(t, []string{"other:1"}, ids)
}

func TestConnectionExecuteAsyncWithoutPending(t *testing.T) {
	_, addr := startSonicServer(t, func(line string) string {
		return "OK"
	})

	conn := connectTestConnection(t, addr, protocol.ChannelSearch)

	_, err := conn.ExecuteAsync(protocol.CmdQuery, "messages", "default", `"x"`)
	require.Error(t, err)
	assert.True(t, protocol.ShouldCloseConnection(err))
}

func TestConnectionRawMode(t *testing.T) {
	_, addr := startSonicServer(t, func(line string) string {
		return "RESULT 3"
	})

	conn := connectTestConnection(t, addr, protocol.ChannelIngest)
	conn.SetRaw(true)

	resp, err := conn.Execute(protocol.CmdCount, "messages", "", "")
	require.NoError(t, err)
	assert.Equal(t, protocol.KindRaw, resp.Kind)
	assert.Equal(t, "RESULT 3", resp.Raw)
	assert.Zero(t, resp.Count)
}

func TestConnectionRawModeStillFailsOnError(t *testing.T) {
	_, addr := startSonicServer(t, func(line string) string {
		return "ERR internal_error"
	})

	conn := connectTestConnection(t, addr, protocol.ChannelIngest)
	conn.SetRaw(true)

	_, err := conn.Execute(protocol.CmdCount, "messages", "", "")
	var serverErr *protocol.ServerError
	require.ErrorAs(t, err, &serverErr)
	assert.Equal(t, "internal_error", serverErr.Message)
}

func TestConnectionReadTimeout(t *testing.T) {
	_, addr := startSonicServer(t, func(line string) string {
		time.Sleep(500 * time.Millisecond)
		return "RESULT 1"
	})

	conn := NewConnection(addr, protocol.ChannelIngest, ConnectionConfig{
		Password: testPassword,
		Timeout:  100 * time.Millisecond,
	})
	require.NoError(t, conn.Connect(context.Background()))
	defer conn.Close()

	_, err := conn.Execute(protocol.CmdCount, "messages", "", "")
	require.Error(t, err)
	assert.True(t, protocol.ShouldCloseConnection(err))
}

func TestConnectionQuit(t *testing.T) {
	server, addr := startSonicServer(t, nil)

	conn := connectTestConnection(t, addr, protocol.ChannelSearch)
	require.NoError(t, conn.Quit())
	assert.True(t, conn.IsClosed())

	_, err := conn.Execute(protocol.CmdPing)
	assert.ErrorIs(t, err, ErrConnectionClosed)

	received := server.Received()
	assert.Equal(t, "QUIT ", received[len(received)-1])
}

func TestConnectionCloseIdempotent(t *testing.T) {
	_, addr := startSonicServer(t, nil)

	conn := connectTestConnection(t, addr, protocol.ChannelSearch)
	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())
	assert.True(t, conn.IsClosed())

	// A closed connection stays closed.
	assert.ErrorIs(t, conn.Connect(context.Background()), ErrConnectionClosed)
}
