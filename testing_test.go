package sonic

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/searchbound/sonic/protocol"
)

const (
	testGreeting = "CONNECTED <sonic-server v1.4.9>\r\n"
	testPassword = "SecretPassword"

	// dropConnection, returned from a fake server handler, closes the
	// connection instead of answering.
	dropConnection = "\x00drop\x00"
)

func createListener(t testing.TB, handler func(conn net.Conn)) string {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to start test server: %v", err)
	}

	t.Cleanup(func() {
		listener.Close()
	})

	// Accept connections in background
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}

			go func(c net.Conn) {
				defer c.Close()

				if handler != nil {
					handler(c)
				}
			}(conn)
		}
	}()

	// Give the server time to start
	time.Sleep(10 * time.Millisecond)

	return listener.Addr().String()
}

// fakeSonic is a scripted sonic server: it speaks the handshake itself and
// delegates every other verb to the test's handler. It records every line
// it receives so tests can assert on exact wire traffic.
type fakeSonic struct {
	mu       sync.Mutex
	received []string
}

// Received returns a copy of every command line seen so far, trimmed.
func (f *fakeSonic) Received() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.received...)
}

func (f *fakeSonic) record(line string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.received = append(f.received, strings.TrimRight(line, "\r\n"))
}

// startSonicServer starts a fake server. The handler receives the trimmed
// command line for every verb outside the common set and returns the
// response to send, which may span multiple lines (PENDING then EVENT).
func startSonicServer(t testing.TB, handle func(line string) string) (*fakeSonic, string) {
	f := &fakeSonic{}

	addr := createListener(t, func(conn net.Conn) {
		writer := bufio.NewWriter(conn)
		reader := bufio.NewReader(conn)

		_, _ = writer.WriteString(testGreeting)
		_ = writer.Flush()

		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				return
			}
			f.record(line)

			fields := strings.Fields(line)
			if len(fields) == 0 {
				continue
			}

			switch fields[0] {
			case "START":
				if len(fields) < 3 || fields[2] != testPassword {
					_, _ = writer.WriteString("ERR authentication_required\r\n")
				} else {
					fmt.Fprintf(writer, "STARTED %s protocol(1) buffer(20000)\r\n", fields[1])
				}
			case "PING":
				_, _ = writer.WriteString("PONG\r\n")
			case "QUIT":
				_, _ = writer.WriteString("ENDED quit\r\n")
				_ = writer.Flush()
				return
			default:
				response := "ERR unrecognized_command\r\n"
				if handle != nil {
					response = handle(strings.TrimRight(line, "\r\n"))
					if response == dropConnection {
						return
					}
					if !strings.HasSuffix(response, "\n") {
						response += "\r\n"
					}
				}
				_, _ = writer.WriteString(response)
			}
			_ = writer.Flush()
		}
	})

	return f, addr
}

// commandLines filters handshake and liveness traffic out of the fake
// server's received lines, leaving only domain commands.
func commandLines(f *fakeSonic) []string {
	var lines []string
	for _, line := range f.Received() {
		verb, _, _ := strings.Cut(line, " ")
		switch verb {
		case "START", "PING", "QUIT":
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

// connectTestConnection opens and handshakes a connection to addr on the
// given channel, and closes it when the test finishes.
func connectTestConnection(t testing.TB, addr string, channel protocol.Channel) *Connection {
	t.Helper()

	conn := NewConnection(addr, channel, ConnectionConfig{
		Password: testPassword,
		Timeout:  time.Second,
	})
	require.NoError(t, conn.Connect(context.Background()))

	t.Cleanup(func() {
		_ = conn.Close()
	})
	return conn
}

// testConfig returns a client config pointed at the fake server defaults.
func testConfig() Config {
	return Config{
		Password: testPassword,
		Timeout:  time.Second,
	}
}
