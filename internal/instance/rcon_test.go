package instance

import (
	"bytes"
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeRconServer speaks just enough of the Source RCON protocol to
// exercise DialRcon/Command against a real socket.
func fakeRconServer(t *testing.T, password string) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		// auth
		id, _, body, err := readTestPacket(conn)
		if err != nil {
			return
		}
		if body != password {
			writeTestPacket(conn, -1, rconTypeAuthResponse, "")
			return
		}
		writeTestPacket(conn, id, rconTypeAuthResponse, "")

		for {
			cmdID, _, cmdBody, err := readTestPacket(conn)
			if err != nil {
				return
			}
			switch cmdBody {
			case "list":
				writeTestPacket(conn, cmdID, rconTypeResponse, "There are 0 of a max of 20 players online")
			default:
				writeTestPacket(conn, cmdID, rconTypeResponse, "Unknown command")
			}
		}
	}()

	return ln.Addr().String()
}

func readTestPacket(conn net.Conn) (id, ptype int32, body string, err error) {
	var size int32
	if err = binary.Read(conn, binary.LittleEndian, &size); err != nil {
		return
	}
	data := make([]byte, size)
	if _, err = io.ReadFull(conn, data); err != nil {
		return
	}
	id = int32(binary.LittleEndian.Uint32(data[0:4]))
	ptype = int32(binary.LittleEndian.Uint32(data[4:8]))
	body = string(bytes.TrimRight(data[8:len(data)-2], "\x00"))
	return
}

func writeTestPacket(conn net.Conn, id, ptype int32, body string) {
	payload := append([]byte(body), 0, 0)
	size := int32(4 + 4 + len(payload))
	buf := new(bytes.Buffer)
	_ = binary.Write(buf, binary.LittleEndian, size)
	_ = binary.Write(buf, binary.LittleEndian, id)
	_ = binary.Write(buf, binary.LittleEndian, ptype)
	buf.Write(payload)
	_, _ = conn.Write(buf.Bytes())
}

func TestRcon_AuthAndCommandRoundTrip(t *testing.T) {
	addr := fakeRconServer(t, "secret")

	client, err := DialRcon(addr, "secret")
	require.NoError(t, err)
	defer client.Close()

	resp, err := client.Command("list")
	require.NoError(t, err)
	require.Contains(t, resp, "players online")
}

func TestRcon_AuthFailure(t *testing.T) {
	addr := fakeRconServer(t, "secret")

	_, err := DialRcon(addr, "wrong")
	require.Error(t, err)
}

func TestConnectWithBackoff_GivesUpAfterAllAttempts(t *testing.T) {
	orig := RconBackoff
	RconBackoff = []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond}
	defer func() { RconBackoff = orig }()

	_, err := ConnectWithBackoff("127.0.0.1:1", "whatever")
	require.Error(t, err)
}
