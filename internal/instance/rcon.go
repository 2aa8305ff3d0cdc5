package instance

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

// RCON packet types, per Valve's Source RCON Protocol, used as Minecraft's
// side channel once an instance reaches Running.
const (
	rconTypeAuth         int32 = 3
	rconTypeAuthResponse int32 = 2
	rconTypeCommand      int32 = 2
	rconTypeResponse     int32 = 0
)

// RconBackoff is the §4.5/§5 connect retry schedule: three attempts with
// 1s/2s/4s exponential back-off before giving up and continuing without
// RCON.
var RconBackoff = []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}

// RconClient is a side-channel connection to a running Minecraft server's
// RCON listener.
type RconClient struct {
	mu      sync.Mutex
	conn    net.Conn
	nextReq int32
}

// DialRcon opens a single RCON connection and authenticates. The caller is
// responsible for retrying per RconBackoff; this function makes exactly one
// attempt.
func DialRcon(addr, password string) (*RconClient, error) {
	conn, err := net.DialTimeout("tcp", addr, 3*time.Second)
	if err != nil {
		return nil, fmt.Errorf("rcon dial: %w", err)
	}
	c := &RconClient{conn: conn}
	if err := c.authenticate(password); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return c, nil
}

// ConnectWithBackoff attempts DialRcon up to len(RconBackoff) times,
// sleeping the corresponding backoff between failures, per §4.5 step 2 /
// §8 scenario 4. Returns the client, or nil and the last error if every
// attempt failed — in which case the caller continues without RCON rather
// than failing the startup sequence.
func ConnectWithBackoff(addr, password string) (*RconClient, error) {
	var lastErr error
	for i, wait := range RconBackoff {
		client, err := DialRcon(addr, password)
		if err == nil {
			return client, nil
		}
		lastErr = err
		if i < len(RconBackoff)-1 {
			time.Sleep(wait)
		}
	}
	return nil, lastErr
}

func (c *RconClient) authenticate(password string) error {
	id := c.nextRequestID()
	if err := c.writePacket(id, rconTypeAuth, password); err != nil {
		return fmt.Errorf("rcon auth write: %w", err)
	}
	// Servers may send an empty SERVERDATA_RESPONSE_VALUE packet before the
	// SERVERDATA_AUTH_RESPONSE; skip packets until we see the auth reply.
	for {
		respID, respType, _, err := c.readPacket()
		if err != nil {
			return fmt.Errorf("rcon auth read: %w", err)
		}
		if respType == rconTypeAuthResponse {
			if respID != id {
				return fmt.Errorf("rcon auth rejected")
			}
			return nil
		}
	}
}

// Command sends a command over the RCON connection and returns the
// server's response body.
func (c *RconClient) Command(cmd string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextRequestID()
	if err := c.writePacket(id, rconTypeCommand, cmd); err != nil {
		return "", fmt.Errorf("rcon command write: %w", err)
	}
	_, _, body, err := c.readPacket()
	if err != nil {
		return "", fmt.Errorf("rcon command read: %w", err)
	}
	return body, nil
}

// Close closes the underlying connection.
func (c *RconClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func (c *RconClient) nextRequestID() int32 {
	c.nextReq++
	return c.nextReq
}

func (c *RconClient) writePacket(id, ptype int32, body string) error {
	payload := append([]byte(body), 0, 0)
	size := int32(4 + 4 + len(payload))

	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, size); err != nil {
		return err
	}
	if err := binary.Write(buf, binary.LittleEndian, id); err != nil {
		return err
	}
	if err := binary.Write(buf, binary.LittleEndian, ptype); err != nil {
		return err
	}
	buf.Write(payload)

	_, err := c.conn.Write(buf.Bytes())
	return err
}

func (c *RconClient) readPacket() (id, ptype int32, body string, err error) {
	var size int32
	if err = binary.Read(c.conn, binary.LittleEndian, &size); err != nil {
		return 0, 0, "", err
	}
	if size < 10 || size > 1<<20 {
		return 0, 0, "", fmt.Errorf("rcon: invalid packet size %d", size)
	}
	data := make([]byte, size)
	if _, err = io.ReadFull(c.conn, data); err != nil {
		return 0, 0, "", err
	}
	id = int32(binary.LittleEndian.Uint32(data[0:4]))
	ptype = int32(binary.LittleEndian.Uint32(data[4:8]))
	body = string(bytes.TrimRight(data[8:len(data)-2], "\x00"))
	return id, ptype, body, nil
}
