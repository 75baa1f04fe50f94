package main

import (
	"bufio"
	"log"
	"net"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Conn is a connection to a client.
type Conn struct {
	// conn: The connection if we are actively connected.
	conn net.Conn

	// rw: Read/write handle to the connection
	rw *bufio.ReadWriter

	ioWait time.Duration

	IP net.IP
}

// NewConn initializes a Conn struct
func NewConn(conn net.Conn, ioWait time.Duration) Conn {
	var ip net.IP
	if tcpAddr, ok := conn.RemoteAddr().(*net.TCPAddr); ok {
		ip = tcpAddr.IP
	}

	return Conn{
		conn:   conn,
		rw:     bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn)),
		ioWait: ioWait,
		IP:     ip,
	}
}

// Close closes the underlying connection
func (c Conn) Close() error {
	return c.conn.Close()
}

// RemoteAddr returns the remote network address.
func (c Conn) RemoteAddr() net.Addr {
	if c.conn == nil {
		return nil
	}
	return c.conn.RemoteAddr()
}

// Read reads a line from the connection. The line includes its
// terminating newline. A peer that stays silent past the deadline gets
// an i/o timeout error, which ends its session.
func (c Conn) Read() (string, error) {
	err := c.conn.SetReadDeadline(time.Now().Add(c.ioWait))
	if err != nil {
		return "", errors.Wrap(err, "unable to set deadline")
	}

	line, err := c.rw.ReadString('\n')
	if err != nil {
		return "", err
	}

	return line, nil
}

// Write writes a string to the connection
func (c Conn) Write(s string) error {
	err := c.conn.SetWriteDeadline(time.Now().Add(c.ioWait))
	if err != nil {
		return errors.Wrap(err, "unable to set deadline")
	}

	sz, err := c.rw.WriteString(s)
	if err != nil {
		return err
	}

	if sz != len(s) {
		return errors.New("short write")
	}

	err = c.rw.Flush()
	if err != nil {
		return errors.Wrap(err, "flush error")
	}

	return nil
}

// WriteMessage writes an IRC message to the connection.
func (c Conn) WriteMessage(m Message) error {
	buf, err := m.Encode()
	if err != nil {
		if err != errTruncated {
			return errors.Wrap(err, "unable to encode message")
		}
		log.Printf("Truncated message to %s: %s", c.RemoteAddr(),
			strings.TrimRight(buf, "\r\n"))
	}

	return c.Write(buf)
}
