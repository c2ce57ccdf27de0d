package main

import (
	"bufio"
	"errors"
	"io"
	"net"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is a line-oriented duplex connection. ReadLine blocks for the next
// protocol line without its terminator; WriteLine sends one line.
// ReadLine and WriteLine may be called from different goroutines.
type Conn interface {
	ReadLine() (string, error)
	WriteLine(line string) error
	Close() error
	RemoteAddr() string
}

// errLineTooLong reports a dropped line longer than max_line_bytes.
// The connection stays usable.
var errLineTooLong = errors.New("line exceeds max_line_bytes")

// tcpConn frames a raw stream on '\n', tolerating "\r\n"
type tcpConn struct {
	c            net.Conn
	r            *bufio.Reader
	writeTimeout time.Duration
}

func newTCPConn(c net.Conn, maxLine int, writeTimeout time.Duration) *tcpConn {
	// room for the terminator
	return &tcpConn{c: c, r: bufio.NewReaderSize(c, maxLine+2), writeTimeout: writeTimeout}
}

// ReadLine returns errLineTooLong after discarding an oversized line up to its '\n'
func (t *tcpConn) ReadLine() (string, error) {
	data, err := t.r.ReadSlice('\n')
	if errors.Is(err, bufio.ErrBufferFull) {
		for errors.Is(err, bufio.ErrBufferFull) {
			_, err = t.r.ReadSlice('\n')
		}
		return "", errLineTooLong
	}
	if err != nil && (len(data) == 0 || !errors.Is(err, io.EOF)) {
		return "", err
	}
	line := strings.TrimSuffix(string(data), "\n")
	return strings.TrimSuffix(line, "\r"), nil
}

func (t *tcpConn) WriteLine(line string) error {
	if t.writeTimeout > 0 {
		t.c.SetWriteDeadline(time.Now().Add(t.writeTimeout))
	}
	_, err := io.WriteString(t.c, line+"\n")
	return err
}

func (t *tcpConn) Close() error {
	return t.c.Close()
}

func (t *tcpConn) RemoteAddr() string {
	return t.c.RemoteAddr().String()
}

// wsConn carries protocol lines over WebSocket text messages.
// An inbound message may hold several lines; every outbound line is its own message.
type wsConn struct {
	c            *websocket.Conn
	pending      []string
	writeTimeout time.Duration
}

func newWSConn(c *websocket.Conn, maxLine int, writeTimeout time.Duration) *wsConn {
	c.SetReadLimit(int64(maxLine))
	return &wsConn{c: c, writeTimeout: writeTimeout}
}

func (w *wsConn) ReadLine() (string, error) {
	for len(w.pending) == 0 {
		msgType, data, err := w.c.ReadMessage()
		if err != nil {
			return "", err
		}
		if msgType != websocket.TextMessage {
			continue
		}
		for _, line := range strings.Split(string(data), "\n") {
			if line = strings.TrimRight(line, "\r"); line != "" {
				w.pending = append(w.pending, line)
			}
		}
	}
	line := w.pending[0]
	w.pending = w.pending[1:]
	return line, nil
}

func (w *wsConn) WriteLine(line string) error {
	if w.writeTimeout > 0 {
		w.c.SetWriteDeadline(time.Now().Add(w.writeTimeout))
	}
	return w.c.WriteMessage(websocket.TextMessage, []byte(line))
}

func (w *wsConn) Close() error {
	return w.c.Close()
}

func (w *wsConn) RemoteAddr() string {
	return w.c.RemoteAddr().String()
}
