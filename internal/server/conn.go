package server

import (
	"bufio"
	"errors"
	"net"
	"sync"
	"sync/atomic"

	"github.com/SritejBommaraju/mini-redis/internal/resp"
)

var nextClientID atomic.Uint64

// client is the per-connection state: the selected database, the
// subscribed channels, and a request counter. Writes go through wmu
// because PUBLISH delivers to subscribers from other connections'
// goroutines.
type client struct {
	id       uint64
	conn     net.Conn
	w        *bufio.Writer
	wmu      sync.Mutex
	dbIndex  int
	channels map[string]struct{}
	requests int
}

// send writes and flushes one encoded reply or pushed message.
func (c *client) send(data []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if _, err := c.w.Write(data); err != nil {
		return err
	}
	return c.w.Flush()
}

func (s *Server) handleConn(conn net.Conn) {
	cl := &client{
		id:       nextClientID.Add(1),
		conn:     conn,
		w:        bufio.NewWriter(conn),
		channels: make(map[string]struct{}),
	}
	s.stats.RecordConnection()
	defer func() {
		s.pubsub.unsubscribeAll(cl)
		conn.Close()
	}()

	var parser resp.Parser
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		parser.Append(buf[:n])

		// One read may complete several pipelined frames.
		for {
			frame, err := parser.Next()
			if errors.Is(err, resp.ErrIncomplete) {
				break
			}
			if err != nil {
				var perr *resp.ProtocolError
				if !errors.As(err, &perr) {
					return
				}
				s.stats.RecordError()
				if sendErr := cl.send(resp.Error("ERR " + perr.Reason)); sendErr != nil {
					return
				}
				// Recovery policy: skip to the next frame start
				// rather than closing the connection.
				if !parser.SkipToFrameStart() {
					break
				}
				continue
			}

			res := s.dispatch(cl, frame)
			if err := cl.send(res.reply); err != nil {
				return
			}
			if res.close {
				return
			}
		}
	}
}
