package server

import (
	"bufio"
	"context"
	"io"
	"net"
	"time"

	"github.com/SritejBommaraju/mini-redis/internal/persistence"
	"github.com/SritejBommaraju/mini-redis/internal/replication"
	"github.com/SritejBommaraju/mini-redis/internal/stats"
	"github.com/SritejBommaraju/mini-redis/internal/store"
)

// DefaultDatabases is the fixed number of logical databases the engine
// hosts; connections switch between them with SELECT.
const DefaultDatabases = 16

// Options configure a Server.
type Options struct {
	Addr         string
	Databases    int // 0 = DefaultDatabases
	MaxKeys      int // per database, 0 = unbounded
	SnapshotPath string
	Now          func() int64 // unix seconds, nil = wall clock
}

// Server owns the logical databases and binds the engine to a TCP
// transport, one goroutine per connection.
type Server struct {
	addr         string
	dbs          []*store.DB
	aof          *persistence.Log
	repl         *replication.Manager
	stats        *stats.Stats
	pubsub       *pubsub
	snapshotPath string
	started      time.Time
}

// New builds a server. aof and repl may be nil to disable the append
// log or replication.
func New(opts Options, aof *persistence.Log, repl *replication.Manager) *Server {
	n := opts.Databases
	if n <= 0 {
		n = DefaultDatabases
	}
	dbs := make([]*store.DB, n)
	for i := range dbs {
		dbs[i] = store.New(store.Options{MaxKeys: opts.MaxKeys, Now: opts.Now})
	}
	return &Server{
		addr:         opts.Addr,
		dbs:          dbs,
		aof:          aof,
		repl:         repl,
		stats:        stats.New(),
		pubsub:       newPubSub(),
		snapshotPath: opts.SnapshotPath,
		started:      time.Now(),
	}
}

// DB exposes one logical database, used by startup replay and tests.
func (s *Server) DB(i int) *store.DB {
	return s.dbs[i]
}

// Stats exposes the server counters for the metrics endpoint.
func (s *Server) Stats() *stats.Stats {
	return s.stats
}

// ListenAndServe accepts connections until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	defer ln.Close()

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			continue
		}
		go s.handleConn(conn)
	}
}

// Execute runs one decoded command frame against the engine without a
// network connection, for embedding the engine behind other transports
// (the websocket demo bridge). Each call uses a fresh connection
// context, so SELECT and SUBSCRIBE do not carry across calls.
func (s *Server) Execute(frame [][]byte) []byte {
	cl := &client{
		id:       nextClientID.Add(1),
		w:        bufio.NewWriter(io.Discard),
		channels: make(map[string]struct{}),
	}
	return s.dispatch(cl, frame).reply
}

func (s *Server) totalKeys() int {
	total := 0
	for _, db := range s.dbs {
		total += db.Len()
	}
	return total
}
