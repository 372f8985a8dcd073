package server

import (
	"bufio"
	"bytes"
	"context"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/SritejBommaraju/mini-redis/internal/resp"
)

// startServer brings up a server on a loopback port and tears it down
// with the test.
func startServer(t *testing.T, opts Options) (*Server, string) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserve port: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	opts.Addr = addr
	srv := New(opts, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() {
		if err := srv.ListenAndServe(ctx); err != nil {
			t.Errorf("serve: %v", err)
		}
	}()
	waitForReady(t, addr)
	return srv, addr
}

func waitForReady(t *testing.T, addr string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		conn, err := net.Dial("tcp", addr)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("server at %s never came up", addr)
}

type testConn struct {
	conn net.Conn
	r    *bufio.Reader
}

func dialServer(t *testing.T, addr string) *testConn {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return &testConn{conn: conn, r: bufio.NewReader(conn)}
}

// do sends one command and reads one reply.
func (c *testConn) do(t *testing.T, name string, args ...string) resp.Reply {
	t.Helper()
	byteArgs := make([][]byte, len(args))
	for i, a := range args {
		byteArgs[i] = []byte(a)
	}
	if _, err := c.conn.Write(resp.CommandArray(name, byteArgs...)); err != nil {
		t.Fatalf("%s: write: %v", name, err)
	}
	return c.read(t)
}

func (c *testConn) read(t *testing.T) resp.Reply {
	t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	reply, err := resp.ReadReply(c.r)
	if err != nil {
		t.Fatalf("read reply: %v", err)
	}
	return reply
}

func wantOK(t *testing.T, r resp.Reply) {
	t.Helper()
	if r.Kind != '+' || r.Str != "OK" {
		t.Fatalf("expected +OK, got %c %q", r.Kind, r.Str)
	}
}

func wantInt(t *testing.T, r resp.Reply, n int64) {
	t.Helper()
	if r.Kind != ':' || r.Int != n {
		t.Fatalf("expected :%d, got %c %d %q", n, r.Kind, r.Int, r.Str)
	}
}

func wantBulk(t *testing.T, r resp.Reply, s string) {
	t.Helper()
	if r.Kind != '$' || r.IsNil || string(r.Bulk) != s {
		t.Fatalf("expected bulk %q, got %c %q nil=%v", s, r.Kind, r.Bulk, r.IsNil)
	}
}

func wantNil(t *testing.T, r resp.Reply) {
	t.Helper()
	if r.Kind != '$' || !r.IsNil {
		t.Fatalf("expected null bulk, got %c %q", r.Kind, r.Bulk)
	}
}

func wantErrPrefix(t *testing.T, r resp.Reply, prefix string) {
	t.Helper()
	if r.Kind != '-' || !strings.HasPrefix(r.Str, prefix) {
		t.Fatalf("expected error %q..., got %c %q", prefix, r.Kind, r.Str)
	}
}

func TestStringLifecycle(t *testing.T) {
	_, addr := startServer(t, Options{})
	c := dialServer(t, addr)

	wantOK(t, c.do(t, "SET", "user", "alice"))
	wantBulk(t, c.do(t, "GET", "user"), "alice")
	wantInt(t, c.do(t, "APPEND", "user", " B"), 7)
	wantInt(t, c.do(t, "STRLEN", "user"), 7)
	wantInt(t, c.do(t, "INCR", "counter"), 1)
	wantInt(t, c.do(t, "DEL", "user"), 1)
	wantNil(t, c.do(t, "GET", "user"))
	wantInt(t, c.do(t, "TTL", "user"), -2)
}

func TestCommandNamesAreCaseInsensitive(t *testing.T) {
	_, addr := startServer(t, Options{})
	c := dialServer(t, addr)

	wantOK(t, c.do(t, "set", "k", "v"))
	wantBulk(t, c.do(t, "GeT", "k"), "v")
}

func TestPipelinedCommands(t *testing.T) {
	_, addr := startServer(t, Options{})
	c := dialServer(t, addr)

	var batch bytes.Buffer
	batch.Write(resp.CommandArray("SET", []byte("a"), []byte("1")))
	batch.Write(resp.CommandArray("SET", []byte("b"), []byte("2")))
	batch.Write(resp.CommandArray("GET", []byte("a")))
	if _, err := c.conn.Write(batch.Bytes()); err != nil {
		t.Fatal(err)
	}

	wantOK(t, c.read(t))
	wantOK(t, c.read(t))
	wantBulk(t, c.read(t), "1")
}

func TestIncrFamily(t *testing.T) {
	_, addr := startServer(t, Options{})
	c := dialServer(t, addr)

	wantInt(t, c.do(t, "INCRBY", "n", "10"), 10)
	wantInt(t, c.do(t, "DECRBY", "n", "3"), 7)
	wantInt(t, c.do(t, "DECR", "n"), 6)
	wantErrPrefix(t, c.do(t, "INCRBY", "n", "ten"), "value is not an integer")

	wantOK(t, c.do(t, "SET", "s", "hello"))
	wantErrPrefix(t, c.do(t, "INCR", "s"), "value is not an integer")
}

func TestWrongTypeErrors(t *testing.T) {
	_, addr := startServer(t, Options{})
	c := dialServer(t, addr)

	wantInt(t, c.do(t, "HSET", "h", "f", "v"), 1)
	wantErrPrefix(t, c.do(t, "GET", "h"), "WRONGTYPE")
	wantErrPrefix(t, c.do(t, "APPEND", "h", "x"), "WRONGTYPE")
	wantErrPrefix(t, c.do(t, "STRLEN", "h"), "WRONGTYPE")

	wantOK(t, c.do(t, "SET", "s", "v"))
	wantErrPrefix(t, c.do(t, "HSET", "s", "f", "v"), "WRONGTYPE")
	wantErrPrefix(t, c.do(t, "HGET", "s", "f"), "WRONGTYPE")

	// SET replaces regardless of the existing kind.
	wantOK(t, c.do(t, "SET", "h", "plain"))
	wantBulk(t, c.do(t, "GET", "h"), "plain")
}

func TestHashCommands(t *testing.T) {
	_, addr := startServer(t, Options{})
	c := dialServer(t, addr)

	wantInt(t, c.do(t, "HSET", "user:1", "name", "alice"), 1)
	wantInt(t, c.do(t, "HSET", "user:1", "name", "bob"), 0)
	wantBulk(t, c.do(t, "HGET", "user:1", "name"), "bob")
	wantNil(t, c.do(t, "HGET", "user:1", "missing"))
	wantNil(t, c.do(t, "HGET", "nosuch", "f"))
}

func TestMGetMixesValuesAndNulls(t *testing.T) {
	_, addr := startServer(t, Options{})
	c := dialServer(t, addr)

	wantOK(t, c.do(t, "SET", "a", "1"))
	wantInt(t, c.do(t, "HSET", "h", "f", "v"), 1)

	r := c.do(t, "MGET", "a", "missing", "h")
	if r.Kind != '*' || len(r.Elems) != 3 {
		t.Fatalf("expected 3-element array, got %c len=%d", r.Kind, len(r.Elems))
	}
	wantBulk(t, r.Elems[0], "1")
	wantNil(t, r.Elems[1])
	// Wrong-kind keys read as null in MGET rather than failing the batch.
	wantNil(t, r.Elems[2])
}

func TestKeysSupportsOnlyStarPattern(t *testing.T) {
	_, addr := startServer(t, Options{})
	c := dialServer(t, addr)

	wantOK(t, c.do(t, "SET", "beta", "2"))
	wantOK(t, c.do(t, "SET", "alpha", "1"))

	wantErrPrefix(t, c.do(t, "KEYS", "al*"), "KEYS only supports wildcard *")

	r := c.do(t, "KEYS", "*")
	if r.Kind != '*' || len(r.Elems) != 2 {
		t.Fatalf("expected 2 keys, got %c len=%d", r.Kind, len(r.Elems))
	}
	wantBulk(t, r.Elems[0], "alpha")
	wantBulk(t, r.Elems[1], "beta")
}

func TestExpireAndTTL(t *testing.T) {
	_, addr := startServer(t, Options{})
	c := dialServer(t, addr)

	wantOK(t, c.do(t, "SET", "k", "v"))
	wantInt(t, c.do(t, "TTL", "k"), -1)
	wantInt(t, c.do(t, "EXPIRE", "k", "100"), 1)
	if r := c.do(t, "TTL", "k"); r.Kind != ':' || r.Int <= 0 || r.Int > 100 {
		t.Fatalf("ttl out of range: %d", r.Int)
	}
	wantInt(t, c.do(t, "EXPIRE", "missing", "100"), 0)
	wantErrPrefix(t, c.do(t, "EXPIRE", "k", "soon"), "Invalid seconds value")
	wantInt(t, c.do(t, "TTL", "missing"), -2)
}

func TestSelectIsolatesDatabases(t *testing.T) {
	_, addr := startServer(t, Options{})
	first := dialServer(t, addr)
	second := dialServer(t, addr)

	wantOK(t, first.do(t, "SELECT", "1"))
	wantOK(t, first.do(t, "SET", "k", "db1"))

	// The other connection still points at database 0.
	wantNil(t, second.do(t, "GET", "k"))
	wantOK(t, second.do(t, "SELECT", "1"))
	wantBulk(t, second.do(t, "GET", "k"), "db1")

	wantErrPrefix(t, first.do(t, "SELECT", "16"), "Database index out of range")
	wantErrPrefix(t, first.do(t, "SELECT", "-1"), "Database index out of range")
	wantErrPrefix(t, first.do(t, "SELECT", "one"), "Invalid database number")
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dump.mrdb")
	_, addr := startServer(t, Options{SnapshotPath: path})
	c := dialServer(t, addr)

	wantOK(t, c.do(t, "SET", "k", "v"))
	wantInt(t, c.do(t, "HSET", "h", "f", "hv"), 1)
	wantOK(t, c.do(t, "SAVE"))

	wantInt(t, c.do(t, "DEL", "k"), 1)
	wantOK(t, c.do(t, "SET", "scratch", "x"))

	wantOK(t, c.do(t, "LOAD"))
	wantBulk(t, c.do(t, "GET", "k"), "v")
	wantBulk(t, c.do(t, "HGET", "h", "f"), "hv")
	wantNil(t, c.do(t, "GET", "scratch"))
}

func TestPubSubDelivery(t *testing.T) {
	_, addr := startServer(t, Options{})
	sub := dialServer(t, addr)
	pub := dialServer(t, addr)

	wantInt(t, pub.do(t, "PUBLISH", "news", "nobody home"), 0)

	wantOK(t, sub.do(t, "SUBSCRIBE", "news", "sports"))

	wantInt(t, pub.do(t, "PUBLISH", "news", "hello"), 1)
	msg := sub.read(t)
	if msg.Kind != '*' || len(msg.Elems) != 2 {
		t.Fatalf("expected [channel, message], got %c len=%d", msg.Kind, len(msg.Elems))
	}
	wantBulk(t, msg.Elems[0], "news")
	wantBulk(t, msg.Elems[1], "hello")

	// Subscribers do not hear channels they never subscribed to, and a
	// closed subscriber stops counting.
	wantInt(t, pub.do(t, "PUBLISH", "weather", "rain"), 0)
	sub.conn.Close()
	deadline := time.Now().Add(2 * time.Second)
	for {
		r := pub.do(t, "PUBLISH", "news", "again")
		if r.Int == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("closed subscriber still counted")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestProtocolErrorRecovery(t *testing.T) {
	_, addr := startServer(t, Options{})
	c := dialServer(t, addr)

	var raw bytes.Buffer
	raw.WriteString("?bogus\r\n")
	raw.Write(resp.CommandArray("PING"))
	if _, err := c.conn.Write(raw.Bytes()); err != nil {
		t.Fatal(err)
	}

	wantErrPrefix(t, c.read(t), "ERR ")
	if r := c.read(t); r.Kind != '+' || r.Str != "PONG" {
		t.Fatalf("connection should survive a malformed frame, got %c %q", r.Kind, r.Str)
	}
}

func TestPingEchoInfoAndStubs(t *testing.T) {
	srv, addr := startServer(t, Options{})
	c := dialServer(t, addr)

	if r := c.do(t, "PING"); r.Kind != '+' || r.Str != "PONG" {
		t.Fatalf("PING: %c %q", r.Kind, r.Str)
	}
	wantBulk(t, c.do(t, "PING", "hi"), "hi")
	wantBulk(t, c.do(t, "ECHO", "repeat me"), "repeat me")

	wantOK(t, c.do(t, "AUTH", "whatever"))
	wantErrPrefix(t, c.do(t, "EVAL", "return 1", "0"), "ERR EVAL not implemented")
	wantErrPrefix(t, c.do(t, "FLUSHDB"), "ERR unknown command 'FLUSHDB'")

	wantOK(t, c.do(t, "SET", "k", "v"))
	r := c.do(t, "INFO")
	if r.Kind != '$' {
		t.Fatalf("INFO kind: %c", r.Kind)
	}
	info := string(r.Bulk)
	for _, field := range []string{"uptime:", "total_keys:1", "commands_processed:", "databases:16"} {
		if !strings.Contains(info, field) {
			t.Fatalf("INFO missing %q:\n%s", field, info)
		}
	}
	if srv.Stats().Commands() == 0 {
		t.Fatal("command counter never moved")
	}
}

func TestQuitClosesConnection(t *testing.T) {
	_, addr := startServer(t, Options{})
	c := dialServer(t, addr)

	wantOK(t, c.do(t, "QUIT"))
	c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := c.r.ReadByte(); err == nil {
		t.Fatal("connection should be closed after QUIT")
	}
}

func TestExecuteBridgesWithoutConnection(t *testing.T) {
	srv := New(Options{}, nil, nil)

	if got := srv.Execute([][]byte{[]byte("SET"), []byte("k"), []byte("v")}); !bytes.Equal(got, resp.SimpleString("OK")) {
		t.Fatalf("SET: %q", got)
	}
	if got := srv.Execute([][]byte{[]byte("GET"), []byte("k")}); !bytes.Equal(got, resp.BulkString([]byte("v"))) {
		t.Fatalf("GET: %q", got)
	}
}

func TestMaxKeysBoundsTheKeyspace(t *testing.T) {
	_, addr := startServer(t, Options{MaxKeys: 3})
	c := dialServer(t, addr)

	for _, k := range []string{"a", "b", "c", "d", "e"} {
		wantOK(t, c.do(t, "SET", k, "v"))
	}
	r := c.do(t, "KEYS", "*")
	if len(r.Elems) != 3 {
		t.Fatalf("eviction bound not enforced: %d keys", len(r.Elems))
	}
	// The most recent writes survive.
	wantBulk(t, c.do(t, "GET", "e"), "v")
	wantNil(t, c.do(t, "GET", "a"))
}
