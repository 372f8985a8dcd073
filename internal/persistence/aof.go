package persistence

import (
	"bufio"
	"errors"
	"log"
	"os"
	"path/filepath"
	"sync"
)

const aofFileName = "appendonly.aof"

var ErrLogClosed = errors.New("append log closed")

// Options configure the append log.
type Options struct {
	// Fsync syncs the file after every record instead of relying on
	// bufio flush + OS writeback.
	Fsync bool
	// QueueSize bounds the producer hand-off. 0 uses a default.
	QueueSize int
}

// Log is the append-only durability log. Command paths enqueue encoded
// records and never touch the file; a single writer goroutine drains
// the queue in FIFO order, writing and flushing each record before
// taking the next, so on-disk order matches enqueue order.
type Log struct {
	f       *os.File
	w       *bufio.Writer
	fsync   bool
	records chan []byte
	done    chan struct{}

	mu     sync.Mutex
	closed bool
}

func AOFPath(dir string) string {
	return filepath.Join(dir, aofFileName)
}

func OpenLog(path string, opts Options) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	queueSize := opts.QueueSize
	if queueSize <= 0 {
		queueSize = 1024
	}
	l := &Log{
		f:       f,
		w:       bufio.NewWriter(f),
		fsync:   opts.Fsync,
		records: make(chan []byte, queueSize),
		done:    make(chan struct{}),
	}
	go l.writeLoop()
	return l, nil
}

// Append enqueues one encoded record. It blocks only when the queue is
// full, never on file I/O.
func (l *Log) Append(record []byte) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrLogClosed
	}
	l.records <- record
	l.mu.Unlock()
	return nil
}

func (l *Log) writeLoop() {
	defer close(l.done)
	for rec := range l.records {
		if _, err := l.w.Write(rec); err != nil {
			log.Printf("aof: write: %v", err)
			continue
		}
		if err := l.w.Flush(); err != nil {
			log.Printf("aof: flush: %v", err)
			continue
		}
		if l.fsync {
			if err := l.f.Sync(); err != nil {
				log.Printf("aof: sync: %v", err)
			}
		}
	}
}

// Close stops accepting records, drains everything already enqueued,
// and releases the file.
func (l *Log) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrLogClosed
	}
	l.closed = true
	close(l.records)
	l.mu.Unlock()

	<-l.done
	if err := l.w.Flush(); err != nil {
		l.f.Close()
		return err
	}
	return l.f.Close()
}
