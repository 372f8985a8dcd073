package replication

import (
	"fmt"
	"log"
	"net"
	"sync"
	"time"
)

const (
	defaultQueueSize    = 256
	defaultWriteTimeout = 5 * time.Second
)

// Manager fans mutation records out to attached replica endpoints.
// Endpoints are added and removed administratively, not by client
// command. Each replica owns a bounded queue drained by its own
// goroutine with a write deadline, so a slow or dead replica never
// stalls the command path; a replica that overflows its queue or fails
// a write is dropped, not retried.
type Manager struct {
	mu       sync.Mutex
	replicas map[string]*replica

	queueSize    int
	writeTimeout time.Duration
}

type replica struct {
	addr    string
	conn    net.Conn
	records chan []byte
}

func NewManager() *Manager {
	return &Manager{
		replicas:     make(map[string]*replica),
		queueSize:    defaultQueueSize,
		writeTimeout: defaultWriteTimeout,
	}
}

// Add dials addr and attaches it as a replica.
func (m *Manager) Add(addr string) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("dial replica %s: %w", addr, err)
	}

	m.mu.Lock()
	if _, exists := m.replicas[addr]; exists {
		m.mu.Unlock()
		conn.Close()
		return fmt.Errorf("replica %s already attached", addr)
	}
	r := &replica{
		addr:    addr,
		conn:    conn,
		records: make(chan []byte, m.queueSize),
	}
	m.replicas[addr] = r
	m.mu.Unlock()

	go m.drain(r)
	log.Printf("replication: attached %s", addr)
	return nil
}

// Remove detaches the replica at addr, if attached.
func (m *Manager) Remove(addr string) {
	m.mu.Lock()
	r, ok := m.replicas[addr]
	if ok {
		delete(m.replicas, addr)
	}
	m.mu.Unlock()
	if ok {
		close(r.records)
	}
}

// Len reports the number of attached replicas.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.replicas)
}

// Replicate enqueues one encoded record for every attached replica.
// It never blocks: a replica whose queue is full is considered stuck
// and dropped.
func (m *Manager) Replicate(record []byte) {
	m.mu.Lock()
	var stuck []*replica
	for _, r := range m.replicas {
		select {
		case r.records <- record:
		default:
			stuck = append(stuck, r)
		}
	}
	for _, r := range stuck {
		delete(m.replicas, r.addr)
	}
	m.mu.Unlock()

	for _, r := range stuck {
		log.Printf("replication: %s queue full, dropping replica", r.addr)
		close(r.records)
	}
}

func (m *Manager) drain(r *replica) {
	defer r.conn.Close()
	for rec := range r.records {
		r.conn.SetWriteDeadline(time.Now().Add(m.writeTimeout))
		if _, err := r.conn.Write(rec); err != nil {
			log.Printf("replication: write to %s: %v, dropping replica", r.addr, err)
			m.detach(r)
			return
		}
	}
}

// detach removes r without closing its channel; the drain goroutine is
// already on its way out.
func (m *Manager) detach(r *replica) {
	m.mu.Lock()
	if cur, ok := m.replicas[r.addr]; ok && cur == r {
		delete(m.replicas, r.addr)
	}
	m.mu.Unlock()
}

// Close detaches every replica.
func (m *Manager) Close() {
	m.mu.Lock()
	replicas := m.replicas
	m.replicas = make(map[string]*replica)
	m.mu.Unlock()

	for _, r := range replicas {
		close(r.records)
	}
}
