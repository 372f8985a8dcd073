// mini-redis-demo exposes the engine over a websocket bridge and ships
// snapshots to a GCS bucket, so a stateless container keeps its data
// across restarts. Each websocket message is one inline command
// ("SET user alice"); the reply is the raw wire encoding.
package main

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/storage"
	"github.com/gorilla/websocket"

	"github.com/SritejBommaraju/mini-redis/internal/persistence"
	"github.com/SritejBommaraju/mini-redis/internal/server"
)

const (
	defaultDataDir = "/tmp/mini-redis-demo"
	defaultObject  = "dump.mrdb"
)

func main() {
	port := getenv("PORT", "8080")
	dataDir := getenv("DEMO_DATA_DIR", defaultDataDir)
	bucket := os.Getenv("DEMO_BUCKET")
	object := getenv("DEMO_OBJECT", defaultObject)

	if bucket == "" {
		log.Fatal("DEMO_BUCKET is required for persistence")
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		log.Fatalf("data dir: %v", err)
	}

	ctx := context.Background()
	gcs, err := newGCSObject(ctx, bucket, object)
	if err != nil {
		log.Fatalf("gcs client: %v", err)
	}

	snapshotPath := filepath.Join(dataDir, "dump.mrdb")
	if err := gcs.Download(ctx, snapshotPath); err != nil {
		log.Fatalf("download snapshot: %v", err)
	}

	srv := server.New(server.Options{SnapshotPath: snapshotPath}, nil, nil)
	if _, err := os.Stat(snapshotPath); err == nil {
		if err := persistence.LoadSnapshot(snapshotPath, srv.DB(0)); err != nil {
			log.Fatalf("load snapshot: %v", err)
		}
	}

	handler := &wsHandler{
		srv:          srv,
		uploader:     gcs,
		snapshotPath: snapshotPath,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		srv.Stats().WritePrometheus(w)
	})
	mux.HandleFunc("/ws", handler.handleWS)
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("mini-redis demo ok\n"))
	})

	hs := &http.Server{
		Addr:              ":" + port,
		Handler:           withLogging(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Printf("mini-redis demo listening on :%s", port)
	if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server error: %v", err)
	}
}

func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(start))
	})
}

type wsHandler struct {
	srv          *server.Server
	uploader     *gcsObject
	snapshotPath string
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

func (h *wsHandler) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	for {
		msgType, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}

		frame := inlineFrame(string(payload))
		if len(frame) == 0 {
			_ = conn.WriteMessage(websocket.TextMessage, []byte("-empty command\r\n"))
			continue
		}

		reply := h.srv.Execute(frame)
		if isMutating(string(frame[0])) {
			if err := h.persist(r.Context()); err != nil {
				reply = []byte("-persistence upload failed: " + err.Error() + "\r\n")
			}
		}
		if err := conn.WriteMessage(websocket.TextMessage, reply); err != nil {
			return
		}
	}
}

// persist snapshots database 0 and ships the file to the bucket.
func (h *wsHandler) persist(ctx context.Context) error {
	if err := persistence.SaveSnapshot(h.snapshotPath, h.srv.DB(0)); err != nil {
		return err
	}
	return h.uploader.Upload(ctx, h.snapshotPath)
}

func isMutating(name string) bool {
	switch name {
	case "SET", "DEL", "EXPIRE", "HSET", "INCR", "DECR", "INCRBY", "DECRBY", "APPEND":
		return true
	default:
		return false
	}
}

// inlineFrame splits a whitespace-separated command line into a frame,
// uppercasing the command name the way the wire codec does.
func inlineFrame(line string) [][]byte {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	frame := make([][]byte, len(fields))
	frame[0] = []byte(strings.ToUpper(fields[0]))
	for i, f := range fields[1:] {
		frame[i+1] = []byte(f)
	}
	return frame
}

type gcsObject struct {
	client *storage.Client
	bucket string
	object string
	mu     sync.Mutex
}

func newGCSObject(ctx context.Context, bucket, object string) (*gcsObject, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return &gcsObject{
		client: client,
		bucket: bucket,
		object: object,
	}, nil
}

func (g *gcsObject) Download(ctx context.Context, path string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	obj := g.client.Bucket(g.bucket).Object(g.object)
	rc, err := obj.NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil
		}
		return err
	}
	defer rc.Close()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, rc); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (g *gcsObject) Upload(ctx context.Context, path string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	defer f.Close()

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	obj := g.client.Bucket(g.bucket).Object(g.object)
	w := obj.NewWriter(ctx)
	if _, err := io.Copy(w, f); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

func getenv(key, fallback string) string {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	return val
}
