package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/SritejBommaraju/mini-redis/internal/persistence"
	"github.com/SritejBommaraju/mini-redis/internal/replication"
	"github.com/SritejBommaraju/mini-redis/internal/server"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Start the mini-redis server",
	Long:    `Start the mini-redis server. Every flag can also be set via a MINIREDIS_<FLAG> environment variable or a .env file in the working directory.`,
	PreRunE: bindConfig,
	RunE:    runServe,
}

func init() {
	serveCmd.Flags().String("addr", "127.0.0.1:6379", "listen address")
	serveCmd.Flags().String("data-dir", "data", "directory for the append log and snapshots")
	serveCmd.Flags().Int("databases", server.DefaultDatabases, "number of logical databases")
	serveCmd.Flags().Int("max-keys", 10000, "max keys per database before LRU eviction (0 = unbounded)")
	serveCmd.Flags().Bool("fsync", false, "fsync the append log after every record")
	serveCmd.Flags().String("replicas", "", "comma-separated replica addresses to attach at startup")
	serveCmd.Flags().String("metrics-addr", "", "optional address serving Prometheus metrics on /metrics")
}

func bindConfig(cmd *cobra.Command, _ []string) error {
	// .env before viper so the variables are visible to AutomaticEnv.
	_ = godotenv.Load()
	viper.SetEnvPrefix("MINIREDIS")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	return viper.BindPFlags(cmd.Flags())
}

func runServe(cmd *cobra.Command, _ []string) error {
	dataDir := viper.GetString("data-dir")
	aofPath := persistence.AOFPath(dataDir)

	aof, err := persistence.OpenLog(aofPath, persistence.Options{Fsync: viper.GetBool("fsync")})
	if err != nil {
		return err
	}
	defer aof.Close()

	repl := replication.NewManager()
	defer repl.Close()
	for _, addr := range strings.Split(viper.GetString("replicas"), ",") {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		if err := repl.Add(addr); err != nil {
			log.Printf("replica %s unavailable: %v", addr, err)
		}
	}

	srv := server.New(server.Options{
		Addr:         viper.GetString("addr"),
		Databases:    viper.GetInt("databases"),
		MaxKeys:      viper.GetInt("max-keys"),
		SnapshotPath: filepath.Join(dataDir, "dump.mrdb"),
	}, aof, repl)

	if err := persistence.Replay(aofPath, srv.DB(0)); err != nil {
		return err
	}

	if metricsAddr := viper.GetString("metrics-addr"); metricsAddr != "" {
		mux := http.NewServeMux()
		mux.HandleFunc("/metrics", func(w http.ResponseWriter, _ *http.Request) {
			srv.Stats().WritePrometheus(w)
		})
		go func() {
			ms := &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
			if err := ms.ListenAndServe(); err != nil {
				log.Printf("metrics server: %v", err)
			}
		}()
		log.Printf("metrics on http://%s/metrics", metricsAddr)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Printf("mini-redis listening on %s", viper.GetString("addr"))
	return srv.ListenAndServe(ctx)
}
