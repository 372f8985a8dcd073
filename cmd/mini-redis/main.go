package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const version = "1.0.0"

var rootCmd = &cobra.Command{
	Use:   "mini-redis",
	Short: "in-memory key-value server speaking a RESP-style protocol",
	Long: `mini-redis is an in-memory key-value engine with string and hash
values, per-key expiration, LRU eviction, append-log durability, binary
snapshots, and best-effort replication to attached replicas.`,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the mini-redis version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("mini-redis v%s\n", version)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
