package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const VERSION = "0.1.0"

var rootCmd = &cobra.Command{
	Use:     "pgbackup",
	Short:   "Runs a PostgreSQL-to-S3 backup container as a supervised Kubernetes Job",
	Version: VERSION,
}

func main() {
	// Optional .env for kubeconfig and config-path overrides.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
