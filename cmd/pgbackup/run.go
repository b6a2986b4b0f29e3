package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/gsingh-io/pgbackup/pkg/config"
	"github.com/gsingh-io/pgbackup/pkg/jobrunner"
	"github.com/gsingh-io/pgbackup/pkg/logging"
	"github.com/gsingh-io/pgbackup/pkg/secrets"
)

var runCmd = &cobra.Command{
	Use:     "run --config pgbackup.yaml",
	Short:   "Run one supervised backup job and wait for its outcome",
	Example: `  pgbackup run --config pgbackup.yaml --kubeconfig $HOME/.kube/config --namespace backups`,
	RunE:    runBackup,
}

var (
	masterURL  string
	kubeconfig string
	configPath string
	namespace  string
	timeout    time.Duration
)

func init() {
	runCmd.Flags().StringVarP(&masterURL, "master", "", "", "The address of the Kubernetes API server.")
	runCmd.Flags().StringVarP(&kubeconfig, "kubeconfig", "", "", "Path to a kubeconfig file. Defaults to $KUBECONFIG.")
	runCmd.Flags().StringVarP(&configPath, "config", "", "", "Path to the backup configuration file. Defaults to $PGBACKUP_CONFIG or pgbackup.yaml.")
	runCmd.Flags().StringVarP(&namespace, "namespace", "n", "", "Override the job namespace from the configuration file.")
	runCmd.Flags().DurationVarP(&timeout, "timeout", "", 0, "Override the job completion deadline.")

	rootCmd.AddCommand(runCmd)
}

func runBackup(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)

	client, err := kubeClient()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := jobrunner.NewRunner(jobrunner.NewKubeClient(client), secrets.NewKubeResolver(client), logger)
	outcome, err := runner.Run(ctx, cfg)
	if err != nil {
		return err
	}

	if outcome.Logs != "" {
		fmt.Fprint(cmd.OutOrStdout(), outcome.Logs)
	}
	if outcome.Class != jobrunner.OutcomeSucceeded {
		return fmt.Errorf("backup %s: %s", outcome.Class, outcome.Reason)
	}
	if outcome.CleanupWarning != "" {
		logger.Warn("backup succeeded with cleanup warning", "warning", outcome.CleanupWarning)
	}
	return nil
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = envOr("PGBACKUP_CONFIG", "pgbackup.yaml")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if namespace != "" {
		cfg.Job.Namespace = namespace
	}
	if timeout > 0 {
		cfg.Job.Timeout = config.Duration(timeout)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func kubeClient() (*kubernetes.Clientset, error) {
	path := kubeconfig
	if path == "" {
		path = os.Getenv("KUBECONFIG")
	}
	restConfig, err := clientcmd.BuildConfigFromFlags(masterURL, path)
	if err != nil {
		return nil, fmt.Errorf("error building kubeconfig: %w", err)
	}
	client, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("error building kubernetes client: %w", err)
	}
	return client, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
