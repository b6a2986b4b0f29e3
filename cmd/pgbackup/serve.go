package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/gsingh-io/pgbackup/pkg/jobrunner"
	"github.com/gsingh-io/pgbackup/pkg/logging"
	"github.com/gsingh-io/pgbackup/pkg/observability"
	"github.com/gsingh-io/pgbackup/pkg/secrets"
)

var serveCmd = &cobra.Command{
	Use:   "serve --config pgbackup.yaml --addr :8080",
	Short: "Expose an HTTP trigger surface for the workflow engine",
	RunE:  serve,
}

var addr string

func init() {
	serveCmd.Flags().StringVarP(&masterURL, "master", "", "", "The address of the Kubernetes API server.")
	serveCmd.Flags().StringVarP(&kubeconfig, "kubeconfig", "", "", "Path to a kubeconfig file.")
	serveCmd.Flags().StringVarP(&configPath, "config", "", "", "Path to the backup configuration file. Defaults to $PGBACKUP_CONFIG or pgbackup.yaml.")
	serveCmd.Flags().StringVarP(&addr, "addr", "", ":8080", "Listen address.")

	rootCmd.AddCommand(serveCmd)
}

// triggerRequest carries the per-trigger overrides a workflow engine may
// apply on top of the server configuration.
type triggerRequest struct {
	Namespace string `json:"namespace,omitempty"`
	Database  string `json:"database,omitempty"`
	Prefix    string `json:"prefix,omitempty"`
}

func serve(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)

	client, err := kubeClient()
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	metrics := observability.NewMetrics(registry)

	runner := jobrunner.NewRunner(jobrunner.NewKubeClient(client), secrets.NewKubeResolver(client), logger).
		WithMetrics(metrics)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	router.POST("/api/v1/backups", func(c *gin.Context) {
		var req triggerRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
		}

		// Each trigger runs on its own immutable snapshot of the config.
		runCfg := *cfg
		if req.Namespace != "" {
			runCfg.Job.Namespace = req.Namespace
		}
		if req.Database != "" {
			runCfg.Database.Name = req.Database
		}
		if req.Prefix != "" {
			runCfg.Storage.Prefix = req.Prefix
		}

		outcome, err := runner.Run(c.Request.Context(), &runCfg)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		code := http.StatusOK
		if outcome.Class != jobrunner.OutcomeSucceeded {
			code = http.StatusBadGateway
		}
		c.JSON(code, outcome)
	})

	logger.Info("listening", "addr", addr)
	return router.Run(addr)
}
