package cmd

import (
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/stormpetrel/metfetch/internal/observability"
	"github.com/stormpetrel/metfetch/internal/server"
	"github.com/stormpetrel/metfetch/pkg/runstate"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve campaign run state over HTTP",
	Long: `Start a read-only HTTP server exposing the run records of a campaign
output directory. Useful for watching a long-running campaign from
another machine or wiring it into a dashboard.

Endpoints:
  GET /healthz
  GET /version
  GET /api/v1/jobs
  GET /api/v1/jobs/{jobID}`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var serveOutputDir string

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&serveOutputDir, "output", "o", "", "Campaign output directory to expose")
	serveCmd.Flags().String("host", "", "Listen host (default from config: localhost)")
	serveCmd.Flags().Int("port", 0, "Listen port (default from config: 8080)")
	_ = serveCmd.MarkFlagRequired("output")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadAppConfig()
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}

	host := cfg.Server.Host
	port := cfg.Server.Port
	if cmd.Flags().Changed("host") {
		host, _ = cmd.Flags().GetString("host")
	}
	if cmd.Flags().Changed("port") {
		port, _ = cmd.Flags().GetInt("port")
	}

	store := runstate.NewStore(serveOutputDir)
	srv := server.New(host, port, versionInfo.Version, store)

	observability.CLILogger.Info("Starting status server",
		zap.String("host", host),
		zap.Int("port", port),
		zap.String("output", serveOutputDir))

	if err := srv.ListenAndServe(cmd.Context()); err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Status server failed", err)
	}
	return nil
}
