package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rustyeddy/fxcalib/pkg/logger"
	"github.com/rustyeddy/fxcalib/server"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve decisions and rule sets over HTTP",
	Long: `Start the HTTP API.

Endpoints:
  GET  /healthz
  GET  /v1/rulesets
  GET  /v1/rulesets/active
  GET  /v1/rulesets/{tag}
  POST /v1/rulesets/{tag}/activate
  POST /v1/decide
  GET  /metrics            (when metrics are enabled)

Example:
  fxcalib serve --addr :8080`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var serveAddr string

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVarP(&serveAddr, "addr", "a", "", "listen address (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := a.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	j, err := a.openJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	pub, err := a.publisher()
	if err != nil {
		return err
	}
	defer pub.Close()

	sc := a.cfg.Server
	opts := []server.Option{
		server.WithJournal(j),
		server.WithEvents(pub),
		server.WithLogger(a.log),
		server.WithTimeouts(sc.ReadTimeout, sc.WriteTimeout, sc.ShutdownTimeout),
	}
	if a.reg != nil {
		opts = append(opts, server.WithMetrics(a.cfg.Metrics.Path, a.reg))
	}
	srv := server.New(st, a.engine(j), opts...)

	addr := sc.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	a.log.Info("starting fxcalib api", logger.String("addr", addr), logger.String("store", a.cfg.Database.Path))
	return srv.Run(ctx, addr)
}
