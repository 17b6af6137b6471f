package cmd

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/content-control-plane/ccp/internal/server"
)

type runParams struct {
	commonParams
	addr string
}

func newRunCommand() *cobra.Command {
	params := runParams{commonParams: newCommonParams()}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Serve the content API and refresh the working copy in the background",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return run(ctx, params)
		},
	}

	params.register(cmd.Flags())
	cmd.Flags().StringVar(&params.addr, "addr", "", "listen address, overrides the configuration")

	return cmd
}

func run(ctx context.Context, params runParams) error {
	log := params.logger()

	svc, err := params.open(ctx, log)
	if err != nil {
		return err
	}
	defer svc.Close()

	addr := params.addr
	if addr == "" {
		addr = svc.Config().Service.ListenAddr()
	}

	srv := &http.Server{
		Addr: addr,
		Handler: server.New().
			WithService(svc).
			WithRouter(http.NewServeMux()).
			WithLogger(log.With("component", "server")).
			Init().
			Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return svc.Run(ctx, srv)
}
