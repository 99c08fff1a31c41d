package root

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/kubewise/kubewise/pkg/config"
	"github.com/kubewise/kubewise/pkg/conversation"
	"github.com/kubewise/kubewise/pkg/environment"
	"github.com/kubewise/kubewise/pkg/gateway"
	"github.com/kubewise/kubewise/pkg/kube"
	"github.com/kubewise/kubewise/pkg/model/provider"
	"github.com/kubewise/kubewise/pkg/runtime"
	"github.com/kubewise/kubewise/pkg/server"
)

type serveFlags struct {
	listenAddr string
	kubeconfig string
}

func newServeCmd() *cobra.Command {
	var flags serveFlags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the kubewise API server",
		Long:  `Start the HTTP server that exposes the assistant to the web UI`,
		Args:  cobra.NoArgs,
		RunE:  flags.runServeCommand,
	}

	cmd.PersistentFlags().StringVarP(&flags.listenAddr, "listen", "l", ":8080", "Address to listen on")
	cmd.PersistentFlags().StringVar(&flags.kubeconfig, "kubeconfig", "", "Path to the kubeconfig file (default: in-cluster config, then ~/.kube/config)")

	return cmd
}

func (f *serveFlags) runServeCommand(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	env := environment.NewDefaultProvider(nil)

	rt := runtime.New(nil, conversation.NewStore(), gateway.New(kube.NewPool(f.kubeconfig)))
	if stored := cfg.ActiveProvider(); stored != nil {
		p, err := provider.New(ctx, stored, env)
		if err != nil {
			slog.Warn("Saved model provider not usable, configure one via the API", "provider", stored.ProviderID, "error", err)
		} else {
			rt.SetProvider(p)
		}
	} else {
		slog.Info("No model provider configured yet, configure one via the API")
	}

	ln, err := server.Listen(ctx, f.listenAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", f.listenAddr, err)
	}
	defer ln.Close()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	slog.Info("Starting server", "addr", f.listenAddr)
	return server.New(rt, cfg, env).Serve(ctx, ln)
}
