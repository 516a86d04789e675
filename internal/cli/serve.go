package cli

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/spf13/cobra"

	"votedesk.mini/vdk/internal/discovery"
	"votedesk.mini/vdk/internal/types"
	"votedesk.mini/vdk/internal/web"
)

func newServeCommand(g *globals) *cobra.Command {
	var (
		port        int
		autoConnect bool
		announce    bool
		instance    string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the dashboard and JSON API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("port") {
				g.cfg.Port = port
			}
			if cmd.Flags().Changed("auto-connect") {
				g.cfg.AutoConnect = autoConnect
			}
			return serve(cmd.Context(), g, announceOptions{enabled: announce, instance: instance})
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "HTTP port (default from config, 8080)")
	cmd.Flags().BoolVar(&autoConnect, "auto-connect", false, "request wallet access on start and after a network change")
	cmd.Flags().BoolVar(&announce, "announce", false, "announce the dashboard on the LAN over mDNS")
	cmd.Flags().StringVar(&instance, "instance", "", "mDNS instance name (default hostname)")
	return cmd
}

type announceOptions struct {
	enabled  bool
	instance string
}

func serve(ctx context.Context, g *globals, ann announceOptions) error {
	if err := ensurePortAvailable(g.cfg.Port); err != nil {
		return fmt.Errorf("port %d unavailable: %w", g.cfg.Port, err)
	}

	g.logger.Info("votedesk starting", "contract", g.cfg.ContractAddress, "rpc", g.cfg.RPCURL, "wallet", g.cfg.WalletMode)
	a, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	server, err := web.NewServer(web.Options{
		Core:           a,
		History:        a.History,
		HistoryUpdates: a.History.Updates(),
		Feed:           a.Feed,
		OnChange:       a.OnChange,
		Port:           g.cfg.Port,
		Logger:         g.logger.With("component", "web"),
	})
	if err != nil {
		return err
	}

	a.Start()
	serverErrors := server.Start()

	if ann.enabled {
		info := discovery.Info{Contract: a.ContractAddress().Hex(), Version: types.Version}
		if id, err := a.ChainID(ctx); err == nil {
			info.ChainID = id
		}
		announcer, err := discovery.Announce(ann.instance, g.cfg.Port, info, g.logger.With("component", "mdns"))
		if err != nil {
			g.logger.Warn("dashboard announcement failed", "error", err)
		}
		defer announcer.Stop()
	}

	select {
	case err := <-serverErrors:
		if err != nil {
			return fmt.Errorf("web server exited: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	g.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func ensurePortAvailable(port int) error {
	addr := fmt.Sprintf(":%d", port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return listener.Close()
}
