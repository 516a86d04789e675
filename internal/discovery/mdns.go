// Package discovery announces a running votedesk dashboard over mDNS
// (zeroconf) and browses the LAN for other dashboards. Each announcement
// carries the contract address and chain id in its TXT record so that a
// browser can tell which dashboards watch the same deployment.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/grandcat/zeroconf"
)

// ServiceType is the mDNS service dashboards register under.
const ServiceType = "_votedesk._tcp"

const domain = "local."

// Info is what a dashboard advertises about itself.
type Info struct {
	Contract string
	ChainID  uint64
	Version  string
}

func (i Info) txt() []string {
	txt := []string{"txtv=1"}
	if i.Contract != "" {
		txt = append(txt, "contract="+i.Contract)
	}
	if i.ChainID != 0 {
		txt = append(txt, "chain="+strconv.FormatUint(i.ChainID, 10))
	}
	if i.Version != "" {
		txt = append(txt, "ver="+i.Version)
	}
	return txt
}

// Announcer keeps one dashboard registration alive until Stop.
type Announcer struct {
	server *zeroconf.Server
	logger *slog.Logger
}

// Announce registers the dashboard listening on port. An empty instance
// name uses the hostname.
func Announce(instance string, port int, info Info, logger *slog.Logger) (*Announcer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if instance == "" {
		instance, _ = os.Hostname()
	}
	if instance == "" {
		instance = "votedesk"
	}
	server, err := zeroconf.Register(instance, ServiceType, domain, port, info.txt(), nil)
	if err != nil {
		return nil, fmt.Errorf("mdns register: %w", err)
	}
	logger.Info("announced dashboard", "instance", instance, "service", ServiceType, "port", port)
	return &Announcer{server: server, logger: logger}, nil
}

// Stop withdraws the registration.
func (a *Announcer) Stop() {
	if a == nil || a.server == nil {
		return
	}
	a.server.Shutdown()
	a.logger.Info("withdrew dashboard announcement")
}

// Browse collects dashboards until ctx is done and returns them sorted by
// instance name.
func Browse(ctx context.Context, logger *slog.Logger) ([]Dashboard, error) {
	if logger == nil {
		logger = slog.Default()
	}
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("mdns resolver: %w", err)
	}

	dir := NewDirectory()
	entries := make(chan *zeroconf.ServiceEntry)
	if err := resolver.Browse(ctx, ServiceType, domain, entries); err != nil {
		return nil, fmt.Errorf("mdns browse: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return dir.List(), nil
		case entry, ok := <-entries:
			if !ok {
				return dir.List(), nil
			}
			if entry.TTL == 0 {
				logger.Debug("dashboard removed", "instance", entry.Instance)
				dir.Remove(entry.Instance)
				continue
			}
			logger.Debug("dashboard discovered", "instance", entry.Instance, "port", entry.Port)
			dir.Add(entry)
		}
	}
}
