package discovery

import (
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/grandcat/zeroconf"
)

// Dashboard is one discovered votedesk instance.
type Dashboard struct {
	Instance string
	Hostname string
	Port     int
	Addrs    []net.IP
	Contract string
	ChainID  uint64
	Version  string
}

// URL returns the dashboard address, preferring IPv4 and falling back to
// the advertised hostname.
func (d Dashboard) URL() string {
	host := strings.TrimSuffix(d.Hostname, ".")
	if len(d.Addrs) > 0 {
		host = d.Addrs[0].String()
	}
	if host == "" {
		return ""
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(d.Port))
}

// Directory is a thread-safe set of dashboards keyed by instance.
type Directory struct {
	mtx        sync.RWMutex
	dashboards map[string]Dashboard
}

func NewDirectory() *Directory {
	return &Directory{dashboards: make(map[string]Dashboard)}
}

// Add inserts or replaces the dashboard described by e.
func (d *Directory) Add(e *zeroconf.ServiceEntry) {
	if e == nil {
		return
	}
	dash := Dashboard{
		Instance: e.Instance,
		Hostname: e.HostName,
		Port:     e.Port,
		Addrs:    append(append([]net.IP(nil), e.AddrIPv4...), e.AddrIPv6...),
	}
	for _, t := range e.Text {
		key, value, ok := strings.Cut(t, "=")
		if !ok {
			continue
		}
		switch key {
		case "contract":
			dash.Contract = value
		case "chain":
			dash.ChainID, _ = strconv.ParseUint(value, 10, 64)
		case "ver":
			dash.Version = value
		}
	}

	d.mtx.Lock()
	defer d.mtx.Unlock()
	d.dashboards[e.Instance] = dash
}

func (d *Directory) Remove(instance string) {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	delete(d.dashboards, instance)
}

// List returns the known dashboards sorted by instance name.
func (d *Directory) List() []Dashboard {
	d.mtx.RLock()
	defer d.mtx.RUnlock()
	out := make([]Dashboard, 0, len(d.dashboards))
	for _, dash := range d.dashboards {
		out = append(out, dash)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Instance < out[j].Instance })
	return out
}

// Watching keeps the dashboards that advertise contract, compared
// case-insensitively.
func Watching(found []Dashboard, contract string) []Dashboard {
	var out []Dashboard
	for _, dash := range found {
		if strings.EqualFold(dash.Contract, contract) {
			out = append(out, dash)
		}
	}
	return out
}
