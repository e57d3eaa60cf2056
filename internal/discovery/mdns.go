// ABOUTME: mDNS advertisement of the receiver's status API
// ABOUTME: Advertises _screamrx._tcp and browses for other receivers
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/hashicorp/mdns"
)

// ServiceType is the mDNS service advertised by receivers
const ServiceType = "_screamrx._tcp"

// Config holds discovery configuration
type Config struct {
	Instance string
	Port     int

	// TXT records, e.g. "path=/status", "profile=scream"
	Info []string

	Logger *slog.Logger
}

// Manager handles mDNS operations
type Manager struct {
	config Config
	log    *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

// ReceiverInfo describes a discovered receiver
type ReceiverInfo struct {
	Name string
	Host string
	Port int
	Info []string
}

// StatusURL is where the receiver serves its status snapshot
func (r ReceiverInfo) StatusURL() string {
	return fmt.Sprintf("http://%s/status", net.JoinHostPort(r.Host, fmt.Sprint(r.Port)))
}

// NewManager creates a discovery manager
func NewManager(config Config) *Manager {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		config: config,
		log:    config.Logger.With("component", "discovery"),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Advertise announces this receiver until Stop
func (m *Manager) Advertise() error {
	ips, err := getLocalIPs()
	if err != nil {
		return fmt.Errorf("failed to get local IPs: %w", err)
	}

	service, err := mdns.NewMDNSService(
		m.config.Instance,
		ServiceType,
		"",
		"",
		m.config.Port,
		ips,
		m.config.Info,
	)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return fmt.Errorf("failed to create mdns server: %w", err)
	}

	m.log.Info("advertising mDNS service", "instance", m.config.Instance, "port", m.config.Port, "type", ServiceType)

	go func() {
		<-m.ctx.Done()
		server.Shutdown()
	}()

	return nil
}

// Browse queries for receivers for the given duration
func Browse(timeout time.Duration) ([]ReceiverInfo, error) {
	entries := make(chan *mdns.ServiceEntry, 16)
	found := make(chan []ReceiverInfo, 1)

	go func() {
		var out []ReceiverInfo
		for entry := range entries {
			out = append(out, toReceiverInfo(entry))
		}
		found <- out
	}()

	params := &mdns.QueryParam{
		Service: ServiceType,
		Domain:  "local",
		Timeout: timeout,
		Entries: entries,
	}

	err := mdns.Query(params)
	close(entries)
	receivers := <-found

	if err != nil {
		return receivers, fmt.Errorf("mdns query: %w", err)
	}
	return receivers, nil
}

func toReceiverInfo(entry *mdns.ServiceEntry) ReceiverInfo {
	host := entry.Host
	if entry.AddrV4 != nil {
		host = entry.AddrV4.String()
	}
	return ReceiverInfo{
		Name: entry.Name,
		Host: host,
		Port: entry.Port,
		Info: entry.InfoFields,
	}
}

// Stop withdraws the advertisement
func (m *Manager) Stop() {
	m.cancel()
}

// getLocalIPs returns non-loopback IPv4 addresses of interfaces that are up
func getLocalIPs() ([]net.IP, error) {
	var ips []net.IP

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
				if ipnet.IP.To4() != nil {
					ips = append(ips, ipnet.IP)
				}
			}
		}
	}

	return ips, nil
}
