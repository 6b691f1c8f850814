package queue

import (
	"log/slog"
	"net"
)

// ResolveNameServers turns host:port entries into ip:port. The passthrough
// resolver of the rocketmq client does not do DNS itself.
func ResolveNameServers(servers []string) []string {
	var resolved []string
	for _, addr := range servers {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			slog.Warn("failed to split name server address", "addr", addr, "error", err)
			resolved = append(resolved, addr)
			continue
		}
		ips, err := net.LookupHost(host)
		if err != nil || len(ips) == 0 {
			slog.Warn("failed to lookup name server host", "host", host, "error", err)
			resolved = append(resolved, addr)
			continue
		}
		resolved = append(resolved, net.JoinHostPort(ips[0], port))
	}
	return resolved
}
