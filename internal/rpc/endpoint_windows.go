//go:build windows

package rpc

import (
	"encoding/json"
	"os"
)

// DiscoverEndpoint resolves the daemon's RPC endpoint for one project root
// from the metadata file at socketPath (still named .pygmalion.sock, though
// on Windows it holds JSON rather than being a socket itself): Windows has
// no equivalent of stat-the-path-to-discover-it, so listenRPC writes the
// bound loopback address there instead.
func DiscoverEndpoint(socketPath string) (string, string, error) {
	if socketPath == "" {
		return "", "", ErrDaemonUnavailable
	}

	data, err := os.ReadFile(socketPath)
	if err != nil {
		return "", "", ErrDaemonUnavailable
	}

	var info endpointInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return "", "", ErrDaemonUnavailable
	}

	if info.Address == "" {
		return "", "", ErrDaemonUnavailable
	}

	network := info.Network
	if network == "" {
		network = "tcp"
	}

	return network, info.Address, nil
}
