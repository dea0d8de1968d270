package commands

import (
	"fmt"
	"net"
	"os"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/beamapp/beam/internal/deviceid"
	"github.com/beamapp/beam/internal/discovery"
	"github.com/beamapp/beam/internal/registry"
)

var peersWatch bool

func init() {
	peersCmd.Flags().BoolVarP(&peersWatch, "watch", "w", false, "Keep browsing and print join/leave events")
}

// peersCmd lists beam peers discovered on the LAN
var peersCmd = &cobra.Command{
	Use:   "peers",
	Short: "List beam peers on the local network",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := startDiscovery(nil)
		if err != nil {
			return err
		}
		defer svc.Stop()

		if peersWatch {
			fmt.Println("Watching for peers (Ctrl-C to stop)...")
			waitForInterrupt()
			return nil
		}

		// Give the browse one pass to settle.
		time.Sleep(3 * time.Second)
		peers := svc.Peers()
		if len(peers) == 0 {
			fmt.Println("No peers found.")
			return nil
		}

		fmt.Printf("Peers (%d):\n\n", len(peers))
		for i, p := range peers {
			fmt.Printf("  [%d] %s (%s) at %s:%d\n", i+1, p.Name, p.Platform, p.Host, p.Port)
		}
		return nil
	},
}

// watchCallback prints join/leave lines in --watch mode.
type watchCallback struct{}

func (watchCallback) OnPeerFound(p registry.Peer) {
	fmt.Printf("+ %s (%s) at %s:%d\n", p.Name, p.Platform, p.Host, p.Port)
}

func (watchCallback) OnPeerLost(deviceID string) {
	fmt.Printf("- peer %s left\n", deviceID)
}

// startDiscovery brings up the discovery service with this device's
// identity. onConn may be nil when no inbound beams are expected.
func startDiscovery(onConn func(net.Conn)) (*discovery.Service, error) {
	id, err := deviceid.GetOrCreate()
	if err != nil {
		return nil, fmt.Errorf("device id: %w", err)
	}

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "beam-device"
	}

	var cb discovery.Callback
	if peersWatch {
		cb = watchCallback{}
	}

	svc := discovery.NewService(discovery.Config{
		Name:     hostname,
		Platform: platformTag(),
		DeviceID: id,
	}, cb, onConn)
	if err := svc.Start(); err != nil {
		return nil, err
	}
	return svc, nil
}

func platformTag() string {
	switch runtime.GOOS {
	case "darwin":
		return "mac"
	case "android":
		return "android"
	default:
		return runtime.GOOS
	}
}
