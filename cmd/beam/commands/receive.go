package commands

import (
	"fmt"
	"log"
	"net"
	"os"
	"sync"

	"github.com/spf13/cobra"

	"github.com/beamapp/beam/internal/config"
	"github.com/beamapp/beam/internal/session"
)

var receiveLoopback bool

func init() {
	receiveCmd.Flags().BoolVar(&receiveLoopback, "loopback", false, "Run the pipeline with loopback media bindings (no devices)")
}

// receiveCmd advertises this device and accepts inbound beams
var receiveCmd = &cobra.Command{
	Use:   "receive",
	Short: "Accept beams from peers",
	RunE: func(cmd *cobra.Command, args []string) error {
		hostname, _ := os.Hostname()

		var mu sync.Mutex
		var current *session.Session

		svc, err := startDiscovery(func(conn net.Conn) {
			mu.Lock()
			defer mu.Unlock()

			// One beam at a time: a second sender is rejected until the first
			// beam has ended.
			if current != nil && current.State() != session.StateStopped {
				log.Printf("[WARN] receive: busy, rejecting connection from %s", conn.RemoteAddr())
				conn.Close()
				return
			}

			bind := portableBindings(false)
			if receiveLoopback {
				bind = session.Loopback(0, 0)
			}
			s := session.New(session.RoleReceiver, config.Default(), bind, hostname)
			if err := s.Adopt(conn); err != nil {
				log.Printf("[WARN] receive: adopt: %v", err)
				conn.Close()
				return
			}
			current = s
		})
		if err != nil {
			return err
		}
		defer svc.Stop()
		defer func() {
			mu.Lock()
			s := current
			mu.Unlock()
			if s != nil {
				s.Stop()
			}
		}()

		fmt.Printf("Ready to receive as %q (Ctrl-C to stop)\n", hostname)
		waitForInterrupt()
		return nil
	},
}
