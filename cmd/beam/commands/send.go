package commands

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/kbinani/screenshot"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/beamapp/beam/internal/config"
	"github.com/beamapp/beam/internal/registry"
	"github.com/beamapp/beam/internal/session"
	"github.com/beamapp/beam/internal/window"
)

var (
	sendDisplay  int
	sendLoopback bool
	sendNoAudio  bool
)

func init() {
	sendCmd.Flags().IntVarP(&sendDisplay, "display", "d", 0, "Display index to capture")
	sendCmd.Flags().BoolVar(&sendLoopback, "loopback", false, "Run the pipeline with loopback media bindings (no devices)")
	sendCmd.Flags().BoolVar(&sendNoAudio, "no-audio", false, "Beam video only")
}

// sendCmd beams a capture source to a peer
var sendCmd = &cobra.Command{
	Use:   "send [peer-name]",
	Short: "Beam a window to a peer",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := startDiscovery(nil)
		if err != nil {
			return err
		}
		defer svc.Stop()

		peer, err := resolvePeer(svc, args)
		if err != nil {
			return err
		}

		target, title, err := pickSource()
		if err != nil {
			return err
		}

		bind := portableBindings(false)
		if sendLoopback {
			bind = session.Loopback(int(target.Frame.W), int(target.Frame.H))
		}

		hostname, _ := os.Hostname()
		s := session.New(session.RoleSender, config.Default(), bind, hostname)
		err = s.StartBeam(peer, session.Offer{
			Target:   target,
			Title:    title,
			BundleID: "",
			HasAudio: !sendNoAudio,
		})
		if err != nil {
			return err
		}
		defer s.Stop()

		fmt.Printf("Beaming %s to %s (Ctrl-C to stop)\n", title, peer.Name)
		runUntilStopped(s)
		if msg := s.Err(); msg != "" {
			return fmt.Errorf("%s", msg)
		}
		return nil
	},
}

// resolvePeer finds the named peer, or prompts when the terminal is
// interactive and no name was given.
func resolvePeer(svc interface{ Peers() []registry.Peer }, args []string) (registry.Peer, error) {
	// Let the browse settle before the first look.
	deadline := time.Now().Add(5 * time.Second)
	var peers []registry.Peer
	for {
		peers = svc.Peers()
		if len(peers) > 0 || time.Now().After(deadline) {
			break
		}
		time.Sleep(200 * time.Millisecond)
	}
	if len(peers) == 0 {
		return registry.Peer{}, fmt.Errorf("no peers found")
	}

	if len(args) == 1 {
		for _, p := range peers {
			if strings.EqualFold(p.Name, args[0]) || p.ID == args[0] {
				return p, nil
			}
		}
		return registry.Peer{}, fmt.Errorf("no peer named %q", args[0])
	}

	if len(peers) == 1 {
		return peers[0], nil
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return registry.Peer{}, fmt.Errorf("multiple peers found; name one: beam send <peer-name>")
	}

	fmt.Printf("Peers:\n")
	for i, p := range peers {
		fmt.Printf("  [%d] %s (%s)\n", i+1, p.Name, p.Platform)
	}
	fmt.Printf("Send to: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return registry.Peer{}, err
	}
	idx, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil || idx < 1 || idx > len(peers) {
		return registry.Peer{}, fmt.Errorf("invalid selection")
	}
	return peers[idx-1], nil
}

// pickSource resolves the --display flag into a window handle covering that
// display.
func pickSource() (window.Handle, string, error) {
	n := screenshot.NumActiveDisplays()
	if n == 0 {
		return window.Handle{}, "", fmt.Errorf("no capturable displays; is screen capture permitted?")
	}
	if sendDisplay < 0 || sendDisplay >= n {
		return window.Handle{}, "", fmt.Errorf("no display %d (have %d)", sendDisplay, n)
	}
	b := screenshot.GetDisplayBounds(sendDisplay)
	return window.Handle{
		PID:      int32(os.Getpid()),
		WindowID: uint32(sendDisplay),
		Frame: window.Rect{
			X: float64(b.Min.X), Y: float64(b.Min.Y),
			W: float64(b.Dx()), H: float64(b.Dy()),
		},
	}, fmt.Sprintf("display %d", sendDisplay), nil
}

// runUntilStopped blocks until Ctrl-C or until the session dies, printing a
// 1 Hz stats line under --verbose.
func runUntilStopped(s *session.Session) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-sig:
			return
		case <-ticker.C:
			if s.State() == session.StateStopped {
				return
			}
			if verbose {
				st := s.Stats()
				log.Printf("[INFO] stats: captured=%d rendered=%d audioTx=%d audioRx=%d",
					st.FramesCaptured, st.FramesRendered, st.AudioPackets, st.AudioBuffers)
			}
		}
	}
}
