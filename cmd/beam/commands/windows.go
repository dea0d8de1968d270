package commands

import (
	"fmt"

	"github.com/kbinani/screenshot"
	"github.com/spf13/cobra"
)

// windowsCmd lists capturable sources. The portable backend captures screen
// regions, so without a platform window enumerator it lists displays; the
// GUI shell supplies the real per-window picker.
var windowsCmd = &cobra.Command{
	Use:   "windows",
	Short: "List capturable sources on this device",
	RunE: func(cmd *cobra.Command, args []string) error {
		n := screenshot.NumActiveDisplays()
		if n == 0 {
			return fmt.Errorf("no capturable displays; is screen capture permitted?")
		}

		fmt.Printf("Displays (%d):\n\n", n)
		for i := 0; i < n; i++ {
			b := screenshot.GetDisplayBounds(i)
			fmt.Printf("  [%d] display %d: %dx%d at (%d, %d)\n", i, i, b.Dx(), b.Dy(), b.Min.X, b.Min.Y)
		}
		return nil
	},
}
