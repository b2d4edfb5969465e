package cmd

import (
	"fmt"
	"os/exec"
	"runtime"

	"github.com/spf13/cobra"
)

var unmountCmd = &cobra.Command{
	Use:   "unmount <mountpoint>",
	Short: "Unmount a groupfs mount, FUSE or NFS",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return platformUnmount(args[0])
	},
}

func init() {
	rootCmd.AddCommand(unmountCmd)
}

// platformUnmount shells out to the platform unmount command, the same
// darwin-vs-other dispatch internal/nfsmount.Unmount uses for its own NFS
// teardown — both transports mount at a kernel-visible path and come down
// the same way.
func platformUnmount(mountPoint string) error {
	var c *exec.Cmd
	if runtime.GOOS == "darwin" {
		c = exec.Command("diskutil", "unmount", mountPoint)
		if err := c.Run(); err == nil {
			return nil
		}
		c = exec.Command("sudo", "umount", mountPoint)
	} else {
		c = exec.Command("sudo", "umount", mountPoint)
	}

	output, err := c.CombinedOutput()
	if err != nil {
		return fmt.Errorf("unmount failed: %w\n%s", err, string(output))
	}
	return nil
}
