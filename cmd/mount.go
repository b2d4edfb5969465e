package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/winfsp/cgofuse/fuse"

	"github.com/groupfs/groupfs/internal/fuseops"
	"github.com/groupfs/groupfs/internal/graphstore"
	"github.com/groupfs/groupfs/internal/nfsmount"
)

var (
	mountPoint string
	dsn        string
	backend    string
	quiet      bool
)

var mountCmd = &cobra.Command{
	Use:   "mount",
	Short: "Mount a groupfs graph at a directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		if quiet {
			if f, err := os.Open(os.DevNull); err == nil {
				os.Stdout = f
			}
		}
		if mountPoint == "" {
			return fmt.Errorf("--mountpoint is required")
		}
		if dsn == "" {
			return fmt.Errorf("--dsn is required")
		}
		if err := os.MkdirAll(mountPoint, 0o755); err != nil {
			return fmt.Errorf("create mount point %s: %w", mountPoint, err)
		}

		store, err := graphstore.Open(dsn)
		if err != nil {
			return fmt.Errorf("open graph store %s: %w", dsn, err)
		}
		defer func() { _ = store.Close() }()

		switch backend {
		case "", "fuse":
			return mountFUSE(store, mountPoint)
		case "nfs":
			return mountNFS(store, mountPoint)
		default:
			return fmt.Errorf("unknown --backend %q (want fuse or nfs)", backend)
		}
	},
}

func init() {
	mountCmd.Flags().StringVarP(&mountPoint, "mountpoint", "m", "", "Directory to mount groupfs at")
	mountCmd.Flags().StringVarP(&dsn, "dsn", "d", "", "SQLite DSN for the graph store (a file path, or :memory:)")
	mountCmd.Flags().StringVar(&backend, "backend", "fuse", "Mount backend: fuse or nfs")
	mountCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Suppress standard output")
	rootCmd.AddCommand(mountCmd)
}

// mountFUSE mounts store at mountPoint via winfsp/cgofuse with the
// single-threaded "-s" option, so every FUSE callback runs serially.
func mountFUSE(store *graphstore.Store, mountPoint string) error {
	groupFS := fuseops.New(store)
	host := fuse.NewFileSystemHost(groupFS)
	host.SetCapReaddirPlus(true)

	fmt.Printf("Mounting groupfs at %s (FUSE backend)...\n", mountPoint)

	opts := []string{
		"-s",
		"-o", fmt.Sprintf("uid=%d", os.Getuid()),
		"-o", fmt.Sprintf("gid=%d", os.Getgid()),
		"-o", "fsname=groupfs",
		"-o", "subtype=groupfs",
		"-o", "entry_timeout=0.0",
		"-o", "attr_timeout=0.0",
		"-o", "negative_timeout=0.0",
		"-o", "direct_io",
	}
	if runtime.GOOS == "darwin" {
		opts = append(opts, "-o", "nobrowse", "-o", "noattrcache")
	}

	if !host.Mount(mountPoint, opts) {
		return fmt.Errorf("mount failed")
	}
	return nil
}

// mountNFS mounts store at mountPoint via an ephemeral-port NFSv3 server,
// the fallback for environments without a kernel FUSE driver.
func mountNFS(store *graphstore.Store, mountPoint string) error {
	groupFS := nfsmount.NewGraphFS(store)
	srv, err := nfsmount.NewServer(groupFS)
	if err != nil {
		return fmt.Errorf("start nfs server: %w", err)
	}
	defer func() { _ = srv.Close() }()

	fmt.Printf("Mounting groupfs at %s (NFS backend, port %d)...\n", mountPoint, srv.Port())
	if err := nfsmount.Mount(srv.Port(), mountPoint, true); err != nil {
		return fmt.Errorf("mount failed: %w", err)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	fmt.Printf("\nUnmounting %s...\n", mountPoint)
	if err := nfsmount.Unmount(mountPoint); err != nil {
		fmt.Printf("Warning: unmount failed: %v\n", err)
		fmt.Printf("Run manually: sudo umount %s\n", mountPoint)
	}
	return nil
}
