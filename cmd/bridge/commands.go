package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yarkm13/bridge"
)

func (a *app) protocolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "protocols",
		Short: "List URL schemes and the backends serving them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, info := range a.registry().Describe() {
				status := "available"
				if info.Unavailable != nil {
					status = "unavailable: " + info.Unavailable.Error()
				}
				fmt.Fprintf(a.stdout, "%-6s %-16s %s\n", info.Name, strings.Join(info.Protocols, ","), status)
				if len(info.Options) > 0 {
					fmt.Fprintf(a.stdout, "       options: %s\n", strings.Join(info.Options, ", "))
				}
			}
			return nil
		},
	}
}

func (a *app) pwdCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pwd",
		Short: "Print the working directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withBridge(func(b *bridge.Bridge) error {
				dir, err := b.Pwd()
				if err != nil {
					return err
				}
				fmt.Fprintln(a.stdout, dir)
				return nil
			})
		},
	}
}

func (a *app) lsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List the working directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withBridge(func(b *bridge.Bridge) error {
				names, err := b.Ls()
				if err != nil {
					return err
				}
				for _, name := range names {
					fmt.Fprintln(a.stdout, name)
				}
				return nil
			})
		},
	}
}

func (a *app) getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <remote> [local]",
		Short: "Download a file to stdout or to a local path",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withBridge(func(b *bridge.Bridge) error {
				data, err := b.Get(args[0])
				if err != nil {
					return err
				}
				if len(args) == 1 || args[1] == "-" {
					_, err := a.stdout.Write(data)
					return err
				}
				if err := saveLocalFile(args[1], data); err != nil {
					return err
				}
				a.logger.Info().Str("remote", args[0]).Str("local", args[1]).Int("bytes", len(data)).Msg("downloaded")
				return nil
			})
		},
	}
}

func (a *app) putCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "put <local> <remote>",
		Short: "Upload a local file, or stdin when local is -",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readLocalFile(args[0], a.stdin)
			if err != nil {
				return err
			}
			return a.withBridge(func(b *bridge.Bridge) error {
				if err := b.Put(data, args[1]); err != nil {
					return err
				}
				a.logger.Info().Str("local", args[0]).Str("remote", args[1]).Int("bytes", len(data)).Msg("uploaded")
				return nil
			})
		},
	}
}

func (a *app) rmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <remote>",
		Short: "Delete a remote file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withBridge(func(b *bridge.Bridge) error {
				return b.Rm(args[0])
			})
		},
	}
}

func (a *app) mvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mv <from> <to>",
		Short: "Rename a remote file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withBridge(func(b *bridge.Bridge) error {
				return b.Mv(args[0], args[1])
			})
		},
	}
}

func (a *app) mkdirCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir <dir>",
		Short: "Create a remote directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withBridge(func(b *bridge.Bridge) error {
				return b.Mkdir(args[0])
			})
		},
	}
}

func (a *app) rmdirCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rmdir <dir>",
		Short: "Remove a remote directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withBridge(func(b *bridge.Bridge) error {
				return b.Rmdir(args[0])
			})
		},
	}
}

func (a *app) existsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "exists <path>",
		Short: "Print true if the remote path exists, false otherwise",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withBridge(func(b *bridge.Bridge) error {
				ok, err := b.Exists(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(a.stdout, ok)
				return nil
			})
		},
	}
}
