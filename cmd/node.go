package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/apps78/cotune-bridge/internal/cli"
	"github.com/apps78/cotune-bridge/internal/daemon"
	"github.com/apps78/cotune-bridge/internal/logger"
	"github.com/apps78/cotune-bridge/internal/qr"
	"github.com/apps78/cotune-bridge/internal/router"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

// queryTimeout bounds node commands that do not start the node
const queryTimeout = 10 * time.Second

// NewNodeCmd creates the node command group. Every subcommand goes through the daemon socket.
func NewNodeCmd(container *cli.Container) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "node",
		Short: "Control the Cotune node through the running daemon",
		Long:  `Start, stop and query the Cotune node owned by the bridge daemon.`,
	}

	cmd.AddCommand(
		newNodeStartCmd(container),
		newNodeStopCmd(container),
		newNodeStatusCmd(container),
		newNodePeerInfoCmd(container),
		newNodePeersCmd(container),
		newNodeQRCmd(container),
	)
	return cmd
}

// call sends one command and reports a failure through the theme
func call(ctx context.Context, container *cli.Container, command string, args router.Args) (router.Result, error) {
	log := container.Logger.WithField(logger.CommandKey, command)

	res := daemon.NewClient(container.SocketPath()).Call(ctx, command, args)
	if res.OK {
		log.Debug("Node command succeeded")
		return res, nil
	}

	log.WithFields(map[string]interface{}{
		"kind":          string(res.Kind),
		logger.ErrorKey: res.Message,
	}).Warn("Node command failed")

	t := container.ThemeMgr.GetCurrentTheme()
	if res.Kind == router.KindUnavailable {
		t.Error().Println("Daemon is not reachable. Start it first with 'cotune-bridge daemon start'")
	} else {
		t.Error().Printf("%s: %s\n", res.Kind, res.Message)
	}
	return res, res.Err()
}

func printJSON(w io.Writer, payload interface{}) error {
	raw, ok := payload.(json.RawMessage)
	if !ok {
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		raw = b
	}

	var out bytes.Buffer
	if err := json.Indent(&out, raw, "", "  "); err != nil {
		return err
	}
	out.WriteByte('\n')
	_, err := out.WriteTo(w)
	return err
}

func newNodeStartCmd(container *cli.Container) *cobra.Command {
	var (
		proto, httpAddr, listen, basePath string
		relays                            []string
		timeout                           time.Duration
		enableRelay                       bool
	)

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the node and wait until it answers",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := router.Args{}
			if proto != "" {
				a["proto"] = proto
			}
			if httpAddr != "" {
				a["http"] = httpAddr
			}
			if listen != "" {
				a["listen"] = listen
			}
			if basePath != "" {
				a["basePath"] = basePath
			}
			if len(relays) > 0 {
				a["relays"] = strings.Join(relays, ",")
			}
			if cmd.Flags().Changed("enable-relay") {
				a["enableRelay"] = enableRelay
			}

			wait := daemon.DefaultCommandExecTimeout
			if timeout > 0 {
				a["timeoutMs"] = timeout.Milliseconds()
				wait = timeout
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), wait+router.StartSlack+5*time.Second)
			defer cancel()

			res, err := call(ctx, container, router.CmdStartNode, a)
			if err != nil {
				return err
			}

			t := container.ThemeMgr.GetCurrentTheme()
			if raw, ok := res.Payload.(json.RawMessage); ok {
				var word string
				if json.Unmarshal(raw, &word) == nil && word == router.PayloadStarted {
					t.Warning().Println("Node process started, but it did not report ready in time")
					return nil
				}
				t.Success().Println("Node is ready")
				return printJSON(cmd.OutOrStdout(), raw)
			}
			t.Success().Println("Node started")
			return nil
		},
	}

	cmd.Flags().StringVar(&proto, "proto", "", "Control endpoint of the node (host:port or unix path)")
	cmd.Flags().StringVar(&httpAddr, "http", "", "Alias for --proto")
	cmd.Flags().StringVar(&listen, "listen", "", "Swarm listen multiaddr")
	cmd.Flags().StringVar(&basePath, "base-path", "", "Node data directory")
	cmd.Flags().StringSliceVar(&relays, "relays", nil, "Additional relay multiaddrs")
	cmd.Flags().BoolVar(&enableRelay, "enable-relay", false, "Let the node act as a relay")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Readiness timeout (default from config)")
	return cmd
}

func newNodeStopCmd(container *cli.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the node",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), daemon.DefaultCommandExecTimeout+5*time.Second)
			defer cancel()

			if _, err := call(ctx, container, router.CmdStopNode, nil); err != nil {
				return err
			}
			container.ThemeMgr.GetCurrentTheme().Success().Println("Node stopped")
			return nil
		},
	}
}

func newNodeStatusCmd(container *cli.Container) *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the node state",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), queryTimeout)
			defer cancel()

			if raw {
				res, err := call(ctx, container, router.CmdStatus, nil)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res.Payload)
			}

			sum, err := daemon.FetchNodeSummary(ctx, daemon.NewClient(container.SocketPath()))
			if err != nil {
				container.ThemeMgr.GetCurrentTheme().Error().Printf("Failed to read node state: %v\n", err)
				return err
			}
			renderSummary(cmd.OutOrStdout(), container, sum)
			return nil
		},
	}

	cmd.Flags().BoolVar(&raw, "raw", false, "Print the status document reported by the node")
	return cmd
}

func renderSummary(w io.Writer, container *cli.Container, sum daemon.NodeSummary) {
	state := container.ThemeMgr.StateStyle(sum.Process.State).Sprint(sum.Process.State)

	table := tablewriter.NewWriter(w)
	table.SetBorder(false)
	table.SetColumnSeparator(":")
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.Append([]string{"State", state})
	if sum.Process.PID > 0 {
		table.Append([]string{"PID", fmt.Sprintf("%d", sum.Process.PID)})
	}
	if sum.Endpoint != nil {
		table.Append([]string{"Endpoint", sum.Endpoint.Raw})
		table.Append([]string{"Channel", sum.Endpoint.Kind})
	}
	if sum.Capability != "" {
		table.Append([]string{"Capability", sum.Capability})
	}
	table.Append([]string{"Generation", fmt.Sprintf("%d", sum.Generation)})
	table.Render()
}

func newNodePeerInfoCmd(container *cli.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "peerinfo",
		Short: "Print the node identity as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), queryTimeout)
			defer cancel()

			res, err := call(ctx, container, router.CmdPeerInfoJSON, nil)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res.Payload)
		},
	}
}

func newNodePeersCmd(container *cli.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "peers",
		Short: "List the peers the node knows about",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), queryTimeout)
			defer cancel()

			res, err := call(ctx, container, router.CmdKnownPeers, nil)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res.Payload)
		},
	}
}

func newNodeQRCmd(container *cli.Container) *cobra.Command {
	var (
		output string
		size   int
	)

	cmd := &cobra.Command{
		Use:   "qr",
		Short: "Write the node identity as a QR code PNG",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), queryTimeout)
			defer cancel()

			info, err := call(ctx, container, router.CmdPeerInfoJSON, nil)
			if err != nil {
				return err
			}
			peerInfo, ok := info.Payload.(json.RawMessage)
			if !ok {
				return fmt.Errorf("unexpected peer info payload %T", info.Payload)
			}

			resp, err := daemon.NewClient(container.SocketPath()).Execute(ctx, router.CmdPeerInfoQR, router.Args{
				"peerInfo": string(peerInfo),
				"size":     size,
			})
			if err != nil {
				return err
			}
			var png []byte
			if err := resp.Decode(&png); err != nil {
				container.ThemeMgr.GetCurrentTheme().Error().Printf("Failed to render QR code: %v\n", err)
				return err
			}

			if output == "-" {
				_, err := cmd.OutOrStdout().Write(png)
				return err
			}
			if err := os.WriteFile(output, png, 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", output, err)
			}
			container.ThemeMgr.GetCurrentTheme().Success().Printf("QR code written to %s\n", output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "peerinfo.png", "Output file, or - for stdout")
	cmd.Flags().IntVar(&size, "size", qr.DefaultSize, "Image edge length in pixels")
	return cmd
}
