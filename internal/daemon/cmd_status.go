package daemon

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/apps78/cotune-bridge/internal/router"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

// NodeSummary is the subset of nodeInfo shown by status views
type NodeSummary struct {
	Process struct {
		State string `json:"state"`
		Alive bool   `json:"alive"`
		PID   int    `json:"pid"`
	} `json:"process"`
	Endpoint *struct {
		Raw  string `json:"raw"`
		Kind string `json:"kind"`
	} `json:"endpoint"`
	Capability string `json:"capability"`
	Generation uint64 `json:"generation"`
}

// FetchNodeSummary asks the daemon for nodeInfo
func FetchNodeSummary(ctx context.Context, c *DaemonClient) (NodeSummary, error) {
	var sum NodeSummary
	resp, err := c.Execute(ctx, router.CmdNodeInfo, nil)
	if err != nil {
		return sum, err
	}
	err = resp.Decode(&sum)
	return sum, err
}

var (
	okColor   = []tablewriter.Colors{{}, {tablewriter.Bold, tablewriter.FgGreenColor}, {}}
	warnColor = []tablewriter.Colors{{}, {tablewriter.Bold, tablewriter.FgYellowColor}, {}}
	badColor  = []tablewriter.Colors{{}, {tablewriter.Bold, tablewriter.FgRedColor}, {}}
)

// NewStatusCmd creates a command to check the daemon status
func NewStatusCmd(opts CmdOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check the status of the bridge daemon",
		Long:  `Checks whether the bridge daemon, its node and its HTTP API are running.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			table := newStatusTable(cmd.OutOrStdout())
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()

			client := NewClient(opts.SocketPath)
			running, detail := client.IsRunning(ctx)
			if !running {
				table.Rich([]string{"Daemon", "Not running", detail}, badColor)
				table.Render()
				return nil
			}
			table.Rich([]string{"Daemon", "Running", opts.SocketPath}, okColor)

			if sum, err := FetchNodeSummary(ctx, client); err != nil {
				table.Rich([]string{"Node", "Unknown", err.Error()}, badColor)
			} else {
				table.Rich(nodeRow(sum))
			}

			if opts.HTTPAddr != "" {
				table.Rich(webServerRow(ctx, opts.HTTPAddr))
			}

			table.Render()
			return nil
		},
	}
}

func newStatusTable(w io.Writer) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Component", "Status", "Details"})
	table.SetBorder(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetColumnAlignment([]int{tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT})
	table.SetHeaderColor(
		tablewriter.Colors{tablewriter.Bold, tablewriter.FgCyanColor},
		tablewriter.Colors{tablewriter.Bold, tablewriter.FgCyanColor},
		tablewriter.Colors{tablewriter.Bold, tablewriter.FgCyanColor},
	)
	return table
}

func nodeRow(sum NodeSummary) ([]string, []tablewriter.Colors) {
	details := "-"
	if sum.Process.PID > 0 {
		details = "PID " + strconv.Itoa(sum.Process.PID)
	}
	if sum.Endpoint != nil {
		details += fmt.Sprintf(", %s via %s (%s)", sum.Endpoint.Raw, sum.Endpoint.Kind, sum.Capability)
	}

	colors := warnColor
	switch {
	case sum.Process.Alive:
		colors = okColor
	case sum.Process.State == "idle" || sum.Process.State == "stopped":
		colors = []tablewriter.Colors{{}, {}, {}}
	}
	return []string{"Node", sum.Process.State, details}, colors
}

func webServerRow(ctx context.Context, addr string) ([]string, []tablewriter.Colors) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+"/ping", nil)
	if err != nil {
		return []string{"WebServer", "Error", err.Error()}, badColor
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return []string{"WebServer", "Not running", addr}, badColor
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return []string{"WebServer", "Running", addr}, okColor
	}
	return []string{"WebServer", "Error", fmt.Sprintf("Returned status %d", resp.StatusCode)}, badColor
}
