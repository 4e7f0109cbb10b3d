package command

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/camhub-go/internal/channel"
	"github.com/yndnr/camhub-go/internal/cli/connection"
	"github.com/yndnr/camhub-go/internal/cli/output"
	"github.com/yndnr/camhub-go/internal/server/adminserver"
)

// StatusCommand queries a running camhub-server.
func StatusCommand() *cli.Command {
	timeout := &cli.DurationFlag{
		Name:  "timeout",
		Usage: "Request timeout",
		Value: connection.DefaultTimeout,
	}
	return &cli.Command{
		Name:  "status",
		Usage: "Query a running camhub-server",
		Subcommands: []*cli.Command{
			{
				Name:   "health",
				Usage:  "Check liveness and readiness",
				Flags:  []cli.Flag{timeout},
				Action: statusHealth,
			},
			{
				Name:   "ledger",
				Usage:  "Show delivery ledger counts and unsent clips",
				Flags:  []cli.Flag{timeout},
				Action: statusLedger,
			},
			{
				Name:   "channels",
				Usage:  "Show channel roles and epochs",
				Flags:  []cli.Flag{timeout},
				Action: statusChannels,
			},
		},
	}
}

func newClient(c *cli.Context) (*connection.HTTPClient, context.Context, context.CancelFunc) {
	timeout := c.Duration("timeout")
	client := connection.NewHTTPClient(ParseGlobalFlags(c).Server, timeout)
	ctx, cancel := context.WithTimeout(c.Context, timeout+time.Second)
	return client, ctx, cancel
}

type healthStatus struct {
	Server string `json:"server"`
	Health string `json:"health"`
	Ready  string `json:"ready"`
}

func statusHealth(c *cli.Context) error {
	client, ctx, cancel := newClient(c)
	defer cancel()

	st := healthStatus{Server: client.BaseURL(), Health: "healthy", Ready: "ready"}
	if err := client.GetData(ctx, "/health", nil); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	readyErr := client.GetData(ctx, "/ready", nil)
	if readyErr != nil {
		st.Ready = readyErr.Error()
	}
	if err := render(c, st); err != nil {
		return err
	}
	if readyErr != nil {
		return cli.Exit("", 2)
	}
	return nil
}

func statusLedger(c *cli.Context) error {
	client, ctx, cancel := newClient(c)
	defer cancel()

	var resp adminserver.LedgerResponse
	if err := client.GetData(ctx, "/v1/ledger", &resp); err != nil {
		return err
	}
	return renderLedger(c, resp)
}

func statusChannels(c *cli.Context) error {
	client, ctx, cancel := newClient(c)
	defer cancel()

	var channels []channel.Status
	if err := client.GetData(ctx, "/v1/channels", &channels); err != nil {
		return err
	}
	return render(c, channels)
}

// renderLedger prints the summary and the unsent queue as two tables,
// or the whole response in structured formats.
func renderLedger(c *cli.Context, resp adminserver.LedgerResponse) error {
	if ParseGlobalFlags(c).Output != output.FormatTable {
		return render(c, resp)
	}
	if err := render(c, resp.Stats); err != nil {
		return err
	}
	if len(resp.Unsent) == 0 {
		return nil
	}
	fmt.Fprintln(c.App.Writer)
	return render(c, resp.Unsent)
}
