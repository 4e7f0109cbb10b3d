package command

import (
	"fmt"

	"github.com/urfave/cli/v2"

	cliconfig "github.com/yndnr/camhub-go/internal/cli/config"
)

// HubsCommand manages saved hub profiles.
func HubsCommand() *cli.Command {
	return &cli.Command{
		Name:  "hubs",
		Usage: "Manage saved hub profiles",
		Subcommands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List saved hubs",
				Action: hubsList,
			},
			{
				Name:      "add",
				Usage:     "Save a hub profile",
				ArgsUsage: "NAME",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "addr", Usage: "Admin server address", Required: true},
					&cli.StringFlag{Name: "hub-config", Usage: "camhub-server configuration file"},
					&cli.BoolFlag{Name: "use", Usage: "Make it the current hub"},
				},
				Action: hubsAdd,
			},
			{
				Name:      "use",
				Usage:     "Select the current hub",
				ArgsUsage: "NAME",
				Action:    hubsUse,
			},
			{
				Name:      "remove",
				Usage:     "Delete a hub profile",
				ArgsUsage: "NAME",
				Action:    hubsRemove,
			},
		},
	}
}

type hubRow struct {
	Name    string `json:"name"`
	Current bool   `json:"current"`
	Server  string `json:"server"`
	Config  string `json:"config,omitempty"`
}

func hubsList(c *cli.Context) error {
	cfg, err := cliconfig.Load(c.String("cli-config"))
	if err != nil {
		return err
	}
	rows := make([]hubRow, 0, len(cfg.Hubs))
	for _, name := range cfg.Names() {
		p := cfg.Hubs[name]
		rows = append(rows, hubRow{Name: name, Current: name == cfg.CurrentHub, Server: p.Server, Config: p.Config})
	}
	return render(c, rows)
}

// editProfiles loads the CLI config, applies fn and saves the result.
func editProfiles(c *cli.Context, fn func(*cliconfig.CLIConfig, string) error) error {
	name := c.Args().First()
	if name == "" {
		return fmt.Errorf("hub name is required")
	}
	path := c.String("cli-config")
	cfg, err := cliconfig.Load(path)
	if err != nil {
		return err
	}
	if err := fn(cfg, name); err != nil {
		return err
	}
	return cliconfig.Save(cfg, path)
}

func hubsAdd(c *cli.Context) error {
	return editProfiles(c, func(cfg *cliconfig.CLIConfig, name string) error {
		cfg.Hubs[name] = cliconfig.HubProfile{
			Server: c.String("addr"),
			Config: c.String("hub-config"),
		}
		if c.Bool("use") || len(cfg.Hubs) == 1 {
			cfg.CurrentHub = name
		}
		fmt.Fprintf(c.App.Writer, "hub %s saved\n", name)
		return nil
	})
}

func hubsUse(c *cli.Context) error {
	return editProfiles(c, func(cfg *cliconfig.CLIConfig, name string) error {
		if _, ok := cfg.Hubs[name]; !ok {
			return fmt.Errorf("unknown hub profile %q", name)
		}
		cfg.CurrentHub = name
		fmt.Fprintf(c.App.Writer, "using hub %s\n", name)
		return nil
	})
}

func hubsRemove(c *cli.Context) error {
	return editProfiles(c, func(cfg *cliconfig.CLIConfig, name string) error {
		if _, ok := cfg.Hubs[name]; !ok {
			return fmt.Errorf("unknown hub profile %q", name)
		}
		delete(cfg.Hubs, name)
		if cfg.CurrentHub == name {
			cfg.CurrentHub = ""
		}
		fmt.Fprintf(c.App.Writer, "hub %s removed\n", name)
		return nil
	})
}
