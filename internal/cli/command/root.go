package command

import (
	"fmt"

	"github.com/urfave/cli/v2"

	cliconfig "github.com/yndnr/camhub-go/internal/cli/config"
	"github.com/yndnr/camhub-go/internal/cli/output"
	"github.com/yndnr/camhub-go/internal/infra/buildinfo"
)

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    "camhub-cli",
		Usage:   "camhub provisioning and inspection tool",
		Version: buildinfo.String(),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			StatusCommand(),
			InspectCommand(),
			ConfigCommand(),
			CredentialsCommand(),
			ChannelsCommand(),
			HubsCommand(),
			VersionCommand(),
		},
		Before: applyProfile,
	}
}

// applyProfile fills global flags that were not given on the command line
// or in the environment from the CLI config file and the selected hub
// profile.
func applyProfile(c *cli.Context) error {
	cfg, err := cliconfig.Load(c.String("cli-config"))
	if err != nil {
		return err
	}

	server, hubConfig := cfg.DefaultServer, ""
	name := c.String("hub")
	if p, ok := cfg.Profile(name); ok {
		server, hubConfig = p.Server, p.Config
	} else if name != "" {
		return fmt.Errorf("unknown hub profile %q", name)
	}

	defaults := map[string]string{
		"server": server,
		"config": hubConfig,
		"output": cfg.DefaultOutput,
	}
	for flag, value := range defaults {
		if c.IsSet(flag) || value == "" {
			continue
		}
		if err := c.Set(flag, value); err != nil {
			return err
		}
	}

	_, err = output.ParseFormat(c.String("output"))
	return err
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "server",
			Aliases: []string{"s"},
			Usage:   "camhub-server admin address",
			EnvVars: []string{"CAMHUB_SERVER"},
			Value:   cliconfig.DefaultServer,
		},
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "camhub-server configuration file",
			EnvVars: []string{"CAMHUB_CONFIG"},
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output format: table, json, yaml",
			Value:   "table",
		},
		&cli.StringFlag{
			Name:    "hub",
			Usage:   "Saved hub profile to use",
			EnvVars: []string{"CAMHUB_HUB"},
		},
		&cli.StringFlag{
			Name:    "cli-config",
			Usage:   "camhub-cli settings file",
			EnvVars: []string{"CAMHUB_CLI_CONFIG"},
			Value:   cliconfig.DefaultConfigPath(),
		},
		&cli.BoolFlag{
			Name:    "wide",
			Aliases: []string{"w"},
			Usage:   "Show wide output (more columns)",
		},
	}
}

// GlobalFlags holds the flags shared by every command.
type GlobalFlags struct {
	Server string
	Config string
	Output output.Format
	Wide   bool
}

// ParseGlobalFlags extracts global flags from context.
func ParseGlobalFlags(c *cli.Context) *GlobalFlags {
	return &GlobalFlags{
		Server: c.String("server"),
		Config: c.String("config"),
		Output: output.Format(c.String("output")),
		Wide:   c.Bool("wide"),
	}
}

// render writes data in the selected output format.
func render(c *cli.Context, data any) error {
	flags := ParseGlobalFlags(c)
	return output.NewFormatter(flags.Output, flags.Wide).Format(c.App.Writer, data)
}

// VersionCommand prints build information.
func VersionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Show build information",
		Action: func(c *cli.Context) error {
			if ParseGlobalFlags(c).Output == output.FormatTable {
				_, err := fmt.Fprintf(c.App.Writer, "camhub-cli %s\n", buildinfo.String())
				return err
			}
			return render(c, buildinfo.Get())
		},
	}
}
