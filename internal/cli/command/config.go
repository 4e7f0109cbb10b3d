package command

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/camhub-go/internal/cli/output"
	"github.com/yndnr/camhub-go/internal/server/config"
)

// ConfigCommand shows and validates the hub configuration.
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Show or validate camhub-server configuration",
		Subcommands: []*cli.Command{
			{
				Name:  "show",
				Usage: "Print the effective configuration with secrets masked",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "reveal", Usage: "Do not mask secrets"},
				},
				Action: configShow,
			},
			{
				Name:   "validate",
				Usage:  "Check the effective configuration",
				Action: configValidate,
			},
		},
	}
}

func configShow(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if !c.Bool("reveal") {
		cfg = config.Sanitize(cfg)
	}
	if ParseGlobalFlags(c).Output == output.FormatTable {
		return render(c, config.Flatten(cfg))
	}
	return render(c, config.Nested(cfg))
}

func configValidate(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if err := config.Verify(cfg); err != nil {
		return cli.Exit(fmt.Sprintf("configuration invalid:\n%v", err), 1)
	}
	_, err = fmt.Fprintln(c.App.Writer, "configuration valid")
	return err
}
