package command

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/camhub-go/internal/channel"
)

// ChannelsCommand provisions channel secrets.
func ChannelsCommand() *cli.Command {
	return &cli.Command{
		Name:  "channels",
		Usage: "Manage channel secrets",
		Subcommands: []*cli.Command{
			{
				Name:  "generate-secrets",
				Usage: "Write a fresh secret for every standard channel",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "out",
						Usage:    "Secrets file to create; copy it to both camera and app",
						Required: true,
					},
				},
				Action: channelsGenerateSecrets,
			},
			{
				Name:  "roles",
				Usage: "List the standard channels and their roles",
				Action: func(c *cli.Context) error {
					type row struct {
						Name string `json:"name"`
						Role string `json:"role"`
					}
					rows := make([]row, 0, len(channel.StandardRoles))
					for _, sr := range channel.StandardRoles {
						rows = append(rows, row{Name: sr.Name, Role: sr.Role.String()})
					}
					return render(c, rows)
				},
			},
		},
	}
}

func channelsGenerateSecrets(c *cli.Context) error {
	names := make([]string, 0, len(channel.StandardRoles))
	for _, sr := range channel.StandardRoles {
		names = append(names, sr.Name)
	}
	sf, err := channel.GenerateSecrets(names)
	if err != nil {
		return err
	}
	path := c.String("out")
	if err := channel.WriteSecrets(path, sf); err != nil {
		return err
	}
	_, err = fmt.Fprintf(c.App.Writer, "%d channel secrets written to %s\n", len(names), path)
	return err
}
