package command

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/camhub-go/pkg/crypto/adaptive"
)

const (
	// CredentialsFile is the file name written under --dir.
	CredentialsFile = "user_credentials"

	usernameBytes = 64
	passwordBytes = 72
)

// CredentialsCommand provisions the relay user credentials shared by a
// camera and its app.
func CredentialsCommand() *cli.Command {
	return &cli.Command{
		Name:  "credentials",
		Usage: "Manage relay user credentials",
		Subcommands: []*cli.Command{
			{
				Name:  "generate",
				Usage: "Write random username and secret bytes to DIR/" + CredentialsFile,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "dir",
						Usage:    "Output directory",
						Required: true,
					},
				},
				Action: credentialsGenerate,
			},
		},
	}
}

func credentialsGenerate(c *cli.Context) error {
	path, err := GenerateCredentials(c.String("dir"))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(c.App.Writer, "credentials written to %s\n", path)
	return err
}

// GenerateCredentials writes usernameBytes random bytes followed by
// passwordBytes random bytes to dir/user_credentials. An existing file is
// never overwritten.
func GenerateCredentials(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}
	buf, err := adaptive.RandomBytes(usernameBytes + passwordBytes)
	if err != nil {
		return "", err
	}
	defer adaptive.Zero(buf)

	path := filepath.Join(dir, CredentialsFile)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return "", fmt.Errorf("create credentials: %w", err)
	}
	if _, err := f.Write(buf); err != nil {
		f.Close()
		return "", fmt.Errorf("write credentials: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return "", fmt.Errorf("sync credentials: %w", err)
	}
	return path, f.Close()
}
