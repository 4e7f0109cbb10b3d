package command

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/camhub-go/internal/channel"
	"github.com/yndnr/camhub-go/internal/cli/output"
	"github.com/yndnr/camhub-go/internal/delivery"
	"github.com/yndnr/camhub-go/internal/infra/confloader"
	"github.com/yndnr/camhub-go/internal/server/adminserver"
	"github.com/yndnr/camhub-go/internal/server/config"
	"github.com/yndnr/camhub-go/internal/storage/snapshot"
	"github.com/yndnr/camhub-go/internal/telemetry/logger"
	"github.com/yndnr/camhub-go/pkg/crypto/adaptive"
)

// InspectCommand reads a hub's state directory without a running server.
// It must not run against a state directory a live hub is writing.
func InspectCommand() *cli.Command {
	stateFlags := []cli.Flag{
		&cli.StringFlag{
			Name:  "state-dir",
			Usage: "Snapshot directory (overrides storage.state_dir)",
		},
		&cli.StringFlag{
			Name:  "video-dir",
			Usage: "Video directory (overrides hub.video_dir)",
		},
		&cli.StringFlag{
			Name:  "secrets",
			Usage: "Channel secrets file (overrides channels.secrets_file)",
		},
	}
	return &cli.Command{
		Name:  "inspect",
		Usage: "Read hub state offline",
		Subcommands: []*cli.Command{
			{
				Name:   "ledger",
				Usage:  "Show the delivery ledger",
				Flags:  stateFlags,
				Action: inspectLedger,
			},
			{
				Name:   "channels",
				Usage:  "Show channel roles and epochs",
				Flags:  stateFlags,
				Action: inspectChannels,
			},
			{
				Name:   "snapshots",
				Usage:  "List snapshot files by category",
				Flags:  stateFlags,
				Action: inspectSnapshots,
			},
		},
	}
}

// loadConfig resolves the hub configuration the same way camhub-server
// does, then applies the command's directory flags.
func loadConfig(c *cli.Context) (*config.HubConfig, error) {
	overrides := make(map[string]any)
	for flag, key := range map[string]string{
		"state-dir": "storage.state_dir",
		"video-dir": "hub.video_dir",
		"secrets":   "channels.secrets_file",
	} {
		if c.IsSet(flag) {
			overrides[key] = c.String(flag)
		}
	}

	opts := []confloader.Option{confloader.WithOverrides(overrides)}
	if path := ParseGlobalFlags(c).Config; path != "" {
		opts = append(opts, confloader.WithConfigFile(path))
	}

	cfg := config.Default()
	if err := confloader.NewLoader(opts...).Load(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// cliLogger sends library logging to stderr at warn so it stays out of
// rendered output.
func cliLogger(c *cli.Context) *slog.Logger {
	l, err := logger.New(logger.Config{Level: "warn", Format: "text", Output: c.App.ErrWriter})
	if err != nil {
		return slog.Default()
	}
	return l.Slog()
}

func openStore(c *cli.Context, cfg *config.HubConfig) (*snapshot.Store, error) {
	st := cfg.Storage
	cipher, err := snapshot.NewCipher(snapshot.EncryptionConfig{
		Key:        []byte(st.EncryptionKey),
		Passphrase: []byte(st.Passphrase),
		Algorithm:  st.Cipher,
	}, st.StateDir)
	if err != nil {
		return nil, err
	}
	return snapshot.New(snapshot.Config{
		Dir:      st.StateDir,
		Cipher:   cipher,
		Compress: st.Compress,
		Logger:   cliLogger(c),
	})
}

func inspectLedger(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	store, err := openStore(c, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	ledger, err := delivery.Open(store, cfg.Hub.VideoDir, cliLogger(c))
	if err != nil {
		return err
	}
	return renderLedger(c, adminserver.LedgerResponse{
		Stats:  ledger.Stats(),
		Unsent: ledger.ListUnsent(),
	})
}

func inspectChannels(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	secrets, err := channel.LoadSecrets(cfg.Channels.SecretsFile)
	if err != nil {
		return err
	}
	defer func() {
		for _, s := range secrets {
			adaptive.Zero(s)
		}
	}()
	kind, err := adaptive.ParseType(cfg.Channels.Cipher)
	if err != nil {
		return err
	}

	store, err := openStore(c, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	reg, _, err := channel.OpenStandardKeyrings(store, secrets, kind)
	if err != nil {
		return err
	}
	return render(c, reg.Describe())
}

// snapshotRow is one line of `inspect snapshots`.
type snapshotRow struct {
	Category   string    `json:"category"`
	Generation int64     `json:"generation"`
	Created    time.Time `json:"created"`
	Size       int64     `json:"size"`
	Path       string    `json:"path" table:"wide"`
}

func inspectSnapshots(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	store, err := openStore(c, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	categories := []string{delivery.Category}
	for _, sr := range channel.StandardRoles {
		categories = append(categories, channel.StateCategory(sr.Name))
	}

	var rows []snapshotRow
	for _, cat := range categories {
		infos, err := store.List(cat)
		if err != nil {
			return fmt.Errorf("list %s: %w", cat, err)
		}
		for _, info := range infos {
			rows = append(rows, snapshotRow{
				Category:   info.Category,
				Generation: info.Generation,
				Created:    info.CreatedAt().UTC(),
				Size:       info.Size,
				Path:       info.Path,
			})
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Category != rows[j].Category {
			return rows[i].Category < rows[j].Category
		}
		return rows[i].Generation > rows[j].Generation
	})

	if len(rows) == 0 && ParseGlobalFlags(c).Output == output.FormatTable {
		_, err := fmt.Fprintf(c.App.Writer, "no snapshots in %s\n", store.Dir())
		return err
	}
	return render(c, rows)
}
