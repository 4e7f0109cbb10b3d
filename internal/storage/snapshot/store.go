package snapshot

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/yndnr/camhub-go/internal/core/domain"
	"github.com/yndnr/camhub-go/pkg/codec"
	"github.com/yndnr/camhub-go/pkg/crypto/adaptive"
)

const (
	tmpSuffix     = ".tmp"
	fileMode      = 0o600
	dirMode       = 0o750
	maxPayloadLen = 64 << 20
)

var (
	// ErrInvalidCategory rejects category names that could escape the
	// state directory.
	ErrInvalidCategory = errors.New("snapshot: invalid category")

	// ErrNoSnapshot is returned by Load when a category has no readable file.
	ErrNoSnapshot = errors.New("snapshot: no readable snapshot")

	// ErrPrune is returned by Save when the new snapshot is committed but
	// older files of the category could not be removed.
	ErrPrune = errors.New("snapshot: prune failed")
)

// Observer receives the outcome of every Save. The metrics package
// implements it; nil disables observation.
type Observer interface {
	ObserveSnapshotSave(category string, elapsed time.Duration, err error)
}

// Config configures a Store.
type Config struct {
	// Dir holds all snapshot files. Created if missing.
	Dir string

	// Cipher encrypts payloads at rest. Nil stores them in the clear.
	Cipher adaptive.Cipher

	// Compress enables zstd compression of payloads.
	Compress bool

	Logger   *slog.Logger
	Observer Observer

	// Clock overrides time.Now for generation tokens.
	Clock func() time.Time
}

// Info describes one snapshot file.
type Info struct {
	Category   string `json:"category"`
	Generation int64  `json:"generation"`
	Path       string `json:"path"`
	Size       int64  `json:"size"`
}

// CreatedAt converts the generation token back to wall-clock time.
func (i Info) CreatedAt() time.Time {
	return time.Unix(0, i.Generation)
}

// Store persists state objects as generation-tagged snapshot files.
type Store struct {
	dir      string
	cipher   adaptive.Cipher
	compress bool
	logger   *slog.Logger
	observer Observer
	clock    func() time.Time

	enc *zstd.Encoder
	dec *zstd.Decoder

	mu      sync.Mutex
	lastGen int64
}

// New creates a Store rooted at cfg.Dir.
func New(cfg Config) (*Store, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("snapshot: dir is required")
	}
	if err := os.MkdirAll(cfg.Dir, dirMode); err != nil {
		return nil, fmt.Errorf("snapshot: create dir: %w", err)
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("snapshot: init zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil,
		zstd.WithDecoderConcurrency(1),
		zstd.WithDecoderMaxMemory(maxPayloadLen),
	)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("snapshot: init zstd decoder: %w", err)
	}

	s := &Store{
		dir:      cfg.Dir,
		cipher:   cfg.Cipher,
		compress: cfg.Compress,
		logger:   cfg.Logger,
		observer: cfg.Observer,
		clock:    cfg.Clock,
		enc:      enc,
		dec:      dec,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	return s, nil
}

// Dir returns the directory holding the snapshot files.
func (s *Store) Dir() string {
	return s.dir
}

// Close releases the compression workers.
func (s *Store) Close() error {
	s.dec.Close()
	return s.enc.Close()
}

// Save writes state as the newest snapshot of category and deletes all
// older snapshots of that category. The new file is fsynced and renamed
// into place before anything is deleted.
//
// A failure to delete the older files does not undo the save: Save then
// returns the Info of the committed snapshot together with an error
// wrapping ErrPrune. The next Save retries the cleanup.
func (s *Store) Save(category string, state any) (info *Info, err error) {
	start := time.Now()
	defer func() {
		if s.observer != nil {
			s.observer.ObserveSnapshotSave(category, time.Since(start), err)
		}
	}()

	if err := validateCategory(category); err != nil {
		return nil, err
	}

	payload, err := codec.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("snapshot: marshal %s: %w", category, err)
	}
	data, err := s.encode(category, payload)
	if err != nil {
		return nil, err
	}

	existing, err := s.List(category)
	if err != nil {
		return nil, err
	}
	gen := s.nextGeneration(existing)
	name := fileName(category, gen)
	finalPath := filepath.Join(s.dir, name)
	tmpPath := finalPath + tmpSuffix

	if err := writeDurable(tmpPath, data); err != nil {
		_ = os.Remove(tmpPath)
		return nil, domain.ErrSnapshotWrite.WithDetails(name).WithCause(err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		_ = os.Remove(tmpPath)
		return nil, domain.ErrSnapshotWrite.WithDetails("rename " + name).WithCause(err)
	}
	if err := syncDir(s.dir); err != nil {
		return nil, domain.ErrSnapshotWrite.WithDetails("sync dir").WithCause(err)
	}

	all, err := s.List(category)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 || all[0].Generation != gen {
		return nil, domain.ErrSnapshotNotNewest.WithDetails(name)
	}

	info = &all[0]
	info.Size = int64(len(data))

	if err := s.prune(category, all[1:]); err != nil {
		s.logger.Warn("snapshot saved, stale files left",
			"category", category,
			"generation", gen,
			"error", err,
		)
		return info, err
	}

	s.logger.Debug("snapshot saved",
		"category", category,
		"generation", gen,
		"size", len(data),
	)
	return info, nil
}

// Load decodes the newest readable snapshot of category into target.
// Corrupt files are skipped; ErrNoSnapshot is returned when none remain.
// On error target may hold a partial decode.
func (s *Store) Load(category string, target any) (*Info, error) {
	return s.loadNewest(category, func(payload []byte) error {
		return codec.Unmarshal(payload, target)
	})
}

// LoadLatestOrInit returns the newest readable snapshot of category, or
// factory() when there is none. Decryption and IO errors other than
// corruption are returned rather than papered over with a fresh state,
// because the next Save would then prune the unreadable original.
func LoadLatestOrInit[T any](s *Store, category string, factory func() T) (T, error) {
	var state T
	_, err := s.loadNewest(category, func(payload []byte) error {
		var v T
		if err := codec.Unmarshal(payload, &v); err != nil {
			return err
		}
		state = v
		return nil
	})
	switch {
	case err == nil:
		return state, nil
	case errors.Is(err, ErrNoSnapshot):
		return factory(), nil
	default:
		var zero T
		return zero, err
	}
}

func (s *Store) loadNewest(category string, decode func([]byte) error) (*Info, error) {
	if err := validateCategory(category); err != nil {
		return nil, err
	}

	infos, err := s.List(category)
	if err != nil {
		return nil, err
	}

	for i := range infos {
		err := s.loadFile(infos[i], decode)
		if err == nil {
			return &infos[i], nil
		}
		if errors.Is(err, ErrCorrupt) || errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("skipping unreadable snapshot",
				"category", category,
				"generation", infos[i].Generation,
				"error", err,
			)
			continue
		}
		return nil, err
	}
	return nil, ErrNoSnapshot
}

// List returns the snapshots of category, newest first.
func (s *Store) List(category string) ([]Info, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("snapshot: list %s: %w", s.dir, err)
	}

	var infos []Info
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		gen, ok := parseFileName(category, e.Name())
		if !ok {
			continue
		}
		var size int64
		if fi, err := e.Info(); err == nil {
			size = fi.Size()
		}
		infos = append(infos, Info{
			Category:   category,
			Generation: gen,
			Path:       filepath.Join(s.dir, e.Name()),
			Size:       size,
		})
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Generation > infos[j].Generation
	})
	return infos, nil
}

func (s *Store) loadFile(info Info, decode func([]byte) error) error {
	data, err := os.ReadFile(info.Path)
	if err != nil {
		return err
	}
	payload, err := s.decode(info.Category, data)
	if err != nil {
		return err
	}
	if err := decode(payload); err != nil {
		return fmt.Errorf("%w: unmarshal: %v", ErrCorrupt, err)
	}
	return nil
}

func (s *Store) encode(category string, payload []byte) ([]byte, error) {
	var flags byte
	if s.compress {
		payload = s.enc.EncodeAll(payload, nil)
		flags |= flagCompressed
	}
	if s.cipher != nil {
		sealed, err := s.cipher.Encrypt(payload, []byte(category))
		if err != nil {
			return nil, fmt.Errorf("snapshot: encrypt %s: %w", category, err)
		}
		payload = sealed
		flags |= flagEncrypted
	}
	return frame(flags, payload), nil
}

func (s *Store) decode(category string, data []byte) ([]byte, error) {
	flags, payload, err := unframe(data)
	if err != nil {
		return nil, err
	}
	if flags&flagEncrypted != 0 {
		if s.cipher == nil {
			return nil, ErrEncrypted
		}
		plain, err := s.cipher.Decrypt(payload, []byte(category))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
		}
		payload = plain
	}
	if flags&flagCompressed != 0 {
		plain, err := s.dec.DecodeAll(payload, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: decompress: %v", ErrCorrupt, err)
		}
		payload = plain
	}
	return payload, nil
}

// nextGeneration returns a token newer than anything on disk and
// anything this Store has issued, even if the wall clock steps back.
func (s *Store) nextGeneration(existing []Info) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	gen := s.clock().UnixNano()
	if gen <= s.lastGen {
		gen = s.lastGen + 1
	}
	if len(existing) > 0 && gen <= existing[0].Generation {
		gen = existing[0].Generation + 1
	}
	s.lastGen = gen
	return gen
}

// prune deletes stale generations and leftover temp files of category.
func (s *Store) prune(category string, stale []Info) error {
	var errs []error
	for _, info := range stale {
		if err := os.Remove(info.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}

	entries, err := os.ReadDir(s.dir)
	if err == nil {
		for _, e := range entries {
			name := e.Name()
			if !strings.HasSuffix(name, tmpSuffix) {
				continue
			}
			if _, ok := parseFileName(category, strings.TrimSuffix(name, tmpSuffix)); !ok {
				continue
			}
			if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
				errs = append(errs, err)
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s: %w", ErrPrune, category, errors.Join(errs...))
	}
	return nil
}

func validateCategory(category string) error {
	if category == "" || strings.ContainsAny(category, `/\`) || strings.HasPrefix(category, ".") {
		return fmt.Errorf("%w: %q", ErrInvalidCategory, category)
	}
	return nil
}

func fileName(category string, gen int64) string {
	return category + "_" + strconv.FormatInt(gen, 10)
}

// parseFileName accepts exactly "<category>_<digits>". Requiring the
// whole suffix to be digits keeps "channel" from matching files of
// "channel_motion".
func parseFileName(category, name string) (int64, bool) {
	prefix := category + "_"
	if !strings.HasPrefix(name, prefix) {
		return 0, false
	}
	digits := name[len(prefix):]
	if digits == "" {
		return 0, false
	}
	for i := 0; i < len(digits); i++ {
		if digits[i] < '0' || digits[i] > '9' {
			return 0, false
		}
	}
	gen, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, false
	}
	return gen, true
}

func writeDurable(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, fileMode)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}
