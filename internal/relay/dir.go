package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"
)

const dirPollInterval = 100 * time.Millisecond

// Dir is a relay on the local filesystem:
//
//	<root>/<camera>/videos/<name>/<id>
//	<root>/<camera>/heartbeat/requests/<id>   written by the app
//	<root>/<camera>/heartbeat/responses/<id>
//	<root>/<camera>/updates/<id>
//
// Files appear atomically through a rename.
type Dir struct {
	root     string
	cameraID string
}

// NewDir creates the directory layout under root.
func NewDir(root, cameraID string) (*Dir, error) {
	d := &Dir{root: root, cameraID: cameraID}
	for _, p := range []string{d.requestsDir(), d.responsesDir(), d.updatesDir()} {
		if err := os.MkdirAll(p, 0o750); err != nil {
			return nil, fmt.Errorf("relay: create %s: %w", p, err)
		}
	}
	return d, nil
}

func (d *Dir) cameraDir() string    { return filepath.Join(d.root, d.cameraID) }
func (d *Dir) requestsDir() string  { return filepath.Join(d.cameraDir(), "heartbeat", "requests") }
func (d *Dir) responsesDir() string { return filepath.Join(d.cameraDir(), "heartbeat", "responses") }
func (d *Dir) updatesDir() string   { return filepath.Join(d.cameraDir(), "updates") }

// PutVideo implements VideoSink.
func (d *Dir) PutVideo(ctx context.Context, name string, r io.Reader, size int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target := filepath.Join(d.root, filepath.FromSlash(ObjectKey(d.cameraID, name, newObjectID(time.Now()))))
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return fmt.Errorf("relay: %w", err)
	}

	tmp := target + ".part"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("relay: %w", err)
	}
	n, err := io.Copy(f, r)
	if err == nil && n != size {
		err = fmt.Errorf("copied %d of %d bytes", n, size)
	}
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("relay: put %s: %w", name, err)
	}
	return os.Rename(tmp, target)
}

// SubmitRequest queues an encoded heartbeat request, as the app would.
func (d *Dir) SubmitRequest(data []byte) error {
	return writeAtomic(d.requestsDir(), data)
}

// NextHeartbeatRequest implements ControlChannel. Requests are consumed
// oldest first.
func (d *Dir) NextHeartbeatRequest(ctx context.Context, wait time.Duration) ([]byte, error) {
	deadline := time.Now().Add(wait)
	ticker := time.NewTicker(dirPollInterval)
	defer ticker.Stop()

	for {
		data, err := popOldest(d.requestsDir())
		if err != nil || data != nil {
			return data, err
		}
		if !time.Now().Before(deadline) {
			return nil, ErrNoRequest
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// PublishHeartbeat implements ControlChannel.
func (d *Dir) PublishHeartbeat(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return writeAtomic(d.responsesDir(), data)
}

// Responses returns and removes every published heartbeat, oldest first.
func (d *Dir) Responses() ([][]byte, error) {
	return drain(d.responsesDir())
}

// PushUpdates implements ControlChannel.
func (d *Dir) PushUpdates(ctx context.Context, updates [][]byte) error {
	for _, u := range updates {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := writeAtomic(d.updatesDir(), u); err != nil {
			return err
		}
	}
	return nil
}

// Updates returns and removes every pushed update, oldest first.
func (d *Dir) Updates() ([][]byte, error) {
	return drain(d.updatesDir())
}

// Videos lists stored clip keys relative to the camera directory.
func (d *Dir) Videos() ([]string, error) {
	var keys []string
	root := filepath.Join(d.cameraDir(), "videos")
	err := filepath.WalkDir(root, func(p string, e os.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			return err
		}
		if e.IsDir() || filepath.Ext(p) == ".part" {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	sort.Strings(keys)
	return keys, err
}

func writeAtomic(dir string, data []byte) error {
	name := newObjectID(time.Now())
	tmp := filepath.Join(dir, "."+name)
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("relay: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(dir, name)); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("relay: %w", err)
	}
	return nil
}

func sortedEntries(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("relay: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || e.Name()[0] == '.' {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

func popOldest(dir string) ([]byte, error) {
	names, err := sortedEntries(dir)
	if err != nil || len(names) == 0 {
		return nil, err
	}
	p := filepath.Join(dir, names[0])
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("relay: %w", err)
	}
	if err := os.Remove(p); err != nil {
		return nil, fmt.Errorf("relay: %w", err)
	}
	return data, nil
}

func drain(dir string) ([][]byte, error) {
	names, err := sortedEntries(dir)
	if err != nil {
		return nil, err
	}
	out := make([][]byte, 0, len(names))
	for _, name := range names {
		p := filepath.Join(dir, name)
		data, err := os.ReadFile(p)
		if err != nil {
			return out, fmt.Errorf("relay: %w", err)
		}
		out = append(out, data)
		if err := os.Remove(p); err != nil {
			return out, fmt.Errorf("relay: %w", err)
		}
	}
	return out, nil
}

// String identifies the relay in logs.
func (d *Dir) String() string {
	return "dir:" + d.cameraDir()
}
