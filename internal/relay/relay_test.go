package relay

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newDir(t *testing.T) *Dir {
	t.Helper()
	d, err := NewDir(t.TempDir(), "cam-1")
	if err != nil {
		t.Fatalf("NewDir: %v", err)
	}
	return d
}

func TestObjectKey(t *testing.T) {
	if got := ObjectKey("cam-1", "7", "01ABC"); got != "cam-1/videos/7/01ABC" {
		t.Fatalf("ObjectKey = %q", got)
	}
}

func TestNewObjectID_Monotonic(t *testing.T) {
	now := time.Now()
	prev := newObjectID(now)
	for i := 0; i < 100; i++ {
		next := newObjectID(now)
		if next <= prev {
			t.Fatalf("id %s not after %s", next, prev)
		}
		prev = next
	}
}

func TestDir_PutVideo(t *testing.T) {
	d := newDir(t)
	ctx := context.Background()

	// Two clips sharing an epoch must both survive.
	for _, body := range []string{"first", "second"} {
		if err := d.PutVideo(ctx, "3", strings.NewReader(body), int64(len(body))); err != nil {
			t.Fatalf("PutVideo: %v", err)
		}
	}
	keys, err := d.Videos()
	if err != nil {
		t.Fatalf("Videos: %v", err)
	}
	if len(keys) != 2 || !strings.HasPrefix(keys[0], "3/") {
		t.Fatalf("Videos = %v", keys)
	}

	if err := d.PutVideo(ctx, "4", strings.NewReader("abc"), 10); err == nil {
		t.Fatalf("PutVideo accepted a short read")
	}
	keys, _ = d.Videos()
	if len(keys) != 2 {
		t.Fatalf("failed upload left an object: %v", keys)
	}
}

func TestDir_HeartbeatRequests(t *testing.T) {
	d := newDir(t)
	ctx := context.Background()

	if _, err := d.NextHeartbeatRequest(ctx, 0); !errors.Is(err, ErrNoRequest) {
		t.Fatalf("empty err = %v, want ErrNoRequest", err)
	}

	for _, r := range []string{"r1", "r2"} {
		if err := d.SubmitRequest([]byte(r)); err != nil {
			t.Fatalf("SubmitRequest: %v", err)
		}
	}
	for _, want := range []string{"r1", "r2"} {
		got, err := d.NextHeartbeatRequest(ctx, time.Second)
		if err != nil {
			t.Fatalf("NextHeartbeatRequest: %v", err)
		}
		if string(got) != want {
			t.Fatalf("request = %q, want %q", got, want)
		}
	}

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := d.NextHeartbeatRequest(cctx, time.Minute); !errors.Is(err, context.Canceled) {
		t.Fatalf("canceled err = %v", err)
	}
}

func TestDir_ResponsesAndUpdates(t *testing.T) {
	d := newDir(t)
	ctx := context.Background()

	if err := d.PublishHeartbeat(ctx, []byte("hb")); err != nil {
		t.Fatalf("PublishHeartbeat: %v", err)
	}
	resp, err := d.Responses()
	if err != nil || len(resp) != 1 || string(resp[0]) != "hb" {
		t.Fatalf("Responses = (%q, %v)", resp, err)
	}

	if err := d.PushUpdates(ctx, [][]byte{[]byte("a"), []byte("b"), []byte("c")}); err != nil {
		t.Fatalf("PushUpdates: %v", err)
	}
	ups, err := d.Updates()
	if err != nil {
		t.Fatalf("Updates: %v", err)
	}
	if !bytes.Equal(bytes.Join(ups, nil), []byte("abc")) {
		t.Fatalf("Updates = %q, want in order a b c", ups)
	}
	if ups, _ := d.Updates(); len(ups) != 0 {
		t.Fatalf("Updates not drained: %q", ups)
	}
}

func TestDir_IgnoresHiddenTemp(t *testing.T) {
	d := newDir(t)
	if err := os.WriteFile(filepath.Join(d.requestsDir(), ".partial"), []byte("x"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := d.NextHeartbeatRequest(context.Background(), 0); !errors.Is(err, ErrNoRequest) {
		t.Fatalf("err = %v, want ErrNoRequest", err)
	}
}

func TestRedisKeys(t *testing.T) {
	k := newRedisKeys("", "cam-1")
	if k.requests != "camhub:cam-1:heartbeat:requests" || k.updates != "camhub:cam-1:updates" {
		t.Fatalf("keys = %+v", k)
	}
	if k := newRedisKeys("relay", "c"); k.responses != "relay:c:heartbeat:responses" {
		t.Fatalf("responses key = %q", k.responses)
	}
}

func TestNewMinioSink_Validation(t *testing.T) {
	if _, err := NewMinioSink(S3Config{}, "cam-1", nil); err == nil {
		t.Fatalf("expected error without endpoint")
	}
	s, err := NewMinioSink(S3Config{Endpoint: "localhost:9000", Bucket: "clips"}, "cam-1", nil)
	if err != nil {
		t.Fatalf("NewMinioSink: %v", err)
	}
	if s.bucket != "clips" {
		t.Fatalf("bucket = %q", s.bucket)
	}
}

func TestNewMinioSink_CustomTLS(t *testing.T) {
	s, err := NewMinioSink(S3Config{
		Endpoint: "minio.internal:9000",
		Bucket:   "clips",
		UseSSL:   true,
		TLS:      &tls.Config{MinVersion: tls.VersionTLS12},
	}, "cam-1", nil)
	if err != nil {
		t.Fatalf("NewMinioSink: %v", err)
	}
	if got := s.client.EndpointURL().Scheme; got != "https" {
		t.Errorf("scheme = %q, want https", got)
	}
}
