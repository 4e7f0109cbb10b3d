package tlsroots

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func generateTestCertPEM(t *testing.T) []byte {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "camhub test CA"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
}

func TestNewPool(t *testing.T) {
	if NewPool().Pool() == nil {
		t.Fatal("NewPool().Pool() = nil")
	}
	if NewEmptyPool().Pool() == nil {
		t.Fatal("NewEmptyPool().Pool() = nil")
	}
}

func TestAddCertPEM(t *testing.T) {
	tests := []struct {
		name    string
		data    func(t *testing.T) []byte
		wantErr error
		anyErr  bool
	}{
		{
			name: "single",
			data: generateTestCertPEM,
		},
		{
			name: "multiple",
			data: func(t *testing.T) []byte {
				return append(generateTestCertPEM(t), generateTestCertPEM(t)...)
			},
		},
		{
			name: "skips other blocks",
			data: func(t *testing.T) []byte {
				key := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: []byte("x")})
				return append(key, generateTestCertPEM(t)...)
			},
		},
		{
			name:    "empty",
			data:    func(*testing.T) []byte { return nil },
			wantErr: ErrNoCertsFound,
		},
		{
			name:    "not pem",
			data:    func(*testing.T) []byte { return []byte("not a certificate") },
			wantErr: ErrNoCertsFound,
		},
		{
			name: "invalid certificate",
			data: func(*testing.T) []byte {
				return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: []byte("garbage")})
			},
			anyErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewEmptyPool().AddCertPEM(tt.data(t))
			switch {
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("err = %v, want %v", err, tt.wantErr)
				}
			case tt.anyErr:
				if err == nil {
					t.Error("expected error")
				}
			case err != nil:
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestAddCertFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ca.pem")
	if err := os.WriteFile(path, generateTestCertPEM(t), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := NewEmptyPool().AddCertFile(path); err != nil {
		t.Fatalf("AddCertFile: %v", err)
	}
	if err := NewEmptyPool().AddCertFile(filepath.Join(t.TempDir(), "missing.pem")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestClientConfig_TrustsPrivateCA(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	caFile := filepath.Join(t.TempDir(), "relay-ca.pem")
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: srv.Certificate().Raw})
	if err := os.WriteFile(caFile, certPEM, 0o644); err != nil {
		t.Fatal(err)
	}

	get := func(cfg *tls.Config) error {
		client := &http.Client{Transport: &http.Transport{TLSClientConfig: cfg}}
		resp, err := client.Get(srv.URL)
		if err != nil {
			return err
		}
		resp.Body.Close()
		return nil
	}

	cfg, err := ClientConfig(caFile)
	if err != nil {
		t.Fatalf("ClientConfig: %v", err)
	}
	if cfg.MinVersion != tls.VersionTLS12 {
		t.Errorf("MinVersion = %x", cfg.MinVersion)
	}
	if err := get(cfg); err != nil {
		t.Errorf("request with private CA: %v", err)
	}

	plain, err := ClientConfig("")
	if err != nil {
		t.Fatal(err)
	}
	if err := get(plain); err == nil {
		t.Error("request without private CA succeeded")
	}
}
