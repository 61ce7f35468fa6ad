// Package tls manages the relay's self-signed certificate for wss://.
// TVs and phones on the LAN pin the certificate by its SHA-256
// fingerprint, which the relay prints at startup and advertises over mDNS.
package tls

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	// DefaultValidity is the lifetime of generated certificates.
	DefaultValidity = 365 * 24 * time.Hour

	// renewBefore regenerates a certificate this close to expiry.
	renewBefore = 7 * 24 * time.Hour

	defaultOrganization = "tvlink"
	commonName          = "tvlink relay"
)

// CertConfig holds configuration for certificate generation.
type CertConfig struct {
	// CertPath and KeyPath default to ~/.tvlink/certs/relay.{crt,key}.
	CertPath string
	KeyPath  string

	// Hosts become SANs. localhost and 127.0.0.1 are always included.
	Hosts []string

	// ValidDuration defaults to DefaultValidity.
	ValidDuration time.Duration

	Organization string

	// TimeNow is injectable for tests.
	TimeNow func() time.Time
}

// CertInfo describes a loaded or generated certificate.
type CertInfo struct {
	CertPath string
	KeyPath  string

	// Fingerprint is colon-separated uppercase hex of the SHA-256 digest.
	Fingerprint string

	NotBefore time.Time
	NotAfter  time.Time

	// IsGenerated is true when EnsureCertificate had to create the files.
	IsGenerated bool
}

// DefaultCertPaths returns ~/.tvlink/certs/relay.crt and relay.key.
func DefaultCertPaths() (certPath, keyPath string, err error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", "", fmt.Errorf("failed to get home directory: %w", err)
	}
	dir := filepath.Join(homeDir, ".tvlink", "certs")
	return filepath.Join(dir, "relay.crt"), filepath.Join(dir, "relay.key"), nil
}

func (c CertConfig) now() time.Time {
	if c.TimeNow != nil {
		return c.TimeNow()
	}
	return time.Now()
}

// EnsureCertificate loads the configured pair, or generates a new one if
// either file is missing or the certificate is about to expire.
func EnsureCertificate(cfg CertConfig) (*CertInfo, error) {
	if cfg.CertPath == "" || cfg.KeyPath == "" {
		certPath, keyPath, err := DefaultCertPaths()
		if err != nil {
			return nil, err
		}
		if cfg.CertPath == "" {
			cfg.CertPath = certPath
		}
		if cfg.KeyPath == "" {
			cfg.KeyPath = keyPath
		}
	}

	if fileExists(cfg.CertPath) && fileExists(cfg.KeyPath) {
		info, err := LoadCertificate(cfg.CertPath, cfg.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load certificate: %w", err)
		}
		if info.NotAfter.Sub(cfg.now()) > renewBefore {
			return info, nil
		}
	}

	info, err := GenerateCertificate(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to generate certificate: %w", err)
	}
	return info, nil
}

// LoadCertificate loads an existing pair and computes its fingerprint.
func LoadCertificate(certPath, keyPath string) (*CertInfo, error) {
	pair, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load certificate pair: %w", err)
	}
	cert, err := x509.ParseCertificate(pair.Certificate[0])
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}
	return &CertInfo{
		CertPath:    certPath,
		KeyPath:     keyPath,
		Fingerprint: ComputeFingerprint(cert),
		NotBefore:   cert.NotBefore,
		NotAfter:    cert.NotAfter,
	}, nil
}

// GenerateCertificate writes a new self-signed ECDSA P-256 certificate and
// key to cfg.CertPath and cfg.KeyPath.
func GenerateCertificate(cfg CertConfig) (*CertInfo, error) {
	if cfg.CertPath == "" || cfg.KeyPath == "" {
		return nil, fmt.Errorf("certificate and key paths are required")
	}
	validity := cfg.ValidDuration
	if validity == 0 {
		validity = DefaultValidity
	}
	org := cfg.Organization
	if org == "" {
		org = defaultOrganization
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate private key: %w", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("failed to generate serial number: %w", err)
	}

	notBefore := cfg.now().Add(-time.Minute)
	template := x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{Organization: []string{org}, CommonName: commonName},
		NotBefore:             notBefore,
		NotAfter:              notBefore.Add(validity),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}
	for _, host := range sanHosts(cfg.Hosts) {
		if ip := net.ParseIP(host); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, host)
		}
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("failed to create certificate: %w", err)
	}
	keyDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal private key: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.CertPath), 0700); err != nil {
		return nil, fmt.Errorf("failed to create certificate directory: %w", err)
	}
	if err := writePEM(cfg.CertPath, "CERTIFICATE", der, 0644); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(cfg.KeyPath), 0700); err != nil {
		return nil, fmt.Errorf("failed to create key directory: %w", err)
	}
	if err := writePEM(cfg.KeyPath, "PRIVATE KEY", keyDER, 0600); err != nil {
		return nil, err
	}

	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("failed to parse generated certificate: %w", err)
	}
	return &CertInfo{
		CertPath:    cfg.CertPath,
		KeyPath:     cfg.KeyPath,
		Fingerprint: ComputeFingerprint(cert),
		NotBefore:   cert.NotBefore,
		NotAfter:    cert.NotAfter,
		IsGenerated: true,
	}, nil
}

// sanHosts merges the loopback names with hosts, dropping blanks and duplicates.
func sanHosts(hosts []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, h := range append([]string{"localhost", "127.0.0.1"}, hosts...) {
		h = strings.TrimSpace(h)
		if h == "" || seen[h] {
			continue
		}
		seen[h] = true
		out = append(out, h)
	}
	return out
}

func writePEM(path, blockType string, der []byte, perm os.FileMode) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := pem.Encode(f, &pem.Block{Type: blockType, Bytes: der}); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

// ComputeFingerprint returns the SHA-256 fingerprint of cert as
// colon-separated uppercase hex, e.g. "AA:BB:CC:...".
func ComputeFingerprint(cert *x509.Certificate) string {
	sum := sha256.Sum256(cert.Raw)
	parts := make([]string, len(sum))
	for i, b := range sum {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, ":")
}

// ComputeFingerprintFromPEM parses a PEM certificate and fingerprints it.
func ComputeFingerprintFromPEM(pemData []byte) (string, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return "", fmt.Errorf("failed to decode PEM block")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return "", fmt.Errorf("failed to parse certificate: %w", err)
	}
	return ComputeFingerprint(cert), nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
