package certs

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrNotFound is returned when the certificate or key file is missing
var ErrNotFound = errors.New("certificates not found")

// Manager generates and loads the certificate pair used by the HTTPS listener
type Manager struct {
	certPath string
	keyPath  string
	logger   *logrus.Logger
}

// Info describes a certificate on disk
type Info struct {
	CertPath    string
	KeyPath     string
	Subject     string
	Issuer      string
	NotBefore   time.Time
	NotAfter    time.Time
	DNSNames    []string
	IPAddresses []net.IP
}

// NewManager creates a certificate manager for the given file pair
func NewManager(certPath, keyPath string, logger *logrus.Logger) *Manager {
	return &Manager{
		certPath: certPath,
		keyPath:  keyPath,
		logger:   logger,
	}
}

// Generate writes a self-signed certificate for the comma separated hosts,
// replacing any existing pair. Both files end up read-only (0400).
func (m *Manager) Generate(hosts string, validDays int) error {
	if validDays <= 0 {
		return fmt.Errorf("certificate validity must be positive, got %d days", validDays)
	}

	m.logger.WithField("hosts", hosts).Info("Generating self-signed certificate")

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return fmt.Errorf("failed to generate private key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return fmt.Errorf("failed to generate serial number: %w", err)
	}

	now := time.Now()
	template := x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{Organization: []string{"Geolocator"}},
		NotBefore:             now,
		NotAfter:              now.Add(time.Duration(validDays) * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}

	for _, host := range strings.Split(hosts, ",") {
		host = strings.TrimSpace(host)
		if host == "" {
			continue
		}
		if ip := net.ParseIP(host); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, host)
		}
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return fmt.Errorf("failed to create certificate: %w", err)
	}

	keyDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return fmt.Errorf("failed to marshal private key: %w", err)
	}

	if err := writePEM(m.certPath, "CERTIFICATE", certDER); err != nil {
		return err
	}
	if err := writePEM(m.keyPath, "PRIVATE KEY", keyDER); err != nil {
		return err
	}

	m.logger.Infof("Self-signed certificate generated: %s", m.certPath)
	return nil
}

// writePEM replaces path with a single PEM block and makes it read-only
func writePEM(path, blockType string, der []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}

	// A previous pair is 0400 and must be made writable before removal
	if _, err := os.Stat(path); err == nil {
		_ = os.Chmod(path, 0600)
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("failed to remove existing %s: %w", path, err)
		}
	}

	data := pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der})
	if err := os.WriteFile(path, data, 0400); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// Exists reports whether both the certificate and key files are present
func (m *Manager) Exists() bool {
	if _, err := os.Stat(m.certPath); err != nil {
		return false
	}
	if _, err := os.Stat(m.keyPath); err != nil {
		return false
	}
	return true
}

// TLSConfig loads the pair into a server configuration restricted to TLS 1.2+
func (m *Manager) TLSConfig() (*tls.Config, error) {
	if !m.Exists() {
		return nil, ErrNotFound
	}

	cert, err := tls.LoadX509KeyPair(m.certPath, m.keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load certificate: %w", err)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
		CurvePreferences: []tls.CurveID{
			tls.X25519,
			tls.CurveP256,
		},
	}, nil
}

// Validate checks that the certificate parses and is currently within its validity window
func (m *Manager) Validate() error {
	cert, err := m.parse()
	if err != nil {
		return err
	}

	now := time.Now()
	if now.Before(cert.NotBefore) {
		return fmt.Errorf("certificate is not yet valid")
	}
	if now.After(cert.NotAfter) {
		return fmt.Errorf("certificate has expired")
	}
	return nil
}

// Info returns details about the certificate on disk
func (m *Manager) Info() (*Info, error) {
	cert, err := m.parse()
	if err != nil {
		return nil, err
	}

	return &Info{
		CertPath:    m.certPath,
		KeyPath:     m.keyPath,
		Subject:     cert.Subject.String(),
		Issuer:      cert.Issuer.String(),
		NotBefore:   cert.NotBefore,
		NotAfter:    cert.NotAfter,
		DNSNames:    cert.DNSNames,
		IPAddresses: cert.IPAddresses,
	}, nil
}

func (m *Manager) parse() (*x509.Certificate, error) {
	if !m.Exists() {
		return nil, ErrNotFound
	}

	data, err := os.ReadFile(m.certPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read certificate: %w", err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("failed to decode certificate PEM")
	}

	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}
	return cert, nil
}
