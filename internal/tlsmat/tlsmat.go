// Package tlsmat manages the TLS material directory handed to the
// PersonaPlex server via --ssl. The server expects cert.pem and key.pem
// inside that directory.
package tlsmat

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	certFile = "cert.pem"
	keyFile  = "key.pem"

	defaultValidDays = 365 * 5
)

// Ensure verifies that dir carries a certificate pair. When autoGen is
// set and the pair is missing, a self-signed certificate is generated;
// otherwise a missing pair is an error.
func Ensure(dir string, autoGen bool) error {
	if dir == "" {
		return fmt.Errorf("ssl dir not configured")
	}
	certPath := filepath.Join(dir, certFile)
	keyPath := filepath.Join(dir, keyFile)
	if certificatesExist(certPath, keyPath) {
		return nil
	}
	if !autoGen {
		return fmt.Errorf("TLS material missing in %s", dir)
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create ssl dir: %w", err)
	}
	return GenerateSelfSignedCert(CertConfig{
		CommonName:   "localhost",
		Organization: "personaplex",
		DNSNames:     []string{"localhost"},
		IPAddresses:  []string{"127.0.0.1", "0.0.0.0"},
		NotAfter:     time.Now().AddDate(0, 0, defaultValidDays),
		CertPath:     certPath,
		KeyPath:      keyPath,
	})
}

func certificatesExist(certPath, keyPath string) bool {
	_, certErr := os.Stat(certPath)
	_, keyErr := os.Stat(keyPath)
	return certErr == nil && keyErr == nil
}
