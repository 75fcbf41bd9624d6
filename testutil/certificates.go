package testutil

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"
)

// CertificateAuthority is an in-memory CA issuing short-lived test
// certificates.
type CertificateAuthority struct {
	cert *x509.Certificate
	key  *ecdsa.PrivateKey

	// PEM is the CA certificate in PEM form, ready to serve as a root.
	PEM []byte
}

// NewCertificateAuthority creates a self-signed CA valid for one day.
func NewCertificateAuthority() (*CertificateAuthority, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}

	template := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "test root"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, err
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, err
	}

	return &CertificateAuthority{
		cert: cert,
		key:  key,
		PEM:  pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}),
	}, nil
}

// Pool returns a certificate pool holding just this CA.
func (ca *CertificateAuthority) Pool() *x509.CertPool {
	pool := x509.NewCertPool()
	pool.AppendCertsFromPEM(ca.PEM)
	return pool
}

// IssueServer issues a server certificate for host, which may be a DNS
// name or an IP address.
func (ca *CertificateAuthority) IssueServer(host string) (tls.Certificate, error) {
	certPEM, keyPEM, err := ca.issuePEM(host, x509.ExtKeyUsageServerAuth)
	if err != nil {
		return tls.Certificate{}, err
	}
	return tls.X509KeyPair(certPEM, keyPEM)
}

// IssueClient issues a client certificate for name.
func (ca *CertificateAuthority) IssueClient(name string) (tls.Certificate, error) {
	certPEM, keyPEM, err := ca.issuePEM(name, x509.ExtKeyUsageClientAuth)
	if err != nil {
		return tls.Certificate{}, err
	}
	return tls.X509KeyPair(certPEM, keyPEM)
}

// WriteServerFiles materializes a server certificate, its key and the CA
// certificate as PEM files in dir and returns their paths.
func (ca *CertificateAuthority) WriteServerFiles(dir, host string) (certFile, keyFile, rootFile string, err error) {
	return ca.writeFiles(dir, host, x509.ExtKeyUsageServerAuth)
}

// WriteClientFiles materializes a client certificate, its key and the CA
// certificate as PEM files in dir and returns their paths.
func (ca *CertificateAuthority) WriteClientFiles(dir, name string) (certFile, keyFile, rootFile string, err error) {
	return ca.writeFiles(dir, name, x509.ExtKeyUsageClientAuth)
}

func (ca *CertificateAuthority) writeFiles(dir, name string, usage x509.ExtKeyUsage) (certFile, keyFile, rootFile string, err error) {
	certPEM, keyPEM, err := ca.issuePEM(name, usage)
	if err != nil {
		return "", "", "", err
	}

	certFile = filepath.Join(dir, name+".crt")
	keyFile = filepath.Join(dir, name+".key")
	rootFile = filepath.Join(dir, "rootCA.pem")
	for file, data := range map[string][]byte{
		certFile: certPEM,
		keyFile:  keyPEM,
		rootFile: ca.PEM,
	} {
		if err := os.WriteFile(file, data, 0o600); err != nil {
			return "", "", "", err
		}
	}
	return certFile, keyFile, rootFile, nil
}

func (ca *CertificateAuthority) issuePEM(name string, usage x509.ExtKeyUsage) (certPEM, keyPEM []byte, err error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, err
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 62))
	if err != nil {
		return nil, nil, err
	}

	template := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: name},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{usage},
		DNSNames:     []string{name},
	}
	if ip := net.ParseIP(name); ip != nil {
		template.IPAddresses = []net.IP{ip}
		template.DNSNames = nil
	}

	der, err := x509.CreateCertificate(rand.Reader, template, ca.cert, &key.PublicKey, ca.key)
	if err != nil {
		return nil, nil, fmt.Errorf("issuing certificate for %s: %w", name, err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, nil, err
	}

	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	return certPEM, keyPEM, nil
}
