package gearjob

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// serverConfig creates a TLS configuration for a server with mTLS
// authentication. It requires the server certificate and key files and the
// client CA certificate file. It enforces TLS version 1.3 and requires and
// verifies client certificates.
func (f TLSFiles) serverConfig() (*tls.Config, error) {
	if f.CA == "" {
		return nil, fmt.Errorf("%w: client CA cert file is required", ErrCASetup)
	}
	certificate, err := f.loadKeyPair("server")
	if err != nil {
		return nil, err
	}
	clientCAs, err := newCertPool(f.CA)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates: []tls.Certificate{certificate},
		ClientCAs:    clientCAs,
		ClientAuth:   tls.RequireAndVerifyClientCert,
		MinVersion:   tls.VersionTLS13,
	}, nil
}

// clientConfig creates a TLS configuration for a client with mTLS
// authentication. It requires the client certificate and key files. The
// server CA file is optional, the system roots are used without it. It
// enforces TLS version 1.3.
func (f TLSFiles) clientConfig() (*tls.Config, error) {
	certificate, err := f.loadKeyPair("client")
	if err != nil {
		return nil, err
	}
	rootCAs, err := newCertPool(f.CA)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates: []tls.Certificate{certificate},
		RootCAs:      rootCAs,
		MinVersion:   tls.VersionTLS13,
	}, nil
}

func (f TLSFiles) loadKeyPair(side string) (tls.Certificate, error) {
	certificate, err := tls.LoadX509KeyPair(f.Cert, f.Key)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("%w: %s cert file %q, key file %q: %w", ErrCertLoad, side, f.Cert, f.Key, err)
	}
	return certificate, nil
}

// newCertPool creates a x509.CertPool.
//
// If the provided CA certificate file path is empty, it attempts to load the
// system's certificate pool. If the file path is not empty, it loads the
// certificates from the specified file.
func newCertPool(caCertFile string) (*x509.CertPool, error) {
	if caCertFile == "" {
		certPool, err := x509.SystemCertPool()
		if err != nil {
			return nil, fmt.Errorf("%w: cannot get system cert pool: %w", ErrCASetup, err)
		}
		return certPool, nil
	}
	certPool := x509.NewCertPool()
	b, err := os.ReadFile(caCertFile) //nolint:gosec // G304: Potential file inclusion via variable
	if err != nil {
		return nil, fmt.Errorf("%w: cannot read %q: %w", ErrCASetup, caCertFile, err)
	}
	if !certPool.AppendCertsFromPEM(b) {
		return nil, fmt.Errorf("%w: cannot append %q", ErrCASetup, caCertFile)
	}
	return certPool, nil
}
