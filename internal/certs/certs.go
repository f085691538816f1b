// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package certs generates a private CA and server certificates so the gRPC
// listener can serve TLS in development and test environments.
package certs

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/samber/oops"
)

// File names written by Save.
const (
	CAFile   = "ca.crt"
	CAKey    = "ca.key"
	CertFile = "server.crt"
	KeyFile  = "server.key"
)

// Authority is a certificate authority and its signing key.
type Authority struct {
	Certificate *x509.Certificate
	PrivateKey  *ecdsa.PrivateKey
}

// ServerCert is a leaf certificate for a listener.
type ServerCert struct {
	Certificate *x509.Certificate
	PrivateKey  *ecdsa.PrivateKey
}

func newKeyAndSerial() (*ecdsa.PrivateKey, *big.Int, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, oops.Code("CERTS_KEY_FAILED").Wrap(err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, nil, oops.Code("CERTS_SERIAL_FAILED").Wrap(err)
	}
	return key, serial, nil
}

// GenerateAuthority creates a self-signed CA valid for ten years.
func GenerateAuthority(name string) (*Authority, error) {
	key, serial, err := newKeyAndSerial()
	if err != nil {
		return nil, err
	}

	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{"Accounts"},
			CommonName:   name,
		},
		NotBefore:             time.Now().Add(-time.Minute),
		NotAfter:              time.Now().AddDate(10, 0, 0),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, oops.Code("CERTS_CREATE_FAILED").With("name", name).Wrap(err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, oops.Code("CERTS_CREATE_FAILED").With("name", name).Wrap(err)
	}
	return &Authority{Certificate: cert, PrivateKey: key}, nil
}

// IssueServer signs a one-year server certificate for hosts. Entries that
// parse as IP addresses become IP SANs; the rest become DNS SANs.
func (a *Authority) IssueServer(hosts ...string) (*ServerCert, error) {
	if len(hosts) == 0 {
		return nil, oops.Code("CERTS_NO_HOSTS").Errorf("at least one host is required")
	}
	key, serial, err := newKeyAndSerial()
	if err != nil {
		return nil, err
	}

	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{"Accounts"},
			CommonName:   hosts[0],
		},
		NotBefore:   time.Now().Add(-time.Minute),
		NotAfter:    time.Now().AddDate(1, 0, 0),
		KeyUsage:    x509.KeyUsageDigitalSignature,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, h)
		}
	}

	der, err := x509.CreateCertificate(rand.Reader, template, a.Certificate, &key.PublicKey, a.PrivateKey)
	if err != nil {
		return nil, oops.Code("CERTS_CREATE_FAILED").With("hosts", hosts).Wrap(err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, oops.Code("CERTS_CREATE_FAILED").With("hosts", hosts).Wrap(err)
	}
	return &ServerCert{Certificate: cert, PrivateKey: key}, nil
}

// Save writes the authority and, if non-nil, the server pair into dir.
// Keys are written with mode 0600.
func Save(dir string, ca *Authority, server *ServerCert) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return oops.Code("CERTS_SAVE_FAILED").With("dir", dir).Wrap(err)
	}
	if err := writePEM(filepath.Join(dir, CAFile), "CERTIFICATE", ca.Certificate.Raw); err != nil {
		return err
	}
	if err := writeKey(filepath.Join(dir, CAKey), ca.PrivateKey); err != nil {
		return err
	}
	if server == nil {
		return nil
	}
	if err := writePEM(filepath.Join(dir, CertFile), "CERTIFICATE", server.Certificate.Raw); err != nil {
		return err
	}
	return writeKey(filepath.Join(dir, KeyFile), server.PrivateKey)
}

// LoadAuthority reads a CA written by Save.
func LoadAuthority(dir string) (*Authority, error) {
	cert, err := readCertificate(filepath.Join(dir, CAFile))
	if err != nil {
		return nil, err
	}

	keyPath := filepath.Clean(filepath.Join(dir, CAKey))
	keyPEM, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, oops.Code("CERTS_LOAD_FAILED").With("path", keyPath).Wrap(err)
	}
	block, _ := pem.Decode(keyPEM)
	if block == nil {
		return nil, oops.Code("CERTS_LOAD_FAILED").With("path", keyPath).Errorf("no PEM block found")
	}
	key, err := x509.ParseECPrivateKey(block.Bytes)
	if err != nil {
		return nil, oops.Code("CERTS_LOAD_FAILED").With("path", keyPath).Wrap(err)
	}
	return &Authority{Certificate: cert, PrivateKey: key}, nil
}

// ClientTLSConfig returns a client configuration that trusts only the CA in
// caFile.
func ClientTLSConfig(caFile, serverName string) (*tls.Config, error) {
	ca, err := readCertificate(caFile)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	pool.AddCert(ca)
	return &tls.Config{RootCAs: pool, ServerName: serverName, MinVersion: tls.VersionTLS12}, nil
}

func readCertificate(path string) (*x509.Certificate, error) {
	path = filepath.Clean(path)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, oops.Code("CERTS_LOAD_FAILED").With("path", path).Wrap(err)
	}
	block, _ := pem.Decode(data)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, oops.Code("CERTS_LOAD_FAILED").With("path", path).Errorf("no certificate PEM block found")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, oops.Code("CERTS_LOAD_FAILED").With("path", path).Wrap(err)
	}
	return cert, nil
}

func writeKey(path string, key *ecdsa.PrivateKey) error {
	der, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return oops.Code("CERTS_SAVE_FAILED").With("path", path).Wrap(err)
	}
	return writePEM(path, "EC PRIVATE KEY", der)
}

func writePEM(path, blockType string, der []byte) error {
	path = filepath.Clean(path)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return oops.Code("CERTS_SAVE_FAILED").With("path", path).Wrap(err)
	}
	if err := pem.Encode(f, &pem.Block{Type: blockType, Bytes: der}); err != nil {
		_ = f.Close()
		return oops.Code("CERTS_SAVE_FAILED").With("path", path).Wrap(err)
	}
	if err := f.Close(); err != nil {
		return oops.Code("CERTS_SAVE_FAILED").With("path", path).Wrap(err)
	}
	return nil
}
