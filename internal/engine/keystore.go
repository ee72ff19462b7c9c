package engine

import (
	"bytes"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/pkcs12"
)

// LoadKeystore reads a server certificate and private key from a PKCS#12
// archive or a PEM bundle.
//
// For PKCS#12 the store password is tried first and the key password second,
// since both protect the same archive. For PEM the certificate blocks are
// plaintext and an encrypted RSA/EC key block is opened with the key password
// (or the store password when no key password is set).
func LoadKeystore(path, password, keyPassword string) (tls.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("%w: failed to read %s: %w", ErrKeystore, path, err)
	}

	if bytes.Contains(data, []byte("-----BEGIN")) {
		if keyPassword == "" {
			keyPassword = password
		}
		return loadPEMKeystore(data, keyPassword)
	}
	return loadPKCS12Keystore(data, password, keyPassword)
}

func loadPKCS12Keystore(data []byte, password, keyPassword string) (tls.Certificate, error) {
	blocks, err := pkcs12.ToPEM(data, password)
	if errors.Is(err, pkcs12.ErrIncorrectPassword) && keyPassword != "" && keyPassword != password {
		blocks, err = pkcs12.ToPEM(data, keyPassword)
	}
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("%w: failed to decode PKCS#12 keystore: %w", ErrKeystore, err)
	}

	var pemData []byte
	for _, b := range blocks {
		pemData = append(pemData, pem.EncodeToMemory(b)...)
	}

	cert, err := tls.X509KeyPair(pemData, pemData)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("%w: %w", ErrKeystore, err)
	}
	return cert, nil
}

func loadPEMKeystore(data []byte, keyPassword string) (tls.Certificate, error) {
	var certPEM, keyPEM []byte

	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}

		switch {
		case block.Type == "CERTIFICATE":
			certPEM = append(certPEM, pem.EncodeToMemory(block)...)
		case block.Type == "ENCRYPTED PRIVATE KEY":
			return tls.Certificate{}, fmt.Errorf("%w: PKCS#8 encrypted keys are not supported, use PKCS#12", ErrKeystore)
		case strings.HasSuffix(block.Type, "PRIVATE KEY"):
			//nolint:staticcheck // legacy RFC 1423 encryption is what PEM keystores use
			if x509.IsEncryptedPEMBlock(block) {
				der, err := x509.DecryptPEMBlock(block, []byte(keyPassword))
				if err != nil {
					return tls.Certificate{}, fmt.Errorf("%w: failed to decrypt private key: %w", ErrKeystore, err)
				}
				block = &pem.Block{Type: block.Type, Bytes: der}
			}
			keyPEM = pem.EncodeToMemory(block)
		}
	}

	if certPEM == nil {
		return tls.Certificate{}, fmt.Errorf("%w: no certificate found", ErrKeystore)
	}
	if keyPEM == nil {
		return tls.Certificate{}, fmt.Errorf("%w: no private key found", ErrKeystore)
	}

	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("%w: %w", ErrKeystore, err)
	}
	return cert, nil
}

// NewTLSConfig builds the server TLS configuration for a keystore certificate
func NewTLSConfig(cert tls.Certificate) *tls.Config {
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
		NextProtos:   []string{"http/1.1"},
	}
}
