// Package pki provides the cryptographic collaborator for entitlement
// certificate issuance: key pair generation, PEM codecs, and X.509
// construction signed by the service's issuing authority.
package pki

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/pem"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"charter/internal/cert/extensions"
)

// oidUserID is the LDAP uid attribute, used to carry the consumer UUID in
// the subject DN (CN=<name>, UID=<uuid>).
var oidUserID = asn1.ObjectIdentifier{0, 9, 2342, 19200300, 100, 1, 1}

// Authority is the issuing key material all entitlement certificates are
// signed with.
type Authority struct {
	cert *x509.Certificate
	key  *rsa.PrivateKey
}

// NewAuthority generates a self-signed issuing authority.
func NewAuthority(commonName string, keyBits int, validity time.Duration) (*Authority, error) {
	key, err := rsa.GenerateKey(rand.Reader, keyBits)
	if err != nil {
		return nil, fmt.Errorf("generate authority key: %w", err)
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: commonName},
		NotBefore:             now,
		NotAfter:              now.Add(validity),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("self-sign authority certificate: %w", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("parse authority certificate: %w", err)
	}

	return &Authority{cert: cert, key: key}, nil
}

// Certificate returns the authority's own certificate.
func (a *Authority) Certificate() *x509.Certificate {
	return a.cert
}

// CreateCertificate builds and signs an entitlement certificate bound to the
// consumer's public key, with the extension set embedded as custom attribute
// OIDs carrying UTF8String values.
func (a *Authority) CreateCertificate(consumerName, consumerUUID string,
	exts []extensions.Extension, notBefore, notAfter time.Time,
	pub *rsa.PublicKey, serial *big.Int) ([]byte, error) {

	encoded, err := encodeExtensions(exts)
	if err != nil {
		return nil, err
	}

	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			CommonName: consumerName,
			ExtraNames: []pkix.AttributeTypeAndValue{
				{Type: oidUserID, Value: consumerUUID},
			},
		},
		NotBefore:       notBefore,
		NotAfter:        notAfter,
		KeyUsage:        x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:     []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
		ExtraExtensions: encoded,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, a.cert, pub, a.key)
	if err != nil {
		return nil, fmt.Errorf("sign certificate: %w", err)
	}
	return der, nil
}

// GenerateKeyPair produces a consumer key pair.
func GenerateKeyPair(bits int) (*rsa.PrivateKey, error) {
	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("generate key pair: %w", err)
	}
	return key, nil
}

// EncodePrivateKeyPEM renders a private key as a PEM block.
func EncodePrivateKeyPEM(key *rsa.PrivateKey) []byte {
	return pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
}

// ParsePrivateKeyPEM parses a PEM encoded private key.
func ParsePrivateKeyPEM(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return key, nil
}

// EncodeCertificatePEM renders certificate DER bytes as a PEM block.
func EncodeCertificatePEM(der []byte) []byte {
	return pem.EncodeToMemory(&pem.Block{
		Type:  "CERTIFICATE",
		Bytes: der,
	})
}

// ParseCertificatePEM parses a PEM encoded certificate.
func ParseCertificatePEM(data []byte) (*x509.Certificate, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse certificate: %w", err)
	}
	return cert, nil
}

func encodeExtensions(exts []extensions.Extension) ([]pkix.Extension, error) {
	encoded := make([]pkix.Extension, 0, len(exts))
	for _, e := range exts {
		oid, err := parseOID(e.OID)
		if err != nil {
			return nil, fmt.Errorf("extension %q: %w", e.OID, err)
		}
		value, err := asn1.MarshalWithParams(e.Value, "utf8")
		if err != nil {
			return nil, fmt.Errorf("extension %q: marshal value: %w", e.OID, err)
		}
		encoded = append(encoded, pkix.Extension{Id: oid, Value: value})
	}
	return encoded, nil
}

func parseOID(dotted string) (asn1.ObjectIdentifier, error) {
	parts := strings.Split(dotted, ".")
	oid := make(asn1.ObjectIdentifier, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid OID arc %q", p)
		}
		oid = append(oid, n)
	}
	return oid, nil
}
