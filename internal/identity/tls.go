package identity

import (
	"crypto/tls"
	"crypto/x509"

	"github.com/pkg/errors"
)

// acceptAnyCertificate is shared by both factories: Go's crypto/tls
// always verifies the TLS 1.2/1.3 handshake signature against the
// certificate's public key as part of establishing the session — that
// check cannot be disabled and is what gives the connection its
// cryptographic peer binding. InsecureSkipVerify only turns off hostname
// and trust-chain checking, which is exactly the "accept any peer
// certificate" trust model this node uses. This callback additionally
// rejects a certificate that doesn't even parse, which a bare
// InsecureSkipVerify would silently let through.
func acceptAnyCertificate(rawCerts [][]byte, _ [][]*x509.Certificate) error {
	if len(rawCerts) == 0 {
		return errors.New("no certificate presented")
	}
	if _, err := x509.ParseCertificate(rawCerts[0]); err != nil {
		return errors.Wrap(err, "parse peer certificate")
	}
	return nil
}

// Factories bundles the client and server TLS configurations built from
// the same certificate+key, installed once and shared for the lifetime
// of the process.
type Factories struct {
	Server *tls.Config
	Client *tls.Config
}

// NewFactories builds the client/server TLS config pair from a DER
// certificate and matching DER private key, both presented as this
// node's credential in both directions.
func NewFactories(certDER, keyDER []byte) (*Factories, error) {
	key, err := x509.ParsePKCS1PrivateKey(keyDER)
	if err != nil {
		return nil, errors.Wrap(err, "parse private key")
	}
	cert := tls.Certificate{
		Certificate: [][]byte{certDER},
		PrivateKey:  key,
	}

	server := &tls.Config{
		Certificates:          []tls.Certificate{cert},
		ClientAuth:            tls.RequireAnyClientCert,
		InsecureSkipVerify:    true, //nolint:gosec // accept-all trust model
		VerifyPeerCertificate: acceptAnyCertificate,
		MinVersion:            tls.VersionTLS12,
	}

	client := &tls.Config{
		Certificates:          []tls.Certificate{cert},
		InsecureSkipVerify:    true, //nolint:gosec // accept-all trust model
		VerifyPeerCertificate: acceptAnyCertificate,
		MinVersion:            tls.VersionTLS12,
	}

	return &Factories{Server: server, Client: client}, nil
}
