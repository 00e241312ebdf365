// Package identity builds the self-signed TLS identity this node
// presents to every peer, and the client/server TLS factories that
// accept any well-formed peer certificate without hostname or chain
// verification — the reference's "accept all" trust model.
package identity

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"time"

	"github.com/pkg/errors"
)

const (
	certValidityBefore = 7 * 7 * 24 * time.Hour  // 7 weeks
	certValidityAfter  = 10 * 365 * 24 * time.Hour // 10 years
	rsaKeyBits         = 2048
)

// GenerateCert creates a self-signed RSA certificate whose Common Name
// is deviceID, organization "KDE", organizational unit "KDE Connect",
// with validity [now-7w, now+10y]. Returns (certDER, keyDER).
func GenerateCert(deviceID string) (certDER, keyDER []byte, err error) {
	key, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
	if err != nil {
		return nil, nil, errors.Wrap(err, "generate rsa key")
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, nil, errors.Wrap(err, "generate serial number")
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			CommonName:         deviceID,
			Organization:       []string{"KDE"},
			OrganizationalUnit: []string{"KDE Connect"},
		},
		NotBefore:             now.Add(-certValidityBefore),
		NotAfter:              now.Add(certValidityAfter),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, nil, errors.Wrap(err, "create certificate")
	}

	keyDER = x509.MarshalPKCS1PrivateKey(key)
	return der, keyDER, nil
}
