package identity

import (
	"crypto/x509"
	"testing"
	"time"
)

func TestGenerateCertCommonNameAndValidity(t *testing.T) {
	certDER, keyDER, err := GenerateCert("device-uuid-123")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if cert.Subject.CommonName != "device-uuid-123" {
		t.Fatalf("CN = %s, want device-uuid-123", cert.Subject.CommonName)
	}
	if len(cert.Subject.Organization) != 1 || cert.Subject.Organization[0] != "KDE" {
		t.Fatalf("O = %v, want [KDE]", cert.Subject.Organization)
	}
	if len(cert.Subject.OrganizationalUnit) != 1 || cert.Subject.OrganizationalUnit[0] != "KDE Connect" {
		t.Fatalf("OU = %v, want [KDE Connect]", cert.Subject.OrganizationalUnit)
	}

	now := time.Now()
	if cert.NotBefore.After(now.Add(-6 * 7 * 24 * time.Hour)) {
		t.Fatalf("NotBefore too recent: %v", cert.NotBefore)
	}
	if cert.NotAfter.Before(now.Add(9 * 365 * 24 * time.Hour)) {
		t.Fatalf("NotAfter too soon: %v", cert.NotAfter)
	}

	if len(keyDER) == 0 {
		t.Fatalf("empty key DER")
	}
}

func TestNewFactoriesBuildsUsableConfigs(t *testing.T) {
	certDER, keyDER, err := GenerateCert("device-uuid-456")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	f, err := NewFactories(certDER, keyDER)
	if err != nil {
		t.Fatalf("new factories: %v", err)
	}

	if len(f.Server.Certificates) != 1 || len(f.Client.Certificates) != 1 {
		t.Fatalf("expected one certificate installed on each factory")
	}
	if !f.Server.InsecureSkipVerify || !f.Client.InsecureSkipVerify {
		t.Fatalf("expected hostname/chain verification to be disabled")
	}
	if f.Server.VerifyPeerCertificate == nil || f.Client.VerifyPeerCertificate == nil {
		t.Fatalf("expected a certificate well-formedness check to still run")
	}
}

func TestAcceptAnyCertificateRejectsGarbage(t *testing.T) {
	if err := acceptAnyCertificate([][]byte{[]byte("not a certificate")}, nil); err == nil {
		t.Fatalf("expected malformed certificate to be rejected")
	}
	if err := acceptAnyCertificate(nil, nil); err == nil {
		t.Fatalf("expected no-certificate case to be rejected")
	}
}
