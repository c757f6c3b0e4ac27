package transport

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"time"

	"github.com/ben-mansor/muDCN-v2/internal/uerrors"
)

// alpnProtocol is the ALPN identifier offered by both endpoints of the NDN
// over QUIC transport.
const alpnProtocol = "ndn-quic/1"

// generateSelfSignedCert builds an ephemeral ECDSA P-256 certificate valid
// for one year, used as the QUIC server's identity. NDN does not rely on
// a PKI-verified TLS identity for security (that is the job of Data
// signatures, spec §3); the certificate only has to make the handshake
// succeed (standard library only: no pack dependency covers certificate
// minting, see DESIGN.md).
func generateSelfSignedCert() (tls.Certificate, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, uerrors.NewCryptoError("generate key", err)
	}

	serial, err := rand.Int(rand.Reader, big.NewInt(1<<62))
	if err != nil {
		return tls.Certificate{}, uerrors.NewCryptoError("generate serial", err)
	}

	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{Organization: []string{"muDCN forwarder"}, CommonName: "mudcn-forwarder"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
		DNSNames:              []string{"localhost", "mudcn-forwarder"},
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &priv.PublicKey, priv)
	if err != nil {
		return tls.Certificate{}, uerrors.NewCryptoError("create certificate", err)
	}

	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: priv}, nil
}

// serverTLSConfig builds the tls.Config used by the QUIC listener.
func serverTLSConfig() (*tls.Config, error) {
	cert, err := generateSelfSignedCert()
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{alpnProtocol},
		MinVersion:   tls.VersionTLS13,
	}, nil
}

// PeerCertVerifier lets the forwarder plug in its own certificate trust
// policy (e.g. trust-on-first-use pinning) instead of relying on a CA
// chain, which NDN-over-QUIC deployments typically do not have (spec §4.D).
type PeerCertVerifier func(rawCerts [][]byte, verifiedChains [][]*x509.Certificate) error

// clientTLSConfig builds the tls.Config used when dialing a peer. When
// verify is nil, the connection trusts whatever certificate the peer
// presents (NDN's security model lives at the Data-signature layer, not
// the transport layer).
func clientTLSConfig(verify PeerCertVerifier) *tls.Config {
	cfg := &tls.Config{
		NextProtos:         []string{alpnProtocol},
		InsecureSkipVerify: true,
		MinVersion:         tls.VersionTLS13,
	}
	if verify != nil {
		cfg.VerifyPeerCertificate = verify
	}
	return cfg
}
