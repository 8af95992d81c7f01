/*
 * imapdl - IMAP to Maildir retrieval client.
 *
 * This program is free software; you can redistribute it and/or modify
 * it under the terms of the GNU General Public License version 2, and only
 * version 2 as published by the Free Software Foundation.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program; if not, write to the Free Software
 * Foundation, Inc., 59 Temple Place, Suite 330, Boston, MA  02111-1307  USA
 */

package tlsverify

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha1" //nolint:gosec // test fixture, matches production fingerprinting
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"io"
	"math/big"
	"strings"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func selfSignedCert(t *testing.T, cn string) *x509.Certificate {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    time.Unix(0, 0),
		NotAfter:     time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC),
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return cert
}

func fingerprintOf(cert *x509.Certificate) string {
	sum := sha1.Sum(cert.Raw) //nolint:gosec
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

func nullLogger() *log.Entry {
	logger := log.New()
	logger.SetOutput(io.Discard)
	return log.NewEntry(logger)
}

func TestVerifyPeerCertificateAcceptsMatchingFingerprint(t *testing.T) {
	cert := selfSignedCert(t, "imap.example.com")
	p := NewPolicy("imap.example.com", fingerprintOf(cert), nullLogger())

	err := p.verifyPeerCertificate([][]byte{cert.Raw}, nil)
	assert.NoError(t, err)
}

func TestVerifyPeerCertificateRejectsMismatchedFingerprint(t *testing.T) {
	cert := selfSignedCert(t, "imap.example.com")
	p := NewPolicy("imap.example.com", strings.Repeat("00", 20), nullLogger())

	err := p.verifyPeerCertificate([][]byte{cert.Raw}, nil)
	assert.ErrorIs(t, err, errFingerprintMismatch)
}

func TestVerifyPeerCertificateFingerprintIsCaseInsensitive(t *testing.T) {
	cert := selfSignedCert(t, "imap.example.com")
	p := NewPolicy("imap.example.com", strings.ToLower(fingerprintOf(cert)), nullLogger())

	err := p.verifyPeerCertificate([][]byte{cert.Raw}, nil)
	assert.NoError(t, err)
}

func TestVerifyChainAndHostnameRejectsEmptyChain(t *testing.T) {
	p := NewPolicy("imap.example.com", "", nullLogger())
	err := p.verifyChainAndHostname(nil)
	assert.ErrorIs(t, err, errEmptyChain)
}

func TestVerifyPeerCertificateFallsBackToChainValidationWithoutPin(t *testing.T) {
	cert := selfSignedCert(t, "imap.example.com")
	p := NewPolicy("imap.example.com", "", nullLogger())

	// A self-signed cert outside the system trust store fails chain
	// validation, but it must take the fallback path rather than the
	// pinning path when no fingerprint is configured.
	err := p.verifyPeerCertificate([][]byte{cert.Raw}, nil)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, errFingerprintMismatch)
}
