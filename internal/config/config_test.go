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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildRequiresPasswordOrPasswordFile(t *testing.T) {
	cfg := &CliConfig{Username: "alice", Host: "imap.example.com"}

	_, err := cfg.Build()
	assert.Error(t, err)
}

func TestBuildRequiresUsername(t *testing.T) {
	cfg := &CliConfig{Host: "imap.example.com", Password: "secret"}

	_, err := cfg.Build()
	assert.Error(t, err)
}

func TestBuildReadsPasswordFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "password")
	require.NoError(t, os.WriteFile(path, []byte("sekrit\n"), 0o600))

	cfg := &CliConfig{Username: "alice", Host: "imap.example.com", PasswordFile: path}

	sc, err := cfg.Build()
	require.NoError(t, err)
	assert.Equal(t, "sekrit", sc.Password)
}

func TestBuildPlainAuthMethodSetsSASL(t *testing.T) {
	cfg := &CliConfig{
		Username:   "alice",
		Password:   "secret",
		Host:       "imap.example.com",
		AuthMethod: "PLAIN",
	}

	sc, err := cfg.Build()
	require.NoError(t, err)
	assert.True(t, sc.UseSASLPlain)
}

func TestBuildRejectsUnknownCipherSuite(t *testing.T) {
	cfg := &CliConfig{
		Username: "alice",
		Password: "secret",
		Host:     "imap.example.com",
		Cipher:   "TLS_NOT_A_REAL_SUITE",
	}

	_, err := cfg.Build()
	assert.Error(t, err)
}

func TestBuildResolvesCipherSuiteNames(t *testing.T) {
	cfg := &CliConfig{
		Username: "alice",
		Password: "secret",
		Host:     "imap.example.com",
		Cipher:   "TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256",
	}

	sc, err := cfg.Build()
	require.NoError(t, err)
	assert.Len(t, sc.CipherSuites, 1)
}

func TestDefaultValues(t *testing.T) {
	def := Default()
	assert.Equal(t, "993", def.Port)
	assert.True(t, def.UseSSL)
}
