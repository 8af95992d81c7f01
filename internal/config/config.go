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

// Package config is the CLI/configuration collaborator spec §1 treats as
// out of scope: urfave/cli flag definitions and validation, producing the
// session.Config the core actually runs against.
package config

import (
	"crypto/tls"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/maybeLee/imapdl/internal/session"
)

func Default() CliConfig {
	return CliConfig{
		LogLevel:     "info",
		LogFormat:    "text",
		Port:         "993",
		AuthMethod:   "normal",
		UseSSL:       true,
		GreetingWait: 500 * time.Millisecond,
	}
}

func (cfg *CliConfig) Parameters() []cli.Flag {
	def := Default()

	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "logging level",
			EnvVars:     []string{"IMAPDL_LOG_LEVEL"},
			Destination: &cfg.LogLevel,
			Value:       def.LogLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "logging format (text/json)",
			EnvVars:     []string{"IMAPDL_LOG_FORMAT"},
			Destination: &cfg.LogFormat,
			Value:       def.LogFormat,
		},
		&cli.StringFlag{
			Name:        "host",
			Usage:       "imap server host",
			EnvVars:     []string{"IMAPDL_HOST"},
			Destination: &cfg.Host,
			Required:    true,
		},
		&cli.StringFlag{
			Name:        "port",
			Usage:       "imap server port",
			EnvVars:     []string{"IMAPDL_PORT"},
			Destination: &cfg.Port,
			Value:       def.Port,
		},
		&cli.StringFlag{
			Name:        "auth-method",
			Usage:       "auth method (normal, plain)",
			EnvVars:     []string{"IMAPDL_AUTH_METHOD"},
			Destination: &cfg.AuthMethod,
			Value:       def.AuthMethod,
		},
		&cli.StringFlag{
			Name:        "username",
			Usage:       "imap username",
			EnvVars:     []string{"IMAPDL_USERNAME"},
			Destination: &cfg.Username,
			Required:    true,
		},
		&cli.StringFlag{
			Name:        "password",
			Usage:       "imap password",
			EnvVars:     []string{"IMAPDL_PASSWORD"},
			Destination: &cfg.Password,
		},
		&cli.StringFlag{
			Name:        "password-file",
			Usage:       "file containing the imap password",
			EnvVars:     []string{"IMAPDL_PASSWORD_FILE"},
			Destination: &cfg.PasswordFile,
		},
		&cli.StringFlag{
			Name:        "mailbox",
			Usage:       "mailbox to drain",
			EnvVars:     []string{"IMAPDL_MAILBOX"},
			Destination: &cfg.Mailbox,
			Value:       "INBOX",
		},
		&cli.StringFlag{
			Name:        "maildir",
			Usage:       "maildir root to deliver into",
			EnvVars:     []string{"IMAPDL_MAILDIR"},
			Destination: &cfg.Maildir,
			Required:    true,
		},
		&cli.BoolFlag{
			Name:        "use-ssl",
			Usage:       "connect over TLS",
			EnvVars:     []string{"IMAPDL_USE_SSL"},
			Destination: &cfg.UseSSL,
			Value:       def.UseSSL,
		},
		&cli.BoolFlag{
			Name:        "tls-skip-verify",
			Usage:       "disable all certificate verification. for debugging only",
			EnvVars:     []string{"IMAPDL_TLS_SKIP_VERIFY"},
			Destination: &cfg.TLSSkipVerify,
			Hidden:      true,
		},
		&cli.StringFlag{
			Name:        "cipher",
			Usage:       "comma-separated TLS cipher suite names, e.g. TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256",
			EnvVars:     []string{"IMAPDL_CIPHER"},
			Destination: &cfg.Cipher,
		},
		&cli.StringFlag{
			Name:        "fingerprint",
			Usage:       "pinned hex SHA-1 fingerprint of the server's leaf certificate",
			EnvVars:     []string{"IMAPDL_FINGERPRINT"},
			Destination: &cfg.Fingerprint,
		},
		&cli.DurationFlag{
			Name:        "greeting-wait",
			Usage:       "how long to wait for the server greeting to volunteer capabilities",
			EnvVars:     []string{"IMAPDL_GREETING_WAIT"},
			Destination: &cfg.GreetingWait,
			Value:       def.GreetingWait,
		},
		&cli.BoolFlag{
			Name:        "del",
			Usage:       "mark fetched messages deleted and expunge them",
			EnvVars:     []string{"IMAPDL_DEL"},
			Destination: &cfg.Del,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "dump the raw IMAP protocol exchange to stderr",
			EnvVars:     []string{"IMAPDL_DEBUG"},
			Destination: &cfg.Debug,
		},
	}
}

// Build validates the parsed flags and produces the session.Config the
// core actually runs against.
func (cfg *CliConfig) Build() (session.Config, error) {
	if cfg.Username == "" {
		return session.Config{}, fmt.Errorf("config: \"username\" is required")
	}

	password, err := cfg.resolvePassword()
	if err != nil {
		return session.Config{}, err
	}

	suites, err := parseCipherSuites(cfg.Cipher)
	if err != nil {
		return session.Config{}, err
	}

	sc := session.Config{
		Host:          cfg.Host,
		Port:          cfg.Port,
		Username:      cfg.Username,
		Password:      password,
		Mailbox:       cfg.Mailbox,
		Maildir:       cfg.Maildir,
		UseSSL:        cfg.UseSSL,
		TLSSkipVerify: cfg.TLSSkipVerify,
		CipherSuites:  suites,
		Fingerprint:   cfg.Fingerprint,
		GreetingWait:  cfg.GreetingWait,
		Delete:        cfg.Del,
		UseSASLPlain:  strings.EqualFold(cfg.AuthMethod, "plain"),
	}

	if cfg.Debug {
		sc.Debug = os.Stderr
	}

	return sc, nil
}

func (cfg *CliConfig) resolvePassword() (string, error) {
	if cfg.Password != "" {
		return cfg.Password, nil
	}
	if cfg.PasswordFile != "" {
		b, err := os.ReadFile(cfg.PasswordFile)
		if err != nil {
			return "", fmt.Errorf("config: reading password-file: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}
	return "", fmt.Errorf("config: one of \"password\" or \"password-file\" is required")
}

// parseCipherSuites resolves a comma-separated list of Go's named cipher
// suites (crypto/tls.CipherSuites()) into the uint16 IDs tls.Config wants.
// Empty input leaves the default (nil → Go's own secure default list).
func parseCipherSuites(list string) ([]uint16, error) {
	if list == "" {
		return nil, nil
	}

	byName := make(map[string]uint16)
	for _, s := range tls.CipherSuites() {
		byName[s.Name] = s.ID
	}

	var out []uint16
	for _, name := range strings.Split(list, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		id, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("config: unknown cipher suite %q", name)
		}
		out = append(out, id)
	}
	return out, nil
}
