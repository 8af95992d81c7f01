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

// Package imapconn is the thin collaborator between the session and the
// go-imap client library: dialing, authentication, and UIDPLUS detection.
// The session owns *when* these happen; this package only knows *how*.
package imapconn

import (
	"crypto/tls"
	"fmt"

	"github.com/emersion/go-imap/client"
)

// DialConfig carries everything needed to establish the connection, short
// of authentication — spec's startup sequence treats LOGIN as a distinct,
// dispatcher-driven step, not something dial does implicitly.
type DialConfig struct {
	HostPort  string
	UseTLS    bool
	TLSConfig *tls.Config

	// Updates receives unsolicited server data (status updates, mailbox
	// updates) for the session's run loop to observe.
	Updates chan client.Update

	// Debug, if set, causes the raw protocol exchange to be copied here.
	Debug interface {
		Write([]byte) (int, error)
	}
}

// Dial connects and completes the TLS handshake (if configured) but does
// not authenticate. On success the returned client's Updates channel is
// wired to cfg.Updates. That assignment happens after the greeting has
// already been read and parsed, so the greeting's own data (including any
// CAPABILITY status code) never appears on cfg.Updates; only later
// unsolicited data does.
func Dial(cfg *DialConfig) (*client.Client, error) {
	var c *client.Client
	var err error

	if cfg.UseTLS {
		c, err = client.DialTLS(cfg.HostPort, cfg.TLSConfig)
	} else {
		c, err = client.Dial(cfg.HostPort)
	}
	if err != nil {
		return nil, fmt.Errorf("imapconn: dial: %w", err)
	}

	c.Updates = cfg.Updates
	if cfg.Debug != nil {
		c.SetDebug(cfg.Debug)
	}

	return c, nil
}
