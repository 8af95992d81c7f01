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

package imapconn

import (
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-sasl"
)

// Authenticator performs the LOGIN step. Two implementations exist: plain
// username/password LOGIN, and SASL (currently PLAIN) via go-sasl, mirroring
// the two auth paths the teacher repo supports.
type Authenticator interface {
	Authenticate(c *client.Client) error
}

type plainAuthenticator struct {
	username, password string
}

// NewPlainAuthenticator performs a normal IMAP LOGIN command.
func NewPlainAuthenticator(username, password string) Authenticator {
	return &plainAuthenticator{username: username, password: password}
}

func (a *plainAuthenticator) Authenticate(c *client.Client) error {
	return c.Login(a.username, a.password)
}

type saslAuthenticator struct {
	username, password string
}

// NewSASLPlainAuthenticator authenticates via SASL PLAIN instead of LOGIN.
func NewSASLPlainAuthenticator(username, password string) Authenticator {
	return &saslAuthenticator{username: username, password: password}
}

func (a *saslAuthenticator) Authenticate(c *client.Client) error {
	return c.Authenticate(sasl.NewPlainClient("", a.username, a.password))
}
