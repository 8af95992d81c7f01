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

import "time"

// CliConfig is the flat, CLI-flag-destination shape. Build turns it into
// a session.Config after validation.
type CliConfig struct {
	LogLevel  string
	LogFormat string

	Host string
	Port string

	Username     string
	Password     string
	PasswordFile string
	AuthMethod   string

	Mailbox string
	Maildir string

	UseSSL        bool
	TLSSkipVerify bool
	Cipher        string
	Fingerprint   string

	GreetingWait time.Duration
	Del          bool

	Debug bool
}
