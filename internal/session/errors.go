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

package session

import "errors"

// Sentinel errors for the taxonomy in spec §7. Transport and TLS errors
// surface as whatever the underlying library returns, wrapped with %w;
// these are the ones the session itself raises.
var (
	// ErrLoginDisabled is Protocol fatal: the server advertised
	// LOGINDISABLED, so the session stops before sending LOGIN.
	ErrLoginDisabled = errors.New("session: server advertises LOGINDISABLED")

	// ErrSignalTwice is Signal fatal: a second SIGINT/SIGTERM arrived
	// while the first was still being honoured.
	ErrSignalTwice = errors.New("session: received signal twice")

	// ErrUnreachableDispatch marks a dispatcher entry that spec §4.1
	// says must never be reached (FETCHING, LOGGING_OUT as the *current*
	// state at dispatch time indicates a programming error upstream).
	ErrUnreachableDispatch = errors.New("session: dispatcher reached an in-flight state")
)
