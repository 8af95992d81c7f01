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
	"fmt"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-imap-uidplus"
)

// SupportsUIDPlus reports whether the server has advertised UIDPLUS,
// either in the capability set already known to the client or by issuing
// an explicit CAPABILITY round-trip. It is used to pick the
// STORED → UID EXPUNGE vs STORED → EXPUNGE branch.
func SupportsUIDPlus(c *client.Client) (bool, error) {
	ok, err := uidplus.NewClient(c).SupportUidPlus()
	if err != nil {
		return false, fmt.Errorf("imapconn: checking UIDPLUS support: %w", err)
	}
	return ok, nil
}

// UidExpunge expunges exactly the given UID ranges via UIDPLUS's UID
// EXPUNGE, draining the per-UID channel the library hands back.
func UidExpunge(c *client.Client, seqset *imap.SeqSet) error {
	uc := uidplus.NewClient(c)

	ch := make(chan uint32)
	done := make(chan error, 1)
	go func() { done <- uc.UidExpunge(seqset, ch) }()

	for range ch {
		// draining is all that's required; the session tracks counts
		// separately via the UID accumulator it already built.
	}
	if err := <-done; err != nil {
		return fmt.Errorf("imapconn: uid expunge: %w", err)
	}
	return nil
}
