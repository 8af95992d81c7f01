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

import (
	"sort"

	"github.com/emersion/go-imap"
)

// flagsBuffer accumulates the Maildir-flag characters implied by the IMAP
// flags seen on a single FETCH response. It is reset at the start of every
// message (imap_data_fetch_begin in the original parser callback naming).
type flagsBuffer struct {
	chars map[byte]struct{}
}

func (b *flagsBuffer) reset() {
	b.chars = nil
}

// add maps a single IMAP flag token onto its Maildir character, if any.
// \Recent and \Deleted carry no Maildir representation and are ignored.
func (b *flagsBuffer) add(flag string) {
	var c byte
	switch flag {
	case imap.AnsweredFlag:
		c = 'R'
	case imap.SeenFlag:
		c = 'S'
	case imap.FlaggedFlag:
		c = 'F'
	case imap.DraftFlag:
		c = 'D'
	default:
		return
	}
	if b.chars == nil {
		b.chars = make(map[byte]struct{})
	}
	b.chars[c] = struct{}{}
}

// empty reports whether any Maildir-representable flag was seen.
func (b *flagsBuffer) empty() bool {
	return len(b.chars) == 0
}

// sorted returns the Maildir flag suffix in ASCII-ascending order, e.g. "RS".
func (b *flagsBuffer) sorted() string {
	if len(b.chars) == 0 {
		return ""
	}
	out := make([]byte, 0, len(b.chars))
	for c := range b.chars {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return string(out)
}
