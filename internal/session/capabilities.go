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
	"strings"
	"sync"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
)

// capabilitySet records capability codes volunteered on a later,
// genuinely unsolicited status response — one arriving after the greeting
// and after LOGIN, observed through the go-imap client's asynchronous
// Updates channel. It does NOT see greeting- or LOGIN-carried capability
// data: go-imap writes both straight into its own private cache
// (client.Client.gotStatusCaps), never onto Updates, so decisions that
// need to know about those use client.Support instead (see doCapabilities
// and handleLogin). This set exists purely so drainUpdates has somewhere
// to put what it genuinely observes, for logging.
type capabilitySet struct {
	mu   sync.Mutex
	caps map[string]struct{}
}

func (c *capabilitySet) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.caps = nil
}

func (c *capabilitySet) addAll(tokens []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.caps == nil {
		c.caps = make(map[string]struct{}, len(tokens))
	}
	for _, t := range tokens {
		c.caps[strings.ToUpper(t)] = struct{}{}
	}
}

// drainUpdates runs for the lifetime of the connection, recording
// CAPABILITY status codes into the mutex-guarded s.capabilities and
// logging every other update (mailbox updates included). It never makes a
// protocol decision itself — those stay single-threaded in dispatch().
func (s *Session) drainUpdates() {
	for upd := range s.updates {
		switch v := upd.(type) {
		case *client.StatusUpdate:
			if v.Status != nil && v.Status.Code == imap.CodeCapability {
				tokens := make([]string, 0, len(v.Status.Arguments))
				for _, a := range v.Status.Arguments {
					if tok, ok := a.(string); ok {
						tokens = append(tokens, tok)
					}
				}
				s.capabilities.clear()
				s.capabilities.addAll(tokens)
				s.logger.WithField("capabilities", tokens).Debug("capability_status_code_observed")
			}
		case *client.MailboxUpdate:
			s.logger.WithField("mailbox", v.Mailbox).Trace("mailbox_update_observed")
		default:
			s.logger.Trace("update_observed")
		}
	}
}
