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
	"bytes"
	"errors"
	"net"
	"regexp"
	"testing"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/backend/memory"
	"github.com/emersion/go-imap/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// explicitUidExpungeCommand matches a client-issued "UID EXPUNGE <seqset>"
// line, distinguishing it from the plain "EXPUNGE" fallback doExpunge sends
// when the server hasn't advertised UIDPLUS.
var explicitUidExpungeCommand = regexp.MustCompile(`(?m)^\S+ UID EXPUNGE \S+\r?$`)

var explicitExpungeCommand = regexp.MustCompile(`(?m)^\S+ EXPUNGE\r?$`)

// uidplusExpunge replaces go-imap test server's builtin EXPUNGE handler with
// one that also implements server.UidHandler, so "UID EXPUNGE <seqset>" has
// somewhere to dispatch to. The builtin github.com/emersion/go-imap/backend/memory
// + server pair has no UIDPLUS support at all (confirmed by grep: no
// UIDPLUS/Uidplus symbol anywhere under those two packages), so this is the
// minimal extension needed to exercise doUIDExpunge end to end.
type uidplusExpunge struct {
	seqSet *imap.SeqSet
}

func (cmd *uidplusExpunge) Command() *imap.Command {
	if cmd.seqSet == nil {
		return &imap.Command{Name: "EXPUNGE"}
	}
	return &imap.Command{Name: "EXPUNGE", Arguments: []interface{}{cmd.seqSet}}
}

func (cmd *uidplusExpunge) Parse(fields []interface{}) error {
	if len(fields) == 0 {
		cmd.seqSet = nil
		return nil
	}
	raw, ok := fields[0].(string)
	if !ok {
		return errors.New("uidplusExpunge: invalid sequence set")
	}
	seqSet, err := imap.ParseSeqSet(raw)
	if err != nil {
		return err
	}
	cmd.seqSet = seqSet
	return nil
}

// Handle implements plain EXPUNGE: every \Deleted message goes, exactly
// like server.Expunge.Handle.
func (cmd *uidplusExpunge) Handle(conn server.Conn) error {
	ctx := conn.Context()
	if ctx.Mailbox == nil {
		return server.ErrNoMailboxSelected
	}
	if ctx.MailboxReadOnly {
		return server.ErrMailboxReadOnly
	}
	return ctx.Mailbox.Expunge()
}

// UidHandle implements UID EXPUNGE (RFC 4315 §2.1): only messages that are
// both \Deleted and named in seqSet are removed. Messages \Deleted but
// outside seqSet are spared by lifting \Deleted off them for the duration
// of the expunge, then restoring it.
func (cmd *uidplusExpunge) UidHandle(conn server.Conn) error {
	ctx := conn.Context()
	if ctx.Mailbox == nil {
		return server.ErrNoMailboxSelected
	}
	if ctx.MailboxReadOnly {
		return server.ErrMailboxReadOnly
	}

	deletedUids, err := ctx.Mailbox.SearchMessages(true, &imap.SearchCriteria{WithFlags: []string{imap.DeletedFlag}})
	if err != nil {
		return err
	}

	var spared imap.SeqSet
	for _, uid := range deletedUids {
		if cmd.seqSet == nil || !cmd.seqSet.Contains(uid) {
			spared.AddNum(uid)
		}
	}

	if len(spared.Set) > 0 {
		if err := ctx.Mailbox.UpdateMessagesFlags(true, &spared, imap.RemoveFlags, []string{imap.DeletedFlag}); err != nil {
			return err
		}
	}

	if err := ctx.Mailbox.Expunge(); err != nil {
		return err
	}

	if len(spared.Set) > 0 {
		if err := ctx.Mailbox.UpdateMessagesFlags(true, &spared, imap.AddFlags, []string{imap.DeletedFlag}); err != nil {
			return err
		}
	}
	return nil
}

// uidplusExtension advertises UIDPLUS and overrides the builtin EXPUNGE
// handler with uidplusExpunge, per server.Server.Command's documented
// "Extensions can override builtin commands" precedence.
type uidplusExtension struct{}

func (uidplusExtension) Capabilities(c server.Conn) []string {
	return []string{"UIDPLUS"}
}

func (uidplusExtension) Command(name string) server.HandlerFactory {
	if name != "EXPUNGE" {
		return nil
	}
	return func() server.Handler { return &uidplusExpunge{} }
}

// buildUidPlusTestIMAPServer is buildTestIMAPServer plus uidplusExtension,
// pre-seeding one message already flagged \Seen \Answered, mirroring the
// scenario where the Session fetches it and then deletes it via UIDPLUS.
func buildUidPlusTestIMAPServer(t *testing.T) (host, port string, mb *memory.Mailbox) {
	be := memory.New()
	user, err := be.Login(nil, "username", "password")
	require.NoError(t, err)

	mbox, err := user.GetMailbox("INBOX")
	require.NoError(t, err)

	mailbox := mbox.(*memory.Mailbox)
	mailbox.Messages = []*memory.Message{
		{
			Uid:   42,
			Date:  time.Unix(0, 0),
			Flags: []string{imap.SeenFlag, imap.AnsweredFlag},
			Size:  0,
			Body: []byte("From: sender@example.com\r\n" +
				"To: username@example.com\r\n" +
				"Subject: hello\r\n" +
				"Date: Mon, 01 Jan 2024 00:00:00 +0000\r\n" +
				"\r\n" +
				"body text\r\n"),
		},
	}

	s := server.New(be)
	s.AllowInsecureAuth = true
	s.Enable(uidplusExtension{})
	t.Cleanup(func() { _ = s.Close() })

	l, err := net.Listen("tcp", "localhost:0")
	require.NoError(t, err)

	go func() { _ = s.Serve(l) }()

	h, p, err := net.SplitHostPort(l.Addr().String())
	require.NoError(t, err)
	return h, p, mailbox
}

// TestSessionDeletesViaUidExpungeWhenUidPlusSupported covers spec scenario
// 3: a seen+answered message gets deleted through UID STORE +
// UID EXPUNGE once the server advertises UIDPLUS, instead of the plain
// EXPUNGE fallback that TestSessionDeleteMarksAndExpunges exercises against
// the plain (non-UIDPLUS) test server.
func TestSessionDeletesViaUidExpungeWhenUidPlusSupported(t *testing.T) {
	host, port, mb := buildUidPlusTestIMAPServer(t)

	var wire bytes.Buffer
	maildir := t.TempDir()
	sess, err := New(Config{
		Host:         host,
		Port:         port,
		Username:     "username",
		Password:     "password",
		Mailbox:      "INBOX",
		Maildir:      maildir,
		UseSSL:       false,
		GreetingWait: 50 * time.Millisecond,
		Delete:       true,
		Debug:        &wire,
	}, testLogger())
	require.NoError(t, err)

	err = sess.Run(nil)
	assert.NoError(t, err)
	assert.Equal(t, StateEnd, sess.state)
	assert.Equal(t, 1, sess.fetchedMessages)
	assert.Len(t, mb.Messages, 0)

	trace := wire.String()
	assert.True(t, explicitUidExpungeCommand.MatchString(trace), "expected a UID EXPUNGE command, got trace:\n%s", trace)
	assert.False(t, explicitExpungeCommand.MatchString(trace), "expected no plain EXPUNGE command once UIDPLUS is used, got trace:\n%s", trace)
}
