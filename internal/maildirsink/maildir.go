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

// Package maildirsink implements the Maildir delivery contract: unique
// temp filenames under tmp/, a file-backed byte sink, and an atomic rename
// into new/ or cur/ with the standard flag-info suffix.
package maildirsink

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"
)

// Dir owns the three Maildir subdirectories under root.
type Dir struct {
	root string

	pid     int
	counter atomic.Uint64
}

// Open wraps an existing Maildir root, creating tmp/, new/, cur/ if absent.
func Open(root string) (*Dir, error) {
	d := &Dir{root: root, pid: os.Getpid()}
	for _, sub := range []string{"tmp", "new", "cur"} {
		if err := os.MkdirAll(filepath.Join(root, sub), 0o700); err != nil {
			return nil, fmt.Errorf("maildirsink: creating %s: %w", sub, err)
		}
	}
	return d, nil
}

// Delivery is a single message's write-then-rename lifecycle: a file
// opened exclusively in tmp/, written to directly (never buffered
// in-process beyond what io.Copy needs), then atomically renamed into
// new/ or cur/ once every byte has landed and the handle is closed.
type Delivery struct {
	dir  *Dir
	name string
	path string
	file *os.File
}

// Create allocates a unique name in tmp/ and opens it for exclusive
// writing. The name follows the Maildir convention
// <unix_ts>.P<pid>.<host>.<seq>: the per-Dir sequence counter suffix is
// always present, and a name that still collides is retried with the next
// counter value.
func (d *Dir) Create() (*Delivery, error) {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}
	hostname = sanitizeHostname(hostname)

	for {
		seq := d.counter.Add(1)
		name := fmt.Sprintf("%d.P%d.%s.%d", time.Now().Unix(), d.pid, hostname, seq)
		path := filepath.Join(d.root, "tmp", name)

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if err == nil {
			return &Delivery{dir: d, name: name, path: path, file: f}, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("maildirsink: creating tmp file: %w", err)
		}
		// name collided (same second, same pid) — retry with the next seq.
	}
}

// Write streams bytes into the tmp file. Callers are expected to io.Copy
// the body literal directly here rather than staging it elsewhere.
func (m *Delivery) Write(p []byte) (int, error) {
	return m.file.Write(p)
}

// Abort closes the tmp file without ever making it visible in new/ or
// cur/. Used when the session fails mid-fetch; partial files
// are allowed to remain in tmp/ for a later cleanup pass, so Abort here
// only closes the handle rather than removing the file — a crash does the
// same, and distinguishing the two paths buys nothing.
func (m *Delivery) Abort() error {
	return m.file.Close()
}

// CommitNew closes the file and atomically renames it into new/, for a
// message with no Maildir-representable flags.
func (m *Delivery) CommitNew() error {
	if err := m.file.Close(); err != nil {
		return fmt.Errorf("maildirsink: closing tmp file: %w", err)
	}
	dest := filepath.Join(m.dir.root, "new", m.name)
	if err := os.Rename(m.path, dest); err != nil {
		return fmt.Errorf("maildirsink: moving to new/: %w", err)
	}
	return nil
}

// CommitCur closes the file and atomically renames it into cur/ with the
// ":2,<flags>" info suffix. flags must already be sorted ASCII-ascending.
func (m *Delivery) CommitCur(flags string) error {
	if err := m.file.Close(); err != nil {
		return fmt.Errorf("maildirsink: closing tmp file: %w", err)
	}
	dest := filepath.Join(m.dir.root, "cur", fmt.Sprintf("%s:2,%s", m.name, flags))
	if err := os.Rename(m.path, dest); err != nil {
		return fmt.Errorf("maildirsink: moving to cur/: %w", err)
	}
	return nil
}

// sanitizeHostname escapes the two characters the Maildir convention
// forbids in the unique-name's host component.
func sanitizeHostname(h string) string {
	out := make([]byte, 0, len(h))
	for i := 0; i < len(h); i++ {
		switch h[i] {
		case '/':
			out = append(out, []byte(`\057`)...)
		case ':':
			out = append(out, []byte(`\072`)...)
		default:
			out = append(out, h[i])
		}
	}
	return string(out)
}
