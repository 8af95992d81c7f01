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
	"io"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
)

// fetchStats tracks bytes/message counters across the lifetime of a single
// FETCHING state and drives the 1-second metronome from spec §4.5.
type fetchStats struct {
	start    time.Time
	bytes    atomic.Uint64
	messages atomic.Uint64

	stop chan struct{}
	done chan struct{}
}

// countingWriter tallies bytes written through it into a fetchStats, so the
// Maildir delivery's io.Copy naturally feeds the stats timer without a
// second pass over the data.
type countingWriter struct {
	w     io.Writer
	stats *fetchStats
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.stats.bytes.Add(uint64(n))
	return n, err
}

// startTimer arms the 1-second metronome. Call stopAndLogFinal when FETCHING
// ends to emit the final line and cancel the ticker, per spec §4.5.
func (s *fetchStats) startTimer(logger *log.Entry) {
	s.start = time.Now()
	s.stop = make(chan struct{})
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				s.log(logger)
			}
		}
	}()
}

func (s *fetchStats) log(logger *log.Entry) {
	elapsed := time.Since(s.start)
	elapsedMs := elapsed.Milliseconds()
	bytes := s.bytes.Load()

	var kibps float64
	if elapsedMs > 0 {
		kibps = float64(bytes) * 1000 / (1024 * float64(elapsedMs))
	}

	logger.WithFields(log.Fields{
		"fetched_messages": s.messages.Load(),
		"bytes":            bytes,
		"elapsed_s":        elapsed.Seconds(),
		"kibps":            kibps,
	}).Info("fetch_stats")
}

// stopAndLogFinal cancels the metronome and emits one last stats line,
// synchronously so the final line is always seen before FETCHING's caller
// moves on, matching spec's "on leaving FETCHING, one final stats line is
// emitted and the timer cancelled".
func (s *fetchStats) stopAndLogFinal(logger *log.Entry) {
	close(s.stop)
	<-s.done
	s.log(logger)
}
