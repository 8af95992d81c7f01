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

package main

import (
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/maybeLee/imapdl/internal/config"
	"github.com/maybeLee/imapdl/internal/session"
)

func main() {
	cfg := &config.CliConfig{}

	app := &cli.App{
		Name:  "imapdl",
		Usage: "Drain a single IMAP mailbox into a Maildir",
		Description: `imapdl logs into a single IMAP mailbox, fetches every message it
contains into a local Maildir, and optionally deletes and expunges
them from the server once delivered.
`,
		Flags:  cfg.Parameters(),
		Action: func(_ *cli.Context) error { return run(cfg) },
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(cfg *config.CliConfig) error {
	if lvl, err := log.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(lvl)
	}
	if cfg.LogFormat == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	}

	sc, err := cfg.Build()
	if err != nil {
		return err
	}

	logger := log.WithFields(log.Fields{
		"host":          sc.Host,
		"port":          sc.Port,
		"username":      sc.Username,
		"mailbox":       sc.Mailbox,
		"maildir":       sc.Maildir,
		"use_ssl":       sc.UseSSL,
		"fingerprint":   sc.Fingerprint,
		"greeting_wait": sc.GreetingWait,
		"delete":        sc.Delete,
		"sasl_plain":    sc.UseSASLPlain,
	})
	logger.Info("starting")

	sess, err := session.New(sc, logger)
	if err != nil {
		return err
	}

	doneChan := make(chan error, 1)
	stopChan := make(chan struct{})

	go func() {
		doneChan <- sess.Run(stopChan)
	}()

	sigchan := make(chan os.Signal, 10)
	signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)

	sigcount := 0
	for {
		select {
		case sig := <-sigchan:
			logger.WithFields(log.Fields{"signal": sig, "count": sigcount}).Trace("caught_signal")

			sigcount++
			if sigcount > 1 {
				logger.WithField("signal", sig).Warn("received_interrupt_twice")
				return session.ErrSignalTwice
			}
			logger.WithField("signal", sig).Info("received_interrupt")
			close(stopChan)
		case err := <-doneChan:
			logger.Info("session_terminated")
			return err
		}
	}
}
