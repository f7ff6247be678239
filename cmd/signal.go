// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// handleSignals returns a context cancelled by the first SIGINT or SIGTERM.
// A running sort stops at its next cancellation check and removes its
// chunks; a second signal exits at once. The returned function stops
// listening and cancels the context.
func handleSignals(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)

	stopped := make(chan struct{})
	var once sync.Once
	stop := func() {
		once.Do(func() {
			signal.Stop(sigs)
			close(stopped)
			cancel()
		})
	}

	go func() {
		select {
		case sig := <-sigs:
			slog.Warn("Received signal, cancelling", slog.String("signal", sig.String()))
			cancel()
		case <-stopped:
			return
		}
		select {
		case sig := <-sigs:
			slog.Error("Received second signal, exiting", slog.String("signal", sig.String()))
			os.Exit(130)
		case <-stopped:
		}
	}()

	return ctx, stop
}
