/*
Copyright 2018-2024 Craig Johnston <cjimti@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package monitor

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/txn2/debugcon/pkg/conapi"
	"github.com/txn2/debugcon/pkg/conmon"
)

var (
	apiAddr  string
	interval time.Duration
	tail     int
)

func init() {
	Cmd.Flags().StringVarP(&apiAddr, "api-addr", "a", "127.0.0.1:2324", "Address of the console API (serve --api-addr).")
	Cmd.Flags().DurationVarP(&interval, "interval", "i", conmon.DefaultInterval, "Polling interval.")
	Cmd.Flags().IntVarP(&tail, "tail", "t", conmon.DefaultTail, "Number of log events shown.")
}

var Cmd = &cobra.Command{
	Use:   "monitor",
	Short: "Watch a running console's sessions and logs",
	Long: `Open a terminal dashboard for a console started with --api-addr.

Keys:
  q       quit
  r       re-intercept the console's namespace
  c       clear the log buffer
  f       toggle following new log events
  ↑/↓     scroll logs`,
	Example: "  debugcon monitor\n" +
		"  debugcon monitor -a 10.0.0.5:2324 -i 500ms",
	RunE: runMonitor,
}

func runMonitor(_ *cobra.Command, _ []string) error {
	client := conapi.NewClient(apiAddr)
	if _, err := client.Health(); err != nil {
		return errors.Wrapf(err, "cannot reach the console API at %s", client.BaseURL())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	// log output would draw over the dashboard
	log.SetLevel(log.ErrorLevel)

	return conmon.Run(ctx, client, conmon.Options{
		Interval: interval,
		Tail:     tail,
		Title:    "debugcon monitor " + client.BaseURL(),
	})
}
