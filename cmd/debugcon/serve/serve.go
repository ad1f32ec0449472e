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

package serve

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/txn2/debugcon/pkg/concfg"
	"github.com/txn2/debugcon/pkg/conedit"
	"github.com/txn2/debugcon/pkg/conlog"
	"github.com/txn2/debugcon/pkg/conserver"
	"github.com/txn2/debugcon/pkg/consession"
)

// Version is set by the main package
var Version string

var (
	host            string
	port            int
	local           bool
	historyFile     string
	historySize     int
	keep            int
	mirror          bool
	minimal         bool
	colors          bool
	levels          []string
	prompt          string
	emptyLogin      string
	configPath      string
	credentialsPath string
	apiAddr         string
	heartbeat       time.Duration
	verbose         bool
)

func init() {
	Cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Address the telnet listener binds to.")
	Cmd.Flags().IntVarP(&port, "port", "p", conserver.DefaultPort, "Telnet port. A negative port disables the listener, 0 picks a free port.")
	Cmd.Flags().BoolVarP(&local, "local", "L", false, "Also attach a console to this terminal. Log output then goes only to consoles.")
	Cmd.Flags().StringVar(&historyFile, "history", "~/.debugcon_history", "History file shared by all consoles. Empty keeps history in memory.")
	Cmd.Flags().IntVar(&historySize, "history-size", conedit.DefaultHistorySize, "Number of history lines kept.")
	Cmd.Flags().IntVarP(&keep, "keep", "k", conlog.DefaultKeep, "Number of log events buffered for the log command.")
	Cmd.Flags().BoolVarP(&mirror, "mirror", "m", false, "Mirror log output to new consoles without 'log on'.")
	Cmd.Flags().BoolVar(&minimal, "minimal", false, "Buffer raw arguments only; render and timestamp on demand.")
	Cmd.Flags().BoolVar(&colors, "colors", true, "Colorize inspected values.")
	Cmd.Flags().StringSliceVar(&levels, "levels", []string{}, "Levels to intercept: debug, log, info, warn, error, trace. All when empty.")
	Cmd.Flags().StringVar(&prompt, "prompt", conedit.DefaultPrompt, "Console prompt.")
	Cmd.Flags().StringVar(&emptyLogin, "empty-login", "close", "What an empty login does: close or restart.")
	Cmd.Flags().StringVarP(&configPath, "config", "c", "", "YAML configuration file. Flags given on the command line win.")
	Cmd.Flags().StringVar(&credentialsPath, "credentials", "", "YAML credential table (users: {login: password}). Enables login; reloaded on change.")
	Cmd.Flags().StringVar(&apiAddr, "api-addr", "", "Serve the inspection API and MCP endpoint on this address (e.g. 127.0.0.1:2324).")
	Cmd.Flags().DurationVar(&heartbeat, "heartbeat", 0, "Log a heartbeat at this interval, useful to try mirroring.")
	Cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output.")
}

var Cmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a debug console server",
	Long: `Run a debug console server for this process.

Connect with any telnet client. At the prompt, type 'help' for commands;
anything that is not a command is evaluated as JavaScript with '_' holding
the last result and 'keep' an object that survives between lines.`,
	Example: "  debugcon serve\n" +
		"  debugcon serve -p 4000 --mirror --heartbeat 2s\n" +
		"  debugcon serve --credentials ~/.debugcon_users.yaml\n" +
		"  debugcon serve -L --api-addr 127.0.0.1:2324\n" +
		"  telnet 127.0.0.1 2323",
	RunE: runCmd,
}

// buildOptions merges flags and the optional config file
func buildOptions(cmd *cobra.Command) (conserver.Options, *concfg.Credentials, error) {
	opts := conserver.Options{
		Host:        host,
		Port:        port,
		Local:       local,
		HistoryFile: historyFile,
		HistorySize: historySize,
		Keep:        keep,
		Mirror:      mirror,
		Minimal:     minimal,
		Colors:      colors,
		Prompt:      prompt,
		APIAddr:     apiAddr,
		Version:     Version,
	}

	var err error
	if opts.Levels, err = conlog.ParseLevels(levels); err != nil {
		return opts, nil, err
	}
	if opts.EmptyLogin, err = concfg.ParseEmptyLogin(emptyLogin); err != nil {
		return opts, nil, err
	}

	credentials := credentialsPath
	var users map[string]string
	if configPath != "" {
		f, err := concfg.Load(configPath)
		if err != nil {
			return opts, nil, err
		}
		if err := f.Apply(&opts, cmd.Flags().Changed); err != nil {
			return opts, nil, err
		}
		if f.Credentials != "" && !cmd.Flags().Changed("credentials") {
			credentials = f.Credentials
		}
		users = f.Users
	}

	if credentials != "" {
		creds, err := concfg.LoadCredentials(credentials)
		if err != nil {
			return opts, nil, err
		}
		opts.Auth = creds
		return opts, creds, nil
	}
	if len(users) > 0 {
		opts.Auth = consession.PasswordTable(users)
	}
	return opts, nil, nil
}

func runCmd(cmd *cobra.Command, _ []string) error {
	if verbose {
		log.SetLevel(log.DebugLevel)
	}

	opts, creds, err := buildOptions(cmd)
	if err != nil {
		return errors.Wrap(err, "invalid console options")
	}
	if opts.Port < 0 && !opts.Local && opts.APIAddr == "" {
		return errors.New("nothing to serve: the telnet listener is disabled and neither --local nor --api-addr is set")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv, err := conserver.Start(ctx, opts)
	if err != nil {
		return err
	}
	defer func() { _ = srv.Close() }()

	if opts.Local {
		// the terminal belongs to the local console now
		log.SetOutput(io.Discard)
	}
	if creds != nil {
		go func() {
			if err := creds.Watch(ctx); err != nil {
				log.Warnf("Credentials will not be reloaded: %s", err.Error())
			}
		}()
	}
	if heartbeat > 0 {
		go beat(ctx, heartbeat)
	}

	if addr := srv.Addr(); addr != "" {
		log.Infof("Connect with 'telnet %s'. Press [Ctrl-C] to stop.", addr)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		log.Debugf("Received %s, stopping console", sig)
	case <-srv.LocalDone():
	}
	return nil
}

// beat logs through the intercepted namespace until ctx is done
func beat(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	n := 0
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			n++
			conlog.Std().Infof("heartbeat %d at %s", n, t.Format(time.RFC3339))
		}
	}
}
