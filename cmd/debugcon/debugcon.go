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

package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/txn2/debugcon/cmd/debugcon/monitor"
	"github.com/txn2/debugcon/cmd/debugcon/serve"
	"github.com/txn2/debugcon/cmd/debugcon/version"
)

var globalUsage = `Attach remote consoles to a running Go process. Every log call made
through the intercepted namespace is buffered and can be mirrored live to
telnet clients, which can also run commands and evaluate expressions.`

var Version = "0.0.0"

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "debugcon",
		Short: "Telnet debug console for Go processes.",
		Long:  globalUsage,
	}

	version.Version = Version
	serve.Version = Version
	cmd.AddCommand(version.Cmd, serve.Cmd, monitor.Cmd)

	return cmd
}

func main() {
	cmd := newRootCmd()

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
