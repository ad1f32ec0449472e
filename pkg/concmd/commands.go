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

package concmd

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pbnjay/memory"
	"github.com/pkg/errors"
	"github.com/txn2/debugcon/pkg/conlog"
	"github.com/txn2/debugcon/pkg/consession"
	"k8s.io/apimachinery/pkg/util/duration"
)

var processStart = time.Now()

func defaultCommands() []Command {
	return []Command{
		{Name: "help", Help: "help [command]\n  List commands, or show the help of one command.", Handler: helpCommand},
		{Name: "uptime", Help: "uptime\n  Show the current time, how long the system has been up and the load averages.", Handler: uptimeCommand},
		{Name: "whoami", Help: "whoami\n  Describe this process: executable, pid, parent pid, path, Go version and user.", Handler: whoamiCommand},
		{Name: "ifconfig", Help: "ifconfig\n  List network interfaces and their addresses.", Handler: ifconfigCommand},
		{Name: "stat", Help: "stat\n  Show resource usage, Go runtime memory and total system memory.", Handler: statCommand},
		{Name: "who", Help: "who\n  List connected sessions. * marks this session.", Handler: whoCommand},
		{Name: "wall", Help: "wall <message>\n  Send a message to every other session.", Handler: wallCommand},
		{Name: "log", Help: "log [on|off|N]\n  Turn log mirroring on or off, or print the last N buffered log lines (all without N).", Handler: logCommand},
		{Name: "raise", Help: "raise <signal>\n  Send a signal (number, USR1 or SIGUSR1) to this process.", Handler: raiseCommand},
		{Name: "flush", Help: "flush <module>\n  Drop a cached module. The next require builds a new instance, so state held by the old one is lost.", Handler: flushCommand},
		{Name: "print", Help: "print <expression>\n  Evaluate an expression and print it with colors.", Handler: printCommand},
	}
}

func helpCommand(_ context.Context, args string, env *Env) (interface{}, error) {
	if args == "" {
		return Text(strings.Join(env.Dispatcher.Names(), "\n")), nil
	}
	cmd, ok := env.Dispatcher.Command(args)
	if !ok {
		return nil, errors.Errorf("help: no such command %q", args)
	}
	return Text(cmd.Help), nil
}

func uptimeCommand(_ context.Context, _ string, _ *Env) (interface{}, error) {
	now := time.Now()
	up, ok := systemUptime()
	if !ok {
		up = time.Since(processStart)
	}
	load := loadAverage()

	return Text(fmt.Sprintf("%d:%02d:%02d up %s, load average: %.2f, %.2f, %.2f",
		now.Hour(), now.Minute(), now.Second(),
		duration.HumanDuration(up),
		load[0], load[1], load[2],
	)), nil
}

func whoamiCommand(_ context.Context, _ string, _ *Env) (interface{}, error) {
	exe, err := os.Executable()
	if err != nil {
		exe = os.Args[0]
	}

	info := map[string]interface{}{
		"exec":      filepath.Base(os.Args[0]),
		"pid":       os.Getpid(),
		"ppid":      os.Getppid(),
		"path":      exe,
		"goVersion": runtime.Version(),
	}

	if u, err := user.Current(); err == nil {
		info["user"] = map[string]interface{}{
			"uid":      u.Uid,
			"gid":      u.Gid,
			"username": u.Username,
			"name":     u.Name,
			"homedir":  u.HomeDir,
		}
	}
	return info, nil
}

func ifconfigCommand(_ context.Context, _ string, _ *Env) (interface{}, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, errors.Wrap(err, "ifconfig")
	}

	out := make(map[string]interface{}, len(ifaces))
	for _, iface := range ifaces {
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		list := make([]interface{}, 0, len(addrs))
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			family := "IPv6"
			if ipNet.IP.To4() != nil {
				family = "IPv4"
			}
			list = append(list, map[string]interface{}{
				"address":  ipNet.IP.String(),
				"netmask":  net.IP(ipNet.Mask).String(),
				"family":   family,
				"mac":      iface.HardwareAddr.String(),
				"internal": iface.Flags&net.FlagLoopback != 0,
			})
		}
		out[iface.Name] = list
	}
	return out, nil
}

func statCommand(_ context.Context, _ string, _ *Env) (interface{}, error) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	return map[string]interface{}{
		"rusage": rusage(),
		"memory": map[string]interface{}{
			"alloc":      ms.Alloc,
			"totalAlloc": ms.TotalAlloc,
			"sys":        ms.Sys,
			"heapAlloc":  ms.HeapAlloc,
			"heapInuse":  ms.HeapInuse,
			"numGC":      ms.NumGC,
			"goroutines": runtime.NumGoroutine(),
		},
		"totalmem": memory.TotalMemory(),
	}, nil
}

func whoCommand(_ context.Context, _ string, env *Env) (interface{}, error) {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"", "REMOTE", "CONNECTED", "USER", "LOG"})

	for _, s := range sessions(env) {
		mark := ""
		if s == env.Session {
			mark = "*"
		}
		logState := "off"
		if s.LogEnabled() {
			logState = "on"
		}
		tw.AppendRow(table.Row{
			mark,
			s.RemoteAddr(),
			duration.HumanDuration(time.Since(s.ConnectedAt)),
			s.Identity(),
			logState,
		})
	}
	return Text(tw.Render()), nil
}

func sessions(env *Env) []*consession.Session {
	if env.Registry == nil {
		return nil
	}
	return env.Registry.List()
}

func wallCommand(_ context.Context, args string, env *Env) (interface{}, error) {
	if args == "" {
		return nil, errors.New("wall: message required")
	}

	msg := fmt.Sprintf("\aBroadcast message from %s@%s: %s", env.Session.Identity(), env.Session.RemoteAddr(), args)
	sent := 0
	for _, s := range sessions(env) {
		if s == env.Session || s.State() != consession.StateActive {
			continue
		}
		if err := s.Notify(msg); err == nil {
			sent++
		}
	}
	return Text(fmt.Sprintf("wall: sent to %d session(s)", sent)), nil
}

func logCommand(_ context.Context, args string, env *Env) (interface{}, error) {
	switch args {
	case "on":
		env.Session.SetLogEnabled(true)
		return Text("log mirroring on"), nil
	case "off":
		env.Session.SetLogEnabled(false)
		return Text("log mirroring off"), nil
	}

	if env.Interceptor == nil {
		return nil, errors.New("log: no interceptor")
	}

	events := env.Interceptor.All()
	if args != "" {
		n, err := strconv.Atoi(args)
		if err != nil || n < 0 {
			return nil, errors.Errorf("log: expected on, off or a count, got %q", args)
		}
		events = env.Interceptor.Last(n)
	}

	lines := make([]string, len(events))
	for i, e := range events {
		lines[i] = e.Text(env.Session.Colors())
	}
	return Text(strings.Join(lines, "\n")), nil
}

func raiseCommand(_ context.Context, args string, _ *Env) (interface{}, error) {
	if args == "" {
		return nil, errors.New("raise: signal required")
	}
	name, err := raise(args)
	if err != nil {
		return nil, err
	}
	return Text("raised " + name), nil
}

func flushCommand(_ context.Context, args string, env *Env) (interface{}, error) {
	if args == "" {
		return nil, errors.New("flush: module name required")
	}
	if !env.Modules.Flush(args) {
		return nil, errors.Errorf("flush: module %q is not loaded", args)
	}
	return Text("flushed " + args), nil
}

func printCommand(ctx context.Context, args string, env *Env) (interface{}, error) {
	v, err := env.Dispatcher.Eval(ctx, env.Session, args)
	if err != nil {
		return nil, err
	}
	if s, ok := v.(Text); ok {
		return s, nil
	}
	return Text(conlog.Render(v, true)), nil
}
