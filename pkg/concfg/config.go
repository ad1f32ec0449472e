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

// Package concfg loads the debug console's YAML configuration and its
// credential table.
package concfg

import (
	"os"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/txn2/debugcon/pkg/conlog"
	"github.com/txn2/debugcon/pkg/conserver"
	"github.com/txn2/debugcon/pkg/consession"
	"gopkg.in/yaml.v2"
)

// File is the configuration file. Unset values leave the defaults alone.
type File struct {
	Host        *string  `yaml:"host"`
	Port        *int     `yaml:"port"`
	Local       *bool    `yaml:"local"`
	History     *string  `yaml:"history"`
	HistorySize *int     `yaml:"historySize"`
	Keep        *int     `yaml:"keep"`
	Mirror      *bool    `yaml:"mirror"`
	Minimal     *bool    `yaml:"minimal"`
	Colors      *bool    `yaml:"colors"`
	Levels      []string `yaml:"levels"`
	Prompt      *string  `yaml:"prompt"`
	EmptyLogin  *string  `yaml:"emptyLogin"`
	APIAddr     *string  `yaml:"apiAddr"`

	// Credentials is a credential table file, reloaded when it changes
	Credentials string `yaml:"credentials"`

	// Users is an inline login to password table
	Users map[string]string `yaml:"users"`
}

// Load reads a configuration file. A leading ~ is expanded.
func Load(path string) (*File, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, errors.Wrapf(err, "could not expand config path %s", path)
	}

	dat, err := os.ReadFile(expanded)
	if err != nil {
		return nil, errors.Wrap(err, "config read error")
	}

	f := &File{}
	if err := yaml.UnmarshalStrict(dat, f); err != nil {
		return nil, errors.Wrapf(err, "config parse error in %s", expanded)
	}
	return f, nil
}

// ParseEmptyLogin converts "close" or "restart" to a policy
func ParseEmptyLogin(name string) (consession.EmptyLoginPolicy, error) {
	switch name {
	case "", "close":
		return consession.EmptyLoginClose, nil
	case "restart":
		return consession.EmptyLoginRestart, nil
	}
	return consession.EmptyLoginClose, errors.Errorf("unknown empty login policy %q, expected close or restart", name)
}

// Apply copies the file's values into opts. changed reports flags set on
// the command line, which win over the file.
func (f *File) Apply(opts *conserver.Options, changed func(flag string) bool) error {
	use := func(flag string, set bool) bool {
		return set && !changed(flag)
	}

	if use("host", f.Host != nil) {
		opts.Host = *f.Host
	}
	if use("port", f.Port != nil) {
		opts.Port = *f.Port
	}
	if use("local", f.Local != nil) {
		opts.Local = *f.Local
	}
	if use("history", f.History != nil) {
		opts.HistoryFile = *f.History
	}
	if use("history-size", f.HistorySize != nil) {
		opts.HistorySize = *f.HistorySize
	}
	if use("keep", f.Keep != nil) {
		opts.Keep = *f.Keep
	}
	if use("mirror", f.Mirror != nil) {
		opts.Mirror = *f.Mirror
	}
	if use("minimal", f.Minimal != nil) {
		opts.Minimal = *f.Minimal
	}
	if use("colors", f.Colors != nil) {
		opts.Colors = *f.Colors
	}
	if use("prompt", f.Prompt != nil) {
		opts.Prompt = *f.Prompt
	}
	if use("api-addr", f.APIAddr != nil) {
		opts.APIAddr = *f.APIAddr
	}

	if use("levels", len(f.Levels) > 0) {
		levels, err := conlog.ParseLevels(f.Levels)
		if err != nil {
			return errors.Wrap(err, "config levels")
		}
		opts.Levels = levels
	}
	if use("empty-login", f.EmptyLogin != nil) {
		policy, err := ParseEmptyLogin(*f.EmptyLogin)
		if err != nil {
			return err
		}
		opts.EmptyLogin = policy
	}
	return nil
}
