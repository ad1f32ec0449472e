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

package concfg

import (
	"context"
	"crypto/subtle"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

// credentialFile is the layout of a credential table
type credentialFile struct {
	Users map[string]string `yaml:"users"`
}

// Credentials is a login to password table read from a YAML file. It
// implements consession.Authenticator and can follow changes to the file.
type Credentials struct {
	path string

	mu    sync.RWMutex
	users map[string]string
}

// LoadCredentials reads the credential table at path
func LoadCredentials(path string) (*Credentials, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, errors.Wrapf(err, "could not expand credentials path %s", path)
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return nil, errors.Wrapf(err, "could not resolve credentials path %s", expanded)
	}

	c := &Credentials{path: abs}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// Reload reads the file again. The table is unchanged on error.
func (c *Credentials) Reload() error {
	dat, err := os.ReadFile(c.path)
	if err != nil {
		return errors.Wrap(err, "credentials read error")
	}

	f := credentialFile{}
	if err := yaml.Unmarshal(dat, &f); err != nil {
		return errors.Wrapf(err, "credentials parse error in %s", c.path)
	}
	if f.Users == nil {
		f.Users = map[string]string{}
	}

	c.mu.Lock()
	c.users = f.Users
	c.mu.Unlock()
	return nil
}

// Len returns the number of users
func (c *Credentials) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.users)
}

// Authenticate reports whether password belongs to login
func (c *Credentials) Authenticate(login, password string) bool {
	c.mu.RLock()
	want, ok := c.users[login]
	c.mu.RUnlock()

	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(want), []byte(password)) == 1
}

// Watch reloads the table whenever the file is written or replaced, until
// ctx is done. The directory is watched so editors that replace the file
// are followed.
func (c *Credentials) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "could not create credentials watcher")
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(filepath.Dir(c.path)); err != nil {
		return errors.Wrapf(err, "could not watch %s", c.path)
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != c.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if err := c.Reload(); err != nil {
				log.Warnf("Keeping previous credentials: %s", err.Error())
				continue
			}
			log.Infof("Reloaded %d console credential(s) from %s", c.Len(), c.path)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warnf("Credentials watcher error: %s", err.Error())
		}
	}
}
