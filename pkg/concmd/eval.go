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
	"sort"
	"sync"

	"github.com/dop251/goja"
	"github.com/pkg/errors"
)

var (
	// ErrNoModule is returned by require for unknown module names
	ErrNoModule = errors.New("module not found")

	// ErrPending is returned when a promise has not settled once the job queue is empty
	ErrPending = errors.New("promise still pending")
)

// ModuleFactory builds a module value for require
type ModuleFactory func() interface{}

// ModuleCache holds module instances shared by every session. The first
// require of a name builds it; later requires return the same instance
// until it is flushed.
type ModuleCache struct {
	mu        sync.Mutex
	factories map[string]ModuleFactory
	instances map[string]interface{}
}

// NewModuleCache creates a cache over factories
func NewModuleCache(factories map[string]ModuleFactory) *ModuleCache {
	c := &ModuleCache{
		factories: make(map[string]ModuleFactory, len(factories)),
		instances: make(map[string]interface{}),
	}
	for name, f := range factories {
		c.factories[name] = f
	}
	return c
}

// Register adds a module factory
func (c *ModuleCache) Register(name string, f ModuleFactory) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.factories[name] = f
}

// Require returns the cached instance of name, building it if needed
func (c *ModuleCache) Require(name string) (interface{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if m, ok := c.instances[name]; ok {
		return m, nil
	}
	f, ok := c.factories[name]
	if !ok {
		return nil, errors.Wrapf(ErrNoModule, "%q", name)
	}
	m := f()
	c.instances[name] = m
	return m, nil
}

// Flush evicts the cached instance of name and reports whether one existed
func (c *ModuleCache) Flush(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.instances[name]; !ok {
		return false
	}
	delete(c.instances, name)
	return true
}

// Names returns the registered module names
func (c *ModuleCache) Names() []string {
	c.mu.Lock()
	names := make([]string, 0, len(c.factories))
	for name := range c.factories {
		names = append(names, name)
	}
	c.mu.Unlock()

	sort.Strings(names)
	return names
}

// Evaluator is a JavaScript runtime owned by one session. It binds "keep"
// (scratch space that lives as long as the runtime), "_" (the last result)
// and require(name).
type Evaluator struct {
	rt *goja.Runtime
}

// NewEvaluator creates a runtime resolving require through modules
func NewEvaluator(modules *ModuleCache) *Evaluator {
	rt := goja.New()
	rt.SetFieldNameMapper(goja.UncapFieldNameMapper())

	_ = rt.Set("keep", rt.NewObject())
	_ = rt.Set("_", goja.Undefined())
	_ = rt.Set("require", func(call goja.FunctionCall) goja.Value {
		m, err := modules.Require(call.Argument(0).String())
		if err != nil {
			panic(rt.NewGoError(err))
		}
		return rt.ToValue(m)
	})

	return &Evaluator{rt: rt}
}

// Eval runs code and exports its completion value. Settled promises are
// unwrapped. Cancelling ctx interrupts a running script.
func (e *Evaluator) Eval(ctx context.Context, code string) (interface{}, error) {
	stop := context.AfterFunc(ctx, func() {
		e.rt.Interrupt("evaluation cancelled")
	})
	defer stop()

	v, err := e.rt.RunString(code)
	if err != nil {
		e.rt.ClearInterrupt()
		return nil, scriptError(err)
	}

	if p, ok := v.Export().(*goja.Promise); ok {
		switch p.State() {
		case goja.PromiseStateFulfilled:
			v = p.Result()
		case goja.PromiseStateRejected:
			return nil, errors.Errorf("Uncaught (in promise) %s", p.Result().String())
		default:
			return nil, ErrPending
		}
	}

	_ = e.rt.Set("_", v)
	return export(v), nil
}

// SetLast binds "_" to a result produced outside the runtime
func (e *Evaluator) SetLast(v interface{}) {
	_ = e.rt.Set("_", v)
}

func export(v goja.Value) interface{} {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	return v.Export()
}

// scriptError strips goja's source position from thrown values
func scriptError(err error) error {
	var ex *goja.Exception
	if errors.As(err, &ex) && ex.Value() != nil {
		return errors.New(ex.Value().String())
	}
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return errors.Errorf("interrupted: %v", interrupted.Value())
	}
	return err
}
