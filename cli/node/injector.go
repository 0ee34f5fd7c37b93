// This file contains the implementation of a dependency injector using
// reflection.

package node

import (
	"reflect"
	"sync"

	"golang.org/x/xerrors"
)

// reflectInjector is a dependency injector that uses reflection to resolve
// specific interfaces. A dependency of the exact type is preferred, otherwise
// the first injected dependency that is assignable is used.
//
// - implements node.Injector
type reflectInjector struct {
	sync.Mutex

	deps []interface{}
}

// NewInjector returns a empty injector.
func NewInjector() Injector {
	return &reflectInjector{}
}

// Resolve implements node.Injector. It populates the given pointer with a
// compatible dependency.
func (inj *reflectInjector) Resolve(v interface{}) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr {
		return xerrors.New("expect a pointer")
	}

	if !rv.Elem().IsValid() {
		return xerrors.Errorf("reflect value '%v' is invalid", rv)
	}

	target := rv.Elem().Type()

	inj.Lock()
	defer inj.Unlock()

	for _, dep := range inj.deps {
		if reflect.TypeOf(dep) == target {
			rv.Elem().Set(reflect.ValueOf(dep))
			return nil
		}
	}

	for _, dep := range inj.deps {
		if reflect.TypeOf(dep).AssignableTo(target) {
			rv.Elem().Set(reflect.ValueOf(dep))
			return nil
		}
	}

	return xerrors.Errorf("couldn't find dependency for '%v'", target)
}

// Inject implements node.Injector. It injects the dependency to be available
// later on. A dependency of the same type replaces the previous one.
func (inj *reflectInjector) Inject(v interface{}) {
	inj.Lock()
	defer inj.Unlock()

	for i, dep := range inj.deps {
		if reflect.TypeOf(dep) == reflect.TypeOf(v) {
			inj.deps[i] = v
			return
		}
	}

	inj.deps = append(inj.deps, v)
}
