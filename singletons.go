/*
 * Copyright (c) 2023 Zander Schwid & Co. LLC.
 * SPDX-License-Identifier: BUSL-1.1
 */

package beans

import (
	"sync"

	"github.com/pkg/errors"
)

/**
Tracks a singleton construction claimed by one caller. Concurrent callers
for the same name wait on done and pick up the cached result.
*/

type singletonInflight struct {
	done chan struct{}
	obj  interface{}
	err  error
}

/**
Holds fully created singleton instances, early references exposed to break
circular dependencies and the in-creation state. All maps are guarded by
one singleton mutex, critical sections are lookups and inserts only, the
actual construction happens outside the lock once a caller claimed the
name.
*/

type singletonRegistry struct {
	mu sync.Mutex

	/**
	Fully initialized singletons by name.
	*/
	singletonObjects map[string]interface{}

	/**
	Early references already produced from singleton factories.
	*/
	earlySingletonObjects map[string]interface{}

	/**
	Lazy factories producing the early reference on demand.
	*/
	singletonFactories map[string]ObjectFactory

	/**
	Names of beans currently in creation, entering and leaving this set is
	symmetric even on failure paths.
	*/
	singletonsCurrentlyInCreation map[string]bool

	/**
	Claimed constructions in progress.
	*/
	inflight map[string]*singletonInflight

	/**
	Singleton names in creation order.
	*/
	registeredSingletons []string

	/**
	Destruction callbacks of disposable singletons in registration order.
	*/
	disposableBeans map[string]func() error
	disposableNames []string

	/**
	Dependency edges for destruction ordering: bean name to the set of
	bean names depending on it.
	*/
	dependentBeanMap       map[string]map[string]bool
	dependenciesForBeanMap map[string]map[string]bool
}

func newSingletonRegistry() *singletonRegistry {
	return &singletonRegistry{
		singletonObjects:              make(map[string]interface{}),
		earlySingletonObjects:         make(map[string]interface{}),
		singletonFactories:            make(map[string]ObjectFactory),
		singletonsCurrentlyInCreation: make(map[string]bool),
		inflight:                      make(map[string]*singletonInflight),
		disposableBeans:               make(map[string]func() error),
		dependentBeanMap:              make(map[string]map[string]bool),
		dependenciesForBeanMap:        make(map[string]map[string]bool),
	}
}

func (t *singletonRegistry) addSingleton(beanName string, obj interface{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.addSingletonLocked(beanName, obj)
}

func (t *singletonRegistry) addSingletonLocked(beanName string, obj interface{}) {
	if _, ok := t.singletonObjects[beanName]; !ok {
		t.registeredSingletons = append(t.registeredSingletons, beanName)
	}
	t.singletonObjects[beanName] = obj
	delete(t.singletonFactories, beanName)
	delete(t.earlySingletonObjects, beanName)
}

/**
Registers the lazy factory producing the early reference of the bean
currently in creation. Ignored once the full singleton is cached.
*/

func (t *singletonRegistry) addSingletonFactory(beanName string, factory ObjectFactory) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.singletonObjects[beanName]; !ok {
		t.singletonFactories[beanName] = factory
		delete(t.earlySingletonObjects, beanName)
	}
}

/**
Returns the cached singleton, the already materialized early reference, or
if allowEarly the result of the registered early factory. The factory runs
under the lock, it only substitutes references and never constructs.
*/

func (t *singletonRegistry) getSingleton(beanName string, allowEarly bool) (interface{}, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if obj, ok := t.singletonObjects[beanName]; ok {
		return obj, true
	}
	if obj, ok := t.earlySingletonObjects[beanName]; ok {
		return obj, true
	}
	if allowEarly {
		if factory, ok := t.singletonFactories[beanName]; ok {
			obj, err := factory()
			if err != nil {
				if verbose != nil {
					verbose.Printf("early reference factory of bean '%s' failed, %v\n", beanName, err)
				}
				return nil, false
			}
			t.earlySingletonObjects[beanName] = obj
			delete(t.singletonFactories, beanName)
			return obj, true
		}
	}
	return nil, false
}

/**
Double-checked creation of the singleton. Exactly one caller claims the
construction of a given name, racing callers block until it completes or
fails. Re-entering the same name within one resolution signals a circular
reference.
*/

func (t *singletonRegistry) getSingletonOrCreate(beanName string, ctx *creationContext, factory ObjectFactory) (obj interface{}, err error) {

	for {
		t.mu.Lock()
		if obj, ok := t.singletonObjects[beanName]; ok {
			t.mu.Unlock()
			return obj, nil
		}
		if ctx.isSingletonInCreation(beanName) {
			t.mu.Unlock()
			return nil, &BeanCurrentlyInCreationError{BeanName: beanName}
		}
		if fl, ok := t.inflight[beanName]; ok {
			t.mu.Unlock()
			<-fl.done
			if fl.err != nil {
				return nil, fl.err
			}
			if fl.obj != nil {
				return fl.obj, nil
			}
			continue
		}
		break
	}

	fl := &singletonInflight{done: make(chan struct{})}
	t.inflight[beanName] = fl
	t.singletonsCurrentlyInCreation[beanName] = true
	ctx.markSingleton(beanName)
	t.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("singleton bean '%s' creation recovered with error %v", beanName, r)
		}
		t.mu.Lock()
		delete(t.singletonsCurrentlyInCreation, beanName)
		delete(t.inflight, beanName)
		ctx.unmarkSingleton(beanName)
		if err == nil {
			t.addSingletonLocked(beanName, obj)
		} else {
			delete(t.singletonFactories, beanName)
			delete(t.earlySingletonObjects, beanName)
		}
		fl.obj, fl.err = obj, err
		close(fl.done)
		t.mu.Unlock()
	}()

	obj, err = factory()
	return
}

func (t *singletonRegistry) containsSingleton(beanName string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.singletonObjects[beanName]
	return ok
}

func (t *singletonRegistry) isSingletonCurrentlyInCreation(beanName string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.singletonsCurrentlyInCreation[beanName]
}

func (t *singletonRegistry) removeSingleton(beanName string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.singletonObjects, beanName)
	delete(t.singletonFactories, beanName)
	delete(t.earlySingletonObjects, beanName)
	for i, name := range t.registeredSingletons {
		if name == beanName {
			t.registeredSingletons = append(t.registeredSingletons[:i], t.registeredSingletons[i+1:]...)
			break
		}
	}
}

func (t *singletonRegistry) singletonNames() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.registeredSingletons))
	copy(out, t.registeredSingletons)
	return out
}

func (t *singletonRegistry) registerDisposableBean(beanName string, destroy func() error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.disposableBeans[beanName]; !ok {
		t.disposableNames = append(t.disposableNames, beanName)
	}
	t.disposableBeans[beanName] = destroy
}

/**
Registers a dependency edge for destruction ordering: the dependent bean
must be destroyed before the bean it depends on.
*/

func (t *singletonRegistry) registerDependentBean(beanName, dependentBeanName string) {
	if beanName == dependentBeanName {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	dependents, ok := t.dependentBeanMap[beanName]
	if !ok {
		dependents = make(map[string]bool)
		t.dependentBeanMap[beanName] = dependents
	}
	dependents[dependentBeanName] = true

	dependencies, ok := t.dependenciesForBeanMap[dependentBeanName]
	if !ok {
		dependencies = make(map[string]bool)
		t.dependenciesForBeanMap[dependentBeanName] = dependencies
	}
	dependencies[beanName] = true
}

/**
Checks transitively if dependentBeanName depends on beanName through the
registered edges.
*/

func (t *singletonRegistry) isDependent(beanName, dependentBeanName string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.isDependentLocked(beanName, dependentBeanName, make(map[string]bool))
}

func (t *singletonRegistry) isDependentLocked(beanName, dependentBeanName string, seen map[string]bool) bool {
	if seen[beanName] {
		return false
	}
	dependents := t.dependentBeanMap[beanName]
	if dependents[dependentBeanName] {
		return true
	}
	seen[beanName] = true
	for transitive := range dependents {
		if t.isDependentLocked(transitive, dependentBeanName, seen) {
			return true
		}
	}
	return false
}

func (t *singletonRegistry) getDependentBeans(beanName string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []string
	for name := range t.dependentBeanMap[beanName] {
		out = append(out, name)
	}
	return out
}

/**
Destroys all disposable singletons in reverse registration order. Beans
depending on the one being destroyed go first.
*/

func (t *singletonRegistry) destroySingletons() error {
	t.mu.Lock()
	names := make([]string, len(t.disposableNames))
	copy(names, t.disposableNames)
	t.mu.Unlock()

	var listErr []error
	n := len(names)
	for j := n - 1; j >= 0; j-- {
		if err := t.destroySingleton(names[j]); err != nil {
			listErr = append(listErr, err)
		}
	}

	t.mu.Lock()
	t.singletonObjects = make(map[string]interface{})
	t.earlySingletonObjects = make(map[string]interface{})
	t.singletonFactories = make(map[string]ObjectFactory)
	t.registeredSingletons = nil
	t.dependentBeanMap = make(map[string]map[string]bool)
	t.dependenciesForBeanMap = make(map[string]map[string]bool)
	t.mu.Unlock()

	return multipleErr(listErr)
}

func (t *singletonRegistry) destroySingleton(beanName string) (err error) {

	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("destroy singleton bean '%s' recovered with error: %v", beanName, r)
		}
	}()

	t.mu.Lock()
	destroy, ok := t.disposableBeans[beanName]
	delete(t.disposableBeans, beanName)
	for i, name := range t.disposableNames {
		if name == beanName {
			t.disposableNames = append(t.disposableNames[:i], t.disposableNames[i+1:]...)
			break
		}
	}
	dependents := t.dependentBeanMap[beanName]
	delete(t.dependentBeanMap, beanName)
	var dependentNames []string
	for name := range dependents {
		dependentNames = append(dependentNames, name)
	}
	t.mu.Unlock()

	var listErr []error
	for _, dependent := range dependentNames {
		if e := t.destroySingleton(dependent); e != nil {
			listErr = append(listErr, e)
		}
	}

	t.removeSingleton(beanName)

	if ok {
		if verbose != nil {
			verbose.Printf("Destroy singleton bean '%s'\n", beanName)
		}
		if e := destroy(); e != nil {
			listErr = append(listErr, e)
		}
	}

	return multipleErr(listErr)
}

/**
Per-resolution creation state. A fresh context is created on every public
entry point, re-entering a name within the same context is the circular
reference signal for both scopes.
*/

type creationContext struct {
	singletonsInCreation map[string]bool
	prototypesInCreation map[string]bool
}

func newCreationContext() *creationContext {
	return &creationContext{
		singletonsInCreation: make(map[string]bool),
		prototypesInCreation: make(map[string]bool),
	}
}

func (t *creationContext) isSingletonInCreation(beanName string) bool {
	return t.singletonsInCreation[beanName]
}

func (t *creationContext) markSingleton(beanName string) {
	t.singletonsInCreation[beanName] = true
}

func (t *creationContext) unmarkSingleton(beanName string) {
	delete(t.singletonsInCreation, beanName)
}

func (t *creationContext) isPrototypeInCreation(beanName string) bool {
	return t.prototypesInCreation[beanName]
}

func (t *creationContext) beforePrototypeCreation(beanName string) {
	t.prototypesInCreation[beanName] = true
}

func (t *creationContext) afterPrototypeCreation(beanName string) {
	delete(t.prototypesInCreation, beanName)
}
