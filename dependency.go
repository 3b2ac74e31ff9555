/*
 * Copyright (c) 2023 Zander Schwid & Co. LLC.
 * SPDX-License-Identifier: BUSL-1.1
 */

package beans

import (
	"reflect"
	"sort"
	"sync"

	"github.com/pkg/errors"
)

/**
Describes a single injection point about to be autowired: the declared
type, an optional qualifier narrowing candidates, whether absence is an
error and whether resolution should be deferred behind a provider
function.
*/

type DependencyDescriptor struct {
	Type      reflect.Type
	Qualifier string
	Required  bool
	Lazy      bool
	Name      string
}

func (t *DependencyDescriptor) String() string {
	if t.Name != "" {
		return t.Name
	}
	if t.Type != nil {
		return t.Type.String()
	}
	return "unknown injection point"
}

/**
Resolves the descriptor against the factory. Slice and map descriptors
aggregate all candidates of the element type, a func descriptor with a
single return value becomes a lazy provider, everything else selects
exactly one candidate.
*/

func (t *beanFactory) resolveDependencyInternal(ctx *creationContext, descriptor *DependencyDescriptor, requestingBeanName string, autowiredBeanNames map[string]bool) (interface{}, error) {

	if descriptor == nil || descriptor.Type == nil {
		return nil, errors.Errorf("invalid dependency descriptor for bean '%s'", requestingBeanName)
	}

	if descriptor.Lazy {
		if descriptor.Type.Kind() == reflect.Func && isProviderFunc(descriptor.Type) {
			inner := &DependencyDescriptor{
				Type:      descriptor.Type.Out(0),
				Qualifier: descriptor.Qualifier,
				Required:  descriptor.Required,
				Name:      descriptor.Name,
			}
			return t.buildLazyProvider(inner, requestingBeanName)
		}
		return nil, errors.Errorf("lazy injection point '%s' must be a niladic provider func with one result", descriptor)
	}

	switch descriptor.Type.Kind() {

	case reflect.Slice:
		return t.resolveMultipleBeans(ctx, descriptor, requestingBeanName, autowiredBeanNames)

	case reflect.Map:
		if descriptor.Type.Key().Kind() != reflect.String {
			break
		}
		return t.resolveBeanMap(ctx, descriptor, requestingBeanName, autowiredBeanNames)

	case reflect.Func:
		if isProviderFunc(descriptor.Type) {
			inner := &DependencyDescriptor{
				Type:      descriptor.Type.Out(0),
				Qualifier: descriptor.Qualifier,
				Required:  descriptor.Required,
				Name:      descriptor.Name,
			}
			return t.buildLazyProvider(inner, requestingBeanName)
		}
	}

	return t.doResolveDependency(ctx, descriptor, requestingBeanName, autowiredBeanNames)
}

func isProviderFunc(fnType reflect.Type) bool {
	return fnType.NumIn() == 0 && fnType.NumOut() == 1
}

func (t *beanFactory) doResolveDependency(ctx *creationContext, descriptor *DependencyDescriptor, requestingBeanName string, autowiredBeanNames map[string]bool) (interface{}, error) {

	candidates, err := t.findAutowireCandidates(descriptor, requestingBeanName)
	if err != nil {
		return nil, err
	}

	if len(candidates) == 0 {
		if t.parent != nil {
			obj, err := t.parent.GetBeanByType(descriptor.Type)
			if err == nil {
				return obj, nil
			}
			if _, notFound := err.(*NoSuchBeanError); !notFound {
				return nil, err
			}
		}
		if descriptor.Required {
			return nil, &NoSuchBeanError{RequiredType: descriptor.Type}
		}
		return nil, nil
	}

	candidateName := candidates[0]
	if len(candidates) > 1 {
		candidateName, err = t.determineAutowireCandidate(ctx, candidates, descriptor)
		if err != nil {
			return nil, err
		}
	}

	if autowiredBeanNames != nil {
		autowiredBeanNames[candidateName] = true
	}

	if requestingBeanName != "" {
		t.registry.registerDependentBean(candidateName, requestingBeanName)
	}

	obj, err := t.doGetBean(ctx, candidateName, nil)
	if err != nil {
		return nil, err
	}
	return obj, nil
}

/**
Collects definition and manual singleton names assignable to the
descriptor type, excluding the requesting bean itself, honoring the
qualifier when declared.
*/

func (t *beanFactory) findAutowireCandidates(descriptor *DependencyDescriptor, requestingBeanName string) ([]string, error) {

	names := t.getBeanNamesForTypeInternal(descriptor.Type)

	candidates := make([]string, 0, len(names))
	for _, name := range names {
		if name == requestingBeanName {
			continue
		}
		if descriptor.Qualifier != "" && !t.matchesQualifier(name, descriptor.Qualifier) {
			continue
		}
		candidates = append(candidates, name)
	}
	return candidates, nil
}

func (t *beanFactory) matchesQualifier(beanName, qualifier string) bool {
	if beanName == qualifier {
		return true
	}
	if def, ok := t.getDefinition(beanName); ok {
		return def.qualifier == qualifier
	}
	return false
}

/**
Picks the single winner among multiple candidates: an exact qualifier
match first, then the sole primary definition, then priority order.
Several primaries or no distinction at all is an ambiguity error.
*/

func (t *beanFactory) determineAutowireCandidate(ctx *creationContext, candidates []string, descriptor *DependencyDescriptor) (string, error) {

	if descriptor.Qualifier != "" {
		for _, name := range candidates {
			if name == descriptor.Qualifier {
				return name, nil
			}
		}
	}

	var primaries []string
	for _, name := range candidates {
		if def, ok := t.getDefinition(name); ok && def.primary {
			primaries = append(primaries, name)
		}
	}
	switch len(primaries) {
	case 1:
		return primaries[0], nil
	case 0:
	default:
		return "", &NoUniqueBeanError{RequiredType: descriptor.Type, Candidates: primaries}
	}

	return t.determineHighestOrderCandidate(ctx, candidates, descriptor)
}

/**
Breaks the remaining tie by bean order, the lower order wins. The
candidates are instantiated to ask their order, the winner was about to
be created anyway. A candidate currently in creation is never
instantiated here, it keeps the default order.
*/

func (t *beanFactory) determineHighestOrderCandidate(ctx *creationContext, candidates []string, descriptor *DependencyDescriptor) (string, error) {

	orders := make([]int, len(candidates))
	for i, name := range candidates {
		orders[i] = maxInt
		if t.registry.isSingletonCurrentlyInCreation(name) {
			continue
		}
		obj, err := t.doGetBean(ctx, name, nil)
		if err != nil {
			return "", err
		}
		orders[i] = beanOrder(obj)
	}

	best := 0
	for i := 1; i < len(orders); i++ {
		if orders[i] < orders[best] {
			best = i
		}
	}
	unique := 0
	for _, order := range orders {
		if order == orders[best] {
			unique++
		}
	}
	if unique > 1 {
		return "", &NoUniqueBeanError{RequiredType: descriptor.Type, Candidates: candidates}
	}
	return candidates[best], nil
}

func (t *beanFactory) resolveMultipleBeans(ctx *creationContext, descriptor *DependencyDescriptor, requestingBeanName string, autowiredBeanNames map[string]bool) (interface{}, error) {

	elemType := descriptor.Type.Elem()
	elemDescriptor := &DependencyDescriptor{Type: elemType, Qualifier: descriptor.Qualifier, Name: descriptor.Name}

	candidates, err := t.findAutowireCandidates(elemDescriptor, requestingBeanName)
	if err != nil {
		return nil, err
	}

	if len(candidates) == 0 {
		if descriptor.Required {
			return nil, &NoSuchBeanError{RequiredType: descriptor.Type}
		}
		return nil, nil
	}

	type entry struct {
		name string
		obj  interface{}
	}
	entries := make([]entry, 0, len(candidates))
	for _, name := range candidates {
		if autowiredBeanNames != nil {
			autowiredBeanNames[name] = true
		}
		if requestingBeanName != "" {
			t.registry.registerDependentBean(name, requestingBeanName)
		}
		obj, err := t.doGetBean(ctx, name, nil)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry{name: name, obj: obj})
	}

	// ordered beans come first by their order, the rest keep registration order
	sort.SliceStable(entries, func(i, j int) bool {
		return beanOrder(entries[i].obj) < beanOrder(entries[j].obj)
	})

	out := reflect.MakeSlice(descriptor.Type, 0, len(entries))
	for _, e := range entries {
		out = reflect.Append(out, reflect.ValueOf(e.obj))
	}
	return out.Interface(), nil
}

func beanOrder(obj interface{}) int {
	if ordered, ok := obj.(OrderedBean); ok {
		return ordered.BeanOrder()
	}
	return maxInt
}

const maxInt = int(^uint(0) >> 1)

func (t *beanFactory) resolveBeanMap(ctx *creationContext, descriptor *DependencyDescriptor, requestingBeanName string, autowiredBeanNames map[string]bool) (interface{}, error) {

	elemType := descriptor.Type.Elem()
	elemDescriptor := &DependencyDescriptor{Type: elemType, Qualifier: descriptor.Qualifier, Name: descriptor.Name}

	candidates, err := t.findAutowireCandidates(elemDescriptor, requestingBeanName)
	if err != nil {
		return nil, err
	}

	if len(candidates) == 0 {
		if descriptor.Required {
			return nil, &NoSuchBeanError{RequiredType: descriptor.Type}
		}
		return nil, nil
	}

	out := reflect.MakeMapWithSize(descriptor.Type, len(candidates))
	for _, name := range candidates {
		if autowiredBeanNames != nil {
			autowiredBeanNames[name] = true
		}
		if requestingBeanName != "" {
			t.registry.registerDependentBean(name, requestingBeanName)
		}
		obj, err := t.doGetBean(ctx, name, nil)
		if err != nil {
			return nil, err
		}
		out.SetMapIndex(reflect.ValueOf(name), reflect.ValueOf(obj))
	}
	return out.Interface(), nil
}

/**
Builds a provider function of type func() T deferring candidate lookup
until the first call. The resolution runs once, repeat calls return the
memoized instance. A failed required resolution panics inside the
provider since the func signature has no error return.
*/

func (t *beanFactory) buildLazyProvider(descriptor *DependencyDescriptor, requestingBeanName string) (interface{}, error) {

	targetType := descriptor.Type
	fnType := reflect.FuncOf(nil, []reflect.Type{targetType}, false)

	var once sync.Once
	var resolved interface{}
	var resolveErr error

	provider := reflect.MakeFunc(fnType, func([]reflect.Value) []reflect.Value {
		once.Do(func() {
			inner := &DependencyDescriptor{
				Type:      targetType,
				Qualifier: descriptor.Qualifier,
				Required:  descriptor.Required,
				Name:      descriptor.Name,
			}
			// fresh context, the originating creation is long finished
			resolved, resolveErr = t.resolveDependencyInternal(newCreationContext(), inner, requestingBeanName, nil)
		})
		if resolveErr != nil {
			panic(errors.Errorf("lazy resolution of '%s' failed, %v", descriptor, resolveErr))
		}
		if resolved == nil {
			return []reflect.Value{reflect.Zero(targetType)}
		}
		return []reflect.Value{reflect.ValueOf(resolved)}
	})

	return provider.Interface(), nil
}
