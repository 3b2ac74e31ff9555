/*
 * Copyright (c) 2023 Zander Schwid & Co. LLC.
 * SPDX-License-Identifier: BUSL-1.1
 */

package beans

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/pkg/errors"
)

var errorClass = reflect.TypeOf((*error)(nil)).Elem()

/**
Disambiguates which constructor function or factory method to invoke for
the definition and produces the fully resolved argument array. Candidates
are tried greedy, more parameters first. Equally good candidates of the
same arity raise an ambiguity error instead of guessing.
*/

type constructorResolver struct {
	factory *beanFactory
	ctx     *creationContext
}

func newConstructorResolver(factory *beanFactory, ctx *creationContext) *constructorResolver {
	return &constructorResolver{factory: factory, ctx: ctx}
}

type constructorCandidate struct {
	fn     reflect.Value
	fnType reflect.Type
}

func (t constructorCandidate) String() string {
	return t.fnType.String()
}

/**
Validates the candidate signature: func(deps...) (T) or func(deps...) (T, error).
*/

func asConstructorCandidate(ctor interface{}) (constructorCandidate, error) {
	fn := reflect.ValueOf(ctor)
	if !fn.IsValid() || fn.Kind() != reflect.Func {
		return constructorCandidate{}, errors.Errorf("constructor must be a function, but was '%v'", reflect.TypeOf(ctor))
	}
	fnType := fn.Type()
	switch fnType.NumOut() {
	case 1:
		if fnType.Out(0) == errorClass {
			return constructorCandidate{}, errors.Errorf("constructor '%v' must return the bean instance", fnType)
		}
	case 2:
		if fnType.Out(1) != errorClass {
			return constructorCandidate{}, errors.Errorf("second return value of constructor '%v' must be error", fnType)
		}
	default:
		return constructorCandidate{}, errors.Errorf("constructor '%v' must return the bean instance and optional error", fnType)
	}
	return constructorCandidate{fn: fn, fnType: fnType}, nil
}

/**
Selects the constructor and creates the instance. With explicit arguments
the match is purely on arity and assignability, no autowiring. Otherwise
declared argument values are resolved by position first, then by type and
name, and remaining parameters are autowired when the mode supports it.

The chosen constructor is cached on the definition under its constructor
argument lock, argument values are re-resolved on every creation.
*/

func (t *constructorResolver) autowireConstructor(beanName string, merged *BeanDefinition, ctors []interface{}, explicitArgs []interface{}) (interface{}, error) {

	candidates := make([]constructorCandidate, 0, len(ctors))
	for _, ctor := range ctors {
		candidate, err := asConstructorCandidate(ctor)
		if err != nil {
			return nil, &ConstructorResolutionError{BeanName: beanName, BeanType: merged.beanType, Reason: err.Error()}
		}
		candidates = append(candidates, candidate)
	}

	if explicitArgs != nil {
		return t.instantiateWithExplicitArgs(beanName, merged, candidates, explicitArgs)
	}

	// reuse the already made selection for repeat creations of the same definition
	merged.constructorArgumentLock.Lock()
	cached := merged.resolvedConstructorOrFactoryMethod
	merged.constructorArgumentLock.Unlock()
	if cached != nil {
		for _, candidate := range candidates {
			if candidate.fn.Pointer() == cached.Pointer() {
				args, err := t.resolveArgumentArray(beanName, merged, candidate.fnType, true)
				if err != nil {
					return nil, &ConstructorResolutionError{BeanName: beanName, BeanType: merged.beanType, Reason: err.Error()}
				}
				return t.invoke(beanName, candidate, args)
			}
		}
	}

	// greedy: more specific signatures first
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].fnType.NumIn() > candidates[j].fnType.NumIn()
	})

	autowiring := merged.autowireMode == AutowireConstructor || merged.constructorArgs.IsEmpty()

	var lastErr error
	for i := 0; i < len(candidates); {

		// group of equal arity candidates
		arity := candidates[i].fnType.NumIn()
		j := i
		for j < len(candidates) && candidates[j].fnType.NumIn() == arity {
			j++
		}

		var matched []constructorCandidate
		var matchedArgs [][]reflect.Value
		for _, candidate := range candidates[i:j] {
			args, err := t.resolveArgumentArray(beanName, merged, candidate.fnType, autowiring)
			if err != nil {
				lastErr = err
				continue
			}
			matched = append(matched, candidate)
			matchedArgs = append(matchedArgs, args)
		}

		switch len(matched) {
		case 0:
			i = j
			continue
		case 1:
			merged.constructorArgumentLock.Lock()
			fn := matched[0].fn
			merged.resolvedConstructorOrFactoryMethod = &fn
			merged.constructorArgumentLock.Unlock()
			return t.invoke(beanName, matched[0], matchedArgs[0])
		default:
			return nil, &ConstructorResolutionError{
				BeanName: beanName,
				BeanType: merged.beanType,
				Reason:   fmt.Sprintf("ambiguous constructor candidates %v", matched),
			}
		}
	}

	reason := "no satisfiable constructor candidate found"
	if lastErr != nil {
		reason = fmt.Sprintf("%s, last error: %v", reason, lastErr)
	}
	return nil, &ConstructorResolutionError{BeanName: beanName, BeanType: merged.beanType, Reason: reason}
}

func (t *constructorResolver) instantiateWithExplicitArgs(beanName string, merged *BeanDefinition, candidates []constructorCandidate, explicitArgs []interface{}) (interface{}, error) {

	for _, candidate := range candidates {
		if candidate.fnType.NumIn() != len(explicitArgs) {
			continue
		}
		args := make([]reflect.Value, 0, len(explicitArgs))
		ok := true
		for i, arg := range explicitArgs {
			paramType := candidate.fnType.In(i)
			if arg == nil {
				args = append(args, reflect.Zero(paramType))
				continue
			}
			value := reflect.ValueOf(arg)
			if !value.Type().AssignableTo(paramType) {
				ok = false
				break
			}
			args = append(args, value)
		}
		if ok {
			return t.invoke(beanName, candidate, args)
		}
	}

	return nil, &ConstructorResolutionError{
		BeanName: beanName,
		BeanType: merged.beanType,
		Reason:   fmt.Sprintf("no constructor matching %d explicit arguments", len(explicitArgs)),
	}
}

/**
Resolves one argument per parameter: indexed values by position, generic
values by declared type and name, autowiring for the rest. Lenient mode
fills still unsatisfied parameters with zero values.
*/

func (t *constructorResolver) resolveArgumentArray(beanName string, merged *BeanDefinition, fnType reflect.Type, autowiring bool) ([]reflect.Value, error) {

	resolver := newValueResolver(t.factory, beanName, merged, t.ctx)
	cargs := merged.constructorArgs
	used := make(map[*ValueHolder]bool)
	args := make([]reflect.Value, 0, fnType.NumIn())

	for i := 0; i < fnType.NumIn(); i++ {
		paramType := fnType.In(i)
		argName := fmt.Sprintf("constructor argument %d", i)

		holder, ok := cargs.GetIndexedValue(i)
		if !ok {
			holder, ok = cargs.GetGenericValue(paramType, "", used)
		}
		if ok {
			used[holder] = true
			resolved, err := resolver.resolveValueIfNecessary(argName, holder.Value)
			if err != nil {
				return nil, err
			}
			converted, err := t.factory.converter.Convert(resolved, paramType)
			if err != nil {
				return nil, errors.Errorf("conversion of %s to type '%v' failed, %v", argName, paramType, err)
			}
			if converted == nil {
				args = append(args, reflect.Zero(paramType))
			} else {
				args = append(args, reflect.ValueOf(converted))
			}
			continue
		}

		if autowiring {
			descriptor := &DependencyDescriptor{
				Type:     paramType,
				Required: !merged.lenientConstructorResolution,
				Name:     argName,
			}
			value, err := t.factory.resolveDependencyInternal(t.ctx, descriptor, beanName, nil)
			if err != nil {
				return nil, err
			}
			if value == nil {
				if !merged.lenientConstructorResolution {
					return nil, errors.Errorf("no candidate for %s with type '%v'", argName, paramType)
				}
				args = append(args, reflect.Zero(paramType))
				continue
			}
			args = append(args, reflect.ValueOf(value))
			continue
		}

		if merged.lenientConstructorResolution {
			args = append(args, reflect.Zero(paramType))
			continue
		}

		return nil, errors.Errorf("unsatisfied %s with type '%v'", argName, paramType)
	}

	return args, nil
}

func (t *constructorResolver) invoke(beanName string, candidate constructorCandidate, args []reflect.Value) (obj interface{}, err error) {

	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("constructor '%v' of bean '%s' recovered with error %v", candidate.fnType, beanName, r)
		}
	}()

	out := candidate.fn.Call(args)
	if len(out) == 2 && !out[1].IsNil() {
		return nil, errors.Errorf("constructor '%v' of bean '%s' failed, %v", candidate.fnType, beanName, out[1].Interface())
	}
	instance := out[0].Interface()
	if instance == nil {
		return nil, errors.Errorf("constructor '%v' of bean '%s' produced null instance", candidate.fnType, beanName)
	}
	return instance, nil
}

/**
Creates the instance by calling the named method on the factory bean
registered under the definition's factory bean name. Arguments resolve the
same way constructor arguments do.
*/

func (t *constructorResolver) instantiateUsingFactoryMethod(beanName string, merged *BeanDefinition, explicitArgs []interface{}) (interface{}, error) {

	if merged.factoryBeanName == "" {
		return nil, &FactoryMethodResolutionError{
			BeanName:          beanName,
			FactoryMethodName: merged.factoryMethodName,
			Reason:            "no factory bean name declared",
		}
	}
	if merged.factoryBeanName == beanName {
		return nil, &FactoryMethodResolutionError{
			BeanName:          beanName,
			FactoryBeanName:   merged.factoryBeanName,
			FactoryMethodName: merged.factoryMethodName,
			Reason:            "factory bean name refers to the same bean",
		}
	}

	t.factory.registry.registerDependentBean(merged.factoryBeanName, beanName)

	factoryObj, err := t.factory.doGetBean(t.ctx, merged.factoryBeanName, nil)
	if err != nil {
		return nil, &FactoryMethodResolutionError{
			BeanName:          beanName,
			FactoryBeanName:   merged.factoryBeanName,
			FactoryMethodName: merged.factoryMethodName,
			Reason:            fmt.Sprintf("factory bean creation failed, %v", err),
		}
	}

	method := reflect.ValueOf(factoryObj).MethodByName(merged.factoryMethodName)
	if !method.IsValid() {
		return nil, &FactoryMethodResolutionError{
			BeanName:          beanName,
			FactoryBeanName:   merged.factoryBeanName,
			FactoryMethodName: merged.factoryMethodName,
			Reason:            fmt.Sprintf("no such method on factory bean type '%v'", reflect.TypeOf(factoryObj)),
		}
	}

	candidate, err := asConstructorCandidate(method.Interface())
	if err != nil {
		return nil, &FactoryMethodResolutionError{
			BeanName:          beanName,
			FactoryBeanName:   merged.factoryBeanName,
			FactoryMethodName: merged.factoryMethodName,
			Reason:            err.Error(),
		}
	}

	if explicitArgs != nil {
		return t.instantiateWithExplicitArgs(beanName, merged, []constructorCandidate{candidate}, explicitArgs)
	}

	autowiring := merged.autowireMode == AutowireConstructor || merged.constructorArgs.IsEmpty()
	args, err := t.resolveArgumentArray(beanName, merged, candidate.fnType, autowiring)
	if err != nil {
		return nil, &FactoryMethodResolutionError{
			BeanName:          beanName,
			FactoryBeanName:   merged.factoryBeanName,
			FactoryMethodName: merged.factoryMethodName,
			Reason:            err.Error(),
		}
	}

	merged.constructorArgumentLock.Lock()
	merged.resolvedConstructorOrFactoryMethod = &method
	merged.constructorArgumentLock.Unlock()

	return t.invoke(beanName, candidate, args)
}
