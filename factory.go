/*
 * Copyright (c) 2023 Zander Schwid & Co. LLC.
 * SPDX-License-Identifier: BUSL-1.1
 */

package beans

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

/**
Default bean factory. Definitions describe how to build beans, the
singleton registry caches shared instances, the creation engine in
create.go turns one into the other.
*/

type beanFactory struct {
	parent BeanFactory

	/**
	Guards definitions, merged definition cache, scopes, post-processors
	and manual singleton names. Creation state lives in the registry under
	its own lock.
	*/
	mu sync.RWMutex

	definitions     map[string]*BeanDefinition
	definitionNames []string

	mergedDefinitions map[string]*BeanDefinition

	manualSingletonNames []string

	postProcessors []BeanPostProcessor

	scopes map[string]Scope

	registry *singletonRegistry

	/**
	FactoryBean produced singleton objects by factory bean name.
	*/
	factoryBeanObjectCache map[string]interface{}
	factoryBeanObjectMu    sync.Mutex

	allowCircularReferences          bool
	allowRawInjectionDespiteWrapping bool

	properties   Properties
	converter    TypeConverter
	exprResolver ExpressionResolver
}

type Option func(*beanFactory)

func WithParent(parent BeanFactory) Option {
	return func(t *beanFactory) {
		t.parent = parent
	}
}

func WithProperties(properties Properties) Option {
	return func(t *beanFactory) {
		t.properties = properties
	}
}

func WithTypeConverter(converter TypeConverter) Option {
	return func(t *beanFactory) {
		t.converter = converter
	}
}

func WithExpressionResolver(resolver ExpressionResolver) Option {
	return func(t *beanFactory) {
		t.exprResolver = resolver
	}
}

/**
Disables early reference exposure, any singleton circular reference
becomes an error.
*/

func DisableCircularReferences() Option {
	return func(t *beanFactory) {
		t.allowCircularReferences = false
	}
}

/**
Tolerates dependents keeping the raw early reference of a bean that was
wrapped by an after-initialization post-processor.
*/

func AllowRawInjectionDespiteWrapping() Option {
	return func(t *beanFactory) {
		t.allowRawInjectionDespiteWrapping = true
	}
}

func NewBeanFactory(options ...Option) BeanFactory {
	t := &beanFactory{
		definitions:             make(map[string]*BeanDefinition),
		mergedDefinitions:       make(map[string]*BeanDefinition),
		scopes:                  make(map[string]Scope),
		registry:                newSingletonRegistry(),
		factoryBeanObjectCache:  make(map[string]interface{}),
		allowCircularReferences: true,
	}
	for _, opt := range options {
		opt(t)
	}
	if t.properties == nil {
		t.properties = NewProperties()
		if t.parent != nil {
			t.properties.Extend(t.parent.Properties())
		}
	}
	if t.converter == nil {
		t.converter = NewTypeConverter()
	}
	if t.exprResolver == nil {
		t.exprResolver = NewPlaceholderResolver(t.properties)
	}
	return t
}

func (t *beanFactory) String() string {
	t.mu.RLock()
	definitions := len(t.definitions)
	t.mu.RUnlock()
	return fmt.Sprintf("BeanFactory{definitions=%d, singletons=%d}", definitions, len(t.registry.singletonNames()))
}

func (t *beanFactory) Properties() Properties {
	return t.properties
}

func (t *beanFactory) Parent() (BeanFactory, bool) {
	return t.parent, t.parent != nil
}

func (t *beanFactory) RegisterBeanDefinition(beanName string, definition *BeanDefinition) error {
	if beanName == "" {
		return errors.New("empty bean name")
	}
	if strings.HasPrefix(beanName, FactoryBeanPrefix) {
		return errors.Errorf("bean name '%s' must not start with the factory bean prefix", beanName)
	}
	if definition == nil {
		return errors.Errorf("null bean definition for name '%s'", beanName)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.definitions[beanName]; !ok {
		t.definitionNames = append(t.definitionNames, beanName)
	}
	t.definitions[beanName] = definition
	// overriding invalidates merged views of the whole hierarchy
	t.mergedDefinitions = make(map[string]*BeanDefinition)
	return nil
}

func (t *beanFactory) RegisterSingleton(beanName string, obj interface{}) error {
	if beanName == "" {
		return errors.New("empty bean name")
	}
	if obj == nil {
		return errors.Errorf("null singleton object for name '%s'", beanName)
	}
	if t.registry.containsSingleton(beanName) {
		return errors.Errorf("singleton bean '%s' already registered", beanName)
	}
	t.registry.addSingleton(beanName, obj)
	t.mu.Lock()
	t.manualSingletonNames = append(t.manualSingletonNames, beanName)
	t.mu.Unlock()
	return nil
}

func (t *beanFactory) AddBeanPostProcessor(processor BeanPostProcessor) {
	if processor == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.postProcessors = append(t.postProcessors, processor)
}

func (t *beanFactory) getPostProcessors() []BeanPostProcessor {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]BeanPostProcessor, len(t.postProcessors))
	copy(out, t.postProcessors)
	return out
}

func (t *beanFactory) RegisterScope(scopeName string, scope Scope) error {
	if scopeName == "" || scope == nil {
		return errors.New("empty scope name or null scope")
	}
	if scopeName == ScopeSingleton || scopeName == ScopePrototype {
		return errors.Errorf("scope name '%s' is reserved", scopeName)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.scopes[scopeName] = scope
	return nil
}

func (t *beanFactory) getScope(scopeName string) (Scope, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	scope, ok := t.scopes[scopeName]
	return scope, ok
}

func (t *beanFactory) getDefinition(beanName string) (*BeanDefinition, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	def, ok := t.definitions[beanName]
	return def, ok
}

func (t *beanFactory) getDefinitionNames() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, len(t.definitionNames))
	copy(out, t.definitionNames)
	return out
}

func (t *beanFactory) getManualSingletonNames() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, len(t.manualSingletonNames))
	copy(out, t.manualSingletonNames)
	return out
}

/**
Strips the factory bean prefix from the requested name.
*/

func transformedBeanName(name string) string {
	for strings.HasPrefix(name, FactoryBeanPrefix) {
		name = name[len(FactoryBeanPrefix):]
	}
	return name
}

/**
Returns the cached merged view of the definition, flattening the parent
definition chain on first use.
*/

func (t *beanFactory) getMergedDefinition(beanName string) (*BeanDefinition, error) {
	t.mu.RLock()
	merged, ok := t.mergedDefinitions[beanName]
	t.mu.RUnlock()
	if ok {
		return merged, nil
	}

	def, ok := t.getDefinition(beanName)
	if !ok {
		return nil, &NoSuchBeanError{BeanName: beanName}
	}

	merged, err := t.mergeWithParent(beanName, def)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	if cached, ok := t.mergedDefinitions[beanName]; ok {
		merged = cached
	} else {
		t.mergedDefinitions[beanName] = merged
	}
	t.mu.Unlock()
	return merged, nil
}

/**
Merges the definition with its declared parent definition chain. Used for
registered definitions and for inner bean definitions that never got
registered under a name.
*/

func (t *beanFactory) mergeWithParent(beanName string, def *BeanDefinition) (*BeanDefinition, error) {
	if def.parentName == "" {
		return mergeDefinitions(nil, def)
	}
	if def.parentName == beanName {
		return nil, errors.Errorf("definition '%s' declares itself as parent", beanName)
	}
	parent, err := t.getMergedDefinition(def.parentName)
	if err != nil {
		return nil, errors.Errorf("parent definition '%s' of bean '%s' failed to merge, %v", def.parentName, beanName, err)
	}
	return mergeDefinitions(parent, def)
}

func (t *beanFactory) GetBean(beanName string) (interface{}, error) {
	return t.doGetBean(newCreationContext(), beanName, nil)
}

func (t *beanFactory) GetBeanWithArgs(beanName string, args ...interface{}) (interface{}, error) {
	if args == nil {
		args = []interface{}{}
	}
	return t.doGetBean(newCreationContext(), beanName, args)
}

/**
Central lookup and creation entry. The canonical bean name has the factory
bean prefix stripped, getObjectForBeanInstance applies the FactoryBean
contract on the way out based on the requested name.
*/

func (t *beanFactory) doGetBean(ctx *creationContext, name string, args []interface{}) (interface{}, error) {

	beanName := transformedBeanName(name)

	if args == nil {
		if shared, ok := t.registry.getSingleton(beanName, t.allowCircularReferences); ok {
			return t.getObjectForBeanInstance(ctx, shared, beanName, name)
		}
	}

	if _, ok := t.getDefinition(beanName); !ok {
		if t.registry.containsSingleton(beanName) {
			// manual singleton without definition
			shared, _ := t.registry.getSingleton(beanName, false)
			return t.getObjectForBeanInstance(ctx, shared, beanName, name)
		}
		if t.parent != nil {
			if args != nil {
				return t.parent.GetBeanWithArgs(name, args...)
			}
			return t.parent.GetBean(name)
		}
		return nil, &NoSuchBeanError{BeanName: name}
	}

	merged, err := t.getMergedDefinition(beanName)
	if err != nil {
		return nil, err
	}
	if merged.IsAbstract() {
		return nil, errors.Errorf("bean '%s' is an abstract definition and can not be instantiated", beanName)
	}

	for _, dep := range merged.dependsOn {
		if t.registry.isDependent(beanName, dep) {
			return nil, errors.Errorf("circular depends-on relationship between bean '%s' and bean '%s'", beanName, dep)
		}
		t.registry.registerDependentBean(dep, beanName)
		if _, err := t.doGetBean(ctx, dep, nil); err != nil {
			return nil, wrapCreationError(beanName, merged.resource,
				errors.Errorf("depends-on bean '%s' failed, %v", dep, err))
		}
	}

	switch {

	case merged.IsSingleton():
		obj, err := t.registry.getSingletonOrCreate(beanName, ctx, func() (interface{}, error) {
			return t.createBean(ctx, beanName, merged, args)
		})
		if err != nil {
			return nil, wrapCreationError(beanName, merged.resource, err)
		}
		return t.getObjectForBeanInstance(ctx, obj, beanName, name)

	case merged.IsPrototype():
		if ctx.isPrototypeInCreation(beanName) {
			return nil, &BeanCurrentlyInCreationError{BeanName: beanName}
		}
		ctx.beforePrototypeCreation(beanName)
		obj, err := t.createBean(ctx, beanName, merged, args)
		ctx.afterPrototypeCreation(beanName)
		if err != nil {
			return nil, wrapCreationError(beanName, merged.resource, err)
		}
		return t.getObjectForBeanInstance(ctx, obj, beanName, name)

	default:
		scope, ok := t.getScope(merged.scope)
		if !ok {
			return nil, errors.Errorf("no scope registered with name '%s' for bean '%s'", merged.scope, beanName)
		}
		obj, err := scope.Get(beanName, func() (interface{}, error) {
			if ctx.isPrototypeInCreation(beanName) {
				return nil, &BeanCurrentlyInCreationError{BeanName: beanName}
			}
			ctx.beforePrototypeCreation(beanName)
			defer ctx.afterPrototypeCreation(beanName)
			return t.createBean(ctx, beanName, merged, args)
		})
		if err != nil {
			return nil, wrapCreationError(beanName, merged.resource, err)
		}
		return t.getObjectForBeanInstance(ctx, obj, beanName, name)
	}
}

func (t *beanFactory) GetBeanByType(requiredType reflect.Type) (interface{}, error) {
	if requiredType == nil {
		return nil, errors.New("null required type")
	}
	names := t.GetBeanNamesForType(requiredType)
	switch len(names) {
	case 0:
		if t.parent != nil {
			return t.parent.GetBeanByType(requiredType)
		}
		return nil, &NoSuchBeanError{RequiredType: requiredType}
	case 1:
		return t.GetBean(names[0])
	default:
		name, err := t.determineAutowireCandidate(newCreationContext(), names, &DependencyDescriptor{Type: requiredType})
		if err != nil {
			return nil, err
		}
		return t.GetBean(name)
	}
}

func (t *beanFactory) ContainsBean(beanName string) bool {
	name := transformedBeanName(beanName)
	if t.registry.containsSingleton(name) {
		return true
	}
	if _, ok := t.getDefinition(name); ok {
		return true
	}
	if t.parent != nil {
		return t.parent.ContainsBean(beanName)
	}
	return false
}

func (t *beanFactory) IsSingleton(beanName string) (bool, error) {
	name := transformedBeanName(beanName)

	if obj, ok := t.registry.getSingleton(name, false); ok {
		if fb, isFactory := obj.(FactoryBean); isFactory && !strings.HasPrefix(beanName, FactoryBeanPrefix) {
			return fb.Singleton(), nil
		}
		return true, nil
	}

	if merged, err := t.getMergedDefinition(name); err == nil {
		return merged.IsSingleton(), nil
	}

	if t.parent != nil {
		return t.parent.IsSingleton(beanName)
	}
	return false, &NoSuchBeanError{BeanName: beanName}
}

func (t *beanFactory) IsPrototype(beanName string) (bool, error) {
	name := transformedBeanName(beanName)

	if t.registry.containsSingleton(name) {
		return false, nil
	}

	if merged, err := t.getMergedDefinition(name); err == nil {
		return merged.IsPrototype(), nil
	}

	if t.parent != nil {
		return t.parent.IsPrototype(beanName)
	}
	return false, &NoSuchBeanError{BeanName: beanName}
}

func (t *beanFactory) GetType(beanName string) (reflect.Type, error) {
	name := transformedBeanName(beanName)
	factoryBeanRequested := strings.HasPrefix(beanName, FactoryBeanPrefix)

	if obj, ok := t.registry.getSingleton(name, false); ok {
		if fb, isFactory := obj.(FactoryBean); isFactory && !factoryBeanRequested {
			return fb.ObjectType(), nil
		}
		return reflect.TypeOf(obj), nil
	}

	merged, err := t.getMergedDefinition(name)
	if err != nil {
		if t.parent != nil {
			return t.parent.GetType(beanName)
		}
		return nil, err
	}

	predicted := t.predictBeanType(name, merged)
	if predicted == nil {
		return nil, errors.Errorf("type of bean '%s' can not be predicted before creation", beanName)
	}

	if isFactoryBeanType(predicted) && !factoryBeanRequested {
		// the product type is only known to the factory bean instance
		obj, err := t.doGetBean(newCreationContext(), FactoryBeanPrefix+name, nil)
		if err != nil {
			return nil, err
		}
		if fb, ok := obj.(FactoryBean); ok {
			return fb.ObjectType(), nil
		}
	}

	return predicted, nil
}

func isFactoryBeanType(beanType reflect.Type) bool {
	return beanType != nil && beanType.Implements(FactoryBeanClass)
}

/**
Predicts the final type from the resolved target type cache, post-processor
opinions, constructor signatures or the declared bean type, in that order.
*/

func (t *beanFactory) predictBeanType(beanName string, merged *BeanDefinition) reflect.Type {

	merged.postProcessingLock.Lock()
	resolved := merged.resolvedTargetType
	merged.postProcessingLock.Unlock()
	if resolved != nil {
		return resolved
	}

	declared := merged.beanType
	if declared != nil && declared.Kind() == reflect.Struct {
		declared = reflect.PtrTo(declared)
	}

	for _, processor := range t.getPostProcessors() {
		if smart, ok := processor.(SmartInstantiationAwareBeanPostProcessor); ok {
			if predicted := smart.PredictBeanType(declared, beanName); predicted != nil {
				return predicted
			}
		}
	}

	if len(merged.constructors) == 1 {
		fn := reflect.TypeOf(merged.constructors[0])
		if fn != nil && fn.Kind() == reflect.Func && fn.NumOut() >= 1 {
			return fn.Out(0)
		}
	}

	return declared
}

func (t *beanFactory) GetBeanNamesForType(requiredType reflect.Type) []string {
	if requiredType == nil {
		return nil
	}

	var out []string
	for _, name := range t.getDefinitionNames() {
		merged, err := t.getMergedDefinition(name)
		if err != nil || merged.IsAbstract() {
			continue
		}
		predicted := t.predictBeanType(name, merged)
		if predicted == nil {
			continue
		}
		if isFactoryBeanType(predicted) {
			// the product type is only known to the factory bean instance
			if obj, ok := t.registry.getSingleton(name, false); ok {
				if fb, isFactory := obj.(FactoryBean); isFactory {
					predicted = fb.ObjectType()
				}
			} else if !t.registry.isSingletonCurrentlyInCreation(name) {
				obj, err := t.GetBean(FactoryBeanPrefix + name)
				if err != nil {
					if verbose != nil {
						verbose.Printf("Type prediction of factory bean '%s' failed, %v\n", name, err)
					}
					continue
				}
				if fb, isFactory := obj.(FactoryBean); isFactory {
					predicted = fb.ObjectType()
				}
			}
		}
		if typeMatches(predicted, requiredType) {
			out = append(out, name)
		}
	}

	for _, name := range t.getManualSingletonNames() {
		if containsName(out, name) {
			continue
		}
		obj, ok := t.registry.getSingleton(name, false)
		if !ok {
			continue
		}
		if typeMatches(reflect.TypeOf(obj), requiredType) {
			out = append(out, name)
		}
	}

	return out
}

func typeMatches(actual, required reflect.Type) bool {
	if actual == nil {
		return false
	}
	return actual.AssignableTo(required)
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

/**
Names used internally by the dependency resolver, same as the public
lookup.
*/

func (t *beanFactory) getBeanNamesForTypeInternal(requiredType reflect.Type) []string {
	return t.GetBeanNamesForType(requiredType)
}

func (t *beanFactory) CreateBean(beanName string, definition *BeanDefinition, args []interface{}) (interface{}, error) {
	if definition == nil {
		return nil, errors.Errorf("null bean definition for name '%s'", beanName)
	}
	merged, err := t.mergeWithParent(beanName, definition)
	if err != nil {
		return nil, err
	}
	obj, err := t.createBean(newCreationContext(), beanName, merged, args)
	if err != nil {
		return nil, wrapCreationError(beanName, merged.resource, err)
	}
	return obj, nil
}

func (t *beanFactory) ResolveDependency(descriptor *DependencyDescriptor, requestingBeanName string, autowiredBeanNames *[]string) (interface{}, error) {
	var collected map[string]bool
	if autowiredBeanNames != nil {
		collected = make(map[string]bool)
	}
	obj, err := t.resolveDependencyInternal(newCreationContext(), descriptor, requestingBeanName, collected)
	if err != nil {
		return nil, err
	}
	if autowiredBeanNames != nil {
		names := make([]string, 0, len(collected))
		for name := range collected {
			names = append(names, name)
		}
		sort.Strings(names)
		*autowiredBeanNames = append(*autowiredBeanNames, names...)
	}
	return obj, nil
}

/**
Eagerly creates all non-lazy singletons in definition registration order.
A failing bean tears down everything created during the pass.
*/

func (t *beanFactory) PreInstantiateSingletons() error {

	for _, name := range t.getDefinitionNames() {
		merged, err := t.getMergedDefinition(name)
		if err != nil {
			return err
		}
		if merged.IsAbstract() || !merged.IsSingleton() || merged.IsLazyInit() {
			continue
		}

		if verbose != nil {
			verbose.Printf("Pre-instantiate singleton bean '%s'\n", name)
		}

		if isFactoryBeanType(t.predictBeanType(name, merged)) {
			_, err = t.GetBean(FactoryBeanPrefix + name)
		} else {
			_, err = t.GetBean(name)
		}
		if err != nil {
			if destroyErr := t.DestroySingletons(); destroyErr != nil && verbose != nil {
				verbose.Printf("Destroy singletons after failed pre-instantiation, %v\n", destroyErr)
			}
			return err
		}
	}

	return nil
}

func (t *beanFactory) DestroySingletons() error {
	err := t.registry.destroySingletons()

	t.factoryBeanObjectMu.Lock()
	t.factoryBeanObjectCache = make(map[string]interface{})
	t.factoryBeanObjectMu.Unlock()

	t.mu.Lock()
	t.manualSingletonNames = nil
	t.mu.Unlock()

	return err
}
