/*
 * Copyright (c) 2023 Zander Schwid & Co. LLC.
 * SPDX-License-Identifier: BUSL-1.1
 */

package beans

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/pkg/errors"
)

/**
Holder of a single declared constructor argument value. The declared type
and name are optional hints for generic argument matching. Argument
values are re-resolved and re-converted on every creation, only property
values carry a conversion cache.
*/

type ValueHolder struct {
	Value interface{}

	/**
	Optional declared target type of the argument.
	*/
	Type reflect.Type

	/**
	Optional declared parameter name of the argument.
	*/
	Name string
}

func NewValueHolder(value interface{}) *ValueHolder {
	return &ValueHolder{Value: value}
}

func (t *ValueHolder) String() string {
	return fmt.Sprintf("<arg value '%v'>", t.Value)
}

/**
Indexed argument values match constructor parameters by position first,
generic ones fall back to type and name matching.
*/

type ConstructorArgumentValues struct {
	indexed map[int]*ValueHolder
	generic []*ValueHolder
}

func NewConstructorArgumentValues() *ConstructorArgumentValues {
	return &ConstructorArgumentValues{indexed: make(map[int]*ValueHolder)}
}

func (t *ConstructorArgumentValues) AddIndexedValue(index int, value interface{}) *ConstructorArgumentValues {
	t.indexed[index] = NewValueHolder(value)
	return t
}

func (t *ConstructorArgumentValues) AddGenericValue(value interface{}) *ConstructorArgumentValues {
	t.generic = append(t.generic, NewValueHolder(value))
	return t
}

func (t *ConstructorArgumentValues) AddTypedValue(value interface{}, declaredType reflect.Type) *ConstructorArgumentValues {
	t.generic = append(t.generic, &ValueHolder{Value: value, Type: declaredType})
	return t
}

func (t *ConstructorArgumentValues) AddNamedValue(name string, value interface{}) *ConstructorArgumentValues {
	t.generic = append(t.generic, &ValueHolder{Value: value, Name: name})
	return t
}

func (t *ConstructorArgumentValues) GetIndexedValue(index int) (*ValueHolder, bool) {
	holder, ok := t.indexed[index]
	return holder, ok
}

/**
Finds the first generic value assignable to the parameter type that was
not used yet, preferring an exact name match.
*/

func (t *ConstructorArgumentValues) GetGenericValue(paramType reflect.Type, paramName string, used map[*ValueHolder]bool) (*ValueHolder, bool) {
	if paramName != "" {
		for _, holder := range t.generic {
			if used[holder] || holder.Name == "" {
				continue
			}
			if holder.Name == paramName {
				return holder, true
			}
		}
	}
	for _, holder := range t.generic {
		if used[holder] || holder.Name != "" {
			continue
		}
		if holder.Type != nil {
			if holder.Type == paramType || holder.Type.AssignableTo(paramType) {
				return holder, true
			}
			continue
		}
		if valueMatchesType(holder.Value, paramType) {
			return holder, true
		}
	}
	return nil, false
}

func (t *ConstructorArgumentValues) Count() int {
	return len(t.indexed) + len(t.generic)
}

func (t *ConstructorArgumentValues) IsEmpty() bool {
	return t == nil || t.Count() == 0
}

func (t *ConstructorArgumentValues) copyInto(other *ConstructorArgumentValues) {
	for i, holder := range t.indexed {
		if _, ok := other.indexed[i]; !ok {
			other.indexed[i] = holder
		}
	}
	other.generic = append(other.generic, t.generic...)
}

/**
Checks if the declared value could satisfy the parameter type, before any
conversion happened. References, nested definitions and typed strings are
optimistic matches resolved later.
*/

func valueMatchesType(value interface{}, paramType reflect.Type) bool {
	switch v := value.(type) {
	case RuntimeBeanReference, BeanDefinitionHolder:
		return true
	case TypedStringValue:
		if v.TargetType != nil {
			return v.TargetType.AssignableTo(paramType)
		}
		return true
	case ManagedList, ManagedSet:
		return paramType.Kind() == reflect.Slice
	case ManagedMap, ManagedProperties:
		return paramType.Kind() == reflect.Map
	case nil:
		k := paramType.Kind()
		return k == reflect.Ptr || k == reflect.Interface || k == reflect.Slice || k == reflect.Map || k == reflect.Func
	default:
		actual := reflect.TypeOf(value)
		if actual.AssignableTo(paramType) {
			return true
		}
		if actual.ConvertibleTo(paramType) && isConvertibleKind(actual.Kind()) && isConvertibleKind(paramType.Kind()) {
			return true
		}
		return actual.Kind() == reflect.String
	}
}

func isConvertibleKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}

/**
Single declared property value. Conversion result may be cached on the
holder when the resolved value came back unchanged and is not a shared
mutable collection.
*/

type PropertyValue struct {
	Name     string
	Value    interface{}
	Optional bool

	converted      bool
	convertedValue interface{}
}

/**
Ordered collection of property values, name lookups keep the declaration
order for application.
*/

type PropertyValues struct {
	values []*PropertyValue
}

func NewPropertyValues() *PropertyValues {
	return &PropertyValues{}
}

func (t *PropertyValues) Add(name string, value interface{}) *PropertyValues {
	if existing := t.Get(name); existing != nil {
		existing.Value = value
		existing.converted = false
		existing.convertedValue = nil
		return t
	}
	t.values = append(t.values, &PropertyValue{Name: name, Value: value})
	return t
}

func (t *PropertyValues) Get(name string) *PropertyValue {
	for _, pv := range t.values {
		if pv.Name == name {
			return pv
		}
	}
	return nil
}

func (t *PropertyValues) Contains(name string) bool {
	return t.Get(name) != nil
}

func (t *PropertyValues) List() []*PropertyValue {
	return t.values
}

func (t *PropertyValues) IsEmpty() bool {
	return t == nil || len(t.values) == 0
}

func (t *PropertyValues) copy() *PropertyValues {
	out := NewPropertyValues()
	for _, pv := range t.values {
		clone := *pv
		out.values = append(out.values, &clone)
	}
	return out
}

/**
Declarative recipe of how to build one bean. Mutable during configuration
time post-processing, flattened with the parent chain into a merged
definition before first use.
*/

type BeanDefinition struct {

	/**
	Target type of the bean, the struct type or pointer to it. Could be
	empty when constructors or a factory method define the type.
	*/
	beanType reflect.Type

	/**
	Name of the parent definition this one inherits from.
	*/
	parentName string

	/**
	Candidate constructor functions of form func(deps...) (T) or
	func(deps...) (T, error).
	*/
	constructors []interface{}

	/**
	Factory method creation: method with this name called on the factory
	bean registered under factoryBeanName.
	*/
	factoryBeanName   string
	factoryMethodName string

	scope           string
	abstract        bool
	lazyInit        bool
	primary         bool
	qualifier       string
	autowireMode    AutowireMode
	dependencyCheck DependencyCheck
	dependsOn       []string

	/**
	Lenient constructor resolution fills unsatisfied optional parameters
	with zero values instead of failing.
	*/
	lenientConstructorResolution bool

	constructorArgs *ConstructorArgumentValues
	propertyValues  *PropertyValues

	initMethodName    string
	destroyMethodName string

	/**
	Description of the definition origin for diagnostics.
	*/
	resource string

	/**
	Post-processing state, guarded by postProcessingLock. The processed
	flag makes merged definition post-processing run exactly once.
	*/
	postProcessingLock sync.Mutex
	postProcessed      bool

	/**
	Short-circuit check state of before-instantiation post-processors.
	*/
	beforeInstantiationResolved *bool

	/**
	Resolution cache of the chosen constructor or factory method, guarded
	by constructorArgumentLock. Argument values are re-converted on every
	creation, only the selection decision is cached.
	*/
	constructorArgumentLock            sync.Mutex
	resolvedConstructorOrFactoryMethod *reflect.Value

	/**
	Resolved target type cache, consistent for the bean name within one
	factory generation.
	*/
	resolvedTargetType reflect.Type

	/**
	Merged state of this definition.
	*/
	merged bool
}

func NewBeanDefinition(beanType reflect.Type) *BeanDefinition {
	return &BeanDefinition{
		beanType:        beanType,
		scope:           ScopeSingleton,
		constructorArgs: NewConstructorArgumentValues(),
		propertyValues:  NewPropertyValues(),
	}
}

func NewChildBeanDefinition(parentName string) *BeanDefinition {
	t := NewBeanDefinition(nil)
	t.parentName = parentName
	t.scope = ""
	return t
}

func (t *BeanDefinition) String() string {
	return fmt.Sprintf("BeanDefinition{type=%v, scope=%s, autowire=%v, lazy=%v, primary=%v}",
		t.beanType, t.scope, t.autowireMode, t.lazyInit, t.primary)
}

func (t *BeanDefinition) BeanType() reflect.Type {
	return t.beanType
}

func (t *BeanDefinition) Scope(scope string) *BeanDefinition {
	t.scope = scope
	return t
}

func (t *BeanDefinition) GetScope() string {
	return t.scope
}

func (t *BeanDefinition) IsSingleton() bool {
	return t.scope == ScopeSingleton || t.scope == ""
}

func (t *BeanDefinition) IsPrototype() bool {
	return t.scope == ScopePrototype
}

func (t *BeanDefinition) Abstract() *BeanDefinition {
	t.abstract = true
	return t
}

func (t *BeanDefinition) IsAbstract() bool {
	return t.abstract
}

func (t *BeanDefinition) LazyInit() *BeanDefinition {
	t.lazyInit = true
	return t
}

func (t *BeanDefinition) IsLazyInit() bool {
	return t.lazyInit
}

func (t *BeanDefinition) Primary() *BeanDefinition {
	t.primary = true
	return t
}

func (t *BeanDefinition) IsPrimary() bool {
	return t.primary
}

func (t *BeanDefinition) Qualifier(qualifier string) *BeanDefinition {
	t.qualifier = qualifier
	return t
}

func (t *BeanDefinition) GetQualifier() string {
	return t.qualifier
}

func (t *BeanDefinition) Autowire(mode AutowireMode) *BeanDefinition {
	t.autowireMode = mode
	return t
}

func (t *BeanDefinition) GetAutowireMode() AutowireMode {
	return t.autowireMode
}

func (t *BeanDefinition) DependencyCheckMode(mode DependencyCheck) *BeanDefinition {
	t.dependencyCheck = mode
	return t
}

func (t *BeanDefinition) DependsOn(beanNames ...string) *BeanDefinition {
	t.dependsOn = append(t.dependsOn, beanNames...)
	return t
}

func (t *BeanDefinition) LenientConstructorResolution() *BeanDefinition {
	t.lenientConstructorResolution = true
	return t
}

func (t *BeanDefinition) Constructor(ctors ...interface{}) *BeanDefinition {
	t.constructors = append(t.constructors, ctors...)
	return t
}

func (t *BeanDefinition) FactoryMethod(factoryBeanName, factoryMethodName string) *BeanDefinition {
	t.factoryBeanName = factoryBeanName
	t.factoryMethodName = factoryMethodName
	return t
}

func (t *BeanDefinition) ConstructorArg(value interface{}) *BeanDefinition {
	t.constructorArgs.AddGenericValue(value)
	return t
}

func (t *BeanDefinition) IndexedConstructorArg(index int, value interface{}) *BeanDefinition {
	t.constructorArgs.AddIndexedValue(index, value)
	return t
}

func (t *BeanDefinition) ConstructorArgs() *ConstructorArgumentValues {
	return t.constructorArgs
}

func (t *BeanDefinition) Property(name string, value interface{}) *BeanDefinition {
	t.propertyValues.Add(name, value)
	return t
}

func (t *BeanDefinition) PropertyValues() *PropertyValues {
	return t.propertyValues
}

func (t *BeanDefinition) InitMethod(name string) *BeanDefinition {
	t.initMethodName = name
	return t
}

func (t *BeanDefinition) DestroyMethod(name string) *BeanDefinition {
	t.destroyMethodName = name
	return t
}

func (t *BeanDefinition) Resource(resource string) *BeanDefinition {
	t.resource = resource
	return t
}

func (t *BeanDefinition) GetResource() string {
	return t.resource
}

/**
Flattens the parent chain into one merged view. The merged definition is a
deep enough copy that configuration time post-processing of it never leaks
back into the canonical definitions.
*/

func mergeDefinitions(parent, child *BeanDefinition) (*BeanDefinition, error) {
	if parent != nil && parent.parentName != "" {
		return nil, errors.Errorf("parent definition '%s' is itself a child definition, merge the chain bottom up", parent.parentName)
	}

	merged := NewBeanDefinition(child.beanType)
	if parent != nil {
		merged.beanType = parent.beanType
		merged.constructors = append(merged.constructors, parent.constructors...)
		merged.factoryBeanName = parent.factoryBeanName
		merged.factoryMethodName = parent.factoryMethodName
		merged.scope = parent.scope
		merged.lazyInit = parent.lazyInit
		merged.primary = parent.primary
		merged.qualifier = parent.qualifier
		merged.autowireMode = parent.autowireMode
		merged.dependencyCheck = parent.dependencyCheck
		merged.lenientConstructorResolution = parent.lenientConstructorResolution
		merged.dependsOn = append(merged.dependsOn, parent.dependsOn...)
		merged.initMethodName = parent.initMethodName
		merged.destroyMethodName = parent.destroyMethodName
		merged.resource = parent.resource
		parent.constructorArgs.copyInto(merged.constructorArgs)
		for _, pv := range parent.propertyValues.List() {
			merged.propertyValues.Add(pv.Name, pv.Value)
		}
	}

	if child.beanType != nil {
		merged.beanType = child.beanType
	}
	if len(child.constructors) > 0 {
		merged.constructors = append([]interface{}{}, child.constructors...)
	}
	if child.factoryBeanName != "" {
		merged.factoryBeanName = child.factoryBeanName
	}
	if child.factoryMethodName != "" {
		merged.factoryMethodName = child.factoryMethodName
	}
	if child.scope != "" {
		merged.scope = child.scope
	}
	if child.lazyInit {
		merged.lazyInit = true
	}
	if child.primary {
		merged.primary = true
	}
	if child.qualifier != "" {
		merged.qualifier = child.qualifier
	}
	if child.autowireMode != AutowireNo {
		merged.autowireMode = child.autowireMode
	}
	if child.dependencyCheck != DependencyCheckNone {
		merged.dependencyCheck = child.dependencyCheck
	}
	if child.lenientConstructorResolution {
		merged.lenientConstructorResolution = true
	}
	merged.dependsOn = append(merged.dependsOn, child.dependsOn...)
	if child.initMethodName != "" {
		merged.initMethodName = child.initMethodName
	}
	if child.destroyMethodName != "" {
		merged.destroyMethodName = child.destroyMethodName
	}
	if child.resource != "" {
		merged.resource = child.resource
	}
	child.constructorArgs.copyInto(merged.constructorArgs)
	for _, pv := range child.propertyValues.List() {
		merged.propertyValues.Add(pv.Name, pv.Value)
	}

	if merged.scope == "" {
		merged.scope = ScopeSingleton
	}
	merged.abstract = child.abstract
	merged.merged = true
	return merged, nil
}
