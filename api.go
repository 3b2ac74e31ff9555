/*
 * Copyright (c) 2023 Zander Schwid & Co. LLC.
 * SPDX-License-Identifier: BUSL-1.1
 */

package beans

import (
	"reflect"
)

/**
Scope identifiers of the bean definition.

Singleton scope keeps a single shared instance per factory per bean name.
Prototype scope produces a fresh instance on every request, the factory
keeps no reference to it after creation. Any other scope name must be
registered in the factory with RegisterScope before first use.
*/

const (
	ScopeSingleton = "singleton"
	ScopePrototype = "prototype"
)

/**
Prefix used to access the FactoryBean instance itself instead of
the object it produces.
*/

const FactoryBeanPrefix = "&"

type AutowireMode int

const (
	AutowireNo AutowireMode = iota
	AutowireByName
	AutowireByType
	AutowireConstructor
)

func (t AutowireMode) String() string {
	switch t {
	case AutowireNo:
		return "no"
	case AutowireByName:
		return "byName"
	case AutowireByType:
		return "byType"
	case AutowireConstructor:
		return "constructor"
	default:
		return "unknown"
	}
}

type DependencyCheck int

const (
	DependencyCheckNone DependencyCheck = iota
	DependencyCheckObjects
	DependencyCheckSimple
	DependencyCheckAll
)

var BeanFactoryClass = reflect.TypeOf((*BeanFactory)(nil)).Elem()

type BeanFactory interface {

	/**
	Registers the bean definition under the given name.
	*/
	RegisterBeanDefinition(beanName string, definition *BeanDefinition) error

	/**
	Registers an externally created object as a ready singleton.
	*/
	RegisterSingleton(beanName string, obj interface{}) error

	/**
	Returns the fully initialized bean registered under the name.
	Use the '&' prefix to get the FactoryBean itself instead of the
	object it produces.
	*/
	GetBean(beanName string) (interface{}, error)

	/**
	Returns the bean registered under the name created with the explicit
	constructor or factory method arguments. Explicit arguments are only
	valid for prototype scope or for the first creation of a singleton.
	*/
	GetBeanWithArgs(beanName string, args ...interface{}) (interface{}, error)

	/**
	Returns the single bean assignable to the given type, that is a pointer
	to the structure or interface type.

	Example:
		obj, err := factory.GetBeanByType(reflect.TypeOf((*app.UserService)(nil)).Elem())
	*/
	GetBeanByType(requiredType reflect.Type) (interface{}, error)

	ContainsBean(beanName string) bool
	IsSingleton(beanName string) (bool, error)
	IsPrototype(beanName string) (bool, error)

	/**
	Predicts the type of the bean without creating it whenever possible.
	FactoryBean produced types are answered through the factory bean
	instance cache.
	*/
	GetType(beanName string) (reflect.Type, error)

	/**
	Returns all bean names whose predicted type is assignable to the
	given type, in definition registration order.
	*/
	GetBeanNamesForType(requiredType reflect.Type) []string

	/**
	Primary entry point of the creation engine, used by GetBean and exposed
	for collaborators that carry their own merged definitions.
	*/
	CreateBean(beanName string, definition *BeanDefinition, args []interface{}) (interface{}, error)

	/**
	Finds the best matching bean for the injection point described by the
	descriptor. Slice and map descriptor types gather all candidates.
	Autowired bean names are appended to the autowiredBeanNames list if
	it is not nil.
	*/
	ResolveDependency(descriptor *DependencyDescriptor, requestingBeanName string, autowiredBeanNames *[]string) (interface{}, error)

	/**
	Populates exported fields of an externally created object by type,
	the same way autowire by type works during bean creation. The object
	does not become a bean of the factory.
	*/
	AutowireBeanProperties(obj interface{}) error

	/**
	Runs an externally created object through the registered post-processor
	chain, the same hooks applied during bean initialization.
	*/
	ApplyBeanPostProcessorsBeforeInitialization(obj interface{}, beanName string) (interface{}, error)
	ApplyBeanPostProcessorsAfterInitialization(obj interface{}, beanName string) (interface{}, error)

	AddBeanPostProcessor(processor BeanPostProcessor)

	RegisterScope(scopeName string, scope Scope) error

	/**
	Eagerly creates all non-lazy singleton beans in registration order.
	On the first failure all singletons created during the pass are
	destroyed before the error is returned.
	*/
	PreInstantiateSingletons() error

	/**
	Destroys all cached singletons in reverse creation order, honoring
	registered dependent bean edges. Safe to call more than once.
	*/
	DestroySingletons() error

	/**
	Placeholder properties backing the default expression resolver.
	*/
	Properties() Properties

	/**
	Parent factory if exist.
	*/
	Parent() (BeanFactory, bool)

	String() string
}

/**
The object produced by the factory bean is the one exposed in the factory,
the factory bean itself stays accessible under the '&' prefixed name.
*/

var FactoryBeanClass = reflect.TypeOf((*FactoryBean)(nil)).Elem()

type FactoryBean interface {

	/**
	Returns an object produced by the factory, and this is the object that
	will be exposed under the bean name.
	*/
	Object() (interface{}, error)

	/**
	Returns the type of object that this FactoryBean produces.
	*/
	ObjectType() reflect.Type

	/**
	Returns the bean name of object that this FactoryBean produces or empty
	string if name not defined.
	*/
	ObjectName() string

	/**
	Denotes if the object produced by this FactoryBean is a singleton.
	*/
	Singleton() bool
}

/**
Initializing bean is using to run required method on post-construct
injection stage.
*/

var InitializingBeanClass = reflect.TypeOf((*InitializingBean)(nil)).Elem()

type InitializingBean interface {

	/**
	Runs this method automatically after populating bean properties.
	*/
	PostConstruct() error
}

/**
This interface uses to select objects that could free resources on
singleton destruction.
*/

var DisposableBeanClass = reflect.TypeOf((*DisposableBean)(nil)).Elem()

type DisposableBean interface {

	/**
	Called for each registered singleton during factory shutdown.
	*/
	Destroy() error
}

/**
This interface used to give the bean its own name in the factory.
*/

var NamedBeanClass = reflect.TypeOf((*NamedBean)(nil)).Elem()

type NamedBean interface {

	/**
	Returns bean name
	*/
	BeanName() string
}

/**
This interface used to collect beans in list with specific order and to
break autowiring ties by priority. The lower order wins.
*/

var OrderedBeanClass = reflect.TypeOf((*OrderedBean)(nil)).Elem()

type OrderedBean interface {

	/**
	Returns bean order
	*/
	BeanOrder() int
}

/**
Aware interfaces called on the initialization stage before any
post-processor runs.
*/

var BeanNameAwareClass = reflect.TypeOf((*BeanNameAware)(nil)).Elem()

type BeanNameAware interface {
	SetBeanName(beanName string)
}

var BeanFactoryAwareClass = reflect.TypeOf((*BeanFactoryAware)(nil)).Elem()

type BeanFactoryAware interface {
	SetBeanFactory(factory BeanFactory)
}

/**
Object factory produces the bean on demand, used for early singleton
references and custom scopes.
*/

type ObjectFactory func() (interface{}, error)

/**
Custom scope contract. Get either returns the scoped object or creates it
with the given factory. Remove returns the removed object if it was there.
*/

type Scope interface {
	Get(beanName string, factory ObjectFactory) (interface{}, error)

	Remove(beanName string) (interface{}, bool)

	/**
	Registers the callback the scope should run when the scoped object
	is discarded.
	*/
	RegisterDestructionCallback(beanName string, callback func())
}

/**
Post-processor capability interfaces. A registered processor implements
BeanPostProcessor and optionally any of the extended capabilities, each
checked once per lifecycle point in registration order.
*/

var BeanPostProcessorClass = reflect.TypeOf((*BeanPostProcessor)(nil)).Elem()

type BeanPostProcessor interface {

	/**
	Called before init methods run. Returning a different object replaces
	the bean for all subsequent stages.
	*/
	PostProcessBeforeInitialization(obj interface{}, beanName string) (interface{}, error)

	/**
	Called after init methods run, the usual place for proxy wrapping.
	*/
	PostProcessAfterInitialization(obj interface{}, beanName string) (interface{}, error)
}

var InstantiationAwareBeanPostProcessorClass = reflect.TypeOf((*InstantiationAwareBeanPostProcessor)(nil)).Elem()

type InstantiationAwareBeanPostProcessor interface {
	BeanPostProcessor

	/**
	Called before the factory instantiates the bean. A non-nil result
	short-circuits creation entirely, only after-initialization
	post-processors are applied to it.
	*/
	PostProcessBeforeInstantiation(beanType reflect.Type, beanName string) (interface{}, error)

	/**
	Called right after instantiation with the raw object. Returning false
	vetoes any further property population.
	*/
	PostProcessAfterInstantiation(obj interface{}, beanName string) (bool, error)

	/**
	Filters or extends the property values before they are applied.
	Returning nil keeps the incoming values.
	*/
	PostProcessProperties(pvs *PropertyValues, obj interface{}, beanName string) (*PropertyValues, error)
}

var SmartInstantiationAwareBeanPostProcessorClass = reflect.TypeOf((*SmartInstantiationAwareBeanPostProcessor)(nil)).Elem()

type SmartInstantiationAwareBeanPostProcessor interface {
	InstantiationAwareBeanPostProcessor

	/**
	Predicts the final type of the bean, nil if unknown.
	*/
	PredictBeanType(beanType reflect.Type, beanName string) reflect.Type

	/**
	Returns candidate constructor functions for the bean, nil if the
	processor has no opinion.
	*/
	DetermineCandidateConstructors(beanType reflect.Type, beanName string) ([]interface{}, error)

	/**
	Substitutes the reference exposed to break a circular dependency,
	typically with a proxy. Called at most once per bean.
	*/
	GetEarlyBeanReference(obj interface{}, beanName string) (interface{}, error)
}

var MergedDefinitionPostProcessorClass = reflect.TypeOf((*MergedDefinitionPostProcessor)(nil)).Elem()

type MergedDefinitionPostProcessor interface {
	BeanPostProcessor

	/**
	Inspects the merged definition once per definition given the now known
	target type.
	*/
	PostProcessMergedDefinition(definition *BeanDefinition, beanType reflect.Type, beanName string)
}

var DestructionAwareBeanPostProcessorClass = reflect.TypeOf((*DestructionAwareBeanPostProcessor)(nil)).Elem()

type DestructionAwareBeanPostProcessor interface {
	BeanPostProcessor

	PostProcessBeforeDestruction(obj interface{}, beanName string) error

	RequiresDestruction(obj interface{}) bool
}

/**
Pluggable hook evaluating string values marked as expressions before type
conversion. The default implementation resolves '${key:default}'
placeholders against factory properties.
*/

type ExpressionResolver interface {
	Evaluate(expr string) (interface{}, error)
}

/**
Pluggable conversion service coercing declared values into target types.
*/

type TypeConverter interface {
	Convert(value interface{}, targetType reflect.Type) (interface{}, error)
}

/**
Property Resolver interface used to enhance the Properties interface with
additional sources of properties.
*/

var PropertyResolverClass = reflect.TypeOf((*PropertyResolver)(nil))

type PropertyResolver interface {

	/**
	Priority in property resolving, it could be lower or higher than default one.
	*/
	Priority() int

	/**
	Resolves the property
	*/
	GetProperty(key string) (value string, ok bool)
}

/**
Use this bean to parse properties from files or maps and place in the
factory. For placeholder expressions this bean used as a source of values.

Internal property storage has default priority of property resolver.
The higher priority look first.
*/

const defaultPropertyResolverPriority = 100

var PropertiesClass = reflect.TypeOf((*Properties)(nil))

type Properties interface {
	PropertyResolver

	/**
	Register additional property resolver. It would be sorted by priority.
	*/
	Register(PropertyResolver)
	PropertyResolvers() []PropertyResolver

	/**
	Loads properties from map, flattening nested maps with dot notation.
	*/
	LoadMap(source map[string]interface{})

	/**
	Loads properties from file by extension: '.properties', '.props',
	'.yaml', '.yml' or '.env'.
	*/
	LoadFile(path string) error

	/**
	Parsing content as an UTF-8 string in properties format
	*/
	Parse(content string) error

	/**
	Extends parent properties
	*/
	Extend(parent Properties)

	Len() int
	Keys() []string
	Map() map[string]string
	Contains(key string) bool

	/**
	Gets property value through the resolver chain and true if exist
	*/
	Get(key string) (value string, ok bool)

	/**
	Additional getters with type conversion
	*/
	GetString(key, def string) string
	GetBool(key string, def bool) bool
	GetInt(key string, def int) int

	Set(key string, value string)
	Remove(key string) bool
	Clear()
}
