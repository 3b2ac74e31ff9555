/*
 * Copyright (c) 2023 Zander Schwid & Co. LLC.
 * SPDX-License-Identifier: BUSL-1.1
 */

package beans

import (
	"reflect"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/pkg/errors"
)

/**
Creation engine of the factory. createBean gives registered
before-instantiation post-processors the chance to short-circuit with a
ready object, doCreateBean runs the full pipeline: instantiate, expose the
early reference, populate, initialize, reconcile wrapping against the
early reference and register for destruction.
*/

func (t *beanFactory) createBean(ctx *creationContext, beanName string, merged *BeanDefinition, args []interface{}) (interface{}, error) {

	if verbose != nil {
		verbose.Printf("Creating instance of bean '%s'\n", beanName)
	}

	short, err := t.resolveBeforeInstantiation(beanName, merged)
	if err != nil {
		return nil, err
	}
	if short != nil {
		return short, nil
	}

	return t.doCreateBean(ctx, beanName, merged, args)
}

/**
Gives instantiation aware post-processors the chance to return a ready
object instead of the regular creation pipeline. Only the
after-initialization hooks run on a short-circuited object. The negative
outcome is remembered on the definition so repeat creations skip the
check.
*/

func (t *beanFactory) resolveBeforeInstantiation(beanName string, merged *BeanDefinition) (interface{}, error) {

	merged.postProcessingLock.Lock()
	resolved := merged.beforeInstantiationResolved
	merged.postProcessingLock.Unlock()
	if resolved != nil && !*resolved {
		return nil, nil
	}

	predicted := t.predictBeanType(beanName, merged)

	var short interface{}
	for _, processor := range t.getPostProcessors() {
		aware, ok := processor.(InstantiationAwareBeanPostProcessor)
		if !ok {
			continue
		}
		obj, err := aware.PostProcessBeforeInstantiation(predicted, beanName)
		if err != nil {
			return nil, err
		}
		if obj != nil {
			short = obj
			break
		}
	}

	outcome := short != nil
	merged.postProcessingLock.Lock()
	merged.beforeInstantiationResolved = &outcome
	merged.postProcessingLock.Unlock()

	if short == nil {
		return nil, nil
	}
	return t.ApplyBeanPostProcessorsAfterInitialization(short, beanName)
}

func (t *beanFactory) doCreateBean(ctx *creationContext, beanName string, merged *BeanDefinition, args []interface{}) (interface{}, error) {

	instance, err := t.createBeanInstance(ctx, beanName, merged, args)
	if err != nil {
		return nil, err
	}
	beanType := reflect.TypeOf(instance)

	merged.postProcessingLock.Lock()
	if !merged.postProcessed {
		for _, processor := range t.getPostProcessors() {
			if mpp, ok := processor.(MergedDefinitionPostProcessor); ok {
				mpp.PostProcessMergedDefinition(merged, beanType, beanName)
			}
		}
		merged.postProcessed = true
	}
	merged.resolvedTargetType = beanType
	merged.postProcessingLock.Unlock()

	earlyExposure := merged.IsSingleton() && t.allowCircularReferences &&
		t.registry.isSingletonCurrentlyInCreation(beanName)
	if earlyExposure {
		if verbose != nil {
			verbose.Printf("Eagerly caching bean '%s' to allow circular references\n", beanName)
		}
		t.registry.addSingletonFactory(beanName, func() (interface{}, error) {
			return t.getEarlyBeanReference(beanName, instance)
		})
	}

	if err := t.populateBean(ctx, beanName, merged, instance); err != nil {
		return nil, err
	}

	exposed, err := t.initializeBean(beanName, instance, merged)
	if err != nil {
		return nil, err
	}

	if earlyExposure {
		// early factory never runs here, only an already materialized reference counts
		if earlyRef, ok := t.registry.getSingleton(beanName, false); ok {
			if sameBean(exposed, instance) {
				exposed = earlyRef
			} else if !t.allowRawInjectionDespiteWrapping {
				var dependents []string
				for _, dep := range t.registry.getDependentBeans(beanName) {
					if t.registry.containsSingleton(dep) {
						dependents = append(dependents, dep)
					}
				}
				if len(dependents) > 0 {
					sort.Strings(dependents)
					return nil, &RawInjectionError{BeanName: beanName, DependentBeans: dependents}
				}
			}
		}
	}

	t.registerDisposableBeanIfNecessary(beanName, exposed, merged)
	return exposed, nil
}

/**
Substitutes the reference handed out to break a circular dependency.
Smart post-processors may replace it, typically with a proxy.
*/

func (t *beanFactory) getEarlyBeanReference(beanName string, instance interface{}) (interface{}, error) {
	exposed := instance
	for _, processor := range t.getPostProcessors() {
		if smart, ok := processor.(SmartInstantiationAwareBeanPostProcessor); ok {
			obj, err := smart.GetEarlyBeanReference(exposed, beanName)
			if err != nil {
				return nil, err
			}
			if obj != nil {
				exposed = obj
			}
		}
	}
	return exposed, nil
}

func sameBean(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Kind() == reflect.Ptr && vb.Kind() == reflect.Ptr {
		return va.Pointer() == vb.Pointer()
	}
	if va.Type() != vb.Type() {
		return false
	}
	if va.Type().Comparable() {
		return a == b
	}
	return false
}

/**
Creates the raw instance: factory method first, declared or post-processor
supplied constructors next, a zero value of the declared struct type last.
*/

func (t *beanFactory) createBeanInstance(ctx *creationContext, beanName string, merged *BeanDefinition, args []interface{}) (interface{}, error) {

	resolver := newConstructorResolver(t, ctx)

	if merged.factoryMethodName != "" {
		return resolver.instantiateUsingFactoryMethod(beanName, merged, args)
	}

	ctors := append([]interface{}{}, merged.constructors...)
	for _, processor := range t.getPostProcessors() {
		if smart, ok := processor.(SmartInstantiationAwareBeanPostProcessor); ok {
			extra, err := smart.DetermineCandidateConstructors(merged.beanType, beanName)
			if err != nil {
				return nil, err
			}
			ctors = append(ctors, extra...)
		}
	}

	if len(ctors) > 0 {
		return resolver.autowireConstructor(beanName, merged, ctors, args)
	}

	if args != nil {
		return nil, errors.Errorf("explicit arguments for bean '%s' require a constructor or factory method", beanName)
	}
	if !merged.constructorArgs.IsEmpty() {
		return nil, errors.Errorf("constructor argument values of bean '%s' declared without a constructor", beanName)
	}

	beanType := merged.beanType
	switch {
	case beanType == nil:
		return nil, errors.Errorf("bean '%s' has no type, constructor or factory method to instantiate from", beanName)
	case beanType.Kind() == reflect.Ptr && beanType.Elem().Kind() == reflect.Struct:
		return reflect.New(beanType.Elem()).Interface(), nil
	case beanType.Kind() == reflect.Struct:
		return reflect.New(beanType).Interface(), nil
	default:
		return nil, errors.Errorf("bean '%s' with type '%v' requires a constructor", beanName, beanType)
	}
}

/**
Populates the instance: after-instantiation veto first, then declared
property values filtered through property post-processors, then autowiring
by name or type, then the declared dependency check.
*/

func (t *beanFactory) populateBean(ctx *creationContext, beanName string, merged *BeanDefinition, instance interface{}) error {

	for _, processor := range t.getPostProcessors() {
		if aware, ok := processor.(InstantiationAwareBeanPostProcessor); ok {
			proceed, err := aware.PostProcessAfterInstantiation(instance, beanName)
			if err != nil {
				return err
			}
			if !proceed {
				return nil
			}
		}
	}

	pvs := merged.propertyValues
	for _, processor := range t.getPostProcessors() {
		if aware, ok := processor.(InstantiationAwareBeanPostProcessor); ok {
			filtered, err := aware.PostProcessProperties(pvs, instance, beanName)
			if err != nil {
				return err
			}
			if filtered != nil {
				pvs = filtered
			}
		}
	}

	if err := t.applyPropertyValues(ctx, beanName, merged, instance, pvs); err != nil {
		return err
	}

	switch merged.autowireMode {
	case AutowireByName:
		if err := t.autowireByName(ctx, beanName, instance, pvs); err != nil {
			return err
		}
	case AutowireByType:
		if err := t.autowireFields(ctx, beanName, instance, pvs); err != nil {
			return err
		}
	}

	return t.checkDependencies(beanName, merged, instance, pvs)
}

func (t *beanFactory) applyPropertyValues(ctx *creationContext, beanName string, merged *BeanDefinition, instance interface{}, pvs *PropertyValues) error {

	if pvs.IsEmpty() {
		return nil
	}

	elem, err := settableStruct(instance)
	if err != nil {
		return errors.Errorf("bean '%s' property population failed, %v", beanName, err)
	}

	resolver := newValueResolver(t, beanName, merged, ctx)

	for _, pv := range pvs.List() {
		field, ok := findField(elem, pv.Name)
		if !ok {
			if pv.Optional {
				continue
			}
			return &UnsatisfiedDependencyError{
				BeanName:       beanName,
				InjectionPoint: pv.Name,
				Cause:          errors.Errorf("no such field on type '%v'", elem.Type()),
			}
		}

		converted, err := resolver.resolvePropertyValue(pv, field.Type())
		if err != nil {
			return &UnsatisfiedDependencyError{BeanName: beanName, InjectionPoint: pv.Name, Cause: err}
		}
		if converted == nil {
			field.Set(reflect.Zero(field.Type()))
			continue
		}
		value := reflect.ValueOf(converted)
		if !value.Type().AssignableTo(field.Type()) {
			return &UnsatisfiedDependencyError{
				BeanName:       beanName,
				InjectionPoint: pv.Name,
				Cause:          errors.Errorf("value of type '%v' is not assignable to field type '%v'", value.Type(), field.Type()),
			}
		}
		field.Set(value)
	}

	return nil
}

/**
Autowires empty fields by matching the property style field name against
registered bean names.
*/

func (t *beanFactory) autowireByName(ctx *creationContext, beanName string, instance interface{}, pvs *PropertyValues) error {

	elem, err := settableStruct(instance)
	if err != nil {
		return errors.Errorf("bean '%s' autowire by name failed, %v", beanName, err)
	}

	structType := elem.Type()
	for i := 0; i < structType.NumField(); i++ {
		fieldType := structType.Field(i)
		field := elem.Field(i)
		if fieldType.PkgPath != "" || !field.CanSet() || !field.IsZero() {
			continue
		}
		if !injectableKind(field.Kind()) {
			continue
		}
		candidate := lowerFirst(fieldType.Name)
		if pvs.Contains(fieldType.Name) || pvs.Contains(candidate) {
			continue
		}
		if !t.ContainsBean(candidate) {
			continue
		}

		t.registry.registerDependentBean(candidate, beanName)
		obj, err := t.doGetBean(ctx, candidate, nil)
		if err != nil {
			return &UnsatisfiedDependencyError{BeanName: beanName, InjectionPoint: fieldType.Name, Cause: err}
		}
		value := reflect.ValueOf(obj)
		if !value.Type().AssignableTo(field.Type()) {
			continue
		}
		field.Set(value)
	}

	return nil
}

/**
Options of the 'inject' field tag: an optional qualifier narrowing
candidates by bean name, 'optional' tolerating absence, 'lazy' deferring
resolution behind a provider func. '-' excludes the field.
*/

type injectTag struct {
	present   bool
	skip      bool
	qualifier string
	optional  bool
	lazy      bool
}

func parseInjectTag(fieldType reflect.StructField) injectTag {
	value, ok := fieldType.Tag.Lookup("inject")
	if !ok {
		return injectTag{}
	}
	tag := injectTag{present: true}
	if value == "-" {
		tag.skip = true
		return tag
	}
	for _, part := range strings.Split(value, ",") {
		switch part = strings.TrimSpace(part); part {
		case "":
		case "optional":
			tag.optional = true
		case "lazy":
			tag.lazy = true
		default:
			tag.qualifier = part
		}
	}
	return tag
}

/**
Autowires empty fields by type. Tagged fields are required unless marked
optional, untagged fields are filled when a candidate exists and left
empty otherwise. Ambiguity is an error either way.
*/

func (t *beanFactory) autowireFields(ctx *creationContext, beanName string, instance interface{}, pvs *PropertyValues) error {

	elem, err := settableStruct(instance)
	if err != nil {
		return errors.Errorf("bean '%s' autowire by type failed, %v", beanName, err)
	}

	structType := elem.Type()
	for i := 0; i < structType.NumField(); i++ {
		fieldType := structType.Field(i)
		field := elem.Field(i)
		if fieldType.PkgPath != "" || !field.CanSet() || !field.IsZero() {
			continue
		}
		tag := parseInjectTag(fieldType)
		if tag.skip {
			continue
		}
		if !injectableKind(field.Kind()) {
			continue
		}
		if !pvs.IsEmpty() && (pvs.Contains(fieldType.Name) || pvs.Contains(lowerFirst(fieldType.Name))) {
			continue
		}

		descriptor := &DependencyDescriptor{
			Type:      field.Type(),
			Qualifier: tag.qualifier,
			Required:  tag.present && !tag.optional,
			Lazy:      tag.lazy,
			Name:      fieldType.Name,
		}

		obj, err := t.resolveDependencyInternal(ctx, descriptor, beanName, nil)
		if err != nil {
			if _, notFound := err.(*NoSuchBeanError); notFound && !descriptor.Required {
				continue
			}
			return &UnsatisfiedDependencyError{BeanName: beanName, InjectionPoint: fieldType.Name, Cause: err}
		}
		if obj == nil {
			continue
		}
		value := reflect.ValueOf(obj)
		if !value.Type().AssignableTo(field.Type()) {
			if descriptor.Required {
				return &UnsatisfiedDependencyError{
					BeanName:       beanName,
					InjectionPoint: fieldType.Name,
					Cause:          errors.Errorf("candidate of type '%v' is not assignable to field type '%v'", value.Type(), field.Type()),
				}
			}
			continue
		}
		field.Set(value)
	}

	return nil
}

func injectableKind(k reflect.Kind) bool {
	switch k {
	case reflect.Ptr, reflect.Interface, reflect.Func, reflect.Slice, reflect.Map:
		return true
	default:
		return false
	}
}

/**
Verifies populated state against the declared dependency check mode.
Object checks cover pointer and interface fields, simple checks cover the
value kinds. Fields tagged optional are exempt.
*/

func (t *beanFactory) checkDependencies(beanName string, merged *BeanDefinition, instance interface{}, pvs *PropertyValues) error {

	if merged.dependencyCheck == DependencyCheckNone {
		return nil
	}

	elem, err := settableStruct(instance)
	if err != nil {
		return nil
	}

	structType := elem.Type()
	for i := 0; i < structType.NumField(); i++ {
		fieldType := structType.Field(i)
		field := elem.Field(i)
		if fieldType.PkgPath != "" || !field.IsZero() {
			continue
		}
		if tag := parseInjectTag(fieldType); tag.skip || tag.optional {
			continue
		}

		objectKind := field.Kind() == reflect.Ptr || field.Kind() == reflect.Interface
		checked := false
		switch merged.dependencyCheck {
		case DependencyCheckObjects:
			checked = objectKind
		case DependencyCheckSimple:
			checked = !objectKind
		case DependencyCheckAll:
			checked = true
		}
		if checked {
			return &UnsatisfiedDependencyError{
				BeanName:       beanName,
				InjectionPoint: fieldType.Name,
				Cause:          errors.Errorf("dependency check '%v' found unset field of type '%v'", merged.dependencyCheck, field.Type()),
			}
		}
	}

	return nil
}

/**
Initialization stage: aware callbacks, before-initialization processors,
PostConstruct with the named init method, after-initialization processors.
Processors returning a different object replace the bean from that point
on.
*/

func (t *beanFactory) initializeBean(beanName string, instance interface{}, merged *BeanDefinition) (interface{}, error) {

	if aware, ok := instance.(BeanNameAware); ok {
		aware.SetBeanName(beanName)
	}
	if aware, ok := instance.(BeanFactoryAware); ok {
		aware.SetBeanFactory(t)
	}

	exposed, err := t.ApplyBeanPostProcessorsBeforeInitialization(instance, beanName)
	if err != nil {
		return nil, err
	}

	if err := t.invokeInitMethods(beanName, exposed, merged); err != nil {
		return nil, err
	}

	return t.ApplyBeanPostProcessorsAfterInitialization(exposed, beanName)
}

func (t *beanFactory) invokeInitMethods(beanName string, instance interface{}, merged *BeanDefinition) error {

	if initializing, ok := instance.(InitializingBean); ok {
		if err := invokeGuarded(beanName, "PostConstruct", initializing.PostConstruct); err != nil {
			return err
		}
	}

	name := merged.initMethodName
	if name == "" || name == "PostConstruct" {
		return nil
	}
	return invokeNamedMethod(beanName, instance, name)
}

func invokeGuarded(beanName, methodName string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("%s of bean '%s' recovered with error %v", methodName, beanName, r)
		}
	}()
	if e := fn(); e != nil {
		err = errors.Errorf("%s of bean '%s' failed, %v", methodName, beanName, e)
	}
	return
}

/**
Calls the named niladic method, tolerating both func() and func() error
shapes.
*/

func invokeNamedMethod(beanName string, instance interface{}, methodName string) error {

	method := reflect.ValueOf(instance).MethodByName(methodName)
	if !method.IsValid() {
		return errors.Errorf("no method '%s' on bean '%s' with type '%v'", methodName, beanName, reflect.TypeOf(instance))
	}
	methodType := method.Type()
	if methodType.NumIn() != 0 || methodType.NumOut() > 1 {
		return errors.Errorf("method '%s' of bean '%s' must have no arguments and at most an error result", methodName, beanName)
	}
	if methodType.NumOut() == 1 && methodType.Out(0) != errorClass {
		return errors.Errorf("method '%s' of bean '%s' result must be error", methodName, beanName)
	}

	return invokeGuarded(beanName, methodName, func() error {
		out := method.Call(nil)
		if len(out) == 1 && !out[0].IsNil() {
			return out[0].Interface().(error)
		}
		return nil
	})
}

func (t *beanFactory) ApplyBeanPostProcessorsBeforeInitialization(obj interface{}, beanName string) (interface{}, error) {
	exposed := obj
	for _, processor := range t.getPostProcessors() {
		next, err := processor.PostProcessBeforeInitialization(exposed, beanName)
		if err != nil {
			return nil, err
		}
		if next != nil {
			exposed = next
		}
	}
	return exposed, nil
}

func (t *beanFactory) ApplyBeanPostProcessorsAfterInitialization(obj interface{}, beanName string) (interface{}, error) {
	exposed := obj
	for _, processor := range t.getPostProcessors() {
		next, err := processor.PostProcessAfterInitialization(exposed, beanName)
		if err != nil {
			return nil, err
		}
		if next != nil {
			exposed = next
		}
	}
	return exposed, nil
}

func (t *beanFactory) AutowireBeanProperties(obj interface{}) error {
	if obj == nil {
		return errors.New("null object")
	}
	return t.autowireFields(newCreationContext(), "", obj, nil)
}

/**
Registers the destruction callback of the bean when anything requires it:
the DisposableBean contract, a named destroy method or a destruction aware
post-processor. Prototype beans are never tracked.
*/

func (t *beanFactory) registerDisposableBeanIfNecessary(beanName string, obj interface{}, merged *BeanDefinition) {

	if merged.IsPrototype() || !t.requiresDestruction(obj, merged) {
		return
	}

	callback := t.buildDestroyCallback(beanName, obj, merged)

	if merged.IsSingleton() {
		t.registry.registerDisposableBean(beanName, callback)
		return
	}

	if scope, ok := t.getScope(merged.scope); ok {
		scope.RegisterDestructionCallback(beanName, func() {
			if err := callback(); err != nil && verbose != nil {
				verbose.Printf("Destruction callback of scoped bean '%s' failed, %v\n", beanName, err)
			}
		})
	}
}

func (t *beanFactory) requiresDestruction(obj interface{}, merged *BeanDefinition) bool {
	if _, ok := obj.(DisposableBean); ok {
		return true
	}
	if merged.destroyMethodName != "" {
		return true
	}
	for _, processor := range t.getPostProcessors() {
		if aware, ok := processor.(DestructionAwareBeanPostProcessor); ok && aware.RequiresDestruction(obj) {
			return true
		}
	}
	return false
}

func (t *beanFactory) buildDestroyCallback(beanName string, obj interface{}, merged *BeanDefinition) func() error {
	destroyMethodName := merged.destroyMethodName
	return func() error {
		var listErr []error

		for _, processor := range t.getPostProcessors() {
			if aware, ok := processor.(DestructionAwareBeanPostProcessor); ok && aware.RequiresDestruction(obj) {
				if err := aware.PostProcessBeforeDestruction(obj, beanName); err != nil {
					listErr = append(listErr, err)
				}
			}
		}

		if disposable, ok := obj.(DisposableBean); ok {
			if err := invokeGuarded(beanName, "Destroy", disposable.Destroy); err != nil {
				listErr = append(listErr, err)
			}
		}

		if destroyMethodName != "" && destroyMethodName != "Destroy" {
			if err := invokeNamedMethod(beanName, obj, destroyMethodName); err != nil {
				listErr = append(listErr, err)
			}
		}

		return multipleErr(listErr)
	}
}

/**
Applies the FactoryBean contract on the way out of a lookup. A prefixed
request returns the factory bean itself, otherwise the produced object is
returned, cached per factory bean name when the product is a singleton.
*/

func (t *beanFactory) getObjectForBeanInstance(ctx *creationContext, instance interface{}, beanName, requestedName string) (interface{}, error) {

	if strings.HasPrefix(requestedName, FactoryBeanPrefix) {
		if _, ok := instance.(FactoryBean); !ok {
			return nil, errors.Errorf("bean '%s' requested with the factory bean prefix is not a factory bean, type '%v'",
				beanName, reflect.TypeOf(instance))
		}
		return instance, nil
	}

	fb, ok := instance.(FactoryBean)
	if !ok {
		return instance, nil
	}

	if fb.Singleton() {
		t.factoryBeanObjectMu.Lock()
		cached, ok := t.factoryBeanObjectCache[beanName]
		t.factoryBeanObjectMu.Unlock()
		if ok {
			return cached, nil
		}
	}

	obj, err := factoryBeanObject(beanName, fb)
	if err != nil {
		return nil, err
	}

	obj, err = t.ApplyBeanPostProcessorsAfterInitialization(obj, beanName)
	if err != nil {
		return nil, err
	}

	if fb.Singleton() {
		t.factoryBeanObjectMu.Lock()
		if cached, ok := t.factoryBeanObjectCache[beanName]; ok {
			obj = cached
		} else {
			t.factoryBeanObjectCache[beanName] = obj
		}
		t.factoryBeanObjectMu.Unlock()
	}

	return obj, nil
}

func factoryBeanObject(beanName string, fb FactoryBean) (obj interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("factory bean '%s' recovered with error %v", beanName, r)
		}
	}()
	obj, err = fb.Object()
	if err != nil {
		return nil, errors.Errorf("factory bean '%s' failed to produce the object, %v", beanName, err)
	}
	if obj == nil {
		return nil, errors.Errorf("factory bean '%s' produced null object", beanName)
	}
	return obj, nil
}

func settableStruct(instance interface{}) (reflect.Value, error) {
	value := reflect.ValueOf(instance)
	if value.Kind() != reflect.Ptr || value.IsNil() || value.Elem().Kind() != reflect.Struct {
		return reflect.Value{}, errors.Errorf("instance of type '%v' is not a pointer to struct", reflect.TypeOf(instance))
	}
	return value.Elem(), nil
}

func findField(elem reflect.Value, name string) (reflect.Value, bool) {
	if field := elem.FieldByName(name); field.IsValid() && field.CanSet() {
		return field, true
	}
	if upper := upperFirst(name); upper != name {
		if field := elem.FieldByName(upper); field.IsValid() && field.CanSet() {
			return field, true
		}
	}
	return reflect.Value{}, false
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToLower(r)) + s[size:]
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[size:]
}
