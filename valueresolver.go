/*
 * Copyright (c) 2023 Zander Schwid & Co. LLC.
 * SPDX-License-Identifier: BUSL-1.1
 */

package beans

import (
	"fmt"
	"reflect"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

/**
Resolves definition declared values into live objects for a constructor
argument or property of the owning bean. Collections recurse through the
same rules, so a list may itself contain bean references or nested
definitions.
*/

type valueResolver struct {
	factory    *beanFactory
	beanName   string
	definition *BeanDefinition
	ctx        *creationContext
}

func newValueResolver(factory *beanFactory, beanName string, definition *BeanDefinition, ctx *creationContext) *valueResolver {
	return &valueResolver{
		factory:    factory,
		beanName:   beanName,
		definition: definition,
		ctx:        ctx,
	}
}

func (t *valueResolver) resolveValueIfNecessary(argName string, value interface{}) (interface{}, error) {

	switch v := value.(type) {

	case RuntimeBeanReference:
		return t.resolveReference(argName, v)

	case *BeanDefinition:
		return t.resolveInnerBean(argName, "", v)

	case BeanDefinitionHolder:
		return t.resolveInnerBean(argName, v.BeanName, v.Definition)

	case ManagedList:
		out := make([]interface{}, 0, len(v))
		for i, el := range v {
			resolved, err := t.resolveValueIfNecessary(fmt.Sprintf("%s[%d]", argName, i), el)
			if err != nil {
				return nil, err
			}
			out = append(out, resolved)
		}
		return out, nil

	case ManagedSet:
		out := make([]interface{}, 0, len(v))
		for i, el := range v {
			resolved, err := t.resolveValueIfNecessary(fmt.Sprintf("%s[%d]", argName, i), el)
			if err != nil {
				return nil, err
			}
			out = append(out, resolved)
		}
		return out, nil

	case ManagedMap:
		out := make(map[interface{}]interface{}, len(v))
		for _, entry := range v {
			key, err := t.resolveValueIfNecessary(fmt.Sprintf("%s[key]", argName), entry.Key)
			if err != nil {
				return nil, err
			}
			el, err := t.resolveValueIfNecessary(fmt.Sprintf("%s[%v]", argName, entry.Key), entry.Value)
			if err != nil {
				return nil, err
			}
			out[key] = el
		}
		return out, nil

	case ManagedProperties:
		out := make(map[string]string, len(v))
		for key, el := range v {
			out[key] = el
		}
		return out, nil

	case TypedStringValue:
		evaluated, err := t.evaluate(v.Value)
		if err != nil {
			return nil, errors.Errorf("expression evaluation of '%s' value '%s' failed, %v", argName, v.Value, err)
		}
		if v.TargetType != nil {
			converted, err := t.factory.converter.Convert(evaluated, v.TargetType)
			if err != nil {
				return nil, errors.Errorf("conversion of '%s' value '%s' to type '%v' failed, %v", argName, v.Value, v.TargetType, err)
			}
			return converted, nil
		}
		return evaluated, nil

	case string:
		evaluated, err := t.evaluate(v)
		if err != nil {
			return nil, errors.Errorf("expression evaluation of '%s' value '%s' failed, %v", argName, v, err)
		}
		return evaluated, nil

	default:
		return value, nil
	}
}

func (t *valueResolver) evaluate(expr string) (interface{}, error) {
	if t.factory.exprResolver == nil {
		return expr, nil
	}
	return t.factory.exprResolver.Evaluate(expr)
}

/**
Resolves a reference to another bean of the factory, additionally
registering the dependency edge used for destruction ordering. References
to the parent factory bypass edge registration.
*/

func (t *valueResolver) resolveReference(argName string, ref RuntimeBeanReference) (interface{}, error) {

	if ref.BeanName == "" {
		return nil, errors.Errorf("empty bean name in reference of '%s'", argName)
	}

	if ref.ToParent {
		parent := t.factory.parent
		if parent == nil {
			return nil, errors.Errorf("reference of '%s' points to bean '%s' in parent factory, but no parent factory exist", argName, ref.BeanName)
		}
		return parent.GetBean(ref.BeanName)
	}

	t.factory.registry.registerDependentBean(ref.BeanName, t.beanName)

	obj, err := t.factory.doGetBean(t.ctx, ref.BeanName, nil)
	if err != nil {
		return nil, errors.Errorf("reference of '%s' to bean '%s' failed, %v", argName, ref.BeanName, err)
	}
	return obj, nil
}

/**
Resolves a nested definition as an anonymous inner bean. Unnamed inner
beans get a synthetic unique name. Disposable inner beans of a singleton
containing bean are registered for destruction alongside it.
*/

func (t *valueResolver) resolveInnerBean(argName, innerBeanName string, definition *BeanDefinition) (interface{}, error) {

	if definition == nil {
		return nil, errors.Errorf("null inner bean definition of '%s'", argName)
	}

	if innerBeanName == "" {
		innerBeanName = "(inner bean)#" + uuid.NewString()
	}

	merged, err := t.factory.mergeWithParent(innerBeanName, definition)
	if err != nil {
		return nil, errors.Errorf("inner bean '%s' of '%s' merge failed, %v", innerBeanName, argName, err)
	}

	instance, err := t.factory.createBean(t.ctx, innerBeanName, merged, nil)
	if err != nil {
		return nil, wrapCreationError(innerBeanName, merged.resource, err)
	}

	if t.definition.IsSingleton() {
		t.factory.registerDisposableBeanIfNecessary(innerBeanName, instance, merged)
	}

	// inner bean may itself be a factory bean producing the actual object
	return t.factory.getObjectForBeanInstance(t.ctx, instance, innerBeanName, innerBeanName)
}

/**
Applies cached conversion state of the property value holder when legal,
otherwise resolves and converts, caching the result for repeat creations
of the same definition if the value came back unchanged and is not a
shared mutable collection. The holder lives on the shared merged
definition, cache state is guarded by the definition lock.
*/

func (t *valueResolver) resolvePropertyValue(pv *PropertyValue, targetType reflect.Type) (interface{}, error) {

	t.definition.postProcessingLock.Lock()
	if pv.converted {
		converted := pv.convertedValue
		t.definition.postProcessingLock.Unlock()
		return converted, nil
	}
	t.definition.postProcessingLock.Unlock()

	resolved, err := t.resolveValueIfNecessary(pv.Name, pv.Value)
	if err != nil {
		return nil, err
	}

	converted, err := t.factory.converter.Convert(resolved, targetType)
	if err != nil {
		return nil, errors.Errorf("conversion of property '%s' to type '%v' failed, %v", pv.Name, targetType, err)
	}

	if isComparableValue(pv.Value) && resolved == pv.Value && !isSharedMutable(converted) {
		t.definition.postProcessingLock.Lock()
		pv.converted = true
		pv.convertedValue = converted
		t.definition.postProcessingLock.Unlock()
	}

	return converted, nil
}
