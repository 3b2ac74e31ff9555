/*
 * Copyright (c) 2023 Zander Schwid & Co. LLC.
 * SPDX-License-Identifier: BUSL-1.1
 */

package beans

import (
	"fmt"
	"reflect"
)

/**
Value types a definition may declare for constructor arguments and
properties. Anything else is treated as a literal and applied after type
conversion.
*/

/**
Reference to another bean of the factory resolved on creation time.
References to the parent factory bypass dependent bean registration.
*/

type RuntimeBeanReference struct {
	BeanName string
	ToParent bool
}

func Ref(beanName string) RuntimeBeanReference {
	return RuntimeBeanReference{BeanName: beanName}
}

func ParentRef(beanName string) RuntimeBeanReference {
	return RuntimeBeanReference{BeanName: beanName, ToParent: true}
}

func (t RuntimeBeanReference) String() string {
	return fmt.Sprintf("<ref '%s'>", t.BeanName)
}

/**
Nested bean definition resolved as an anonymous inner bean. The holder name
is optional, unnamed inner beans get a synthetic unique name.
*/

type BeanDefinitionHolder struct {
	BeanName   string
	Definition *BeanDefinition
}

func Inner(definition *BeanDefinition) BeanDefinitionHolder {
	return BeanDefinitionHolder{Definition: definition}
}

func (t BeanDefinitionHolder) String() string {
	return fmt.Sprintf("<inner bean '%s'>", t.BeanName)
}

/**
Managed collections resolve element-wise, recursing through the same value
resolution rules, so a list may itself contain bean references or nested
definitions. Lists and arrays preserve declared order, maps preserve
insertion order during resolution.
*/

type ManagedList []interface{}

type ManagedSet []interface{}

type ManagedMapEntry struct {
	Key   interface{}
	Value interface{}
}

type ManagedMap []ManagedMapEntry

type ManagedProperties map[string]string

/**
String value with an optionally declared target type. The string is run
through the expression resolver before conversion.
*/

type TypedStringValue struct {
	Value      string
	TargetType reflect.Type
}

func StringValue(value string) TypedStringValue {
	return TypedStringValue{Value: value}
}

func TypedString(value string, targetType reflect.Type) TypedStringValue {
	return TypedStringValue{Value: value, TargetType: targetType}
}

func (t TypedStringValue) String() string {
	if t.TargetType != nil {
		return fmt.Sprintf("<typed string '%s' as %v>", t.Value, t.TargetType)
	}
	return fmt.Sprintf("<string '%s'>", t.Value)
}

func isComparableValue(value interface{}) bool {
	if value == nil {
		return false
	}
	return reflect.TypeOf(value).Comparable()
}

/**
Mutable collections and arrays are not safely shareable across instances,
their resolved form must be rebuilt per creation.
*/

func isSharedMutable(value interface{}) bool {
	if value == nil {
		return false
	}
	switch reflect.TypeOf(value).Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return true
	default:
		return false
	}
}
