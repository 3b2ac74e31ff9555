/*
 * Copyright (c) 2023 Zander Schwid & Co. LLC.
 * SPDX-License-Identifier: BUSL-1.1
 */

package beans

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/pkg/errors"
)

var (
	_ error = (*BeanCreationError)(nil)
	_ error = (*BeanCurrentlyInCreationError)(nil)
	_ error = (*RawInjectionError)(nil)
	_ error = (*UnsatisfiedDependencyError)(nil)
	_ error = (*NoSuchBeanError)(nil)
	_ error = (*NoUniqueBeanError)(nil)
	_ error = (*ConstructorResolutionError)(nil)
	_ error = (*FactoryMethodResolutionError)(nil)
)

/**
Wraps any exception during instantiation, population or initialization of
the named bean. Lower level resolution failures are wrapped exactly once at
the creation boundary, an already wrapped error for the same bean name is
passed through untouched.
*/

type BeanCreationError struct {
	BeanName string

	/**
	Description of the definition origin for diagnostics, if known.
	*/
	Resource string

	Cause error
}

func (t *BeanCreationError) Error() string {
	var out strings.Builder
	out.WriteString("error creating bean '")
	out.WriteString(t.BeanName)
	out.WriteString("'")
	if t.Resource != "" {
		out.WriteString(" defined in ")
		out.WriteString(t.Resource)
	}
	if t.Cause != nil {
		out.WriteString(", ")
		out.WriteString(t.Cause.Error())
	}
	return out.String()
}

func (t *BeanCreationError) Unwrap() error {
	return t.Cause
}

/**
Wraps err into a creation error for the bean unless it already is one for
the same bean name.
*/

func wrapCreationError(beanName, resource string, err error) error {
	if creation, ok := err.(*BeanCreationError); ok && creation.BeanName == beanName {
		return err
	}
	return &BeanCreationError{BeanName: beanName, Resource: resource, Cause: err}
}

/**
Raised when a prototype scope bean or a circular-reference-disallowed
singleton detects it is already in creation.
*/

type BeanCurrentlyInCreationError struct {
	BeanName string
}

func (t *BeanCurrentlyInCreationError) Error() string {
	return fmt.Sprintf("bean '%s' is currently in creation: is there an unresolvable circular reference?", t.BeanName)
}

/**
Raised when the early exposed raw reference and the final wrapped object
diverge, at least one dependent bean captured the raw one and raw injection
despite wrapping is disallowed.
*/

type RawInjectionError struct {
	BeanName       string
	DependentBeans []string
}

func (t *RawInjectionError) Error() string {
	return fmt.Sprintf(
		"bean '%s' has been injected into other beans %v in its raw version as part of a circular reference, "+
			"but has eventually been wrapped: those beans do not use the final version of the bean",
		t.BeanName, t.DependentBeans)
}

/**
Raised when a required property, constructor argument or autowire candidate
can not be resolved.
*/

type UnsatisfiedDependencyError struct {
	BeanName       string
	InjectionPoint string
	Cause          error
}

func (t *UnsatisfiedDependencyError) Error() string {
	if t.Cause != nil {
		return fmt.Sprintf("unsatisfied dependency '%s' of bean '%s', %v", t.InjectionPoint, t.BeanName, t.Cause)
	}
	return fmt.Sprintf("unsatisfied dependency '%s' of bean '%s'", t.InjectionPoint, t.BeanName)
}

func (t *UnsatisfiedDependencyError) Unwrap() error {
	return t.Cause
}

type NoSuchBeanError struct {
	BeanName     string
	RequiredType reflect.Type
}

func (t *NoSuchBeanError) Error() string {
	if t.BeanName != "" {
		return fmt.Sprintf("no bean named '%s' available", t.BeanName)
	}
	return fmt.Sprintf("no qualifying bean of type '%v' available", t.RequiredType)
}

/**
Raised when more than one candidate remains after all tie-break rules for
a scalar dependency.
*/

type NoUniqueBeanError struct {
	RequiredType reflect.Type
	Candidates   []string
}

func (t *NoUniqueBeanError) Error() string {
	return fmt.Sprintf("no qualifying bean of type '%v': expected single matching bean but found %d: %s",
		t.RequiredType, len(t.Candidates), strings.Join(t.Candidates, ","))
}

type ConstructorResolutionError struct {
	BeanName string
	BeanType reflect.Type
	Reason   string
}

func (t *ConstructorResolutionError) Error() string {
	return fmt.Sprintf("could not resolve matching constructor for bean '%s' with type '%v', %s", t.BeanName, t.BeanType, t.Reason)
}

type FactoryMethodResolutionError struct {
	BeanName          string
	FactoryBeanName   string
	FactoryMethodName string
	Reason            string
}

func (t *FactoryMethodResolutionError) Error() string {
	return fmt.Sprintf("could not resolve factory method '%s' on factory bean '%s' for bean '%s', %s",
		t.FactoryMethodName, t.FactoryBeanName, t.BeanName, t.Reason)
}

func multipleErr(err []error) error {
	switch len(err) {
	case 0:
		return nil
	case 1:
		return err[0]
	default:
		return errors.Errorf("multiple errors, %v", err)
	}
}
