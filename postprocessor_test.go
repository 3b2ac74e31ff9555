/*
 * Copyright (c) 2023 Zander Schwid & Co. LLC.
 * SPDX-License-Identifier: BUSL-1.1
 */

package beans_test

import (
	"reflect"
	"strings"
	"testing"

	"github.com/codeallergy/beans"
	"github.com/stretchr/testify/require"
)

type recordingProcessor struct {
	name  string
	calls *[]string
}

func (t *recordingProcessor) PostProcessBeforeInitialization(obj interface{}, beanName string) (interface{}, error) {
	*t.calls = append(*t.calls, t.name+"-before-"+beanName)
	return obj, nil
}

func (t *recordingProcessor) PostProcessAfterInitialization(obj interface{}, beanName string) (interface{}, error) {
	*t.calls = append(*t.calls, t.name+"-after-"+beanName)
	return obj, nil
}

func TestPostProcessorOrdering(t *testing.T) {

	var calls []string

	factory := beans.NewBeanFactory()
	factory.AddBeanPostProcessor(&recordingProcessor{name: "first", calls: &calls})
	factory.AddBeanPostProcessor(&recordingProcessor{name: "second", calls: &calls})
	require.NoError(t, factory.RegisterBeanDefinition("userDao", beans.NewBeanDefinition(userDaoClass)))

	_, err := factory.GetBean("userDao")
	require.NoError(t, err)

	require.Equal(t, []string{
		"first-before-userDao",
		"second-before-userDao",
		"first-after-userDao",
		"second-after-userDao",
	}, calls)
}

/**
Base of instantiation aware processors in tests, every hook is a no-op.
*/

type instantiationAwareBase struct {
}

func (t *instantiationAwareBase) PostProcessBeforeInitialization(obj interface{}, beanName string) (interface{}, error) {
	return obj, nil
}

func (t *instantiationAwareBase) PostProcessAfterInitialization(obj interface{}, beanName string) (interface{}, error) {
	return obj, nil
}

func (t *instantiationAwareBase) PostProcessBeforeInstantiation(beanType reflect.Type, beanName string) (interface{}, error) {
	return nil, nil
}

func (t *instantiationAwareBase) PostProcessAfterInstantiation(obj interface{}, beanName string) (bool, error) {
	return true, nil
}

func (t *instantiationAwareBase) PostProcessProperties(pvs *beans.PropertyValues, obj interface{}, beanName string) (*beans.PropertyValues, error) {
	return nil, nil
}

type stubbingProcessor struct {
	instantiationAwareBase
	stubName string
	stub     interface{}
}

func (t *stubbingProcessor) PostProcessBeforeInstantiation(beanType reflect.Type, beanName string) (interface{}, error) {
	if beanName == t.stubName {
		return t.stub, nil
	}
	return nil, nil
}

func TestInstantiationShortCircuit(t *testing.T) {

	constructed := false
	stub := &userDao{Label: "stub"}

	factory := beans.NewBeanFactory()
	factory.AddBeanPostProcessor(&stubbingProcessor{stubName: "userDao", stub: stub})

	def := beans.NewBeanDefinition(userDaoClass).Constructor(func() *userDao {
		constructed = true
		return &userDao{Label: "real"}
	})
	require.NoError(t, factory.RegisterBeanDefinition("userDao", def))

	obj, err := factory.GetBean("userDao")
	require.NoError(t, err)
	require.Same(t, stub, obj)
	require.False(t, constructed)
}

type vetoProcessor struct {
	instantiationAwareBase
	vetoName string
}

func (t *vetoProcessor) PostProcessAfterInstantiation(obj interface{}, beanName string) (bool, error) {
	return beanName != t.vetoName, nil
}

func TestPopulationVeto(t *testing.T) {

	factory := beans.NewBeanFactory()
	factory.AddBeanPostProcessor(&vetoProcessor{vetoName: "userService"})
	require.NoError(t, factory.RegisterBeanDefinition("userDao", beans.NewBeanDefinition(userDaoClass)))
	require.NoError(t, factory.RegisterBeanDefinition("userService",
		beans.NewBeanDefinition(userServiceClass).Autowire(beans.AutowireByType)))

	obj, err := factory.GetBean("userService")
	require.NoError(t, err)
	require.Nil(t, obj.(*userService).Dao)
}

/**
Wraps the named bean after initialization, the shape of a proxying
post-processor.
*/

type auditedFacade struct {
	inner interface{}
}

type wrappingProcessor struct {
	wrapName string
}

func (t *wrappingProcessor) PostProcessBeforeInitialization(obj interface{}, beanName string) (interface{}, error) {
	return obj, nil
}

func (t *wrappingProcessor) PostProcessAfterInitialization(obj interface{}, beanName string) (interface{}, error) {
	if beanName == t.wrapName {
		return &auditedFacade{inner: obj}, nil
	}
	return obj, nil
}

func TestRawInjectionConflict(t *testing.T) {

	factory := beans.NewBeanFactory()
	factory.AddBeanPostProcessor(&wrappingProcessor{wrapName: "orders"})
	require.NoError(t, factory.RegisterBeanDefinition("orders",
		beans.NewBeanDefinition(orderFacadeClass).Autowire(beans.AutowireByType)))
	require.NoError(t, factory.RegisterBeanDefinition("billing",
		beans.NewBeanDefinition(billingFacadeClass).Autowire(beans.AutowireByType)))

	obj, err := factory.GetBean("orders")
	require.Error(t, err)
	require.Nil(t, obj)
	require.True(t, strings.Contains(err.Error(), "raw version"))
	require.True(t, strings.Contains(err.Error(), "billing"))
}

func TestRawInjectionAllowed(t *testing.T) {

	factory := beans.NewBeanFactory(beans.AllowRawInjectionDespiteWrapping())
	factory.AddBeanPostProcessor(&wrappingProcessor{wrapName: "orders"})
	require.NoError(t, factory.RegisterBeanDefinition("orders",
		beans.NewBeanDefinition(orderFacadeClass).Autowire(beans.AutowireByType)))
	require.NoError(t, factory.RegisterBeanDefinition("billing",
		beans.NewBeanDefinition(billingFacadeClass).Autowire(beans.AutowireByType)))

	obj, err := factory.GetBean("orders")
	require.NoError(t, err)
	require.IsType(t, &auditedFacade{}, obj)

	// the dependent keeps the raw early reference
	billing, err := factory.GetBean("billing")
	require.NoError(t, err)
	require.Same(t, obj.(*auditedFacade).inner, billing.(*billingFacade).Orders)
}

func TestWrappingWithoutCycle(t *testing.T) {

	factory := beans.NewBeanFactory()
	factory.AddBeanPostProcessor(&wrappingProcessor{wrapName: "userDao"})
	require.NoError(t, factory.RegisterBeanDefinition("userDao", beans.NewBeanDefinition(userDaoClass)))

	obj, err := factory.GetBean("userDao")
	require.NoError(t, err)
	require.IsType(t, &auditedFacade{}, obj)
}

type labelingProcessor struct {
	instantiationAwareBase
	targetName string
}

func (t *labelingProcessor) PostProcessMergedDefinition(definition *beans.BeanDefinition, beanType reflect.Type, beanName string) {
	if beanName == t.targetName {
		definition.Property("Label", "processed")
	}
}

func TestMergedDefinitionPostProcessing(t *testing.T) {

	factory := beans.NewBeanFactory()
	factory.AddBeanPostProcessor(&labelingProcessor{targetName: "userDao"})
	require.NoError(t, factory.RegisterBeanDefinition("userDao", beans.NewBeanDefinition(userDaoClass)))

	obj, err := factory.GetBean("userDao")
	require.NoError(t, err)
	require.Equal(t, "processed", obj.(*userDao).Label)
}

type constructorSupplier struct {
	instantiationAwareBase
	targetName string
	ctor       interface{}
}

func (t *constructorSupplier) PredictBeanType(beanType reflect.Type, beanName string) reflect.Type {
	return nil
}

func (t *constructorSupplier) DetermineCandidateConstructors(beanType reflect.Type, beanName string) ([]interface{}, error) {
	if beanName == t.targetName {
		return []interface{}{t.ctor}, nil
	}
	return nil, nil
}

func (t *constructorSupplier) GetEarlyBeanReference(obj interface{}, beanName string) (interface{}, error) {
	return obj, nil
}

func TestSuppliedConstructor(t *testing.T) {

	factory := beans.NewBeanFactory()
	factory.AddBeanPostProcessor(&constructorSupplier{
		targetName: "userDao",
		ctor:       func() *userDao { return &userDao{Label: "supplied"} },
	})
	require.NoError(t, factory.RegisterBeanDefinition("userDao", beans.NewBeanDefinition(userDaoClass)))

	obj, err := factory.GetBean("userDao")
	require.NoError(t, err)
	require.Equal(t, "supplied", obj.(*userDao).Label)
}
