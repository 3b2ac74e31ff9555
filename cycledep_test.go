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

/**
Cycle tests of singleton property references, lazy providers and prototype
constructors.
*/

type orderFacade struct {
	Billing *billingFacade `inject:""`
}

type billingFacade struct {
	Orders *orderFacade `inject:""`
}

var orderFacadeClass = reflect.TypeOf((*orderFacade)(nil))
var billingFacadeClass = reflect.TypeOf((*billingFacade)(nil))

func TestSingletonPropertyCycle(t *testing.T) {

	factory := beans.NewBeanFactory()
	require.NoError(t, factory.RegisterBeanDefinition("orders",
		beans.NewBeanDefinition(orderFacadeClass).Autowire(beans.AutowireByType)))
	require.NoError(t, factory.RegisterBeanDefinition("billing",
		beans.NewBeanDefinition(billingFacadeClass).Autowire(beans.AutowireByType)))

	obj, err := factory.GetBean("orders")
	require.NoError(t, err)

	orders := obj.(*orderFacade)
	require.NotNil(t, orders.Billing)
	require.Same(t, orders, orders.Billing.Orders)

	cached, err := factory.GetBean("billing")
	require.NoError(t, err)
	require.Same(t, orders.Billing, cached)
}

func TestDisabledCircularReferences(t *testing.T) {

	factory := beans.NewBeanFactory(beans.DisableCircularReferences())
	require.NoError(t, factory.RegisterBeanDefinition("orders",
		beans.NewBeanDefinition(orderFacadeClass).Autowire(beans.AutowireByType)))
	require.NoError(t, factory.RegisterBeanDefinition("billing",
		beans.NewBeanDefinition(billingFacadeClass).Autowire(beans.AutowireByType)))

	obj, err := factory.GetBean("orders")
	require.Error(t, err)
	require.Nil(t, obj)
	require.True(t, strings.Contains(err.Error(), "currently in creation"))
}

type alphaLink struct {
	Beta *betaLink `inject:""`
}

type betaLink struct {
	GammaRef *gammaLink `inject:""`
}

type gammaLink struct {
	Alpha func() *alphaLink `inject:"lazy"`
}

var alphaLinkClass = reflect.TypeOf((*alphaLink)(nil))
var betaLinkClass = reflect.TypeOf((*betaLink)(nil))
var gammaLinkClass = reflect.TypeOf((*gammaLink)(nil))

func TestLazyProviderCycle(t *testing.T) {

	factory := beans.NewBeanFactory()
	require.NoError(t, factory.RegisterBeanDefinition("alpha",
		beans.NewBeanDefinition(alphaLinkClass).Autowire(beans.AutowireByType)))
	require.NoError(t, factory.RegisterBeanDefinition("beta",
		beans.NewBeanDefinition(betaLinkClass).Autowire(beans.AutowireByType)))
	require.NoError(t, factory.RegisterBeanDefinition("gamma",
		beans.NewBeanDefinition(gammaLinkClass).Autowire(beans.AutowireByType)))

	obj, err := factory.GetBean("alpha")
	require.NoError(t, err)

	alpha := obj.(*alphaLink)
	require.NotNil(t, alpha.Beta)
	require.NotNil(t, alpha.Beta.GammaRef)
	require.NotNil(t, alpha.Beta.GammaRef.Alpha)

	require.Same(t, alpha, alpha.Beta.GammaRef.Alpha())
	// provider memoizes the first resolution
	require.Same(t, alpha.Beta.GammaRef.Alpha(), alpha.Beta.GammaRef.Alpha())
}

type pingProto struct {
	Pong *pongProto
}

type pongProto struct {
	Ping *pingProto
}

var pingProtoClass = reflect.TypeOf((*pingProto)(nil))
var pongProtoClass = reflect.TypeOf((*pongProto)(nil))

func TestPrototypeConstructorCycle(t *testing.T) {

	factory := beans.NewBeanFactory()
	require.NoError(t, factory.RegisterBeanDefinition("ping",
		beans.NewBeanDefinition(pingProtoClass).
			Scope(beans.ScopePrototype).
			Constructor(func(pong *pongProto) *pingProto { return &pingProto{Pong: pong} })))
	require.NoError(t, factory.RegisterBeanDefinition("pong",
		beans.NewBeanDefinition(pongProtoClass).
			Scope(beans.ScopePrototype).
			Constructor(func(ping *pingProto) *pongProto { return &pongProto{Ping: ping} })))

	obj, err := factory.GetBean("ping")
	require.Error(t, err)
	require.Nil(t, obj)
	require.True(t, strings.Contains(err.Error(), "currently in creation"))
}

func TestDependsOnCycle(t *testing.T) {

	factory := beans.NewBeanFactory()
	require.NoError(t, factory.RegisterBeanDefinition("left",
		beans.NewBeanDefinition(orderFacadeClass).DependsOn("right")))
	require.NoError(t, factory.RegisterBeanDefinition("right",
		beans.NewBeanDefinition(billingFacadeClass).DependsOn("left")))

	obj, err := factory.GetBean("left")
	require.Error(t, err)
	require.Nil(t, obj)
	require.True(t, strings.Contains(err.Error(), "circular depends-on"))
}

func TestDependsOnOrder(t *testing.T) {

	var created []string

	factory := beans.NewBeanFactory()
	require.NoError(t, factory.RegisterBeanDefinition("storage",
		beans.NewBeanDefinition(orderFacadeClass).
			Constructor(func() *orderFacade {
				created = append(created, "storage")
				return &orderFacade{}
			})))
	require.NoError(t, factory.RegisterBeanDefinition("server",
		beans.NewBeanDefinition(billingFacadeClass).
			DependsOn("storage").
			Constructor(func() *billingFacade {
				created = append(created, "server")
				return &billingFacade{}
			})))

	_, err := factory.GetBean("server")
	require.NoError(t, err)
	require.Equal(t, []string{"storage", "server"}, created)
}
