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

var connectionClass = reflect.TypeOf((*connection)(nil)) // *connection

type connection struct {
	Addr string
}

var connectionFactoryClass = reflect.TypeOf((*connectionFactory)(nil)) // *connectionFactory

type connectionFactory struct {
	Addr     string
	produced int
}

func (t *connectionFactory) Object() (interface{}, error) {
	t.produced++
	return &connection{Addr: t.Addr}, nil
}

func (t *connectionFactory) ObjectType() reflect.Type {
	return connectionClass
}

func (t *connectionFactory) ObjectName() string {
	return ""
}

func (t *connectionFactory) Singleton() bool {
	return true
}

func TestFactoryBeanProduct(t *testing.T) {

	factory := beans.NewBeanFactory()
	def := beans.NewBeanDefinition(connectionFactoryClass).Property("Addr", "localhost:5432")
	require.NoError(t, factory.RegisterBeanDefinition("conn", def))

	obj, err := factory.GetBean("conn")
	require.NoError(t, err)

	conn := obj.(*connection)
	require.Equal(t, "localhost:5432", conn.Addr)

	// singleton product is cached
	again, err := factory.GetBean("conn")
	require.NoError(t, err)
	require.Same(t, obj, again)

	fb, err := factory.GetBean(beans.FactoryBeanPrefix + "conn")
	require.NoError(t, err)
	require.IsType(t, &connectionFactory{}, fb)
	require.Equal(t, 1, fb.(*connectionFactory).produced)
}

func TestFactoryBeanTypes(t *testing.T) {

	factory := beans.NewBeanFactory()
	require.NoError(t, factory.RegisterBeanDefinition("conn", beans.NewBeanDefinition(connectionFactoryClass)))

	productType, err := factory.GetType("conn")
	require.NoError(t, err)
	require.Equal(t, connectionClass, productType)

	factoryType, err := factory.GetType(beans.FactoryBeanPrefix + "conn")
	require.NoError(t, err)
	require.Equal(t, connectionFactoryClass, factoryType)

	names := factory.GetBeanNamesForType(connectionClass)
	require.Equal(t, []string{"conn"}, names)
}

func TestFactoryBeanPrefixOnPlainBean(t *testing.T) {

	factory := beans.NewBeanFactory()
	require.NoError(t, factory.RegisterBeanDefinition("userDao", beans.NewBeanDefinition(userDaoClass)))

	obj, err := factory.GetBean(beans.FactoryBeanPrefix + "userDao")
	require.Error(t, err)
	require.Nil(t, obj)
	require.True(t, strings.Contains(err.Error(), "is not a factory bean"))
}

type connConsumer struct {
	Conn *connection `inject:""`
}

var connConsumerClass = reflect.TypeOf((*connConsumer)(nil))

/**
A by-type injection of the product type must find the factory bean even
before the factory bean itself was created.
*/

func TestFactoryBeanProductInjection(t *testing.T) {

	factory := beans.NewBeanFactory()
	require.NoError(t, factory.RegisterBeanDefinition("conn",
		beans.NewBeanDefinition(connectionFactoryClass).Property("Addr", "db:5432")))
	require.NoError(t, factory.RegisterBeanDefinition("consumer",
		beans.NewBeanDefinition(connConsumerClass).Autowire(beans.AutowireByType)))

	obj, err := factory.GetBean("consumer")
	require.NoError(t, err)

	consumer := obj.(*connConsumer)
	require.NotNil(t, consumer.Conn)
	require.Equal(t, "db:5432", consumer.Conn.Addr)
}

type prototypeConnectionFactory struct {
	serial int
}

func (t *prototypeConnectionFactory) Object() (interface{}, error) {
	t.serial++
	return &connection{Addr: "fresh"}, nil
}

func (t *prototypeConnectionFactory) ObjectType() reflect.Type {
	return connectionClass
}

func (t *prototypeConnectionFactory) ObjectName() string {
	return ""
}

func (t *prototypeConnectionFactory) Singleton() bool {
	return false
}

var prototypeConnectionFactoryClass = reflect.TypeOf((*prototypeConnectionFactory)(nil))

func TestFactoryBeanPrototypeProduct(t *testing.T) {

	factory := beans.NewBeanFactory()
	require.NoError(t, factory.RegisterBeanDefinition("conn",
		beans.NewBeanDefinition(prototypeConnectionFactoryClass)))

	first, err := factory.GetBean("conn")
	require.NoError(t, err)
	second, err := factory.GetBean("conn")
	require.NoError(t, err)
	require.NotSame(t, first, second)
}
