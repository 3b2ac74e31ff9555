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

var handlerClass = reflect.TypeOf((*handler)(nil)).Elem()

type handler interface {
	Handle() string
}

type jsonHandler struct {
}

func (t *jsonHandler) Handle() string {
	return "json"
}

func (t *jsonHandler) BeanOrder() int {
	return 2
}

type xmlHandler struct {
}

func (t *xmlHandler) Handle() string {
	return "xml"
}

func (t *xmlHandler) BeanOrder() int {
	return 1
}

var jsonHandlerClass = reflect.TypeOf((*jsonHandler)(nil))
var xmlHandlerClass = reflect.TypeOf((*xmlHandler)(nil))

type dispatcher struct {
	Handlers []handler          `inject:""`
	Routes   map[string]handler `inject:""`
}

var dispatcherClass = reflect.TypeOf((*dispatcher)(nil))

/**
Slice injection gathers all candidates, ordered beans first by their
order. Map injection keys candidates by bean name.
*/

func TestAggregatedInjection(t *testing.T) {

	factory := beans.NewBeanFactory()
	require.NoError(t, factory.RegisterBeanDefinition("jsonHandler", beans.NewBeanDefinition(jsonHandlerClass)))
	require.NoError(t, factory.RegisterBeanDefinition("xmlHandler", beans.NewBeanDefinition(xmlHandlerClass)))
	require.NoError(t, factory.RegisterBeanDefinition("dispatcher",
		beans.NewBeanDefinition(dispatcherClass).Autowire(beans.AutowireByType)))

	obj, err := factory.GetBean("dispatcher")
	require.NoError(t, err)

	d := obj.(*dispatcher)
	require.Equal(t, 2, len(d.Handlers))
	require.Equal(t, "xml", d.Handlers[0].Handle())
	require.Equal(t, "json", d.Handlers[1].Handle())

	require.Equal(t, 2, len(d.Routes))
	require.Equal(t, "json", d.Routes["jsonHandler"].Handle())
	require.Equal(t, "xml", d.Routes["xmlHandler"].Handle())
}

type pipeline struct {
	Stages []handler
	Env    map[string]string
}

var pipelineClass = reflect.TypeOf((*pipeline)(nil))

func TestManagedListProperty(t *testing.T) {

	factory := beans.NewBeanFactory()
	require.NoError(t, factory.RegisterBeanDefinition("jsonHandler", beans.NewBeanDefinition(jsonHandlerClass)))
	require.NoError(t, factory.RegisterBeanDefinition("xmlHandler", beans.NewBeanDefinition(xmlHandlerClass)))

	def := beans.NewBeanDefinition(pipelineClass).
		Property("Stages", beans.ManagedList{beans.Ref("jsonHandler"), beans.Ref("xmlHandler")}).
		Property("Env", beans.ManagedProperties{"mode": "fast"})
	require.NoError(t, factory.RegisterBeanDefinition("pipeline", def))

	obj, err := factory.GetBean("pipeline")
	require.NoError(t, err)

	p := obj.(*pipeline)
	require.Equal(t, 2, len(p.Stages))
	// declared order wins over bean order
	require.Equal(t, "json", p.Stages[0].Handle())
	require.Equal(t, "xml", p.Stages[1].Handle())
	require.Equal(t, map[string]string{"mode": "fast"}, p.Env)
}

type router struct {
	Routes map[string]handler
}

var routerClass = reflect.TypeOf((*router)(nil))

func TestManagedMapProperty(t *testing.T) {

	factory := beans.NewBeanFactory()
	require.NoError(t, factory.RegisterBeanDefinition("jsonHandler", beans.NewBeanDefinition(jsonHandlerClass)))

	def := beans.NewBeanDefinition(routerClass).
		Property("Routes", beans.ManagedMap{
			{Key: "application/json", Value: beans.Ref("jsonHandler")},
		})
	require.NoError(t, factory.RegisterBeanDefinition("router", def))

	obj, err := factory.GetBean("router")
	require.NoError(t, err)

	r := obj.(*router)
	require.Equal(t, 1, len(r.Routes))
	require.Equal(t, "json", r.Routes["application/json"].Handle())
}

func TestReferenceToMissingBean(t *testing.T) {

	factory := beans.NewBeanFactory()
	def := beans.NewBeanDefinition(pipelineClass).
		Property("Stages", beans.ManagedList{beans.Ref("ghost")})
	require.NoError(t, factory.RegisterBeanDefinition("pipeline", def))

	obj, err := factory.GetBean("pipeline")
	require.Error(t, err)
	require.Nil(t, obj)
	require.True(t, strings.Contains(err.Error(), "ghost"))
}

type daoWrapper struct {
	Dao *userDao
}

var daoWrapperClass = reflect.TypeOf((*daoWrapper)(nil))

func TestInnerBeanProperty(t *testing.T) {

	factory := beans.NewBeanFactory()
	def := beans.NewBeanDefinition(daoWrapperClass).
		Property("Dao", beans.Inner(beans.NewBeanDefinition(userDaoClass).Property("Label", "inner")))
	require.NoError(t, factory.RegisterBeanDefinition("wrapper", def))

	obj, err := factory.GetBean("wrapper")
	require.NoError(t, err)

	w := obj.(*daoWrapper)
	require.NotNil(t, w.Dao)
	require.Equal(t, "inner", w.Dao.Label)

	// the inner bean is not addressable by name
	require.False(t, factory.ContainsBean("inner"))
}

func TestInnerBeanDestruction(t *testing.T) {

	var events []string

	factory := beans.NewBeanFactory()
	def := beans.NewBeanDefinition(reflect.TypeOf((*trackedServiceHolder)(nil))).
		Property("Repo", beans.Inner(
			beans.NewBeanDefinition(trackedRepoClass).
				Constructor(func() *trackedRepo { return &trackedRepo{events: &events} })))
	require.NoError(t, factory.RegisterBeanDefinition("holder", def))

	obj, err := factory.GetBean("holder")
	require.NoError(t, err)
	require.NotNil(t, obj.(*trackedServiceHolder).Repo)

	require.NoError(t, factory.DestroySingletons())
	require.Equal(t, []string{"repo-construct", "repo-destroy"}, events)
}

type trackedServiceHolder struct {
	Repo *trackedRepo
}

type preferredClient struct {
	Preferred handler `inject:""`
}

var preferredClientClass = reflect.TypeOf((*preferredClient)(nil))

/**
A scalar injection point with several candidates falls back to bean
order after qualifier and primary, the lower order wins.
*/

func TestScalarOrderedInjection(t *testing.T) {

	factory := beans.NewBeanFactory()
	require.NoError(t, factory.RegisterBeanDefinition("jsonHandler", beans.NewBeanDefinition(jsonHandlerClass)))
	require.NoError(t, factory.RegisterBeanDefinition("xmlHandler", beans.NewBeanDefinition(xmlHandlerClass)))
	require.NoError(t, factory.RegisterBeanDefinition("client",
		beans.NewBeanDefinition(preferredClientClass).Autowire(beans.AutowireByType)))

	obj, err := factory.GetBean("client")
	require.NoError(t, err)
	require.Equal(t, "xml", obj.(*preferredClient).Preferred.Handle())
}

func TestPrimaryOverridesOrder(t *testing.T) {

	factory := beans.NewBeanFactory()
	require.NoError(t, factory.RegisterBeanDefinition("jsonHandler",
		beans.NewBeanDefinition(jsonHandlerClass).Primary()))
	require.NoError(t, factory.RegisterBeanDefinition("xmlHandler", beans.NewBeanDefinition(xmlHandlerClass)))
	require.NoError(t, factory.RegisterBeanDefinition("client",
		beans.NewBeanDefinition(preferredClientClass).Autowire(beans.AutowireByType)))

	obj, err := factory.GetBean("client")
	require.NoError(t, err)
	require.Equal(t, "json", obj.(*preferredClient).Preferred.Handle())
}
