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

var userDaoClass = reflect.TypeOf((*userDao)(nil)) // *userDao

type userDao struct {
	Label string
}

var userServiceClass = reflect.TypeOf((*userService)(nil)) // *userService

type userService struct {
	Dao *userDao `inject:""`
}

func TestSingletonIdentity(t *testing.T) {

	factory := beans.NewBeanFactory()
	require.NoError(t, factory.RegisterBeanDefinition("userDao", beans.NewBeanDefinition(userDaoClass)))

	first, err := factory.GetBean("userDao")
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := factory.GetBean("userDao")
	require.NoError(t, err)
	require.Same(t, first, second)

	singleton, err := factory.IsSingleton("userDao")
	require.NoError(t, err)
	require.True(t, singleton)

	prototype, err := factory.IsPrototype("userDao")
	require.NoError(t, err)
	require.False(t, prototype)

	require.True(t, factory.ContainsBean("userDao"))
	require.False(t, factory.ContainsBean("unknown"))
}

func TestPrototypeFreshInstances(t *testing.T) {

	factory := beans.NewBeanFactory()
	def := beans.NewBeanDefinition(userDaoClass).Scope(beans.ScopePrototype)
	require.NoError(t, factory.RegisterBeanDefinition("userDao", def))

	first, err := factory.GetBean("userDao")
	require.NoError(t, err)
	second, err := factory.GetBean("userDao")
	require.NoError(t, err)
	require.NotSame(t, first, second)
}

func TestUnknownBean(t *testing.T) {

	factory := beans.NewBeanFactory()

	obj, err := factory.GetBean("unknown")
	require.Error(t, err)
	require.Nil(t, obj)
	require.True(t, strings.Contains(err.Error(), "no bean named"))
}

func TestAutowireByType(t *testing.T) {

	factory := beans.NewBeanFactory()
	require.NoError(t, factory.RegisterBeanDefinition("userDao", beans.NewBeanDefinition(userDaoClass)))
	require.NoError(t, factory.RegisterBeanDefinition("userService",
		beans.NewBeanDefinition(userServiceClass).Autowire(beans.AutowireByType)))

	obj, err := factory.GetBean("userService")
	require.NoError(t, err)

	service := obj.(*userService)
	require.NotNil(t, service.Dao)

	dao, err := factory.GetBean("userDao")
	require.NoError(t, err)
	require.Same(t, dao, service.Dao)
}

type namedDaoService struct {
	UserDao *userDao
}

var namedDaoServiceClass = reflect.TypeOf((*namedDaoService)(nil))

func TestAutowireByName(t *testing.T) {

	factory := beans.NewBeanFactory()
	require.NoError(t, factory.RegisterBeanDefinition("userDao", beans.NewBeanDefinition(userDaoClass)))
	require.NoError(t, factory.RegisterBeanDefinition("service",
		beans.NewBeanDefinition(namedDaoServiceClass).Autowire(beans.AutowireByName)))

	obj, err := factory.GetBean("service")
	require.NoError(t, err)

	service := obj.(*namedDaoService)
	require.NotNil(t, service.UserDao)
}

func TestGetBeanByTypeAmbiguity(t *testing.T) {

	factory := beans.NewBeanFactory()
	require.NoError(t, factory.RegisterBeanDefinition("firstDao", beans.NewBeanDefinition(userDaoClass)))
	require.NoError(t, factory.RegisterBeanDefinition("secondDao", beans.NewBeanDefinition(userDaoClass)))

	obj, err := factory.GetBeanByType(userDaoClass)
	require.Error(t, err)
	require.Nil(t, obj)
	require.True(t, strings.Contains(err.Error(), "expected single matching bean"))
}

func TestGetBeanByTypePrimary(t *testing.T) {

	factory := beans.NewBeanFactory()
	require.NoError(t, factory.RegisterBeanDefinition("firstDao", beans.NewBeanDefinition(userDaoClass)))
	require.NoError(t, factory.RegisterBeanDefinition("secondDao", beans.NewBeanDefinition(userDaoClass).Primary()))

	obj, err := factory.GetBeanByType(userDaoClass)
	require.NoError(t, err)

	preferred, err := factory.GetBean("secondDao")
	require.NoError(t, err)
	require.Same(t, preferred, obj)
}

type qualifiedService struct {
	Dao *userDao `inject:"secondDao"`
}

var qualifiedServiceClass = reflect.TypeOf((*qualifiedService)(nil))

func TestQualifiedInjection(t *testing.T) {

	factory := beans.NewBeanFactory()
	require.NoError(t, factory.RegisterBeanDefinition("firstDao", beans.NewBeanDefinition(userDaoClass)))
	require.NoError(t, factory.RegisterBeanDefinition("secondDao", beans.NewBeanDefinition(userDaoClass)))
	require.NoError(t, factory.RegisterBeanDefinition("service",
		beans.NewBeanDefinition(qualifiedServiceClass).Autowire(beans.AutowireByType)))

	obj, err := factory.GetBean("service")
	require.NoError(t, err)

	expected, err := factory.GetBean("secondDao")
	require.NoError(t, err)
	require.Same(t, expected, obj.(*qualifiedService).Dao)
}

func TestQualifierOverridesPrimary(t *testing.T) {

	factory := beans.NewBeanFactory()
	require.NoError(t, factory.RegisterBeanDefinition("firstDao", beans.NewBeanDefinition(userDaoClass).Primary()))
	require.NoError(t, factory.RegisterBeanDefinition("secondDao", beans.NewBeanDefinition(userDaoClass)))
	require.NoError(t, factory.RegisterBeanDefinition("service",
		beans.NewBeanDefinition(qualifiedServiceClass).Autowire(beans.AutowireByType)))

	obj, err := factory.GetBean("service")
	require.NoError(t, err)

	expected, err := factory.GetBean("secondDao")
	require.NoError(t, err)
	require.Same(t, expected, obj.(*qualifiedService).Dao)
}

type optionalService struct {
	Dao *userDao `inject:"optional"`
}

var optionalServiceClass = reflect.TypeOf((*optionalService)(nil))

func TestOptionalInjection(t *testing.T) {

	factory := beans.NewBeanFactory()
	require.NoError(t, factory.RegisterBeanDefinition("service",
		beans.NewBeanDefinition(optionalServiceClass).Autowire(beans.AutowireByType)))

	obj, err := factory.GetBean("service")
	require.NoError(t, err)
	require.Nil(t, obj.(*optionalService).Dao)
}

func TestRequiredInjectionMissing(t *testing.T) {

	factory := beans.NewBeanFactory()
	require.NoError(t, factory.RegisterBeanDefinition("userService",
		beans.NewBeanDefinition(userServiceClass).Autowire(beans.AutowireByType)))

	obj, err := factory.GetBean("userService")
	require.Error(t, err)
	require.Nil(t, obj)
	require.True(t, strings.Contains(err.Error(), "unsatisfied dependency"))
}

func TestRegisterSingleton(t *testing.T) {

	factory := beans.NewBeanFactory()
	manual := &userDao{Label: "manual"}
	require.NoError(t, factory.RegisterSingleton("manualDao", manual))

	obj, err := factory.GetBean("manualDao")
	require.NoError(t, err)
	require.Same(t, manual, obj)

	names := factory.GetBeanNamesForType(userDaoClass)
	require.Contains(t, names, "manualDao")

	require.Error(t, factory.RegisterSingleton("manualDao", &userDao{}))
}

func TestParentFactoryFallback(t *testing.T) {

	parent := beans.NewBeanFactory()
	require.NoError(t, parent.RegisterBeanDefinition("userDao", beans.NewBeanDefinition(userDaoClass)))

	child := beans.NewBeanFactory(beans.WithParent(parent))
	require.NoError(t, child.RegisterBeanDefinition("userService",
		beans.NewBeanDefinition(userServiceClass).Autowire(beans.AutowireByType)))

	obj, err := child.GetBean("userService")
	require.NoError(t, err)

	dao, err := parent.GetBean("userDao")
	require.NoError(t, err)
	require.Same(t, dao, obj.(*userService).Dao)

	direct, err := child.GetBean("userDao")
	require.NoError(t, err)
	require.Same(t, dao, direct)
}

func TestGetType(t *testing.T) {

	factory := beans.NewBeanFactory()
	require.NoError(t, factory.RegisterBeanDefinition("userDao", beans.NewBeanDefinition(userDaoClass)))

	beanType, err := factory.GetType("userDao")
	require.NoError(t, err)
	require.Equal(t, userDaoClass, beanType)
}

func TestAutowireBeanProperties(t *testing.T) {

	factory := beans.NewBeanFactory()
	require.NoError(t, factory.RegisterBeanDefinition("userDao", beans.NewBeanDefinition(userDaoClass)))

	external := &userService{}
	require.NoError(t, factory.AutowireBeanProperties(external))
	require.NotNil(t, external.Dao)
}

func TestResolveDependency(t *testing.T) {

	factory := beans.NewBeanFactory()
	require.NoError(t, factory.RegisterBeanDefinition("userDao", beans.NewBeanDefinition(userDaoClass)))

	var autowired []string
	obj, err := factory.ResolveDependency(&beans.DependencyDescriptor{
		Type:     userDaoClass,
		Required: true,
	}, "", &autowired)
	require.NoError(t, err)
	require.NotNil(t, obj)
	require.Equal(t, []string{"userDao"}, autowired)
}

func TestAbstractDefinition(t *testing.T) {

	factory := beans.NewBeanFactory()
	require.NoError(t, factory.RegisterBeanDefinition("base",
		beans.NewBeanDefinition(userDaoClass).Abstract().Property("Label", "base")))
	require.NoError(t, factory.RegisterBeanDefinition("concrete",
		beans.NewChildBeanDefinition("base")))

	obj, err := factory.GetBean("base")
	require.Error(t, err)
	require.Nil(t, obj)
	require.True(t, strings.Contains(err.Error(), "abstract"))

	child, err := factory.GetBean("concrete")
	require.NoError(t, err)
	require.Equal(t, "base", child.(*userDao).Label)
}
