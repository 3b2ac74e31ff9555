/*
 * Copyright (c) 2023 Zander Schwid & Co. LLC.
 * SPDX-License-Identifier: BUSL-1.1
 */

package beans

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

/**
Properties contains the key/value pairs backing placeholder expression
resolution. The store itself is the lowest registered resolver, the higher
priority resolvers look first.
*/

type properties struct {
	sync.RWMutex

	priority int

	store map[string]string

	resolvers []PropertyResolver
}

func NewProperties() Properties {
	t := &properties{
		priority:  defaultPropertyResolverPriority,
		store:     make(map[string]string),
		resolvers: make([]PropertyResolver, 0, 10),
	}
	t.Register(t)
	return t
}

func (t *properties) String() string {
	t.RLock()
	defer t.RUnlock()
	return fmt.Sprintf("Properties{priority=%d,store=%d,resolvers=%d}", t.priority, len(t.store), len(t.resolvers))
}

func (t *properties) Register(resolver PropertyResolver) {
	t.Lock()
	defer t.Unlock()
	t.resolvers = append(t.resolvers, resolver)
	if len(t.resolvers) > 1 {
		sort.Slice(t.resolvers, func(i, j int) bool {
			return t.resolvers[i].Priority() >= t.resolvers[j].Priority()
		})
	}
}

func (t *properties) PropertyResolvers() []PropertyResolver {
	t.RLock()
	defer t.RUnlock()
	buf := make([]PropertyResolver, len(t.resolvers))
	copy(buf, t.resolvers)
	return buf
}

func (t *properties) Priority() int {
	return t.priority
}

func (t *properties) LoadMap(source map[string]interface{}) {
	t.Lock()
	defer t.Unlock()
	t.loadMapRec(make([]byte, 0, 100), source)
}

func (t *properties) loadMapRec(stack []byte, m map[string]interface{}) {
	for k, v := range m {
		n := len(stack)
		if n > 0 {
			stack = append(stack, '.')
		}
		stack = append(stack, []byte(k)...)
		if next, ok := v.(map[string]interface{}); ok {
			t.loadMapRec(stack, next)
		} else {
			t.store[string(stack)] = fmt.Sprint(v)
		}
		stack = stack[:n]
	}
}

/**
Loads properties from file, the format is picked by extension.
*/

func (t *properties) LoadFile(path string) error {
	switch {

	case isYamlFile(path):
		content, err := os.ReadFile(path)
		if err != nil {
			return errors.Errorf("i/o error with yaml properties file '%s', %v", path, err)
		}
		holder := make(map[string]interface{})
		if err := yaml.Unmarshal(content, holder); err != nil {
			return errors.Errorf("parse error of yaml properties file '%s', %v", path, err)
		}
		t.LoadMap(holder)
		return nil

	case isEnvFile(path):
		m, err := godotenv.Read(path)
		if err != nil {
			return errors.Errorf("parse error of env properties file '%s', %v", path, err)
		}
		t.Lock()
		defer t.Unlock()
		for k, v := range m {
			t.store[k] = v
		}
		return nil

	default:
		content, err := os.ReadFile(path)
		if err != nil {
			return errors.Errorf("i/o error with properties file '%s', %v", path, err)
		}
		return t.Parse(string(content))
	}
}

func isYamlFile(fileName string) bool {
	return strings.HasSuffix(fileName, ".yaml") || strings.HasSuffix(fileName, ".yml")
}

func isEnvFile(fileName string) bool {
	return strings.HasSuffix(fileName, ".env")
}

func (t *properties) Parse(content string) error {
	var key string
	var inside bool

	t.Lock()
	defer t.Unlock()

	for _, tk := range scanProperties(content) {
		switch tk.kind {
		case tokenEOF:
			if inside {
				t.store[key] = ""
			}
		case tokenKey:
			if inside {
				return errors.Errorf("key is not expected inside the property on key '%s'", key)
			}
			key = tk.text
			inside = true
		case tokenValue:
			if !inside {
				return errors.Errorf("value is not expected outside of the property after key '%s'", key)
			}
			t.store[key] = tk.text
			inside = false
		case tokenError:
			if inside {
				return errors.Errorf("property parsing error on key '%s', %s", key, tk.text)
			} else {
				return errors.Errorf("property parsing error after key '%s', %s", key, tk.text)
			}
		}
	}
	return nil
}

func (t *properties) Extend(parent Properties) {
	r := parent.PropertyResolvers()
	t.Lock()
	defer t.Unlock()
	if parent.Priority() >= t.priority {
		t.priority = parent.Priority() + 1
	}
	t.resolvers = append(t.resolvers, r...)
	sort.Slice(t.resolvers, func(i, j int) bool {
		return t.resolvers[i].Priority() >= t.resolvers[j].Priority()
	})
}

func (t *properties) Len() int {
	t.RLock()
	defer t.RUnlock()
	return len(t.store)
}

func (t *properties) Keys() []string {
	t.RLock()
	defer t.RUnlock()
	keys := make([]string, 0, len(t.store))
	for k := range t.store {
		keys = append(keys, k)
	}
	return keys
}

func (t *properties) Map() map[string]string {
	t.RLock()
	defer t.RUnlock()
	m := make(map[string]string)
	for k, v := range t.store {
		m[k] = v
	}
	return m
}

func (t *properties) Contains(key string) bool {
	t.RLock()
	defer t.RUnlock()
	_, ok := t.store[key]
	return ok
}

func (t *properties) GetProperty(key string) (value string, ok bool) {
	t.RLock()
	defer t.RUnlock()
	value, ok = t.store[key]
	return
}

func (t *properties) nextPropertyResolver(i int) (PropertyResolver, bool) {
	t.RLock()
	defer t.RUnlock()
	if i < 0 || i >= len(t.resolvers) {
		return nil, false
	}
	return t.resolvers[i], true
}

func (t *properties) Get(key string) (value string, ok bool) {
	for i := 0; ; i++ {
		r, ok := t.nextPropertyResolver(i)
		if !ok {
			break
		}
		if value, ok := r.GetProperty(key); ok {
			return value, true
		}
	}
	return "", false
}

func (t *properties) GetString(key, def string) string {
	if value, ok := t.Get(key); ok {
		return value
	}
	return def
}

func (t *properties) GetBool(key string, def bool) bool {
	if value, ok := t.Get(key); ok {
		if v, err := parseBool(value); err == nil {
			return v
		}
	}
	return def
}

func (t *properties) GetInt(key string, def int) int {
	if value, ok := t.Get(key); ok {
		if v, err := strconv.Atoi(value); err == nil {
			return v
		}
	}
	return def
}

func (t *properties) Set(key string, value string) {
	t.Lock()
	defer t.Unlock()
	t.store[key] = value
}

func (t *properties) Remove(key string) bool {
	t.Lock()
	defer t.Unlock()
	_, ok := t.store[key]
	if !ok {
		return false
	}
	delete(t.store, key)
	return true
}

func (t *properties) Clear() {
	t.Lock()
	defer t.Unlock()
	t.store = make(map[string]string)
}
