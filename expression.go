/*
 * Copyright (c) 2023 Zander Schwid & Co. LLC.
 * SPDX-License-Identifier: BUSL-1.1
 */

package beans

import (
	"strings"

	"github.com/pkg/errors"
)

const (
	placeholderPrefix = "${"
	placeholderSuffix = "}"
	placeholderValueSeparator = ":"
)

/**
Default expression resolver substituting '${key}' and '${key:default}'
placeholders with values from the property resolver chain. A string
without placeholders comes back unchanged, which marks the value as safe
to cache on the definition.
*/

type placeholderResolver struct {
	properties Properties
}

func NewPlaceholderResolver(properties Properties) ExpressionResolver {
	return &placeholderResolver{properties: properties}
}

func (t *placeholderResolver) Evaluate(expr string) (interface{}, error) {
	if !strings.Contains(expr, placeholderPrefix) {
		return expr, nil
	}
	resolved, err := t.resolve(expr, make(map[string]bool))
	if err != nil {
		return nil, err
	}
	return resolved, nil
}

func (t *placeholderResolver) resolve(expr string, visited map[string]bool) (string, error) {

	var out strings.Builder
	pos := 0
	for {
		start := strings.Index(expr[pos:], placeholderPrefix)
		if start == -1 {
			out.WriteString(expr[pos:])
			return out.String(), nil
		}
		start += pos
		end := t.findSuffix(expr, start+len(placeholderPrefix))
		if end == -1 {
			return "", errors.Errorf("unbalanced placeholder in expression '%s'", expr)
		}

		out.WriteString(expr[pos:start])
		placeholder := expr[start+len(placeholderPrefix) : end]

		// the key part may itself be an expression
		if strings.Contains(placeholder, placeholderPrefix) {
			nested, err := t.resolve(placeholder, visited)
			if err != nil {
				return "", err
			}
			placeholder = nested
		}

		key := placeholder
		var def string
		var hasDef bool
		if idx := strings.Index(placeholder, placeholderValueSeparator); idx != -1 {
			key = placeholder[:idx]
			def = placeholder[idx+len(placeholderValueSeparator):]
			hasDef = true
		}

		if visited[key] {
			return "", errors.Errorf("circular placeholder reference '%s' in expression '%s'", key, expr)
		}

		value, ok := t.properties.Get(key)
		if !ok {
			if !hasDef {
				return "", errors.Errorf("could not resolve placeholder '%s' in expression '%s'", key, expr)
			}
			value = def
		}

		// the value itself may contain placeholders
		if strings.Contains(value, placeholderPrefix) {
			visited[key] = true
			nested, err := t.resolve(value, visited)
			delete(visited, key)
			if err != nil {
				return "", err
			}
			value = nested
		}

		out.WriteString(value)
		pos = end + len(placeholderSuffix)
	}
}

/**
Finds the matching closing brace honoring nested placeholders inside
the default part.
*/

func (t *placeholderResolver) findSuffix(expr string, start int) int {
	depth := 0
	for i := start; i < len(expr); i++ {
		switch {
		case strings.HasPrefix(expr[i:], placeholderPrefix):
			depth++
			i++
		case expr[i] == '}':
			if depth == 0 {
				return i
			}
			depth--
		}
	}
	return -1
}
