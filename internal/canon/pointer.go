package canon

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// parsePointer splits a JSON-Pointer (RFC 6901) into unescaped tokens.
func parsePointer(p string) ([]string, error) {
	if p == "" {
		return []string{}, nil
	}
	if p[0] != '/' {
		return nil, fmt.Errorf("invalid json pointer: %q", p)
	}
	raw := strings.Split(p[1:], "/")
	tokens := make([]string, len(raw))
	for i, t := range raw {
		t = strings.ReplaceAll(t, "~1", "/")
		t = strings.ReplaceAll(t, "~0", "~")
		tokens[i] = t
	}
	return tokens, nil
}

// arrayIndex resolves a pointer token against an array. "-" resolves to
// len(arr), valid only as an insertion point for add.
func arrayIndex(arr []interface{}, token string, forInsert bool) (int, error) {
	if token == "-" {
		if forInsert {
			return len(arr), nil
		}
		return 0, fmt.Errorf("array index '-' not valid here")
	}
	idx, err := strconv.Atoi(token)
	if err != nil {
		return 0, fmt.Errorf("invalid array index: %q", token)
	}
	max := len(arr) - 1
	if forInsert {
		max = len(arr)
	}
	if idx < 0 || idx > max {
		return 0, fmt.Errorf("array index out of range: %d", idx)
	}
	return idx, nil
}

// getAtPointer reads the value addressed by pointer within root.
func getAtPointer(root interface{}, pointer string) (interface{}, error) {
	tokens, err := parsePointer(pointer)
	if err != nil {
		return nil, err
	}
	cur := root
	for _, tok := range tokens {
		switch c := cur.(type) {
		case map[string]interface{}:
			v, ok := c[tok]
			if !ok {
				return nil, fmt.Errorf("path not found: %s", pointer)
			}
			cur = v
		case []interface{}:
			idx, err := arrayIndex(c, tok, false)
			if err != nil {
				return nil, err
			}
			cur = c[idx]
		default:
			return nil, fmt.Errorf("path not found: %s", pointer)
		}
	}
	return cur, nil
}

// applyAtPointer descends to the parent container addressed by tokens and
// calls fn(parentContainer, lastToken), rebuilding the spine on the way
// back up so that array inserts/deletes (which may reallocate) propagate
// to their grandparent container.
func applyAtPointer(root interface{}, tokens []string, fn func(parent interface{}, key string) (interface{}, error)) (interface{}, error) {
	if len(tokens) == 1 {
		return fn(root, tokens[0])
	}
	key := tokens[0]
	switch c := root.(type) {
	case map[string]interface{}:
		child, ok := c[key]
		if !ok {
			return nil, fmt.Errorf("path not found: %s", key)
		}
		newChild, err := applyAtPointer(child, tokens[1:], fn)
		if err != nil {
			return nil, err
		}
		c[key] = newChild
		return c, nil
	case []interface{}:
		idx, err := arrayIndex(c, key, false)
		if err != nil {
			return nil, err
		}
		newChild, err := applyAtPointer(c[idx], tokens[1:], fn)
		if err != nil {
			return nil, err
		}
		c[idx] = newChild
		return c, nil
	default:
		return nil, fmt.Errorf("cannot descend into scalar at %q", key)
	}
}

func mutate(root interface{}, pointer string, fn func(parent interface{}, key string) (interface{}, error)) (interface{}, error) {
	tokens, err := parsePointer(pointer)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("cannot operate on the document root")
	}
	return applyAtPointer(root, tokens, fn)
}

func addFn(value interface{}) func(parent interface{}, key string) (interface{}, error) {
	return func(parent interface{}, key string) (interface{}, error) {
		switch c := parent.(type) {
		case map[string]interface{}:
			c[key] = value
			return c, nil
		case []interface{}:
			idx, err := arrayIndex(c, key, true)
			if err != nil {
				return nil, err
			}
			out := make([]interface{}, 0, len(c)+1)
			out = append(out, c[:idx]...)
			out = append(out, value)
			out = append(out, c[idx:]...)
			return out, nil
		default:
			return nil, fmt.Errorf("cannot add into scalar")
		}
	}
}

func removeFn() func(parent interface{}, key string) (interface{}, error) {
	return func(parent interface{}, key string) (interface{}, error) {
		switch c := parent.(type) {
		case map[string]interface{}:
			if _, ok := c[key]; !ok {
				return nil, fmt.Errorf("remove: key not found: %s", key)
			}
			delete(c, key)
			return c, nil
		case []interface{}:
			idx, err := arrayIndex(c, key, false)
			if err != nil {
				return nil, err
			}
			out := make([]interface{}, 0, len(c)-1)
			out = append(out, c[:idx]...)
			out = append(out, c[idx+1:]...)
			return out, nil
		default:
			return nil, fmt.Errorf("cannot remove from scalar")
		}
	}
}

func replaceFn(value interface{}) func(parent interface{}, key string) (interface{}, error) {
	return func(parent interface{}, key string) (interface{}, error) {
		switch c := parent.(type) {
		case map[string]interface{}:
			if _, ok := c[key]; !ok {
				return nil, fmt.Errorf("replace: key not found: %s", key)
			}
			c[key] = value
			return c, nil
		case []interface{}:
			idx, err := arrayIndex(c, key, false)
			if err != nil {
				return nil, err
			}
			c[idx] = value
			return c, nil
		default:
			return nil, fmt.Errorf("cannot replace scalar")
		}
	}
}

func deepCopyValue(v interface{}) interface{} {
	b, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out interface{}
	if err := json.Unmarshal(b, &out); err != nil {
		return v
	}
	return out
}

func jsonEqual(a, b interface{}) bool {
	ab, errA := json.Marshal(a)
	bb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(ab, bb)
}
