package adminsim

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"strings"
)

// payload is a request body decoded from either JSON or Kong's form notation.
type payload map[string]interface{}

func decodeBody(r *http.Request) (payload, error) {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/json" {
		var p payload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			return nil, fmt.Errorf("cannot parse JSON body: %w", err)
		}
		return p, nil
	}

	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("cannot parse form body: %w", err)
	}
	p := payload{}
	for key, values := range r.PostForm {
		array := strings.HasSuffix(key, "[]")
		key = strings.TrimSuffix(key, "[]")
		var v interface{}
		if array || len(values) > 1 {
			items := make([]interface{}, len(values))
			for i, s := range values {
				items[i] = coerce(s)
			}
			v = items
		} else {
			v = coerce(values[0])
		}
		p.setPath(strings.Split(key, "."), v)
	}
	return p, nil
}

// coerce types form scalars the way the admin API schema would.
func coerce(s string) interface{} {
	switch s {
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil && strings.Trim(s, "0123456789.-") == "" {
		return n
	}
	return s
}

func (p payload) setPath(keys []string, v interface{}) {
	if len(keys) == 1 {
		p[keys[0]] = v
		return
	}
	child, ok := p[keys[0]].(map[string]interface{})
	if !ok {
		child = map[string]interface{}{}
		p[keys[0]] = child
	}
	payload(child).setPath(keys[1:], v)
}

func (p payload) str(key string) string {
	switch v := p[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func (p payload) strs(key string) []string {
	switch v := p[key].(type) {
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, fmt.Sprint(item))
		}
		return out
	case []string:
		return v
	case nil:
		return nil
	default:
		return []string{fmt.Sprint(v)}
	}
}

func (p payload) boolean(key string, def bool) bool {
	switch v := p[key].(type) {
	case bool:
		return v
	case string:
		b, err := strconv.ParseBool(v)
		if err != nil {
			return def
		}
		return b
	default:
		return def
	}
}

func (p payload) object(key string) map[string]interface{} {
	if m, ok := p[key].(map[string]interface{}); ok {
		return m
	}
	return nil
}
