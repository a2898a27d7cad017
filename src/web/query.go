package web

import (
	"fmt"
	"net/url"
	"strconv"
)

// intParam 读取非负整数参数，缺省时返回 def
func intParam(q url.Values, name string, def int) (int, error) {
	s := q.Get(name)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return def, fmt.Errorf("parameter %s must be a non-negative integer", name)
	}
	return n, nil
}
