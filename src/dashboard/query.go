package dashboard

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ParseSelection 把参数表 (URL 查询或命令行) 转换为筛选选择
// 多选参数可以重复，也可以逗号分隔；区间写成 min:max，任一端可省略，省略的一端取 options 中的边界
func ParseSelection(values map[string][]string, filters []FilterDef, options []FilterOptions) (Selection, error) {
	var sel Selection
	for _, f := range filters {
		raw := values[f.Name]
		if len(raw) == 0 {
			continue
		}
		switch f.Kind {
		case Select:
			if v := strings.TrimSpace(raw[0]); v != "" {
				sel.Set(f.Name, v)
			}
		case MultiSelect:
			var vals []string
			for _, item := range raw {
				for _, v := range strings.Split(item, ",") {
					if v = strings.TrimSpace(v); v != "" {
						vals = append(vals, v)
					}
				}
			}
			if len(vals) > 0 {
				sel.Set(f.Name, vals...)
			}
		case Range:
			if strings.TrimSpace(raw[0]) == "" {
				continue
			}
			b, err := ParseBounds(raw[0], defaultBounds(options, f.Name))
			if err != nil {
				return sel, fmt.Errorf("parameter %s: %w", f.Name, err)
			}
			sel.SetRange(f.Name, b)
		}
	}
	return sel, nil
}

func defaultBounds(options []FilterOptions, name string) Bounds {
	for _, o := range options {
		if o.Name == name && o.Bounds != nil {
			return *o.Bounds
		}
	}
	return Bounds{Min: math.Inf(-1), Max: math.Inf(1)}
}

// ParseBounds 解析 "min:max"，省略的一端取 def
func ParseBounds(s string, def Bounds) (Bounds, error) {
	lo, hi, found := strings.Cut(s, ":")
	if !found {
		return def, fmt.Errorf("range %q must be min:max", s)
	}
	b := def
	if lo = strings.TrimSpace(lo); lo != "" {
		v, err := strconv.ParseFloat(lo, 64)
		if err != nil {
			return def, fmt.Errorf("invalid minimum %q", lo)
		}
		b.Min = v
	}
	if hi = strings.TrimSpace(hi); hi != "" {
		v, err := strconv.ParseFloat(hi, 64)
		if err != nil {
			return def, fmt.Errorf("invalid maximum %q", hi)
		}
		b.Max = v
	}
	if b.Min > b.Max {
		return def, fmt.Errorf("minimum %g is greater than maximum %g", b.Min, b.Max)
	}
	return b, nil
}
