// Package dashboard 花名册的筛选和汇总
package dashboard

import (
	"RosterDashboard/src/processor"
)

// Kind 控件类型
type Kind string

const (
	Select      Kind = "select"
	MultiSelect Kind = "multiselect"
	Range       Kind = "range"
)

// Effect 筛选方式
type Effect string

const (
	Contains Effect = "contains" // 不区分大小写的子串匹配
	In       Effect = "in"       // 取值属于所选集合
	Between  Effect = "between"  // 闭区间
)

// AllMembers 成员下拉框中表示不筛选的选项
const AllMembers = "TODOS"

// FilterDef 一个筛选项的定义
type FilterDef struct {
	Name   string `json:"name"`
	Label  string `json:"label"`
	Column string `json:"column"`
	Kind   Kind   `json:"kind"`
	Effect Effect `json:"effect"`
}

// DefaultFilters 侧边栏的筛选项，按顺序应用
var DefaultFilters = []FilterDef{
	{Name: "member", Label: "Integrantes del Grupo", Column: processor.ColFullName, Kind: Select, Effect: Contains},
	{Name: "rh", Label: "Tipo de Sangre (RH)", Column: processor.ColBloodType, Kind: MultiSelect, Effect: In},
	{Name: "hair", Label: "Color de Cabello", Column: processor.ColHairColor, Kind: MultiSelect, Effect: In},
	{Name: "neighborhood", Label: "Barrio de Residencia", Column: processor.ColNeighborhood, Kind: MultiSelect, Effect: In},
	{Name: "age", Label: "Rango de Edad", Column: processor.ColAge, Kind: Range, Effect: Between},
	{Name: "height", Label: "Rango de Estatura (cm)", Column: processor.ColHeight, Kind: Range, Effect: Between},
}

// Bounds 闭区间
type Bounds struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Selection 用户的筛选选择，按 FilterDef.Name 索引
// 没有出现的筛选项不生效
type Selection struct {
	Values map[string][]string `json:"values,omitempty"`
	Ranges map[string]Bounds   `json:"ranges,omitempty"`
}

// Set 设置下拉或多选的取值
func (s *Selection) Set(name string, values ...string) {
	if s.Values == nil {
		s.Values = make(map[string][]string)
	}
	s.Values[name] = append(s.Values[name], values...)
}

// SetRange 设置区间
func (s *Selection) SetRange(name string, b Bounds) {
	if s.Ranges == nil {
		s.Ranges = make(map[string]Bounds)
	}
	s.Ranges[name] = b
}

// FilterOptions 某个筛选项可选的取值
type FilterOptions struct {
	FilterDef
	Values []string `json:"values,omitempty"`
	Bounds *Bounds  `json:"bounds,omitempty"`
}
