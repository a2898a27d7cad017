package processor

import (
	"math"
	"strconv"
	"strings"
)

// 视为空值的文本，与常见表格工具的缺省空值集合一致
var missingTokens = map[string]struct{}{
	"": {}, "#N/A": {}, "#N/A N/A": {}, "#NA": {}, "-1.#IND": {}, "-1.#QNAN": {},
	"-NaN": {}, "-nan": {}, "1.#IND": {}, "1.#QNAN": {}, "<NA>": {}, "N/A": {},
	"NA": {}, "NULL": {}, "NaN": {}, "None": {}, "n/a": {}, "nan": {}, "null": {},
}

// IsMissing 判断单元格是否为空值
func IsMissing(s string) bool {
	_, ok := missingTokens[strings.TrimSpace(s)]
	return ok
}

// ParseNumber 解析数值，逗号小数点转换为句点
// 无法解析、NaN 和无穷大都返回 nil
func ParseNumber(s string) *float64 {
	if IsMissing(s) {
		return nil
	}
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// NormalizeHeight 开区间 (1,3) 内的身高视为米，换算为厘米
func NormalizeHeight(h *float64) *float64 {
	if h == nil {
		return nil
	}
	v := *h
	if v > 1 && v < 3 {
		v *= 100
	}
	return &v
}

// ComputeBMI 体重(kg) / 身高(m)^2，任一为空或身高为 0 时返回 nil
func ComputeBMI(weightKG, heightCM *float64) *float64 {
	if weightKG == nil || heightCM == nil || *heightCM == 0 {
		return nil
	}
	m := *heightCM / 100
	v := *weightKG / (m * m)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// BMIClass BMI 分类
type BMIClass int

const (
	NoData BMIClass = iota
	Underweight
	Normal
	Overweight
	Obese
)

// BMIClassOrder 图表和图例中使用的分类顺序
var BMIClassOrder = []BMIClass{Underweight, Normal, Overweight, Obese, NoData}

// Classify 按固定阈值对 BMI 分类
func Classify(bmi *float64) BMIClass {
	switch {
	case bmi == nil:
		return NoData
	case *bmi < 18.5:
		return Underweight
	case *bmi < 25:
		return Normal
	case *bmi < 30:
		return Overweight
	default:
		return Obese
	}
}

func (c BMIClass) String() string {
	switch c {
	case Underweight:
		return "Underweight"
	case Normal:
		return "Normal"
	case Overweight:
		return "Overweight"
	case Obese:
		return "Obese"
	default:
		return "NoData"
	}
}

// Label 面向使用者的西班牙语名称
func (c BMIClass) Label() string {
	switch c {
	case Underweight:
		return "Bajo peso"
	case Normal:
		return "Peso Normal"
	case Overweight:
		return "Sobrepeso"
	case Obese:
		return "Obesidad"
	default:
		return "Sin Datos"
	}
}

// ParseBMIClass 解析 String 的输出
func ParseBMIClass(s string) BMIClass {
	for _, c := range BMIClassOrder {
		if c.String() == s || c.Label() == s {
			return c
		}
	}
	return NoData
}

func (c BMIClass) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}
