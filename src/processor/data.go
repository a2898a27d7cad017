// data.go
package processor

import (
	"strconv"
	"time"

	"RosterDashboard/src/datasource/file"
)

// 清洗后的列名
const (
	ColCode         = "Codigo"
	ColBirthDate    = "Fecha_Nacimiento"
	ColHeight       = "Estatura"
	ColWeight       = "Peso"
	ColFirstName    = "Nombre_Estudiante"
	ColLastName     = "Apellido_Estudiante"
	ColNeighborhood = "Barrio_Residencia"
	ColHairColor    = "Color_Cabello"
	ColBloodType    = "RH"
	ColShoeSize     = "Talla_Zapato"
	ColAge          = "Edad"
	ColBMI          = "IMC"
	ColBMIClass     = "Clasificacion_IMC"
	ColFullName     = "Nombre_Completo"
)

// RequiredColumns 必需列，顺序即报错时的顺序
var RequiredColumns = []string{ColCode, ColBirthDate, ColHeight, ColWeight, ColFirstName, ColLastName}

// CategoricalColumns 可选的分类列
var CategoricalColumns = []string{ColNeighborhood, ColHairColor, ColBloodType, ColShoeSize}

// DerivedColumns 由清洗过程计算出的列，源中已有时会被重新计算
var DerivedColumns = []string{ColAge, ColBMI, ColBMIClass, ColFullName}

// Record 花名册中的一行
type Record struct {
	Code      string
	BirthDate *time.Time
	HeightCM  *float64
	WeightKG  *float64
	FirstName *string
	LastName  *string
	FullName  string
	AgeYears  *int
	BMI       *float64
	BMIClass  BMIClass

	Categories map[string]*string // 只包含源中存在的分类列
	Extra      map[string]string  // 模型之外的列，原样保留
}

// Category 返回分类列的值，不存在或为空时返回 nil
func (r *Record) Category(col string) *string {
	return r.Categories[col]
}

// Value 按列名返回该行的显示值，空值返回空字符串
func (r *Record) Value(col string) string {
	switch col {
	case ColCode:
		return r.Code
	case ColBirthDate:
		if r.BirthDate == nil {
			return ""
		}
		return r.BirthDate.Format(dateLayout)
	case ColHeight:
		return formatFloat(r.HeightCM)
	case ColWeight:
		return formatFloat(r.WeightKG)
	case ColFirstName:
		return deref(r.FirstName)
	case ColLastName:
		return deref(r.LastName)
	case ColFullName:
		return r.FullName
	case ColAge:
		if r.AgeYears == nil {
			return ""
		}
		return strconv.Itoa(*r.AgeYears)
	case ColBMI:
		return formatFloat(r.BMI)
	case ColBMIClass:
		return r.BMIClass.String()
	}
	if v, ok := r.Categories[col]; ok {
		return deref(v)
	}
	return r.Extra[col]
}

// Number 返回数值列的值，非数值列或空值返回 nil
func (r *Record) Number(col string) *float64 {
	switch col {
	case ColHeight:
		return r.HeightCM
	case ColWeight:
		return r.WeightKG
	case ColBMI:
		return r.BMI
	case ColAge:
		if r.AgeYears == nil {
			return nil
		}
		v := float64(*r.AgeYears)
		return &v
	}
	return ParseNumber(r.Value(col))
}

// Table 清洗后的花名册，构建后只读
type Table struct {
	columns []string
	records []*Record
	dropped int
	builtAt time.Time
}

// Columns 返回输出列名的副本
func (t *Table) Columns() []string {
	return append([]string(nil), t.columns...)
}

// Records 返回记录指针的副本，调用方不得修改记录内容
func (t *Table) Records() []*Record {
	return append([]*Record(nil), t.records...)
}

// Len 返回行数
func (t *Table) Len() int { return len(t.records) }

// Dropped 返回因缺少编码被丢弃的行数
func (t *Table) Dropped() int { return t.dropped }

// BuiltAt 返回计算年龄时使用的时间
func (t *Table) BuiltAt() time.Time { return t.builtAt }

// HasColumn 判断输出表是否包含某列
func (t *Table) HasColumn(name string) bool {
	for _, c := range t.columns {
		if c == name {
			return true
		}
	}
	return false
}

// RawTable 把清洗后的表还原为字符串表，重新清洗得到相同的结果
func (t *Table) RawTable() *file.RawTable {
	raw := &file.RawTable{
		Columns: t.Columns(),
		Rows:    make([][]string, len(t.records)),
		Format:  "normalized",
	}
	for i, r := range t.records {
		row := make([]string, len(t.columns))
		for j, col := range t.columns {
			row[j] = r.Value(col)
		}
		raw.Rows[i] = row
	}
	return raw
}

func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
