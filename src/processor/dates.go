package processor

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// Excel 序列号的起点，已经包含 1900 年闰年错误的修正
var excelEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

const maxExcelSerial = 2958465 // 9999-12-31

var (
	isoLayouts = []string{
		"2006-01-02",
		"2006-01-02 15:04:05",
		"2006-01-02 15:04",
		"2006-01-02T15:04:05",
		"2006-01-02T15:04:05Z07:00",
		"2006-01-02 15:04:05.999999999",
		"2006/1/2",
		"2006/1/2 15:04:05",
		"20060102",
	}
	dayFirstLayouts = []string{
		"2/1/2006", "2/1/2006 15:04:05", "2/1/2006 15:04",
		"2-1-2006", "2-1-2006 15:04:05", "2-1-2006 15:04",
		"2.1.2006", "2.1.2006 15:04:05",
		"2/1/06", "2-1-06", "2.1.06",
	}
	monthFirstLayouts = []string{
		"1/2/2006", "1/2/2006 15:04:05", "1/2/2006 15:04",
		"1-2-2006", "1-2-2006 15:04:05",
		"1/2/06", "1-2-06",
	}
	namedLayouts = []string{
		"2 January 2006", "2 Jan 2006", "02-Jan-2006", "2-Jan-2006",
		"January 2, 2006", "Jan 2, 2006", "January 2 2006", "Jan 2 2006",
		"Mon, 02 Jan 2006", "Monday, January 2, 2006",
	}
)

var (
	yearOnly  = regexp.MustCompile(`^\d{4}$`)
	numberish = regexp.MustCompile(`^\d+(\.\d+)?$`)
)

// ParseDate 日优先解析日期，失败返回 nil
// 依次尝试: ISO 格式(含 yyyymmdd)、日/月/年、月/日/年(仅当日优先不可能时)、英文月份、
// 单独的四位年份、Excel 序列号
// 不检查日期是否在未来，出生日期由 ParseBirthDate 限定
func ParseDate(s string) *time.Time {
	if IsMissing(s) {
		return nil
	}
	s = strings.TrimSpace(s)

	for _, group := range [][]string{isoLayouts, dayFirstLayouts, monthFirstLayouts, namedLayouts} {
		for _, layout := range group {
			if t, err := time.Parse(layout, s); err == nil {
				return dateOnly(t)
			}
		}
	}

	if yearOnly.MatchString(s) {
		year, _ := strconv.Atoi(s)
		t := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
		return &t
	}

	if numberish.MatchString(s) {
		serial, err := strconv.ParseFloat(s, 64)
		if err == nil && serial >= 1 && serial <= maxExcelSerial {
			t := excelEpoch.AddDate(0, 0, int(serial))
			return &t
		}
	}
	return nil
}

// ParseBirthDate 解析出生日期，晚于 now 的日期视为无法解析
// 没有分隔符的数字可能被当成 Excel 序列号得到几百年后的日期
func ParseBirthDate(s string, now time.Time) *time.Time {
	d := ParseDate(s)
	if d == nil || d.After(now) {
		return nil
	}
	return d
}

func dateOnly(t time.Time) *time.Time {
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return &d
}

// AgeAt 计算 now 时的整岁年龄
// 当年生日未到时减一
func AgeAt(birth, now time.Time) int {
	age := now.Year() - birth.Year()
	if now.Month() < birth.Month() || (now.Month() == birth.Month() && now.Day() < birth.Day()) {
		age--
	}
	return age
}
