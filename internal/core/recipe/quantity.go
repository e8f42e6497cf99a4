package recipe

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// unicode 分數字元
var unicodeFractions = map[rune]float64{
	'½': 0.5, '⅓': 1.0 / 3, '⅔': 2.0 / 3, '¼': 0.25, '¾': 0.75,
	'⅕': 0.2, '⅖': 0.4, '⅗': 0.6, '⅘': 0.8, '⅙': 1.0 / 6,
	'⅚': 5.0 / 6, '⅛': 0.125, '⅜': 0.375, '⅝': 0.625, '⅞': 0.875,
}

var (
	approxPrefix  = regexp.MustCompile(`(?i)^(ca\.?|cirka|ungefär|drygt|about|approx\.?)\s+`)
	mixedFraction = regexp.MustCompile(`^(\d+)\s+(\d+)/(\d+)$`)
	fraction      = regexp.MustCompile(`^(\d+)/(\d+)$`)
	rangeSplit    = regexp.MustCompile(`\s*[-–]\s*`)
	decimal       = regexp.MustCompile(`^(\d+(\.\d*)?|\.\d+)$`)
)

// ParseQuantity 盡力將數量文字轉為數值
//
// 支援 unicode 分數（½）、帶分數（1 1/2）、分數（3/4）、小數逗號（1,5）、
// 範圍（2-3 取最大值）與約略前綴（ca、cirka）。無法解析時回傳 false，
// 呼叫端應保留原始文字。
func ParseQuantity(text string) (float64, bool) {
	s := strings.TrimSpace(text)
	if s == "" {
		return 0, false
	}
	s = approxPrefix.ReplaceAllString(s, "")

	parts := rangeSplit.Split(s, -1)
	if len(parts) > 1 {
		best, found := 0.0, false
		for _, part := range parts {
			if v, ok := parseSingle(part); ok && (!found || v > best) {
				best, found = v, true
			}
		}
		return best, found
	}
	return parseSingle(s)
}

func parseSingle(s string) (float64, bool) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", "."))
	if s == "" {
		return 0, false
	}

	// 「1½」或「½」
	var whole string
	var frac float64
	var hasFrac bool
	for _, r := range s {
		if v, ok := unicodeFractions[r]; ok {
			frac, hasFrac = v, true
			continue
		}
		if hasFrac {
			return 0, false
		}
		whole += string(r)
	}
	if hasFrac {
		whole = strings.TrimSpace(whole)
		if whole == "" {
			return frac, true
		}
		n, ok := parseDecimal(whole)
		if !ok {
			return 0, false
		}
		return n + frac, true
	}

	if m := mixedFraction.FindStringSubmatch(s); m != nil {
		n, _ := strconv.ParseFloat(m[1], 64)
		num, _ := strconv.ParseFloat(m[2], 64)
		den, _ := strconv.ParseFloat(m[3], 64)
		if den == 0 {
			return 0, false
		}
		return n + num/den, true
	}

	if m := fraction.FindStringSubmatch(s); m != nil {
		num, _ := strconv.ParseFloat(m[1], 64)
		den, _ := strconv.ParseFloat(m[2], 64)
		if den == 0 {
			return 0, false
		}
		return num / den, true
	}

	return parseDecimal(s)
}

// parseDecimal 只接受十進位數字（不含指數、十六進位、NaN、Inf）
func parseDecimal(s string) (float64, bool) {
	if !decimal.MatchString(s) {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}
