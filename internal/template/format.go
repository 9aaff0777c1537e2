package template

import (
	"fmt"
	"strings"
	"time"
)

// bangkok is the display timezone for all rendered dates. The queue
// stores UTC; customers are in Thailand.
var bangkok = loadBangkok()

func loadBangkok() *time.Location {
	loc, err := time.LoadLocation("Asia/Bangkok")
	if err != nil {
		// Containers without tzdata still need correct offsets.
		return time.FixedZone("ICT", 7*60*60)
	}
	return loc
}

var thaiMonths = [12]string{
	"มกราคม", "กุมภาพันธ์", "มีนาคม", "เมษายน",
	"พฤษภาคม", "มิถุนายน", "กรกฎาคม", "สิงหาคม",
	"กันยายน", "ตุลาคม", "พฤศจิกายน", "ธันวาคม",
}

// FormatThaiDate renders a date in Thai convention with a Buddhist-era
// year, e.g. "2 มกราคม 2569".
func FormatThaiDate(t time.Time) string {
	t = t.In(bangkok)
	return fmt.Sprintf("%d %s %d", t.Day(), thaiMonths[t.Month()-1], t.Year()+543)
}

// FormatThaiDateTime renders a date plus wall-clock time,
// e.g. "2 มกราคม 2569 เวลา 14:30 น.".
func FormatThaiDateTime(t time.Time) string {
	t = t.In(bangkok)
	return fmt.Sprintf("%s เวลา %02d:%02d น.", FormatThaiDate(t), t.Hour(), t.Minute())
}

// FormatBaht renders an amount as Thai baht with thousands separators,
// e.g. "฿1,290.00".
func FormatBaht(amount float64) string {
	neg := amount < 0
	if neg {
		amount = -amount
	}

	whole := int64(amount)
	cents := int64(amount*100+0.5) - whole*100
	if cents >= 100 { // rounding carried into the whole part
		whole++
		cents -= 100
	}

	digits := fmt.Sprintf("%d", whole)
	var sb strings.Builder
	for i, d := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			sb.WriteByte(',')
		}
		sb.WriteRune(d)
	}

	sign := ""
	if neg {
		sign = "-"
	}
	return fmt.Sprintf("%s฿%s.%02d", sign, sb.String(), cents)
}
