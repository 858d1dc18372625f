package dialogue

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/docdraft/docdraft/schema"
)

var dateLayouts = []string{
	"02.01.2006",
	"02/01/2006",
	"2006-01-02",
	"2 January 2006",
	"January 2, 2006",
}

var ruMonths = map[string]time.Month{
	"января": time.January, "февраля": time.February, "марта": time.March,
	"апреля": time.April, "мая": time.May, "июня": time.June,
	"июля": time.July, "августа": time.August, "сентября": time.September,
	"октября": time.October, "ноября": time.November, "декабря": time.December,
}

var reRuDate = regexp.MustCompile(`(\d{1,2})\s+([а-яё]+)\s+(\d{4})`)

// postprocess applies derived-field expansion to the merged data before
// rendering. For every scalar with the date_parts marker whose value
// parses as a date, <tag>_day, <tag>_month and <tag>_year are added.
// Unparseable values are left alone; the original tag always survives.
func postprocess(s *schema.TemplateSchema, data map[string]any) {
	for i := range s.Fields {
		f := &s.Fields[i]
		if f.Derive != schema.DeriveDateParts || f.IsLoop() {
			continue
		}
		value, ok := data[f.Tag].(string)
		if !ok {
			continue
		}
		t, ok := parseDate(value)
		if !ok {
			continue
		}
		data[f.Tag+"_day"] = fmt.Sprintf("%02d", t.Day())
		data[f.Tag+"_month"] = fmt.Sprintf("%02d", int(t.Month()))
		data[f.Tag+"_year"] = fmt.Sprintf("%d", t.Year())
	}
}

func parseDate(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	if m := reRuDate.FindStringSubmatch(strings.ToLower(value)); m != nil {
		if month, ok := ruMonths[m[2]]; ok {
			day, year := atoi(m[1]), atoi(m[3])
			if day >= 1 && day <= 31 {
				return time.Date(year, month, day, 0, 0, 0, 0, time.UTC), true
			}
		}
	}
	return time.Time{}, false
}

func atoi(s string) int {
	n := 0
	for _, r := range s {
		n = n*10 + int(r-'0')
	}
	return n
}
