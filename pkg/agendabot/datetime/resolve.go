// Package datetime resolves Portuguese date/time phrases ("amanhã às 10",
// "dia 05/06 às 9", "em 2 horas") into absolute instants and formats
// instants for display in a conversation's timezone.
package datetime

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// defaultHour is the wall-clock hour used by families that carry only a date.
const defaultHour = 8

var (
	// dia 05/06, dia 5/6/2025
	reDayMonth = regexp.MustCompile(`dia (\d{1,2})/(\d{1,2})(?:/(\d{4}))?`)

	// às 9, às 9:30, às 9h30 (used together with reDayMonth)
	reDayTime = regexp.MustCompile(`às (\d{1,2})(?:[h:](\d{2}))?`)

	// amanhã às 10, amanhã 10:30, amanhã às 10:30:15
	reTomorrow = regexp.MustCompile(`amanhã (?:às )?(\d{1,2})(?::(\d{2}))?(?::(\d{2}))?`)

	// hoje às 10, hoje 10:30, às 10
	reToday = regexp.MustCompile(`(?:hoje (?:às )?|às )(\d{1,2})(?::(\d{2}))?(?::(\d{2}))?`)

	// em 3 dias, daqui 3 dias, daqui a 1 dia
	reInDays = regexp.MustCompile(`(?:em|daqui a|daqui) (\d+) dias?\b`)

	// em 30 minutos, daqui a 2 horas
	reInDuration = regexp.MustCompile(`(?:em|daqui a|daqui) (\d+) (minutos?|horas?)\b`)
)

// Resolve interprets fragment relative to ref and returns the resolved instant
// in UTC. Wall-clock components ("às 10", "amanhã") are read in ref's location,
// so callers pass ref already converted to the conversation timezone.
//
// The families are tried in a fixed order and the first one that matches wins:
//
//  1. dia D/M[/YYYY] [às H[:MM]]   (default time 08:00)
//  2. amanhã [às] H[:MM[:SS]]
//  3. hoje [às] H[:MM[:SS]] or às H[:MM[:SS]]
//  4. em|daqui|daqui a N dias      (time 08:00)
//  5. em|daqui|daqui a N minutos|horas
//
// Hours and days are not range-checked; time.Date normalizes overflowing
// values into the following period. The boolean is false when no family
// matches.
func Resolve(fragment string, ref time.Time) (time.Time, bool) {
	text := strings.ToLower(fragment)
	loc := ref.Location()

	if m := reDayMonth.FindStringSubmatch(text); m != nil {
		day := atoi(m[1])
		month := atoi(m[2])
		year := ref.Year()
		if m[3] != "" {
			year = atoi(m[3])
		}
		hour, minute := defaultHour, 0
		if tm := reDayTime.FindStringSubmatch(text); tm != nil {
			hour = atoi(tm[1])
			minute = atoi(tm[2])
		}
		t := time.Date(year, time.Month(month), day, hour, minute, 0, 0, loc)
		return t.UTC(), true
	}

	if m := reTomorrow.FindStringSubmatch(text); m != nil {
		next := ref.AddDate(0, 0, 1)
		t := time.Date(next.Year(), next.Month(), next.Day(), atoi(m[1]), atoi(m[2]), atoi(m[3]), 0, loc)
		return t.UTC(), true
	}

	if m := reToday.FindStringSubmatch(text); m != nil {
		t := time.Date(ref.Year(), ref.Month(), ref.Day(), atoi(m[1]), atoi(m[2]), atoi(m[3]), 0, loc)
		return t.UTC(), true
	}

	if m := reInDays.FindStringSubmatch(text); m != nil {
		target := ref.AddDate(0, 0, atoi(m[1]))
		t := time.Date(target.Year(), target.Month(), target.Day(), defaultHour, 0, 0, 0, loc)
		return t.UTC(), true
	}

	if m := reInDuration.FindStringSubmatch(text); m != nil {
		n := time.Duration(atoi(m[1]))
		unit := time.Minute
		if strings.HasPrefix(m[2], "hora") {
			unit = time.Hour
		}
		return ref.Add(n * unit).UTC(), true
	}

	return time.Time{}, false
}

// atoi converts a regex capture; empty captures read as zero.
func atoi(s string) int {
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
