package datetime

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DisplayLayout mirrors the pt-BR short form "05/06/2025, 09:00".
const DisplayLayout = "02/01/2006, 15:04"

// reOffset matches fixed offsets: "-3", "+5:30", "UTC-3", "GMT+0530".
var reOffset = regexp.MustCompile(`^(?i:utc|gmt)?\s*([+-])(\d{1,2})(?::?(\d{2}))?$`)

// LoadLocation parses a conversation timezone. Accepted forms are IANA names
// ("America/Sao_Paulo") and fixed offsets ("-3", "UTC-3", "GMT+05:30").
// The second return is false when tz could not be understood, in which case
// UTC is returned.
func LoadLocation(tz string) (*time.Location, bool) {
	tz = strings.TrimSpace(tz)
	switch strings.ToUpper(tz) {
	case "", "UTC", "GMT", "Z":
		return time.UTC, tz != ""
	}

	if m := reOffset.FindStringSubmatch(tz); m != nil {
		hours, _ := strconv.Atoi(m[2])
		minutes, _ := strconv.Atoi(m[3])
		if hours > 14 || minutes > 59 {
			return time.UTC, false
		}
		offset := hours*3600 + minutes*60
		if m[1] == "-" {
			offset = -offset
		}
		return time.FixedZone(offsetName(m[1], hours, minutes), offset), true
	}

	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC, false
	}
	return loc, true
}

// Location is LoadLocation without the validity flag.
func Location(tz string) *time.Location {
	loc, _ := LoadLocation(tz)
	return loc
}

// Format renders t in the timezone tz using DisplayLayout.
func Format(t time.Time, tz string) string {
	return t.In(Location(tz)).Format(DisplayLayout)
}

// LeadTime describes how long before an event its reminder fires.
func LeadTime(minutes int) string {
	switch {
	case minutes <= 0:
		return "na hora do evento"
	case minutes == 1:
		return "1 minuto antes"
	default:
		return fmt.Sprintf("%d minutos antes", minutes)
	}
}

func offsetName(sign string, hours, minutes int) string {
	if minutes == 0 {
		return fmt.Sprintf("UTC%s%d", sign, hours)
	}
	return fmt.Sprintf("UTC%s%d:%02d", sign, hours, minutes)
}
