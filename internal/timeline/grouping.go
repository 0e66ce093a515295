// Package timeline groups an ordered message sequence into date-labeled
// buckets for display.
package timeline

import (
	"time"

	"github.com/coterie-chat/coterie/internal/model"
)

// Group is one date-labeled bucket of consecutive messages.
type Group struct {
	Label    string
	Messages []model.Message
}

// ByDate splits an ordered message sequence into ordered, date-labeled
// groups. Labels compare calendar dates against "now", not elapsed time:
// Today, Yesterday, a weekday name within the last 7 calendar days, then
// month/day (same year) or month/day/year. The function is pure and
// idempotent over any prefix of the sequence.
//
// Messages with an unparseable (zero) timestamp stay with the group of the
// preceding message so a bad server clock never fractures the view.
func ByDate(messages []model.Message, now time.Time) []Group {
	var groups []Group
	for _, msg := range messages {
		label := dayLabel(msg.Timestamp, now)
		if msg.Timestamp.IsZero() && len(groups) > 0 {
			label = groups[len(groups)-1].Label
		}
		if len(groups) == 0 || groups[len(groups)-1].Label != label {
			groups = append(groups, Group{Label: label})
		}
		last := &groups[len(groups)-1]
		last.Messages = append(last.Messages, msg)
	}
	return groups
}

// dayLabel derives the label for a single calendar date.
func dayLabel(ts, now time.Time) string {
	if ts.IsZero() {
		return "Today"
	}

	// Compare calendar dates in the viewer's location. Days are counted by
	// stepping whole calendar dates, not by dividing elapsed hours, so a
	// DST-shortened day still counts as one day.
	day := truncateToDay(ts.In(now.Location()))
	today := truncateToDay(now)
	if !day.Before(today) {
		return "Today"
	}

	probe := day
	for diff := 1; diff < 7; diff++ {
		probe = probe.AddDate(0, 0, 1)
		if !probe.Before(today) {
			if diff == 1 {
				return "Yesterday"
			}
			return day.Weekday().String()
		}
	}

	if day.Year() == today.Year() {
		return day.Format("Jan 2")
	}
	return day.Format("Jan 2 2006")
}

func truncateToDay(ts time.Time) time.Time {
	return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, ts.Location())
}
