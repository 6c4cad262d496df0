// Package markethours models the trading calendar that gates when
// trading logic may run: the session open/close window, the lunch break,
// weekends, and exchange holidays.
package markethours

import (
	"fmt"
	"time"
)

// CST is China Standard Time (UTC+8), the home zone of the A-share session.
var CST = time.FixedZone("CST", 8*3600)

// Calendar describes one exchange's daily session. The zero value is not
// usable; construct with NewCalendar or Default.
type Calendar struct {
	OpenHour, OpenMinute   int
	CloseHour, CloseMinute int
	LunchStartHour         int
	LunchStartMinute       int
	LunchEndHour           int
	LunchEndMinute         int
	Loc                    *time.Location

	holidays map[string]bool
}

// Default returns the Shanghai/Shenzhen A-share session: 09:30–15:00 CST
// with an 11:30–13:00 lunch break, weekends and exchange holidays closed.
func Default() *Calendar {
	return NewCalendar(CST)
}

// NewCalendar builds an A-share session calendar in the given location.
func NewCalendar(loc *time.Location) *Calendar {
	c := &Calendar{
		OpenHour: 9, OpenMinute: 30,
		CloseHour: 15, CloseMinute: 0,
		LunchStartHour: 11, LunchStartMinute: 30,
		LunchEndHour: 13, LunchEndMinute: 0,
		Loc:      loc,
		holidays: make(map[string]bool, len(cnHolidays2026)),
	}
	for _, h := range cnHolidays2026 {
		c.holidays[dateKey(2026, h.month, h.day)] = true
	}
	return c
}

// IsOpen reports whether t falls inside the trading session: a trading
// day, within [open, close), and not within the lunch-break window.
func (c *Calendar) IsOpen(t time.Time) bool {
	lt := t.In(c.Loc)
	if !c.IsTradingDay(lt) {
		return false
	}
	hm := lt.Hour()*60 + lt.Minute()
	if hm < c.OpenHour*60+c.OpenMinute || hm >= c.CloseHour*60+c.CloseMinute {
		return false
	}
	if hm >= c.LunchStartHour*60+c.LunchStartMinute && hm < c.LunchEndHour*60+c.LunchEndMinute {
		return false
	}
	return true
}

// IsTradingDay reports whether t is a weekday and not an exchange holiday.
func (c *Calendar) IsTradingDay(t time.Time) bool {
	lt := t.In(c.Loc)
	wd := lt.Weekday()
	if wd == time.Saturday || wd == time.Sunday {
		return false
	}
	return !c.IsHoliday(lt)
}

// IsHoliday reports whether the date of t (in the calendar's location) is
// an exchange holiday.
func (c *Calendar) IsHoliday(t time.Time) bool {
	lt := t.In(c.Loc)
	return c.holidays[dateKey(lt.Year(), lt.Month(), lt.Day())]
}

// NextOpen returns the next instant the market is open at or after t:
// t itself during the session, today's lunch end during the break,
// today's open before the bell, otherwise the next trading day's open.
func (c *Calendar) NextOpen(t time.Time) time.Time {
	lt := t.In(c.Loc)
	if c.IsOpen(lt) {
		return lt
	}

	if c.IsTradingDay(lt) {
		hm := lt.Hour()*60 + lt.Minute()
		open := time.Date(lt.Year(), lt.Month(), lt.Day(), c.OpenHour, c.OpenMinute, 0, 0, c.Loc)
		if hm < c.OpenHour*60+c.OpenMinute {
			return open
		}
		lunchEnd := time.Date(lt.Year(), lt.Month(), lt.Day(), c.LunchEndHour, c.LunchEndMinute, 0, 0, c.Loc)
		if hm < c.LunchEndHour*60+c.LunchEndMinute {
			return lunchEnd
		}
	}

	d := lt.AddDate(0, 0, 1)
	for i := 0; i < 30; i++ { // holidays plus weekends
		if c.IsTradingDay(d) {
			return time.Date(d.Year(), d.Month(), d.Day(), c.OpenHour, c.OpenMinute, 0, 0, c.Loc)
		}
		d = d.AddDate(0, 0, 1)
	}
	return time.Date(lt.Year(), lt.Month(), lt.Day()+1, c.OpenHour, c.OpenMinute, 0, 0, c.Loc)
}

// TodayClose returns the session close on the day of t.
func (c *Calendar) TodayClose(t time.Time) time.Time {
	lt := t.In(c.Loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), c.CloseHour, c.CloseMinute, 0, 0, c.Loc)
}

// TimeUntilOpen returns the duration until the next open, zero if open now.
func (c *Calendar) TimeUntilOpen(t time.Time) time.Duration {
	d := c.NextOpen(t).Sub(t.In(c.Loc))
	if d < 0 {
		return 0
	}
	return d
}

// StatusString returns a human-readable market status for logs.
func (c *Calendar) StatusString(t time.Time) string {
	if c.IsOpen(t) {
		d := c.TodayClose(t).Sub(t.In(c.Loc))
		return fmt.Sprintf("market open, closes in %s", fmtDur(d))
	}
	next := c.NextOpen(t)
	return fmt.Sprintf("market closed, opens %s %s (%s)",
		next.Weekday().String()[:3], next.Format("15:04"), fmtDur(next.Sub(t.In(c.Loc))))
}

func dateKey(year int, month time.Month, day int) string {
	return fmt.Sprintf("%04d-%02d-%02d", year, int(month), day)
}

func fmtDur(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
