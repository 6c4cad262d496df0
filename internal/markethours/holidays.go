package markethours

import "time"

// SSE/SZSE market holidays for 2026.
// Source: Shanghai Stock Exchange trading calendar.
// Golden Week style holidays span several consecutive sessions.
var cnHolidays2026 = []struct {
	month time.Month
	day   int
}{
	{time.January, 1},   // New Year's Day
	{time.January, 2},   // New Year's Day (bridge)
	{time.February, 16}, // Spring Festival
	{time.February, 17}, // Spring Festival
	{time.February, 18}, // Spring Festival
	{time.February, 19}, // Spring Festival
	{time.February, 20}, // Spring Festival
	{time.April, 6},     // Qingming Festival
	{time.May, 1},       // Labour Day
	{time.May, 4},       // Labour Day (bridge)
	{time.May, 5},       // Labour Day (bridge)
	{time.June, 19},     // Dragon Boat Festival
	{time.September, 25}, // Mid-Autumn Festival
	{time.October, 1},   // National Day
	{time.October, 2},   // National Day
	{time.October, 5},   // National Day (bridge)
	{time.October, 6},   // National Day (bridge)
	{time.October, 7},   // National Day (bridge)
}
