package money

import "time"

// FiscalBounds returns the [start, end] window (both inclusive) of
// fiscal year `year` for a client configured with fiscalStartMonth
// (1=January .. 12=December). A July fiscal start means FY 2026 runs
// 2025-07-01 through 2026-06-30 inclusive.
func FiscalBounds(year int, fiscalStartMonth time.Month) (start, end time.Time) {
	startYear := year - 1
	if fiscalStartMonth == time.January {
		startYear = year
	}
	start = NoonOn(startYear, fiscalStartMonth, 1)
	endMonth := fiscalStartMonth - 1
	endYear := year
	if endMonth < time.January {
		endMonth += 12
	}
	// last day of endMonth in endYear
	firstOfNext := time.Date(endYear, endMonth+1, 1, 0, 0, 0, 0, CancunLocation())
	lastDay := firstOfNext.AddDate(0, 0, -1)
	end = NoonOn(endYear, endMonth, lastDay.Day())
	return start, end
}

// FiscalMonthIndex returns the 0-based offset of date's calendar month
// within the fiscal year starting at fiscalStartMonth.
func FiscalMonthIndex(date time.Time, fiscalStartMonth time.Month) int {
	offset := int(date.Month()) - int(fiscalStartMonth)
	if offset < 0 {
		offset += 12
	}
	return offset
}

// FiscalYearOf returns which fiscal year `date` falls in, given the
// fiscal start month. The fiscal year is labeled by the calendar year
// in which it ends (a July-start FY2026 runs 2025-07-01..2026-06-30).
func FiscalYearOf(date time.Time, fiscalStartMonth time.Month) int {
	if fiscalStartMonth == time.January {
		return date.Year()
	}
	if date.Month() >= fiscalStartMonth {
		return date.Year() + 1
	}
	return date.Year()
}
