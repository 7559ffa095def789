package domain

// Day is one operating day of the scheduling calendar.
type Day struct {
	Code  string `json:"code"`
	Name  string `json:"name"`
	Order int    `json:"order"`
}

// Period is one teaching or interval period within a day.
type Period struct {
	Code       string `json:"code"`
	Name       string `json:"name"`
	Order      int    `json:"order"`
	IsInterval bool   `json:"is_interval"`
}

// TimeSlot addresses a single (day, period) cell by calendar order.
type TimeSlot struct {
	Day    int `json:"day"`
	Period int `json:"period"`
}

// Before reports whether s precedes other in calendar order.
func (s TimeSlot) Before(other TimeSlot) bool {
	if s.Day != other.Day {
		return s.Day < other.Day
	}
	return s.Period < other.Period
}

// Calendar is the fixed, totally ordered grid of operating days and periods.
// Interval periods belong to the grid but are excluded from assignment.
type Calendar struct {
	Days    []Day    `json:"days"`
	Periods []Period `json:"periods"`
}

// TeachingPeriods returns the ordered period indexes usable for assignment.
func (c Calendar) TeachingPeriods() []int {
	indexes := make([]int, 0, len(c.Periods))
	for i, p := range c.Periods {
		if !p.IsInterval {
			indexes = append(indexes, i)
		}
	}
	return indexes
}

// TeachingSlotCount is the number of assignable cells in the grid.
func (c Calendar) TeachingSlotCount() int {
	return len(c.Days) * len(c.TeachingPeriods())
}

// LongestTeachingBlock returns the length of the longest run of consecutive
// non-interval periods. An activity cannot be longer than this.
func (c Calendar) LongestTeachingBlock() int {
	longest, current := 0, 0
	for _, p := range c.Periods {
		if p.IsInterval {
			current = 0
			continue
		}
		current++
		if current > longest {
			longest = current
		}
	}
	return longest
}

// BlockStarts returns every period index from which a contiguous block of
// the given duration fits without crossing an interval or the day boundary.
func (c Calendar) BlockStarts(duration int) []int {
	if duration <= 0 {
		return nil
	}
	var starts []int
	for start := 0; start+duration <= len(c.Periods); start++ {
		ok := true
		for i := start; i < start+duration; i++ {
			if c.Periods[i].IsInterval {
				ok = false
				break
			}
		}
		if ok {
			starts = append(starts, start)
		}
	}
	return starts
}
