package chart

import "time"

const dateLayout = "2006-01-02"

// YesterdayUTC returns the previous UTC calendar date, the default target of
// a daily snapshot run.
func YesterdayUTC() string {
	return time.Now().UTC().AddDate(0, 0, -1).Format(dateLayout)
}

// ValidDate reports whether s is a real calendar date in YYYY-MM-DD form.
func ValidDate(s string) bool {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return false
	}
	return t.Format(dateLayout) == s
}
