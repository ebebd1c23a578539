package report

import "strconv"

var jobLevelNames = map[int]string{
	0: "Junior",
	1: "Mid-level",
	2: "Senior",
	3: "Lead",
	4: "Manager",
	5: "Director",
	6: "Vice President",
	7: "C-Level",
}

// JobLevelName returns the display name of a job level.
func JobLevelName(level int) string {
	if n, ok := jobLevelNames[level]; ok {
		return n
	}
	if level < 0 {
		return "Unknown"
	}
	return "Level " + strconv.Itoa(level)
}
