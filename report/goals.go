package report

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mayodev/opsmail/aggregate"
)

// Indicator is the two-state result of comparing a metric with its goal.
type Indicator int

const (
	UnderGoal Indicator = iota
	GoalMet
)

func (i Indicator) String() string {
	if i == GoalMet {
		return "at/over goal"
	}
	return "under goal"
}

// Emoji is the chat marker for i.
func (i Indicator) Emoji() string {
	if i == GoalMet {
		return ":white_check_mark:"
	}
	return ":small_red_triangle_down:"
}

// GoalIndicator compares value with goal. A value equal to the goal meets it.
func GoalIndicator(value, goal float64) Indicator {
	if value >= goal {
		return GoalMet
	}
	return UnderGoal
}

// WasteTitle is the payload text of the waste report.
const WasteTitle = "Daily Waste Report"

// OperationalSummary renders the waste report. Metrics with no recorded
// weight are left out.
func OperationalSummary(op aggregate.Operational) Artifact {
	day := op.Taken
	if len(day) > 10 {
		day = day[:10]
	}
	art := Artifact{Title: WasteTitle}
	art.Sections = append(art.Sections, fmt.Sprintf("*Waste Report for %s*", day))

	var b strings.Builder
	b.WriteString("*Weights:*\n")
	recorded := 0
	for _, m := range op.Metrics {
		if m.Value == 0 {
			continue
		}
		recorded++
		indicator := GoalIndicator(m.Value, m.Goal)
		line := fmt.Sprintf("%s: %s lbs.", m.Name, strconv.FormatFloat(m.Value, 'f', -1, 64))
		if indicator == GoalMet {
			line = "_" + line + "_"
		}
		fmt.Fprintf(&b, "%s %s\n", indicator.Emoji(), line)
	}
	if recorded == 0 {
		b.WriteString("No waste recorded.\n")
	}
	art.Sections = append(art.Sections, strings.TrimSuffix(b.String(), "\n"))
	return art
}
