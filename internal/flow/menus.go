package flow

import "sports-registration/internal/model"

const (
	CollegeJunior  = "Junior College"
	CollegeDegree  = "Degree College"
	CollegeMasters = "Masters"

	CourseOther = "Other"
)

// Option is one button of a menu. Value is what comes back in the click.
type Option struct {
	Label string
	Value string
}

// Menu is a list of button rows.
type Menu [][]Option

func opt(value string) Option {
	return Option{Label: value, Value: value}
}

var (
	collegeTypeMenu = Menu{
		{opt(CollegeJunior)},
		{opt(CollegeDegree)},
		{opt(CollegeMasters)},
	}
	streamMenu = Menu{
		{opt("Science"), opt("Commerce")},
		{opt("Arts")},
	}
	juniorCourseMenu = Menu{
		{opt("FYJC"), opt("SYJC")},
	}
	degreeCourseMenu = Menu{
		{opt("B.Sc."), opt("B.Com.")},
		{opt("B.A."), opt("BMS")},
		{opt("B.Sc. IT"), opt(CourseOther)},
	}
	mastersCourseMenu = Menu{
		{opt("M.Sc."), opt("M.Com.")},
		{opt("M.A."), opt(CourseOther)},
	}
	sportMenu = Menu{
		{{Label: "⚽ Football", Value: "Football"}, {Label: "🏀 Basketball", Value: "Basketball"}},
		{{Label: "🏆 Athletics", Value: "Athletics"}, {Label: "🏈 Cricket", Value: "Cricket"}},
		{{Label: "🎮 Chess", Value: "Chess"}, {Label: "⛳ Badminton", Value: "Badminton"}},
	}
)

// Contains reports whether value is one of the menu's button values.
func (m Menu) Contains(value string) bool {
	for _, row := range m {
		for _, o := range row {
			if o.Value == value {
				return true
			}
		}
	}
	return false
}

func courseMenu(collegeType string) Menu {
	switch collegeType {
	case CollegeJunior:
		return juniorCourseMenu
	case CollegeDegree:
		return degreeCourseMenu
	case CollegeMasters:
		return mastersCourseMenu
	default:
		return nil
	}
}

// menuFor returns the menu offered at step, or nil for free-text steps.
func menuFor(s model.Session) Menu {
	switch s.Step {
	case model.StepCollegeType:
		return collegeTypeMenu
	case model.StepStream:
		return streamMenu
	case model.StepCourse:
		return courseMenu(s.Fields.CollegeType)
	case model.StepSport:
		return sportMenu
	default:
		return nil
	}
}
