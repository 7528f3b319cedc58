package model

import "time"

// Step names the position of a user in the registration sequence.
type Step string

const (
	StepName          Step = "name"
	StepPhone         Step = "phone"
	StepCollegeType   Step = "college_type"
	StepStream        Step = "stream"
	StepCourse        Step = "course"
	StepSpecifyCourse Step = "specify_course"
	StepRollNumber    Step = "roll_number"
	StepSport         Step = "sport"
	// StepDone marks a session whose registration is already saved but which could not be removed.
	StepDone          Step = "done"
)

// Fields is the partially collected registration. Empty strings mean "not collected yet".
type Fields struct {
	Name        string
	Phone       string
	CollegeType string
	Stream      *string
	Course      string
	RollNumber  string
	Sport       string
}

// Session is the in-progress registration of one user.
type Session struct {
	UserID    int64
	Step      Step
	Fields    Fields
	UpdatedAt time.Time
}

// Clone returns a copy that shares no memory with s.
func (s Session) Clone() Session {
	if s.Fields.Stream != nil {
		stream := *s.Fields.Stream
		s.Fields.Stream = &stream
	}
	return s
}

// SessionRecord stores a Session in the database when the sqlite session store is enabled.
type SessionRecord struct {
	UserID      int64  `gorm:"primaryKey;autoIncrement:false"`
	Step        string `gorm:"not null"`
	Name        string
	Phone       string
	CollegeType string
	Stream      *string
	Course      string
	RollNumber  string
	Sport       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (SessionRecord) TableName() string {
	return "sessions"
}

// NewSessionRecord converts a Session to its table row.
func NewSessionRecord(s Session) SessionRecord {
	s = s.Clone()
	return SessionRecord{
		UserID:      s.UserID,
		Step:        string(s.Step),
		Name:        s.Fields.Name,
		Phone:       s.Fields.Phone,
		CollegeType: s.Fields.CollegeType,
		Stream:      s.Fields.Stream,
		Course:      s.Fields.Course,
		RollNumber:  s.Fields.RollNumber,
		Sport:       s.Fields.Sport,
		UpdatedAt:   s.UpdatedAt,
	}
}

// Session converts the row back to a Session.
func (r SessionRecord) Session() Session {
	s := Session{
		UserID: r.UserID,
		Step:   Step(r.Step),
		Fields: Fields{
			Name:        r.Name,
			Phone:       r.Phone,
			CollegeType: r.CollegeType,
			Stream:      r.Stream,
			Course:      r.Course,
			RollNumber:  r.RollNumber,
			Sport:       r.Sport,
		},
		UpdatedAt: r.UpdatedAt,
	}
	return s.Clone()
}
