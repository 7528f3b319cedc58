package model

// Registration is a completed sports registration. Rows are only ever inserted.
type Registration struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	UserID      int64  `gorm:"not null;index"`
	Name        string `gorm:"not null"`
	Phone       string `gorm:"not null"`
	Stream      *string
	Course      string `gorm:"not null"`
	CollegeType string `gorm:"not null"`
	RollNumber  string `gorm:"not null"`
	Sport       string `gorm:"not null"`
}

func (Registration) TableName() string {
	return "registrations"
}

// NewRegistration builds the record for a finished session.
func NewRegistration(s Session) Registration {
	reg := Registration{
		UserID:      s.UserID,
		Name:        s.Fields.Name,
		Phone:       s.Fields.Phone,
		Course:      s.Fields.Course,
		CollegeType: s.Fields.CollegeType,
		RollNumber:  s.Fields.RollNumber,
		Sport:       s.Fields.Sport,
	}
	if s.Fields.Stream != nil {
		stream := *s.Fields.Stream
		reg.Stream = &stream
	}
	return reg
}
