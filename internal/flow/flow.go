// Package flow holds the registration conversation as a pure state machine.
package flow

import (
	"fmt"
	"html"
	"strings"

	"sports-registration/internal/model"
)

const (
	TextWelcome     = "✨ Welcome to Sathaye College Sports Registration! ⚽\n\nPlease enter your <b>full name</b> to begin registration:"
	TextName        = "✍️ Please enter your <b>full name</b>:"
	TextPhone       = "📱 Please enter your <b>phone number</b>:"
	TextCollegeType = "🎓 Select your <b>college type</b>:"
	TextStream      = "📚 Select your <b>stream</b>:"
	TextCourse      = "🎓 Select your <b>course</b>:"
	TextSpecify     = "🔹 Please specify your course:"
	TextRollNumber  = "🔹 Enter your <b>roll number</b>:"
	TextSport       = "🏃‍♂️ Select your <b>preferred sport</b>:"
	TextComplete    = "🎉 Registration complete! Thank you for registering for Sathaye College Sports. 🏆"
	TextNoSession   = "Type /start to begin registration."
	TextPickOption  = "Please choose one of the options below."
	TextTypeAnswer  = "Please type your answer."
)

// EventKind tells how the user produced an Event.
type EventKind int

const (
	EventStart EventKind = iota
	EventText
	EventButton
)

func (k EventKind) String() string {
	switch k {
	case EventStart:
		return "start"
	case EventText:
		return "text"
	case EventButton:
		return "button"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is one input from the user.
type Event struct {
	UserID int64
	Kind   EventKind
	Value  string
}

// Start is the /start command.
func Start(userID int64) Event { return Event{UserID: userID, Kind: EventStart} }

// Text is a free-text message.
func Text(userID int64, value string) Event {
	return Event{UserID: userID, Kind: EventText, Value: value}
}

// Button is an inline keyboard click carrying the option's value.
func Button(userID int64, value string) Event {
	return Event{UserID: userID, Kind: EventButton, Value: value}
}

// Outcome tells the caller what to do with a Transition.
type Outcome int

const (
	// OutcomePrompt: store Session and send Prompt.
	OutcomePrompt Outcome = iota
	// OutcomeComplete: Session is finished; persist it, then delete it.
	OutcomeComplete
	// OutcomeNoSession: there is nothing to continue; the user must /start.
	OutcomeNoSession
	// OutcomeRejected: input did not fit the step; nothing changes.
	OutcomeRejected
)

func (o Outcome) String() string {
	switch o {
	case OutcomePrompt:
		return "prompt"
	case OutcomeComplete:
		return "complete"
	case OutcomeNoSession:
		return "no_session"
	case OutcomeRejected:
		return "rejected"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Prompt is the message sent back to the user. Text is HTML.
type Prompt struct {
	Text string
	Menu Menu
}

// Transition is the result of feeding one Event to a Session.
type Transition struct {
	Outcome Outcome
	Session model.Session
	Prompt  Prompt
}

// Next computes the transition for ev. current is nil when the user has no session.
// Next never modifies current.
func Next(current *model.Session, ev Event) Transition {
	if ev.Kind == EventStart {
		s := model.Session{UserID: ev.UserID, Step: model.StepName}
		return Transition{Outcome: OutcomePrompt, Session: s, Prompt: Prompt{Text: TextWelcome}}
	}
	if current == nil || current.Step == model.StepDone {
		return Transition{Outcome: OutcomeNoSession, Prompt: Prompt{Text: TextNoSession}}
	}

	s := current.Clone()
	menu := menuFor(s)
	if menu == nil && !isTextStep(s.Step) {
		return Transition{Outcome: OutcomeNoSession, Prompt: Prompt{Text: TextNoSession}}
	}

	if menu != nil {
		if ev.Kind != EventButton || !menu.Contains(ev.Value) {
			return reject(s, TextPickOption)
		}
	} else {
		if ev.Kind != EventText {
			return reject(s, TextTypeAnswer)
		}
	}

	value := ev.Value
	if ev.Kind == EventText {
		value = strings.TrimSpace(value)
		if value == "" {
			return reject(s, TextTypeAnswer)
		}
	}

	switch s.Step {
	case model.StepName:
		s.Fields.Name = value
		s.Step = model.StepPhone
	case model.StepPhone:
		s.Fields.Phone = value
		s.Step = model.StepCollegeType
	case model.StepCollegeType:
		s.Fields.CollegeType = value
		if value == CollegeJunior {
			s.Step = model.StepStream
		} else {
			s.Step = model.StepCourse
		}
	case model.StepStream:
		s.Fields.Stream = &value
		s.Step = model.StepCourse
	case model.StepCourse:
		if value == CourseOther {
			s.Step = model.StepSpecifyCourse
		} else {
			s.Fields.Course = value
			s.Step = model.StepRollNumber
		}
	case model.StepSpecifyCourse:
		s.Fields.Course = value
		s.Step = model.StepRollNumber
	case model.StepRollNumber:
		s.Fields.RollNumber = value
		s.Step = model.StepSport
	case model.StepSport:
		s.Fields.Sport = value
		return Transition{Outcome: OutcomeComplete, Session: s, Prompt: Prompt{Text: CompletionText(s.Fields)}}
	}

	return Transition{Outcome: OutcomePrompt, Session: s, Prompt: PromptFor(s)}
}

// PromptFor returns the question asked at the session's current step.
func PromptFor(s model.Session) Prompt {
	p := Prompt{Menu: menuFor(s)}
	switch s.Step {
	case model.StepName:
		p.Text = TextName
	case model.StepPhone:
		p.Text = TextPhone
	case model.StepCollegeType:
		p.Text = TextCollegeType
	case model.StepStream:
		p.Text = TextStream
	case model.StepCourse:
		p.Text = TextCourse
	case model.StepSpecifyCourse:
		p.Text = TextSpecify
	case model.StepRollNumber:
		p.Text = TextRollNumber
	case model.StepSport:
		p.Text = TextSport
	default:
		p.Text = TextNoSession
	}
	return p
}

// CompletionText is the confirmation sent after a registration is saved.
func CompletionText(f model.Fields) string {
	var b strings.Builder
	b.WriteString(TextComplete)
	b.WriteString("\n\n")
	b.WriteString(fmt.Sprintf("• <b>Name:</b> %s\n", html.EscapeString(f.Name)))
	b.WriteString(fmt.Sprintf("• <b>Phone:</b> %s\n", html.EscapeString(f.Phone)))
	b.WriteString(fmt.Sprintf("• <b>College:</b> %s\n", html.EscapeString(f.CollegeType)))
	if f.Stream != nil {
		b.WriteString(fmt.Sprintf("• <b>Stream:</b> %s\n", html.EscapeString(*f.Stream)))
	}
	b.WriteString(fmt.Sprintf("• <b>Course:</b> %s\n", html.EscapeString(f.Course)))
	b.WriteString(fmt.Sprintf("• <b>Roll number:</b> %s\n", html.EscapeString(f.RollNumber)))
	b.WriteString(fmt.Sprintf("• <b>Sport:</b> %s", html.EscapeString(f.Sport)))
	return b.String()
}

func reject(s model.Session, hint string) Transition {
	p := PromptFor(s)
	p.Text = hint + "\n\n" + p.Text
	return Transition{Outcome: OutcomeRejected, Session: s, Prompt: p}
}

func isTextStep(step model.Step) bool {
	switch step {
	case model.StepName, model.StepPhone, model.StepSpecifyCourse, model.StepRollNumber:
		return true
	default:
		return false
	}
}
