package button

import (
	"time"

	"github.com/micro-ha/deck-automations/plugin/internal/model"
)

// State enumerates the conceptual button states.
type State int

const (
	StateUnconfigured State = iota
	StateAwaitingAutomationChoice
	StateReady
	StateTriggering
	StateTriggered
	StateMissingCredential
	StateNoAutomationSelected
	StateError
)

func (s State) String() string {
	switch s {
	case StateUnconfigured:
		return "unconfigured"
	case StateAwaitingAutomationChoice:
		return "awaiting_automation_choice"
	case StateReady:
		return "ready"
	case StateTriggering:
		return "triggering"
	case StateTriggered:
		return "triggered"
	case StateMissingCredential:
		return "missing_credential"
	case StateNoAutomationSelected:
		return "no_automation_selected"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Image references an asset the host swaps onto the key. ImageDefault restores
// the manifest image.
type Image string

const (
	ImageDefault Image = ""
	ImagePressed Image = "images/actionPressed"
)

// Reset delays.
const (
	SuccessResetDelay = 2000 * time.Millisecond
	FailureResetDelay = 3000 * time.Millisecond
)

const (
	titleUnconfigured   = "Configure\nAutomation"
	titleAwaiting       = "Select\nAutomation"
	titleMissingKey     = "Missing\nAPI Key"
	titleNoAutomation   = "No\nAutomation"
	titleTriggeringHead = "Triggering\n"
	titleTriggeredHead  = "Triggered!\n"
	titleErrorHead      = "Error\n"
)

// View is the externally observable state of one key.
type View struct {
	State     State     `json:"state"`
	Title     string    `json:"title"`
	Image     Image     `json:"image"`
	Alert     bool      `json:"alert"`
	ErrorKind ErrorKind `json:"error_kind,omitempty"`
}

// Reset is a transition back to a baseline view after a delay.
type Reset struct {
	After time.Duration
	To    View
}

// Render builds the view for state. name is used by the states that show the
// automation; kind only matters for StateError.
func Render(state State, name string, kind ErrorKind) View {
	view := View{State: state, Image: ImageDefault}
	switch state {
	case StateUnconfigured:
		view.Title = titleUnconfigured
	case StateAwaitingAutomationChoice:
		view.Title = titleAwaiting
	case StateReady:
		view.Title = name
	case StateTriggering:
		view.Title = titleTriggeringHead + name
	case StateTriggered:
		view.Title = titleTriggeredHead + name
		view.Image = ImagePressed
	case StateMissingCredential:
		view.Title = titleMissingKey
		view.Alert = true
	case StateNoAutomationSelected:
		view.Title = titleNoAutomation
		view.Alert = true
	case StateError:
		view.Title = titleErrorHead + Label(kind)
		view.Alert = true
		view.ErrorKind = kind
	}
	return view
}

// Baseline is the resting view derived from settings and credential presence.
func Baseline(settings model.InstanceSettings, hasCredential bool) View {
	if ref, ok := settings.Automation(); ok {
		return Render(StateReady, ref.Name, "")
	}
	if hasCredential {
		return Render(StateAwaitingAutomationChoice, "", "")
	}
	return Render(StateUnconfigured, "", "")
}

// NeedsCatalog reports whether appearing with settings should fetch the
// automation catalog for the configuration surface.
func NeedsCatalog(settings model.InstanceSettings, hasCredential bool) bool {
	_, ok := settings.Automation()
	return !ok && hasCredential
}

// KeyUpDecision is the immediate reaction to a key release. When Trigger is
// set the automation must be called and the final view comes from
// TriggerOutcome.
type KeyUpDecision struct {
	View       View
	Trigger    bool
	Automation model.AutomationRef
	Reset      *Reset
}

// KeyUp decides what a key release does.
func KeyUp(settings model.InstanceSettings, hasCredential bool) KeyUpDecision {
	if !hasCredential {
		return KeyUpDecision{
			View:  Render(StateMissingCredential, "", ""),
			Reset: &Reset{After: FailureResetDelay, To: Render(StateUnconfigured, "", "")},
		}
	}
	ref, ok := settings.Automation()
	if !ok {
		return KeyUpDecision{
			View:  Render(StateNoAutomationSelected, "", ""),
			Reset: &Reset{After: FailureResetDelay, To: Render(StateAwaitingAutomationChoice, "", "")},
		}
	}
	return KeyUpDecision{
		View:       Render(StateTriggering, ref.Name, ""),
		Trigger:    true,
		Automation: ref,
	}
}

// TriggerOutcome maps the result of a trigger call to the view to show and
// the reset that follows it.
func TriggerOutcome(ref model.AutomationRef, err error) (View, Reset) {
	if err == nil {
		return Render(StateTriggered, ref.Name, ""), Reset{
			After: SuccessResetDelay,
			To:    Render(StateReady, ref.Name, ""),
		}
	}

	to := Render(StateUnconfigured, "", "")
	if ref.Name != "" {
		to = Render(StateReady, ref.Name, "")
	}
	return Render(StateError, ref.Name, Classify(err)), Reset{After: FailureResetDelay, To: to}
}
