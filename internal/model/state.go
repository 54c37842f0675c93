package model

// RunState is the position of a run in the upload flow.
// The flow is linear: every state except Done and Failed is followed by
// the next one in declaration order, and any state may move to Failed.
type RunState int

const (
	// StateReceivingUpload is the initial state of every run.
	StateReceivingUpload RunState = iota
	// StateValidating checks the file name.
	StateValidating
	// StatePersisting writes the upload to the run directory.
	StatePersisting
	// StatePreviewing decodes the preview text.
	StatePreviewing
	// StateConfiguringClient builds the external anonymizer client.
	StateConfiguringClient
	// StateAnonymizing waits for the external anonymize call.
	StateAnonymizing
	// StateCheckingArtifacts verifies that both artifacts exist.
	StateCheckingArtifacts
	// StateDone is the terminal success state.
	StateDone
	// StateFailed is the terminal failure state.
	StateFailed
)

// stateNames maps states to their stable string form.
// These strings are stored in the run history database.
var stateNames = map[RunState]string{
	StateReceivingUpload:   "receiving_upload",
	StateValidating:        "validating",
	StatePersisting:        "persisting",
	StatePreviewing:        "previewing",
	StateConfiguringClient: "configuring_client",
	StateAnonymizing:       "anonymizing",
	StateCheckingArtifacts: "checking_artifacts",
	StateDone:              "done",
	StateFailed:            "failed",
}

// String returns the stable name of the state.
func (s RunState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// ParseRunState converts a stored state name back into a RunState.
// Unknown names return StateFailed and false.
func ParseRunState(name string) (RunState, bool) {
	for s, n := range stateNames {
		if n == name {
			return s, true
		}
	}
	return StateFailed, false
}

// IsTerminal reports whether no further transition is possible.
func (s RunState) IsTerminal() bool {
	return s == StateDone || s == StateFailed
}

// MarshalText implements encoding.TextMarshaler.
func (s RunState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *RunState) UnmarshalText(text []byte) error {
	parsed, _ := ParseRunState(string(text))
	*s = parsed
	return nil
}
