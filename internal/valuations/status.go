package valuations

// Status is the primary lifecycle state of a valuation record.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSuccess    Status = "success"
	StatusFailed     Status = "failed"
)

// PresentationStatus tracks the slide-generation sub-pipeline.
type PresentationStatus string

const (
	PresentationAbsent    PresentationStatus = "absent"
	PresentationPending   PresentationStatus = "pending"
	PresentationCompleted PresentationStatus = "completed"
	PresentationFailed    PresentationStatus = "failed"
)

// statusTransitions is the allowed transition table for Status. Anything not
// listed is rejected.
var statusTransitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusFailed},
	StatusProcessing: {StatusSuccess, StatusFailed},
}

// presentationTransitions is the allowed transition table for
// PresentationStatus. Terminal states have no outgoing edges.
var presentationTransitions = map[PresentationStatus][]PresentationStatus{
	PresentationAbsent:  {PresentationPending},
	PresentationPending: {PresentationCompleted, PresentationFailed},
}

// CanTransition reports whether from -> to is an allowed status move.
func CanTransition(from, to Status) bool {
	for _, next := range statusTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CanTransitionPresentation reports whether from -> to is an allowed
// presentation-status move.
func CanTransitionPresentation(from, to PresentationStatus) bool {
	for _, next := range presentationTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether a status admits no further transitions.
func (s Status) Terminal() bool {
	return len(statusTransitions[s]) == 0
}

// Terminal reports whether a presentation status admits no further
// transitions.
func (p PresentationStatus) Terminal() bool {
	return len(presentationTransitions[p]) == 0
}
