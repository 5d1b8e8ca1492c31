package event

import (
	"github.com/whispers/whispers/internal/platform/apperr"
	"github.com/whispers/whispers/internal/platform/auth"
)

// State is the completion state of an event.
type State int

const (
	StateOpen State = iota
	StateComplete
)

func (s State) String() string {
	if s == StateComplete {
		return "complete"
	}
	return "open"
}

func stateOf(complete bool) State {
	if complete {
		return StateComplete
	}
	return StateOpen
}

// checkTransition validates patch against the completion state machine.
// t is the event's current subtree, used when the patch completes the event.
//
// A complete event accepts only a reopen, or a patch that sets quality_check
// alone, and both only from the owner or an override role. A reopen may
// carry other field changes; they are applied once the event is open.
func checkTransition(p *auth.Principal, e *Event, patch *EventPatch, t Subtree) error {
	privileged := p.IsOwnerOrOverride(e.CreatedBy)
	from := stateOf(e.Complete)
	to := from
	if patch.Complete != nil {
		to = stateOf(*patch.Complete)
	}

	if from == StateComplete {
		switch {
		case patch.reopens() && privileged:
			if patch.QualityCheck != nil {
				return apperr.Validation(msgQualityCheck)
			}
			return nil
		case patch.onlyQualityCheck() && privileged:
			return nil
		case privileged:
			return apperr.Locked(msgLockedEventOwner)
		}
		return apperr.Locked(msgLockedEvent)
	}

	var m apperr.Messages
	m.AddIf(patch.QualityCheck != nil && to != StateComplete, msgQualityCheck)
	if to == StateComplete {
		if !privileged {
			return apperr.Permission("only the event owner or an administrator may complete an event")
		}
		eventType := e.EventType
		if patch.EventType != nil {
			eventType = *patch.EventType
		}
		for _, msg := range CompletionViolations(eventType, t) {
			m.Add(msg)
		}
	}
	return m.Err()
}

// applyPatch copies the patch onto e. Reopening clears the quality check.
func applyPatch(e *Event, patch *EventPatch) {
	if patch.EventType != nil {
		e.EventType = *patch.EventType
	}
	if patch.EventReference != nil {
		e.EventReference = *patch.EventReference
	}
	if patch.Public != nil {
		e.Public = *patch.Public
	}
	if patch.LegalStatusID != nil {
		e.LegalStatusID = patch.LegalStatusID
	}
	if patch.QualityCheck != nil {
		e.QualityCheck = patch.QualityCheck
	}
	if patch.ReadCollaborators != nil {
		e.ReadCollaborators = *patch.ReadCollaborators
	}
	if patch.WriteCollaborators != nil {
		e.WriteCollaborators = *patch.WriteCollaborators
	}
	if patch.Complete != nil {
		if e.Complete && !*patch.Complete {
			e.QualityCheck = nil
		}
		e.Complete = *patch.Complete
	}
}
