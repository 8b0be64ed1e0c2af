package rules

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ActionType is the discriminator written to the "type" key of an encoded action.
type ActionType string

const (
	ActionInjectNoise        ActionType = "InjectNoise"
	ActionOpenBackgroundTabs ActionType = "OpenBackgroundTabs"
	ActionSuggestBreak       ActionType = "SuggestBreak"
	ActionClickOffTopic      ActionType = "ClickOffTopic"
	ActionScrollLimit        ActionType = "ScrollLimit"
	ActionApplyLens          ActionType = "ApplyLens"
	ActionLog                ActionType = "Log"
)

// Valid reports whether t names a known action variant.
func (t ActionType) Valid() bool {
	switch t {
	case ActionInjectNoise, ActionOpenBackgroundTabs, ActionSuggestBreak, ActionClickOffTopic,
		ActionScrollLimit, ActionApplyLens, ActionLog:
		return true
	}
	return false
}

// Action is a countermeasure instruction. The set of implementations is
// closed: only the types in this file satisfy it.
type Action interface {
	Type() ActionType
	Narrate() string
	clone() Action
}

// InjectNoise asks the host to click Count items outside the user's profile.
type InjectNoise struct {
	Count uint32 `json:"count"`
}

// OpenBackgroundTabs asks the host to open decoy pages.
type OpenBackgroundTabs struct {
	URLs []string `json:"urls"`
}

// SuggestBreak asks the host to suggest the user take a break.
type SuggestBreak struct{}

// ClickOffTopic asks the host to click one off-topic item.
type ClickOffTopic struct{}

// ScrollLimit caps the number of feed items the host lets through.
type ScrollLimit struct {
	MaxItems uint32 `json:"max_items"`
}

// ApplyLens asks the host to switch to a named content lens.
type ApplyLens struct {
	LensName string `json:"lens_name"`
}

// Log carries a free-form audit message.
type Log struct {
	Message string `json:"message"`
}

func (InjectNoise) Type() ActionType        { return ActionInjectNoise }
func (OpenBackgroundTabs) Type() ActionType { return ActionOpenBackgroundTabs }
func (SuggestBreak) Type() ActionType       { return ActionSuggestBreak }
func (ClickOffTopic) Type() ActionType      { return ActionClickOffTopic }
func (ScrollLimit) Type() ActionType        { return ActionScrollLimit }
func (ApplyLens) Type() ActionType          { return ActionApplyLens }
func (Log) Type() ActionType                { return ActionLog }

func (a InjectNoise) Narrate() string {
	return fmt.Sprintf("Inject %d off-profile clicks", a.Count)
}

func (a OpenBackgroundTabs) Narrate() string {
	return fmt.Sprintf("Open %d background tabs for profile dilution", len(a.URLs))
}

func (SuggestBreak) Narrate() string  { return "Suggest taking a break" }
func (ClickOffTopic) Narrate() string { return "Click off-topic content" }

func (a ScrollLimit) Narrate() string {
	return fmt.Sprintf("Limit scroll to %d items", a.MaxItems)
}

func (a ApplyLens) Narrate() string {
	return "Apply lens: " + a.LensName
}

func (a Log) Narrate() string { return a.Message }

func (a InjectNoise) clone() Action { return a }

func (a OpenBackgroundTabs) clone() Action {
	if a.URLs != nil {
		a.URLs = append([]string{}, a.URLs...)
	}
	return a
}

func (a SuggestBreak) clone() Action  { return a }
func (a ClickOffTopic) clone() Action { return a }
func (a ScrollLimit) clone() Action   { return a }
func (a ApplyLens) clone() Action     { return a }
func (a Log) clone() Action           { return a }

// CloneActions returns a deep copy of actions. The result is never nil.
func CloneActions(actions []Action) []Action {
	out := make([]Action, 0, len(actions))
	for _, a := range actions {
		if a == nil {
			continue
		}
		out = append(out, a.clone())
	}
	return out
}

// actionEnvelope is the adjacently tagged wire form of an Action.
type actionEnvelope struct {
	Type    ActionType      `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type injectNoisePayload struct {
	Count *uint32 `json:"count" validate:"required"`
}

type openBackgroundTabsPayload struct {
	URLs []string `json:"urls" validate:"required"`
}

type scrollLimitPayload struct {
	MaxItems *uint32 `json:"max_items" validate:"required"`
}

type applyLensPayload struct {
	LensName *string `json:"lens_name" validate:"required"`
}

type logPayload struct {
	Message *string `json:"message" validate:"required"`
}

// MarshalAction encodes a single action as {"type": ..., "payload": {...}}.
// Unit variants carry no payload.
func MarshalAction(a Action) ([]byte, error) {
	if a == nil {
		return nil, fmt.Errorf("cannot encode nil action")
	}

	env := actionEnvelope{Type: a.Type()}
	switch v := a.(type) {
	case SuggestBreak, ClickOffTopic:
	case OpenBackgroundTabs:
		if v.URLs == nil {
			v.URLs = []string{}
		}
		payload, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		env.Payload = payload
	default:
		payload, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		env.Payload = payload
	}
	return json.Marshal(env)
}

// UnmarshalAction decodes a single tagged action.
func UnmarshalAction(data []byte) (Action, error) {
	var env actionEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	if env.Type == "" {
		return nil, fmt.Errorf("action: missing field \"type\"")
	}
	if !env.Type.Valid() {
		return nil, fmt.Errorf("unknown action type %q", env.Type)
	}

	hasPayload := len(env.Payload) > 0 && !bytes.Equal(bytes.TrimSpace(env.Payload), []byte("null"))

	switch env.Type {
	case ActionSuggestBreak, ActionClickOffTopic:
		if hasPayload {
			return nil, fmt.Errorf("action %s: unexpected payload", env.Type)
		}
		if env.Type == ActionSuggestBreak {
			return SuggestBreak{}, nil
		}
		return ClickOffTopic{}, nil
	}

	if !hasPayload {
		return nil, fmt.Errorf("action %s: missing field \"payload\"", env.Type)
	}

	switch env.Type {
	case ActionInjectNoise:
		var p injectNoisePayload
		if err := decodePayload(env, &p); err != nil {
			return nil, err
		}
		return InjectNoise{Count: *p.Count}, nil

	case ActionOpenBackgroundTabs:
		var p openBackgroundTabsPayload
		if err := decodePayload(env, &p); err != nil {
			return nil, err
		}
		return OpenBackgroundTabs{URLs: p.URLs}, nil

	case ActionScrollLimit:
		var p scrollLimitPayload
		if err := decodePayload(env, &p); err != nil {
			return nil, err
		}
		return ScrollLimit{MaxItems: *p.MaxItems}, nil

	case ActionApplyLens:
		var p applyLensPayload
		if err := decodePayload(env, &p); err != nil {
			return nil, err
		}
		return ApplyLens{LensName: *p.LensName}, nil

	case ActionLog:
		var p logPayload
		if err := decodePayload(env, &p); err != nil {
			return nil, err
		}
		return Log{Message: *p.Message}, nil

	default:
		return nil, fmt.Errorf("unknown action type %q", env.Type)
	}
}

func decodePayload(env actionEnvelope, dst any) error {
	if err := json.Unmarshal(env.Payload, dst); err != nil {
		return fmt.Errorf("action %s: %w", env.Type, err)
	}
	if err := validateDocument(dst); err != nil {
		return fmt.Errorf("action %s: %w", env.Type, err)
	}
	return nil
}

// Actions is an ordered action list with a tagged JSON encoding.
type Actions []Action

// MarshalJSON encodes the list as a JSON array of tagged actions; an empty or
// nil list encodes as [].
func (as Actions) MarshalJSON() ([]byte, error) {
	items := make([]json.RawMessage, 0, len(as))
	for i, a := range as {
		raw, err := MarshalAction(a)
		if err != nil {
			return nil, fmt.Errorf("action %d: %w", i, err)
		}
		items = append(items, raw)
	}
	return json.Marshal(items)
}

// UnmarshalJSON decodes a JSON array of tagged actions.
func (as *Actions) UnmarshalJSON(data []byte) error {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	if items == nil {
		return fmt.Errorf("actions must be an array")
	}

	out := make(Actions, 0, len(items))
	for i, raw := range items {
		a, err := UnmarshalAction(raw)
		if err != nil {
			return fmt.Errorf("actions[%d]: %w", i, err)
		}
		out = append(out, a)
	}
	*as = out
	return nil
}
