package rules

import (
	"encoding/json"
)

// Context field names that conditions can reference.
const (
	FieldPlatform         = "platform"
	FieldContentType      = "content_type"
	FieldScrollDepth      = "scroll_depth"
	FieldSessionDuration  = "session_duration"
	FieldRecentCategories = "recent_categories"
	FieldTimestamp        = "timestamp"
)

// Context is a snapshot of the observable browsing state at decision time.
type Context struct {
	Platform         string   `json:"platform"`
	ContentType      string   `json:"content_type"`
	ScrollDepth      uint32   `json:"scroll_depth"`
	SessionDuration  uint32   `json:"session_duration"` // seconds
	RecentCategories []string `json:"recent_categories"`
	Timestamp        uint64   `json:"timestamp"`
}

// NewContext returns a Context for the given platform and content type with
// every other field zeroed.
func NewContext(platform, contentType string) Context {
	return Context{
		Platform:         platform,
		ContentType:      contentType,
		RecentCategories: []string{},
	}
}

// WithScrollDepth returns a copy of c with the scroll depth set.
func (c Context) WithScrollDepth(depth uint32) Context {
	c.ScrollDepth = depth
	return c
}

// WithSessionDuration returns a copy of c with the session duration set.
func (c Context) WithSessionDuration(seconds uint32) Context {
	c.SessionDuration = seconds
	return c
}

// WithCategories returns a copy of c with the recent categories replaced.
func (c Context) WithCategories(categories []string) Context {
	c.RecentCategories = append([]string{}, categories...)
	return c
}

// WithTimestamp returns a copy of c with the timestamp set.
func (c Context) WithTimestamp(ts uint64) Context {
	c.Timestamp = ts
	return c
}

// lookup resolves a condition field. Only the scalar fields are reachable;
// recent_categories and timestamp resolve to nothing, like unknown names.
func (c Context) lookup(field string) (Value, bool) {
	switch field {
	case FieldPlatform:
		return StringValue(c.Platform), true
	case FieldContentType:
		return StringValue(c.ContentType), true
	case FieldScrollDepth:
		return NumberValue(float64(c.ScrollDepth)), true
	case FieldSessionDuration:
		return NumberValue(float64(c.SessionDuration)), true
	default:
		return Value{}, false
	}
}

type contextDocument struct {
	Platform         *string  `json:"platform" validate:"required"`
	ContentType      *string  `json:"content_type" validate:"required"`
	ScrollDepth      *uint32  `json:"scroll_depth" validate:"required"`
	SessionDuration  *uint32  `json:"session_duration" validate:"required"`
	RecentCategories []string `json:"recent_categories" validate:"required"`
	Timestamp        *uint64  `json:"timestamp" validate:"required"`
}

// MarshalJSON always writes recent_categories as an array.
func (c Context) MarshalJSON() ([]byte, error) {
	type plain Context
	p := plain(c)
	if p.RecentCategories == nil {
		p.RecentCategories = []string{}
	}
	return json.Marshal(p)
}

// UnmarshalJSON requires every field to be present.
func (c *Context) UnmarshalJSON(data []byte) error {
	var doc contextDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	if err := validateDocument(doc); err != nil {
		return err
	}

	*c = Context{
		Platform:         *doc.Platform,
		ContentType:      *doc.ContentType,
		ScrollDepth:      *doc.ScrollDepth,
		SessionDuration:  *doc.SessionDuration,
		RecentCategories: doc.RecentCategories,
		Timestamp:        *doc.Timestamp,
	}
	return nil
}
