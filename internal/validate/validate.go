// Package validate sanitizes inbound chat-completion requests before they
// are allowed to consume relay capacity.
//
// Sanitize is pure and synchronous: it inspects the raw JSON body with
// gjson, checks every recognized field against its documented bound, and
// produces a Request containing only recognized fields. Unknown fields
// are dropped, message content is trimmed, and nothing is defaulted —
// absent optional fields stay absent. Streaming requests are rejected
// outright because the retry and idempotency model cannot replay a
// stream.
package validate

import (
	"math"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Message roles accepted by the upstream chat API.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Limits bounds request shape. All fields are configurable; zero values
// fall back to the defaults below.
type Limits struct {
	// MaxMessages caps the messages array length.
	MaxMessages int

	// MaxContentLen caps each message's content length after trimming.
	MaxContentLen int

	// MaxTokensCap caps the max_tokens parameter.
	MaxTokensCap int

	// MaxStopSequences caps the stop array length.
	MaxStopSequences int
}

// Default bounds.
const (
	DefaultMaxMessages      = 50
	DefaultMaxContentLen    = 4000
	DefaultMaxTokensCap     = 4000
	DefaultMaxStopSequences = 4
)

// DefaultLimits returns the documented default bounds.
func DefaultLimits() Limits {
	return Limits{
		MaxMessages:      DefaultMaxMessages,
		MaxContentLen:    DefaultMaxContentLen,
		MaxTokensCap:     DefaultMaxTokensCap,
		MaxStopSequences: DefaultMaxStopSequences,
	}
}

func (l Limits) withDefaults() Limits {
	if l.MaxMessages <= 0 {
		l.MaxMessages = DefaultMaxMessages
	}
	if l.MaxContentLen <= 0 {
		l.MaxContentLen = DefaultMaxContentLen
	}
	if l.MaxTokensCap <= 0 {
		l.MaxTokensCap = DefaultMaxTokensCap
	}
	if l.MaxStopSequences <= 0 {
		l.MaxStopSequences = DefaultMaxStopSequences
	}
	return l
}

// Message is one sanitized chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a sanitized chat request. Optional parameters are nil when
// absent from the original body and are never defaulted.
type Request struct {
	Messages         []Message
	MaxTokens        *int
	Temperature      *float64
	TopP             *float64
	FrequencyPenalty *float64
	PresencePenalty  *float64
	Stop             []string
}

// Sanitize validates raw against limits and returns the sanitized
// request. The returned error is always a *FieldError naming the
// offending field (and index, for messages).
func Sanitize(raw []byte, limits Limits) (*Request, error) {
	limits = limits.withDefaults()

	if !gjson.ValidBytes(raw) {
		return nil, newFieldError("body", "must be a JSON object")
	}
	body := gjson.ParseBytes(raw)
	if !body.IsObject() {
		return nil, newFieldError("body", "must be a JSON object")
	}

	req := &Request{}

	if err := sanitizeMessages(body, limits, req); err != nil {
		return nil, err
	}
	if err := sanitizeSampling(body, limits, req); err != nil {
		return nil, err
	}
	if err := sanitizeStop(body, limits, req); err != nil {
		return nil, err
	}

	if stream := body.Get("stream"); stream.Exists() && stream.Type == gjson.True {
		return nil, newFieldError("stream", "streaming is not supported")
	}

	return req, nil
}

func sanitizeMessages(body gjson.Result, limits Limits, req *Request) error {
	messages := body.Get("messages")
	if !messages.Exists() {
		return newFieldError("messages", "is required")
	}
	if !messages.IsArray() {
		return newFieldError("messages", "must be an array")
	}

	items := messages.Array()
	if len(items) == 0 {
		return newFieldError("messages", "must not be empty")
	}
	if len(items) > limits.MaxMessages {
		return newFieldError("messages", "must contain at most %d messages", limits.MaxMessages)
	}

	req.Messages = make([]Message, 0, len(items))
	for i, item := range items {
		if !item.IsObject() {
			return newIndexError("messages", i, "must be an object")
		}

		role := item.Get("role")
		if role.Type != gjson.String || !validRole(role.Str) {
			return newIndexError("messages", i, "role must be one of system, user, assistant")
		}

		content := item.Get("content")
		if content.Type != gjson.String {
			return newIndexError("messages", i, "content must be a string")
		}

		trimmed := strings.TrimSpace(content.Str)
		if len(trimmed) > limits.MaxContentLen {
			return newIndexError("messages", i, "content must be at most %d characters", limits.MaxContentLen)
		}

		req.Messages = append(req.Messages, Message{Role: role.Str, Content: trimmed})
	}
	return nil
}

func validRole(role string) bool {
	switch role {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	default:
		return false
	}
}

// rangeCheck describes one optional float parameter and its closed range.
type rangeCheck struct {
	field string
	min   float64
	max   float64
	dst   **float64
}

func sanitizeSampling(body gjson.Result, limits Limits, req *Request) error {
	checks := []rangeCheck{
		{field: "temperature", min: 0, max: 2, dst: &req.Temperature},
		{field: "top_p", min: 0, max: 1, dst: &req.TopP},
		{field: "frequency_penalty", min: -2, max: 2, dst: &req.FrequencyPenalty},
		{field: "presence_penalty", min: -2, max: 2, dst: &req.PresencePenalty},
	}

	for _, c := range checks {
		value := body.Get(c.field)
		if !value.Exists() {
			continue
		}
		if value.Type != gjson.Number {
			return newFieldError(c.field, "must be a number")
		}
		if value.Num < c.min || value.Num > c.max {
			return newFieldError(c.field, "must be between %g and %g", c.min, c.max)
		}
		v := value.Num
		*c.dst = &v
	}

	maxTokens := body.Get("max_tokens")
	if maxTokens.Exists() {
		if maxTokens.Type != gjson.Number || maxTokens.Num != math.Trunc(maxTokens.Num) {
			return newFieldError("max_tokens", "must be an integer")
		}
		n := int(maxTokens.Num)
		if n < 1 || n > limits.MaxTokensCap {
			return newFieldError("max_tokens", "must be between 1 and %d", limits.MaxTokensCap)
		}
		req.MaxTokens = &n
	}

	return nil
}

func sanitizeStop(body gjson.Result, limits Limits, req *Request) error {
	stop := body.Get("stop")
	if !stop.Exists() {
		return nil
	}

	switch {
	case stop.Type == gjson.String:
		if stop.Str == "" {
			return newFieldError("stop", "sequences must be non-empty strings")
		}
		req.Stop = []string{stop.Str}
	case stop.IsArray():
		items := stop.Array()
		if len(items) > limits.MaxStopSequences {
			return newFieldError("stop", "must contain at most %d sequences", limits.MaxStopSequences)
		}
		req.Stop = make([]string, 0, len(items))
		for i, item := range items {
			if item.Type != gjson.String || item.Str == "" {
				return newIndexError("stop", i, "sequences must be non-empty strings")
			}
			req.Stop = append(req.Stop, item.Str)
		}
	default:
		return newFieldError("stop", "must be a string or an array of strings")
	}
	return nil
}

// JSON renders the sanitized request as the exact JSON forwarded
// upstream. The body is rebuilt field by field from the sanitized form,
// so it can only ever contain recognized fields.
func (r *Request) JSON() ([]byte, error) {
	body := []byte(`{}`)

	body, err := sjson.SetBytes(body, "messages", r.Messages)
	if err != nil {
		return nil, err
	}

	if r.MaxTokens != nil {
		if body, err = sjson.SetBytes(body, "max_tokens", *r.MaxTokens); err != nil {
			return nil, err
		}
	}
	if r.Temperature != nil {
		if body, err = sjson.SetBytes(body, "temperature", *r.Temperature); err != nil {
			return nil, err
		}
	}
	if r.TopP != nil {
		if body, err = sjson.SetBytes(body, "top_p", *r.TopP); err != nil {
			return nil, err
		}
	}
	if r.FrequencyPenalty != nil {
		if body, err = sjson.SetBytes(body, "frequency_penalty", *r.FrequencyPenalty); err != nil {
			return nil, err
		}
	}
	if r.PresencePenalty != nil {
		if body, err = sjson.SetBytes(body, "presence_penalty", *r.PresencePenalty); err != nil {
			return nil, err
		}
	}
	if len(r.Stop) > 0 {
		if body, err = sjson.SetBytes(body, "stop", r.Stop); err != nil {
			return nil, err
		}
	}

	return body, nil
}
