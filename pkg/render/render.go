package render

import (
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/dmitrymomot/notifykit/pkg/directory"
	"github.com/dmitrymomot/notifykit/pkg/events"
)

// Rich is the optional rich part of the content.
type Rich struct {
	ActionURL  string `json:"action_url,omitempty"`
	ActionText string `json:"action_text,omitempty"`
	ImageURL   string `json:"image_url,omitempty"`
}

// Content is what a notification shows on every channel.
type Content struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Rich  Rich   `json:"rich"`
}

// FallbackTitle is the title of content rendered without a template.
const FallbackTitle = "Notification"

// Renderer renders content. It holds only configuration and is safe for
// concurrent use.
type Renderer struct {
	baseURL string
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithBaseURL sets the application URL action links are built on.
func WithBaseURL(u string) Option {
	return func(r *Renderer) { r.baseURL = strings.TrimRight(u, "/") }
}

// New creates a renderer.
func New(opts ...Option) *Renderer {
	r := &Renderer{}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render produces content for t addressed to recipient.
func (r *Renderer) Render(t events.Type, payload events.Payload, recipient directory.User) Content {
	tpl, ok := templates[t]
	if !ok {
		return fallback(payload)
	}
	c := tpl(vars{r: r, p: payload, u: recipient})
	if c.Rich.ImageURL == "" {
		c.Rich.ImageURL = payload.String(events.KeyImageURL)
	}
	return c
}

// HasTemplate reports whether t has a template.
func HasTemplate(t events.Type) bool {
	_, ok := templates[t]
	return ok
}

func fallback(payload events.Payload) Content {
	body, err := json.Marshal(payload)
	if err != nil || payload == nil {
		body = []byte("{}")
	}
	return Content{Title: FallbackTitle, Body: string(body)}
}

// vars is what templates read from.
type vars struct {
	r *Renderer
	p events.Payload
	u directory.User
}

func (v vars) str(key, def string) string {
	if s := v.p.String(key); s != "" {
		return s
	}
	return def
}

func (v vars) tier() string {
	// Casers are stateful, so one per call.
	return cases.Title(language.English).String(v.str(events.KeyTier, "premium"))
}

func (v vars) name() string {
	if n := v.u.DisplayName(); n != "" {
		return n
	}
	return "there"
}

func (v vars) date(key string) string {
	t, ok := v.p.Time(key)
	if !ok {
		return "soon"
	}
	return t.Format("January 2, 2006")
}

func (v vars) days() int {
	n, _ := v.p.Int(events.KeyDaysLeft)
	return n
}

func (v vars) url(path string) string {
	if u := v.p.String(events.KeyURL); u != "" {
		return u
	}
	return v.r.baseURL + path
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}

func digestBody(v vars) string {
	items, _ := v.p[events.KeyItems].([]any)
	if len(items) == 0 {
		if titles, ok := v.p[events.KeyItems].([]string); ok {
			for _, t := range titles {
				items = append(items, t)
			}
		}
	}
	if len(items) == 0 {
		return "Catch up on what happened this week."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Top %s this week:", plural(len(items), "insight"))
	for _, it := range items {
		b.WriteString("\n- ")
		switch item := it.(type) {
		case map[string]any:
			fmt.Fprint(&b, item[events.KeyTitle])
		default:
			fmt.Fprint(&b, item)
		}
	}
	return b.String()
}
