package model

import "strings"

// ArgPlaceholder is replaced by the caller's argument in an endpoint template.
const ArgPlaceholder = "{arg}"

// Endpoint is a third-party API the bot relays to.
type Endpoint struct {
	Key         string
	Title       string
	Description string
	Template    string
	Hidden      bool // reachable by key but not offered in the menu
}

// Render substitutes arg into the template verbatim.
func (e Endpoint) Render(arg string) string {
	return strings.ReplaceAll(e.Template, ArgPlaceholder, arg)
}

// Registry is an ordered, immutable set of endpoints.
type Registry struct {
	order []string
	byKey map[string]Endpoint
}

func NewRegistry(endpoints ...Endpoint) *Registry {
	r := &Registry{byKey: make(map[string]Endpoint, len(endpoints))}
	for _, e := range endpoints {
		if _, dup := r.byKey[e.Key]; dup {
			continue
		}
		r.order = append(r.order, e.Key)
		r.byKey[e.Key] = e
	}
	return r
}

func (r *Registry) Lookup(key string) (Endpoint, bool) {
	e, ok := r.byKey[key]
	return e, ok
}

// Visible returns the menu entries in registration order.
func (r *Registry) Visible() []Endpoint {
	out := make([]Endpoint, 0, len(r.order))
	for _, k := range r.order {
		if e := r.byKey[k]; !e.Hidden {
			out = append(out, e)
		}
	}
	return out
}

// DefaultRegistry is the fixed set of upstream APIs.
func DefaultRegistry() *Registry {
	return NewRegistry(
		Endpoint{
			Key:         "terabox",
			Title:       "Terabox Downloader",
			Description: "Download files from Terabox",
			Template:    "https://teraboxdownloderapi.revangeapi.workers.dev/?url={arg}",
		},
		Endpoint{
			Key:         "social",
			Title:       "Social Downloader",
			Description: "Download videos from YouTube, Instagram, TikTok, Facebook",
			Template:    "https://nodejssocialdownloder.onrender.com/revangeapi/download?url={arg}",
		},
		Endpoint{
			Key:         "llama",
			Title:       "LLaMA 3.1 Chat",
			Description: "Uncensored AI chat",
			Template:    "https://laama.revangeapi.workers.dev/chat?prompt={arg}",
		},
		Endpoint{
			Key:         "gpt",
			Title:       "GPT-3.5 Chat",
			Description: "ChatGPT 3.5 (BJ Devs)",
			Template:    "https://gpt-3-5.apis-bj-devs.workers.dev/?prompt={arg}",
		},
		Endpoint{
			Key:         "bj_assistant",
			Title:       "BJ Tricks Assistant",
			Description: "Alternate chat endpoint",
			Template:    "https://bj-tricks-assistant.bj-dev-x.workers.dev/?text={arg}",
			Hidden:      true,
		},
	)
}
