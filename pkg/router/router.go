package router

import (
	"fmt"

	"github.com/tubepulse/tubepulse/pkg/config"
)

// Model tasks that can be routed.
const (
	TaskSentiment  = "sentiment"
	TaskCategorize = "categorize"
	TaskChat       = "chat"
	TaskInsights   = "insights"
)

// Router resolves model tasks to ordered model fallback chains.
type Router struct {
	cfg *config.Config
}

// New creates a Router from the given configuration.
func New(cfg *config.Config) *Router {
	return &Router{cfg: cfg}
}

// Resolve returns the ordered list of models to try for task.
// If the task matches a configured route, the route's models are returned without
// duplicates. Otherwise, the default Gemini model is used.
func (r *Router) Resolve(task string) ([]string, error) {
	for _, route := range r.cfg.Router.Routes {
		if route.Task != task {
			continue
		}
		seen := make(map[string]bool, len(route.Models))
		var chain []string
		for _, m := range route.Models {
			if m == "" || seen[m] {
				continue
			}
			seen[m] = true
			chain = append(chain, m)
		}
		if len(chain) == 0 {
			return nil, fmt.Errorf("route %q: no models configured", task)
		}
		return chain, nil
	}

	if r.cfg.Gemini.Model == "" {
		return nil, fmt.Errorf("no model configured for task %q", task)
	}
	return []string{r.cfg.Gemini.Model}, nil
}
