package builtin

import (
	"context"
	"net/url"
	"strings"

	"github.com/MrWong99/jarvis/internal/capability"
)

var searchEngines = map[string]string{
	"google":     "https://www.google.com/search?q=",
	"bing":       "https://www.bing.com/search?q=",
	"duckduckgo": "https://duckduckgo.com/?q=",
	"youtube":    "https://www.youtube.com/results?search_query=",
}

type web struct {
	launcher Launcher
}

// SearchURL builds the results URL for query on engine. Unknown engines use
// Google.
func SearchURL(engine, query string) string {
	base, ok := searchEngines[strings.ToLower(engine)]
	if !ok {
		base = searchEngines["google"]
	}
	return base + url.QueryEscape(query)
}

// WebsiteURL normalises a spoken site name into an https URL: "github" and
// "github.com" both become https://github.com.
func WebsiteURL(site string) string {
	site = strings.ToLower(strings.TrimSpace(site))
	site = strings.ReplaceAll(site, " dot ", ".")
	site = strings.ReplaceAll(site, " ", "")
	if strings.HasPrefix(site, "http://") || strings.HasPrefix(site, "https://") {
		return site
	}
	if !strings.Contains(site, ".") {
		site += ".com"
	}
	return "https://" + site
}

func (w *web) search(ctx context.Context, req capability.Request) capability.Result {
	query := req.Param("query")
	if query == "" {
		return capability.Fail("What should I search for?")
	}
	engine := req.Param("engine")
	if engine == "" {
		engine = "google"
	}
	if err := w.launcher.Start(ctx, "xdg-open", SearchURL(engine, query)); err != nil {
		return capability.Fail("I couldn't open the browser")
	}
	return capability.OK("Searching %s for %s", engine, query)
}

func (w *web) youtube(ctx context.Context, req capability.Request) capability.Result {
	query := req.Param("query")
	if query == "" {
		return capability.Fail("What should I look for on YouTube?")
	}
	if err := w.launcher.Start(ctx, "xdg-open", SearchURL("youtube", query)); err != nil {
		return capability.Fail("I couldn't open YouTube")
	}
	return capability.OK("Searching YouTube for %s", query)
}

func (w *web) open(ctx context.Context, req capability.Request) capability.Result {
	site := req.Param("url")
	if site == "" {
		site = req.Param("website")
	}
	if site == "" {
		return capability.Fail("Which website should I open?")
	}
	u := WebsiteURL(site)
	if err := w.launcher.Start(ctx, "xdg-open", u); err != nil {
		return capability.Fail("I couldn't open %s", site)
	}
	return capability.OK("Opening %s", strings.TrimPrefix(u, "https://"))
}
