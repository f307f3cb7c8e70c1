package dap

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Locations of DAP "source" objects, per message. A trailing ".#" marks an
// array whose elements are sources (or contain one under "source").
var (
	inboundEventSources = map[string][]string{
		"output":       {"body.source"},
		"loadedSource": {"body.source"},
		"breakpoint":   {"body.breakpoint.source"},
	}
	inboundResponseSources = map[string][]string{
		"stackTrace":             {"body.stackFrames.#.source"},
		"loadedSources":          {"body.sources.#"},
		"scopes":                 {"body.scopes.#.source"},
		"setBreakpoints":         {"body.breakpoints.#.source"},
		"setFunctionBreakpoints": {"body.breakpoints.#.source"},
	}
	outboundRequestSources = map[string][]string{
		"setBreakpoints":      {"arguments.source"},
		"source":              {"arguments.source"},
		"breakpointLocations": {"arguments.source"},
		"gotoTargets":         {"arguments.source"},
	}
)

// ToClientPaths rewrites adapter-native absolute paths in the source objects
// of an inbound message to file:// URIs. Messages without sources are
// returned as is.
func ToClientPaths(m Message) (Message, error) {
	var paths []string
	switch m.Kind() {
	case KindEvent:
		paths = inboundEventSources[m.Event()]
	case KindResponse:
		paths = inboundResponseSources[m.Command()]
	}
	return rewriteSources(m, paths, pathToURI)
}

// ToAdapterPaths rewrites file:// URIs in the source objects of an outbound
// request to native paths.
func ToAdapterPaths(m Message) (Message, error) {
	if m.Kind() != KindRequest {
		return m, nil
	}
	return rewriteSources(m, outboundRequestSources[m.Command()], uriToPath)
}

func rewriteSources(m Message, paths []string, fix func(string) (string, bool)) (Message, error) {
	out := m
	for _, p := range paths {
		for _, sp := range expand(out, p) {
			result := gjson.GetBytes(out, sp+".path")
			if result.Type != gjson.String {
				continue
			}
			fixed, ok := fix(result.String())
			if !ok {
				continue
			}
			var err error
			out, err = sjson.SetBytes(out, sp+".path", fixed)
			if err != nil {
				return m, fmt.Errorf("failed to translate %s: %w", sp, err)
			}
		}
	}
	return out, nil
}

// expand turns "a.#.b" into "a.0.b", "a.1.b", ... for the elements present.
func expand(m Message, path string) []string {
	idx := strings.Index(path, ".#")
	if idx < 0 {
		return []string{path}
	}
	prefix, rest := path[:idx], path[idx+2:]
	n := int(gjson.GetBytes(m, prefix+".#").Int())
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, fmt.Sprintf("%s.%d%s", prefix, i, rest))
	}
	return out
}

func pathToURI(p string) (string, bool) {
	if !filepath.IsAbs(p) || strings.Contains(p, "://") {
		return "", false
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(p)}
	return u.String(), true
}

func uriToPath(s string) (string, bool) {
	if !strings.HasPrefix(s, "file://") {
		return "", false
	}
	u, err := url.Parse(s)
	if err != nil {
		return "", false
	}
	return filepath.FromSlash(u.Path), true
}
