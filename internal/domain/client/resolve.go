package client

import (
	"net/url"
	"strings"

	"github.com/spyglassproxy/spyglass/internal/search"
)

// Resolution labels how navigation input was interpreted.
type Resolution string

const (
	// ResolutionAbsolute means the input parsed as a full URL.
	ResolutionAbsolute Resolution = "absolute"
	// ResolutionDomain means the input looked like a bare domain and got an
	// http scheme prepended.
	ResolutionDomain Resolution = "domain"
	// ResolutionSearch means the input became a search engine query.
	ResolutionSearch Resolution = "search"
)

// Resolve turns free-form address bar input into a destination URL.
//
// The rules apply in order: an absolute URL is used as-is; input that parses
// once "http://" is prepended and whose host contains a dot is treated as a
// bare domain; everything else is templated into the search engine. The dot
// requirement keeps single words like "recipes" out of the domain branch.
func Resolve(input string, engine search.Engine) (string, Resolution) {
	trimmed := strings.TrimSpace(input)

	if u, err := url.Parse(trimmed); err == nil && u.IsAbs() {
		return trimmed, ResolutionAbsolute
	}

	if u, err := url.Parse("http://" + trimmed); err == nil && strings.Contains(u.Host, ".") {
		return "http://" + trimmed, ResolutionDomain
	}

	return engine.SearchURL(trimmed), ResolutionSearch
}
