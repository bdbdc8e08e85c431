package client

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/spyglassproxy/spyglass/internal/search"
)

var testEngine = search.Engine{
	ID:       "duckduckgo",
	Name:     "DuckDuckGo",
	Template: "https://duckduckgo.com/?q=%s",
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		want       string
		resolution Resolution
	}{
		{"full url passes through", "https://example.com/a?b=c", "https://example.com/a?b=c", ResolutionAbsolute},
		{"scheme other than http", "ftp://files.example.com", "ftp://files.example.com", ResolutionAbsolute},
		{"bare domain gets scheme", "example.com", "http://example.com", ResolutionDomain},
		{"domain with path", "sub.example.com/docs", "http://sub.example.com/docs", ResolutionDomain},
		{"surrounding whitespace trimmed", "  example.com  ", "http://example.com", ResolutionDomain},
		{"single word becomes search", "recipes", "https://duckduckgo.com/?q=recipes", ResolutionSearch},
		{"phrase becomes search", "not a url", "https://duckduckgo.com/?q=not+a+url", ResolutionSearch},
		{"empty input becomes search", "", "https://duckduckgo.com/?q=", ResolutionSearch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, res := Resolve(tt.input, testEngine)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.resolution, res)
		})
	}
}

func TestResolveQueryEscaping(t *testing.T) {
	got, res := Resolve("c++ & go?", testEngine)
	assert.Equal(t, ResolutionSearch, res)
	assert.Equal(t, "https://duckduckgo.com/?q=c%2B%2B+%26+go%3F", got)
}
