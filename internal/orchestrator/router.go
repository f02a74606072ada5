package orchestrator

import "strings"

// Route names the path a message takes through the engine.
type Route string

const (
	// RouteRetrieval answers from the session's indexed documents.
	RouteRetrieval Route = "retrieval"
	// RouteAgent answers through the tool-using reasoning loop.
	RouteAgent Route = "agent"
)

// documentVocabulary is the fixed set of words that pull a message toward
// the retrieval route. Matching is deliberately simple: stateless keyword
// lookup against the new utterance only, no classifier and no history.
var documentVocabulary = map[string]bool{
	"document":   true,
	"documents":  true,
	"doc":        true,
	"docs":       true,
	"file":       true,
	"files":      true,
	"pdf":        true,
	"pdfs":       true,
	"upload":     true,
	"uploaded":   true,
	"uploads":    true,
	"attachment": true,
	"page":       true,
	"pages":      true,
	"paragraph":  true,
	"chapter":    true,
	"section":    true,
}

// Classify picks the route for one user utterance.
func Classify(utterance string) Route {
	for _, word := range strings.Fields(strings.ToLower(utterance)) {
		word = strings.Trim(word, ".,;:!?\"'()[]")
		if documentVocabulary[word] {
			return RouteRetrieval
		}
	}
	return RouteAgent
}
