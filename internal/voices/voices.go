// Package voices holds the catalog of synthesis voices the engine
// accepts and resolves operator input (an exact ID, a name, or a rough
// guess) into a voice ID.
package voices

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sahilm/fuzzy"
)

// Voice describes one synthesis voice.
type Voice struct {
	ID       string
	Name     string
	Language string
	Gender   string
}

// Default is the voice used when the operator picks none.
const Default = "en-US-AndrewNeural"

// catalog lists the voices the remote engine accepts. IDs follow the
// engine's neural voice naming.
var catalog = []Voice{
	{ID: "en-US-AndrewNeural", Name: "Andrew", Language: "English (US)", Gender: "Male"},
	{ID: "en-US-AriaNeural", Name: "Aria", Language: "English (US)", Gender: "Female"},
	{ID: "en-US-AvaNeural", Name: "Ava", Language: "English (US)", Gender: "Female"},
	{ID: "en-US-BrianNeural", Name: "Brian", Language: "English (US)", Gender: "Male"},
	{ID: "en-US-EmmaNeural", Name: "Emma", Language: "English (US)", Gender: "Female"},
	{ID: "en-US-GuyNeural", Name: "Guy", Language: "English (US)", Gender: "Male"},
	{ID: "en-US-JennyNeural", Name: "Jenny", Language: "English (US)", Gender: "Female"},
	{ID: "en-GB-RyanNeural", Name: "Ryan", Language: "English (UK)", Gender: "Male"},
	{ID: "en-GB-SoniaNeural", Name: "Sonia", Language: "English (UK)", Gender: "Female"},
	{ID: "en-AU-NatashaNeural", Name: "Natasha", Language: "English (AU)", Gender: "Female"},
	{ID: "en-AU-WilliamNeural", Name: "William", Language: "English (AU)", Gender: "Male"},
	{ID: "de-DE-KatjaNeural", Name: "Katja", Language: "German", Gender: "Female"},
	{ID: "de-DE-ConradNeural", Name: "Conrad", Language: "German", Gender: "Male"},
	{ID: "fr-FR-DeniseNeural", Name: "Denise", Language: "French", Gender: "Female"},
	{ID: "fr-FR-HenriNeural", Name: "Henri", Language: "French", Gender: "Male"},
	{ID: "es-ES-ElviraNeural", Name: "Elvira", Language: "Spanish", Gender: "Female"},
	{ID: "es-ES-AlvaroNeural", Name: "Alvaro", Language: "Spanish", Gender: "Male"},
	{ID: "it-IT-ElsaNeural", Name: "Elsa", Language: "Italian", Gender: "Female"},
	{ID: "ja-JP-NanamiNeural", Name: "Nanami", Language: "Japanese", Gender: "Female"},
	{ID: "pt-BR-FranciscaNeural", Name: "Francisca", Language: "Portuguese (BR)", Gender: "Female"},
}

// All returns the catalog sorted by ID.
func All() []Voice {
	out := make([]Voice, len(catalog))
	copy(out, catalog)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Find resolves a query to a voice. Exact ID and exact name matches
// (case-insensitive) win; otherwise the best fuzzy match over IDs and
// names is used.
func Find(query string) (Voice, error) {
	if query == "" {
		return Find(Default)
	}

	for _, v := range catalog {
		if strings.EqualFold(v.ID, query) || strings.EqualFold(v.Name, query) {
			return v, nil
		}
	}

	// One haystack entry per voice, matching against "id name".
	haystack := make([]string, len(catalog))
	for i, v := range catalog {
		haystack[i] = v.ID + " " + v.Name
	}

	matches := fuzzy.Find(query, haystack)
	if len(matches) == 0 {
		return Voice{}, fmt.Errorf("no voice matches %q (see `bookvox voices`)", query)
	}
	return catalog[matches[0].Index], nil
}
