package decoder

import (
	"encoding/json"
	"fmt"
	"strings"
)

// voskMessage is one line of the Vosk recognizer JSON protocol:
// {"partial": "..."} while speaking, {"text": "...", "result": [...]} at
// the end of an utterance. "result" is present only when the recognizer
// reports per-word scores; finals are always scored.
type voskMessage struct {
	Partial *string    `json:"partial"`
	Text    *string    `json:"text"`
	Result  []voskWord `json:"result"`
}

type voskWord struct {
	Word  string  `json:"word"`
	Conf  float64 `json:"conf"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// parseVosk maps one protocol line. Lines that are neither partial nor
// final report ok=false.
func parseVosk(line []byte) (streamResult, bool, error) {
	var msg voskMessage
	if err := json.Unmarshal(line, &msg); err != nil {
		return streamResult{}, false, fmt.Errorf("vosk response parse error: %w", err)
	}
	switch {
	case msg.Text != nil:
		return streamResult{
			Transcript: strings.TrimSpace(*msg.Text),
			Final:      true,
			Confidence: voskConfidence(msg.Result),
			Scored:     true,
		}, true, nil
	case msg.Partial != nil:
		return streamResult{Transcript: strings.TrimSpace(*msg.Partial)}, true, nil
	}
	return streamResult{}, false, nil
}

// defaultVoskConfidence scores finals the recognizer sent without word
// results.
const defaultVoskConfidence = 0.8

// voskConfidence scores an utterance by its first word, which is where a
// misheard utterance tends to go wrong first.
func voskConfidence(words []voskWord) float64 {
	if len(words) == 0 {
		return defaultVoskConfidence
	}
	return words[0].Conf
}
