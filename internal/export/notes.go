package export

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/cbegin/dnasonify-go/internal/sonify"
)

// NoteList is the serialized form of a composition's note stream.
type NoteList struct {
	SequenceID string             `json:"sequenceId" yaml:"sequenceId"`
	Method     sonify.Method      `json:"method" yaml:"method"`
	TempoBPM   int                `json:"tempoBpm" yaml:"tempoBpm"`
	Duration   float64            `json:"duration" yaml:"duration"`
	Notes      []sonify.NoteEvent `json:"notes" yaml:"notes"`
}

// NoteFormat selects the note list encoding.
type NoteFormat string

const (
	JSON NoteFormat = "json"
	YAML NoteFormat = "yaml"
)

// WriteNotes encodes list as JSON or YAML.
func WriteNotes(w io.Writer, list NoteList, format NoteFormat) error {
	switch format {
	case JSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(list)
	case YAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(list); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("unknown note format %q (expected json|yaml)", format)
}

// ReadNotes decodes a note list written by WriteNotes.
func ReadNotes(r io.Reader, format NoteFormat) (NoteList, error) {
	var list NoteList
	var err error
	switch format {
	case JSON, "":
		err = json.NewDecoder(r).Decode(&list)
	case YAML:
		err = yaml.NewDecoder(r).Decode(&list)
	default:
		err = fmt.Errorf("unknown note format %q (expected json|yaml)", format)
	}
	return list, err
}
