package server

import (
	"errors"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

// SuggestionSet holds the mode-aware starter prompts shown on an empty
// conversation.
type SuggestionSet struct {
	Doctor  []string `yaml:"doctor"`
	Patient []string `yaml:"patient"`
}

// LoadSuggestions reads the preset file. A missing file falls back to the
// built-in defaults; a malformed one is a startup error.
func LoadSuggestions(path string) (*SuggestionSet, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return defaultSuggestions(), nil
		}
		return nil, err
	}
	var set SuggestionSet
	if err := yaml.Unmarshal(b, &set); err != nil {
		return nil, err
	}
	if len(set.Doctor) == 0 && len(set.Patient) == 0 {
		return defaultSuggestions(), nil
	}
	return &set, nil
}

// ForMode picks the persona's prompts, with the doctor list as fallback.
func (s *SuggestionSet) ForMode(mode string) []string {
	if mode == "patient" && len(s.Patient) > 0 {
		return s.Patient
	}
	return s.Doctor
}

func defaultSuggestions() *SuggestionSet {
	return &SuggestionSet{
		Doctor: []string{
			"Compare Atorvastatin vs Rosuvastatin for a diabetic patient",
			"What are the Jan Aushadhi alternatives for Clopidogrel?",
			"Can a patient take Metformin with Ibuprofen?",
			"Is Amlodipine covered under CGHS?",
		},
		Patient: []string{
			"What is Metformin used for?",
			"Is it safe to take Ibuprofen with my diabetes medicine?",
			"Where can I find cheaper generic versions of my medicines?",
			"Is my blood pressure medicine covered by CGHS?",
		},
	}
}
