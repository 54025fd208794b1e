package stimuli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type fileSet struct {
	Name    string   `yaml:"name"`
	Targets []string `yaml:"targets"`
	Repeat  int      `yaml:"repeat"`
	Choices []string `yaml:"choices"`
}

// LoadFile reads a YAML stimulus file:
//
//	name: object-naming
//	targets: [object4, object4, object4, object5]
//	repeat: 2
//	choices: [object4, object5]
func LoadFile(path string) (Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Set{}, fmt.Errorf("read stimuli %s: %w", path, err)
	}
	set, err := Decode(data)
	if err != nil {
		return Set{}, fmt.Errorf("parse stimuli %s: %w", path, err)
	}
	return set, nil
}

func Decode(data []byte) (Set, error) {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	var raw fileSet
	if err := decoder.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return Set{}, ErrNoTargets
		}
		return Set{}, err
	}
	if raw.Repeat < 0 {
		return Set{}, fmt.Errorf("repeat must be >= 0, got %d", raw.Repeat)
	}
	if raw.Repeat == 0 {
		raw.Repeat = 1
	}

	set := Set{
		Name:    strings.TrimSpace(raw.Name),
		Targets: repeat(raw.Targets, raw.Repeat),
		Choices: raw.Choices,
	}
	if set.Name == "" {
		set.Name = "file"
	}
	if err := set.Validate(); err != nil {
		return Set{}, err
	}
	return set, nil
}
