package agents

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"quire/internal/hub"
	"quire/internal/services"
	"quire/internal/workflow"
)

//go:embed instructions.yaml
var defaultInstructions []byte

// Modes an instruction can ask the generation service for.
const (
	ModeJSON = "json"
	ModeText = "text"
)

// Instruction drives one stage's generation call.
type Instruction struct {
	Mode   string `yaml:"mode"`
	System string `yaml:"system"`
	Prompt string `yaml:"prompt"`

	tmpl *template.Template
}

// UnitPolicy sizes the chapter plan from the project's word target.
type UnitPolicy struct {
	WordsPerUnit int `yaml:"words_per_unit"`
	Min          int `yaml:"min"`
	Max          int `yaml:"max"`
}

// RelatedPolicy controls the store search that feeds content units.
type RelatedPolicy struct {
	TopK          int     `yaml:"top_k"`
	MinSimilarity float64 `yaml:"min_similarity"`
	SnippetRunes  int     `yaml:"snippet_runes"`
}

// Pack is the instruction set for every generating stage.
type Pack struct {
	Version int                             `yaml:"version"`
	Units   UnitPolicy                      `yaml:"units"`
	Related RelatedPolicy                   `yaml:"related"`
	Stages  map[workflow.Stage]*Instruction `yaml:"stages"`
}

// DefaultPack returns the embedded instruction pack.
func DefaultPack() (*Pack, error) {
	return ParsePack(defaultInstructions)
}

// LoadPack reads a pack from path; an empty path yields the default pack.
func LoadPack(path string) (*Pack, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultPack()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read instruction pack: %w", err)
	}
	return ParsePack(data)
}

// ParsePack decodes and compiles a YAML pack.
func ParsePack(data []byte) (*Pack, error) {
	var pack Pack
	if err := yaml.Unmarshal(data, &pack); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "", "instruction pack", "invalid yaml", err)
	}
	if pack.Version != 1 {
		return nil, services.Wrap(services.ErrConfiguration, "", "instruction pack", fmt.Sprintf("unsupported version %d", pack.Version), nil)
	}
	if pack.Units.WordsPerUnit <= 0 {
		pack.Units.WordsPerUnit = 3000
	}
	if pack.Units.Min <= 0 {
		pack.Units.Min = 1
	}
	if pack.Units.Max < pack.Units.Min {
		pack.Units.Max = pack.Units.Min
	}
	if pack.Related.SnippetRunes <= 0 {
		pack.Related.SnippetRunes = 400
	}
	for stage, inst := range pack.Stages {
		if _, err := workflow.ParseStage(string(stage)); err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "", "instruction pack", err.Error(), nil)
		}
		if inst == nil {
			return nil, services.Wrap(services.ErrConfiguration, string(stage), "instruction pack", "empty instruction", nil)
		}
		switch inst.Mode {
		case "":
			inst.Mode = ModeJSON
		case ModeJSON, ModeText:
		default:
			return nil, services.Wrap(services.ErrConfiguration, string(stage), "instruction pack", fmt.Sprintf("unknown mode %q", inst.Mode), nil)
		}
		tmpl, err := template.New(string(stage)).Funcs(templateFuncs).Option("missingkey=error").Parse(inst.Prompt)
		if err != nil {
			return nil, services.Wrap(services.ErrConfiguration, string(stage), "instruction pack", "invalid prompt template", err)
		}
		inst.tmpl = tmpl
	}
	return &pack, nil
}

// Instruction returns the stage's instruction.
func (p *Pack) Instruction(stage workflow.Stage) (*Instruction, bool) {
	inst, ok := p.Stages[stage]
	return inst, ok && inst != nil
}

// PlannedUnits converts a word target into a unit count within the policy
// bounds.
func (p *Pack) PlannedUnits(targetWords int) int {
	if targetWords <= 0 {
		targetWords = hub.TargetWordCount("")
	}
	n := (targetWords + p.Units.WordsPerUnit/2) / p.Units.WordsPerUnit
	return min(max(n, p.Units.Min), p.Units.Max)
}

var templateFuncs = template.FuncMap{
	"json": func(v any) (string, error) {
		data, err := json.Marshal(v)
		return string(data), err
	},
	"join": strings.Join,
}

// promptData is what prompt templates see.
type promptData struct {
	Config       hub.ProjectConfig
	Snapshot     hub.Snapshot
	IdeaCount    int
	Unit         int
	Units        int
	UnitPlan     hub.UnitPlan
	WordsPerUnit int
	Previous     string
	Related      []string
}

func (i *Instruction) render(data promptData) (string, error) {
	var buf bytes.Buffer
	if err := i.tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}
