// ABOUTME: Declarative survey content (categories, moods, follow-up questions, prompts)
// ABOUTME: Ships embedded defaults; deployments override with a YAML file

package survey

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed survey.yaml
var defaultContent []byte

// questionsPerMood is the number of follow-up questions asked after the mood step.
const questionsPerMood = 3

// Choice is one selectable option in a survey step.
type Choice struct {
	Key   string `yaml:"key"`
	Label string `yaml:"label"`
	Emoji string `yaml:"emoji"`
}

// Button returns the option text as shown on a reply keyboard.
func (c Choice) Button() string {
	return strings.TrimSpace(c.Emoji + " " + c.Label)
}

// Prompts are the bot-side texts sent to clients during the flow.
type Prompts struct {
	Category   string `yaml:"category"`
	Name       string `yaml:"name"`
	NameShort  string `yaml:"name_short"`
	Mood       string `yaml:"mood"`
	SurveyDone string `yaml:"survey_done"`
	ChatNotice string `yaml:"chat_notice"`
	Finished   string `yaml:"finished"`
	Apology    string `yaml:"apology"`
}

// Questionnaire is the complete survey definition.
type Questionnaire struct {
	Intro         string              `yaml:"intro"`
	Categories    []Choice            `yaml:"categories"`
	Moods         []Choice            `yaml:"moods"`
	MoodQuestions map[string][]string `yaml:"mood_questions"`
	Prompts       Prompts             `yaml:"prompts"`
}

// Default returns the embedded questionnaire.
func Default() (*Questionnaire, error) {
	return parse(defaultContent)
}

// LoadFile reads a questionnaire from a YAML file.
func LoadFile(path string) (*Questionnaire, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading survey file: %w", err)
	}
	return parse(data)
}

func parse(data []byte) (*Questionnaire, error) {
	var q Questionnaire
	if err := yaml.Unmarshal(data, &q); err != nil {
		return nil, fmt.Errorf("parsing survey content: %w", err)
	}
	if err := q.validate(); err != nil {
		return nil, fmt.Errorf("validating survey content: %w", err)
	}
	return &q, nil
}

// validate checks the questionnaire is internally consistent.
func (q *Questionnaire) validate() error {
	if len(q.Categories) == 0 {
		return fmt.Errorf("at least one category is required")
	}
	if len(q.Moods) == 0 {
		return fmt.Errorf("at least one mood is required")
	}
	seen := make(map[string]bool)
	for _, c := range append(append([]Choice{}, q.Categories...), q.Moods...) {
		if c.Key == "" || c.Label == "" {
			return fmt.Errorf("choice key and label are required")
		}
		if seen[c.Key] {
			return fmt.Errorf("duplicate choice key %q", c.Key)
		}
		seen[c.Key] = true
	}
	for _, m := range q.Moods {
		qs, ok := q.MoodQuestions[m.Key]
		if !ok {
			return fmt.Errorf("mood %q has no follow-up questions", m.Key)
		}
		if len(qs) != questionsPerMood {
			return fmt.Errorf("mood %q needs exactly %d follow-up questions, got %d", m.Key, questionsPerMood, len(qs))
		}
	}
	if q.Prompts.Category == "" || q.Prompts.Name == "" || q.Prompts.Mood == "" {
		return fmt.Errorf("category, name and mood prompts are required")
	}
	return nil
}

// Match resolves inbound text against a choice list. The text matches either
// the bare label or the "emoji label" button form, after trimming whitespace.
// Returns nil if nothing matches.
func Match(text string, choices []Choice) *Choice {
	t := strings.TrimSpace(text)
	if t == "" {
		return nil
	}
	for i := range choices {
		c := &choices[i]
		if t == c.Button() || t == strings.TrimSpace(c.Label) {
			return c
		}
	}
	return nil
}

// Buttons returns the keyboard texts for a choice list.
func Buttons(choices []Choice) []string {
	out := make([]string, len(choices))
	for i, c := range choices {
		out[i] = c.Button()
	}
	return out
}

// QuestionsFor returns the follow-up questions for a mood key. Unknown keys
// yield an empty slice so callers degrade to blank questions rather than panic.
func (q *Questionnaire) QuestionsFor(moodKey string) []string {
	return q.MoodQuestions[moodKey]
}

// QuestionAt returns the follow-up question at step (1-based) for a mood key,
// or "" if out of range.
func (q *Questionnaire) QuestionAt(moodKey string, step int) string {
	qs := q.MoodQuestions[moodKey]
	if step < 1 || step > len(qs) {
		return ""
	}
	return qs[step-1]
}

// KeyboardRows lays out button texts two per row, in order.
func KeyboardRows(items []string) [][]string {
	var rows [][]string
	for i := 0; i < len(items); i += 2 {
		row := []string{items[i]}
		if i+1 < len(items) {
			row = append(row, items[i+1])
		}
		rows = append(rows, row)
	}
	return rows
}
