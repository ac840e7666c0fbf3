package hub

import (
	"strings"
	"time"
)

// PartitionHub holds every document the hub writes.
const PartitionHub = "hub"

// Document types written by stages and read by the hub.
const (
	TypeIdeas         = "ideas"
	TypeIdea          = "idea"
	TypeResearch      = "research"
	TypeTopic         = "topic"
	TypeCast          = "cast"
	TypeCharacter     = "character"
	TypeRelationships = "relationships"
	TypeSetting       = "setting"
	TypeLocation      = "location"
	TypeCulture       = "culture"
	TypePlot          = "plot"
	TypeChapterPlan   = "chapter_plan"
	TypeChapter       = "chapter"
	TypeManuscript    = "manuscript"

	TypeIntegrated    = "integrated_context"
	TypeProjectStatus = "project_status"
	TypeProjectConfig = "project_config"
)

// Declared payload schemas.
const (
	SchemaIdeas         = "quire.ideas/v1"
	SchemaIdea          = "quire.idea/v1"
	SchemaResearch      = "quire.research/v1"
	SchemaTopic         = "quire.topic/v1"
	SchemaCast          = "quire.cast/v1"
	SchemaCharacter     = "quire.character/v1"
	SchemaRelationships = "quire.relationships/v1"
	SchemaSetting       = "quire.setting/v1"
	SchemaLocation      = "quire.location/v1"
	SchemaCulture       = "quire.culture/v1"
	SchemaPlot          = "quire.plot/v1"
	SchemaChapterPlan   = "quire.chapter_plan/v1"
	SchemaChapter       = "quire.chapter/v1"
	SchemaManuscript    = "quire.manuscript/v1"
	SchemaSnapshot      = "quire.snapshot/v1"
	SchemaStatus        = "quire.status/v1"
	SchemaProjectConfig = "quire.project_config/v1"
)

func normKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Idea is one candidate premise from the ideation stage.
type Idea struct {
	ID      string   `json:"id"`
	Title   string   `json:"title"`
	Premise string   `json:"premise"`
	Genre   string   `json:"genre,omitempty"`
	Themes  []string `json:"themes,omitempty"`
	Score   float64  `json:"score"`
}

func (i Idea) naturalKey() string {
	if k := normKey(i.ID); k != "" {
		return k
	}
	return normKey(i.Title)
}

// IdeaSet is the ideation stage's primary output.
type IdeaSet struct {
	Ideas []Idea `json:"ideas"`
}

// Ideation is the aggregated ideation category.
type Ideation struct {
	Selected Idea   `json:"selected"`
	Ideas    []Idea `json:"ideas"`
}

// Character is one cast member.
type Character struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name"`
	Role        string `json:"role"`
	Description string `json:"description,omitempty"`
	Motivation  string `json:"motivation,omitempty"`
	Arc         string `json:"arc,omitempty"`
}

func (c Character) naturalKey() string {
	if k := normKey(c.Name); k != "" {
		return k
	}
	return normKey(c.ID)
}

// Relationship links two characters by name or id.
type Relationship struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Kind        string `json:"kind"`
	Description string `json:"description,omitempty"`
}

func (r Relationship) naturalKey() string {
	return normKey(r.From) + "|" + normKey(r.To) + "|" + normKey(r.Kind)
}

// RelationshipSet is a standalone relationships document.
type RelationshipSet struct {
	Relationships []Relationship `json:"relationships"`
}

// Cast is both the cast stage's primary output and the aggregated category.
type Cast struct {
	Characters    []Character    `json:"characters"`
	Relationships []Relationship `json:"relationships"`
}

// Location is a place in the setting.
type Location struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	Significance string `json:"significance,omitempty"`
}

func (l Location) naturalKey() string { return normKey(l.Name) }

// Culture is a cultural element of the setting.
type Culture struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (c Culture) naturalKey() string { return normKey(c.Name) }

// Setting is both the setting stage's primary output and the aggregated category.
type Setting struct {
	Name      string     `json:"name"`
	Summary   string     `json:"summary"`
	Locations []Location `json:"locations"`
	Cultures  []Culture  `json:"cultures"`
}

// Topic is one research subject.
type Topic struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name"`
	Summary  string `json:"summary"`
	Priority int    `json:"priority,omitempty"`
}

func (t Topic) naturalKey() string {
	if k := normKey(t.Name); k != "" {
		return k
	}
	return normKey(t.ID)
}

// Finding groups research points under a topic.
type Finding struct {
	Topic  string   `json:"topic"`
	Points []string `json:"points"`
}

func (f Finding) naturalKey() string { return normKey(f.Topic) }

// Research is both the research stage's primary output and the aggregated category.
type Research struct {
	Topics    []Topic   `json:"topics"`
	Findings  []Finding `json:"findings"`
	Synthesis string    `json:"synthesis"`
}

// Beat is one plot beat.
type Beat struct {
	Name    string `json:"name"`
	Summary string `json:"summary"`
}

func (b Beat) naturalKey() string { return normKey(b.Name) }

// Plot is both the plot stage's primary output and the aggregated category.
type Plot struct {
	Logline string   `json:"logline"`
	Beats   []Beat   `json:"beats"`
	Threads []string `json:"threads"`
}

// UnitPlan describes one content unit (chapter).
type UnitPlan struct {
	Index   int      `json:"index"`
	Title   string   `json:"title"`
	Summary string   `json:"summary"`
	Beats   []string `json:"beats,omitempty"`
}

// ChapterPlan is the planning stage's output; its Units drive the fan-out.
type ChapterPlan struct {
	Units []UnitPlan `json:"units"`
}

// Chapter is one content unit's output.
type Chapter struct {
	Index int    `json:"index"`
	Title string `json:"title"`
	Text  string `json:"text"`
}

// Manuscript is the assembly stage's output.
type Manuscript struct {
	Title     string    `json:"title"`
	Chapters  []Chapter `json:"chapters"`
	WordCount int       `json:"word_count"`
}

// ProjectConfig holds the parameters a project was created with.
type ProjectConfig struct {
	Title         string    `json:"title"`
	Genre         string    `json:"genre"`
	TargetLength  string    `json:"target_length"`
	Complexity    string    `json:"complexity"`
	InitialPrompt string    `json:"initial_prompt"`
	TargetWords   int       `json:"target_words"`
	CreatedAt     time.Time `json:"created_at"`
}

var targetWords = map[string]int{
	"short_story": 7500,
	"novella":     30000,
	"novel":       80000,
	"epic_novel":  120000,
}

// TargetWordCount maps a target length to a word budget; unknown lengths are
// treated as a novel.
func TargetWordCount(length string) int {
	if n, ok := targetWords[normKey(length)]; ok {
		return n
	}
	return targetWords["novel"]
}

// KnownTargetLength reports whether length is one of the named targets.
func KnownTargetLength(length string) bool {
	_, ok := targetWords[normKey(length)]
	return ok
}

// Snapshot is the integrated context handed to every stage.
type Snapshot struct {
	Config        ProjectConfig  `json:"config"`
	Idea          Idea           `json:"idea"`
	Characters    []Character    `json:"characters"`
	Relationships []Relationship `json:"relationships"`
	Setting       Setting        `json:"setting"`
	Research      Research       `json:"research"`
	Plot          Plot           `json:"plot"`
}
