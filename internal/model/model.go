// Package model defines the entity records the distillation core reads
// and writes through the Store interface (internal/store). Every type
// here maps to one of the persisted collections named by the
// Collection constants below.
package model

import (
	"encoding/json"
	"time"
)

// Pipeline selects which end-to-end distillation variant a Book runs.
type Pipeline string

const (
	PipelineClaims   Pipeline = "claims"
	PipelineChapters Pipeline = "chapters"
)

// Status is the Book lifecycle state machine (see internal/orchestrator).
type Status string

const (
	StatusUploaded           Status = "uploaded"
	StatusExtracting         Status = "extracting"
	StatusDetectingChapters  Status = "detecting_chapters"
	StatusExtractingClaims   Status = "extracting_claims"
	StatusFilteringClaims    Status = "filtering_claims"
	StatusClusteringIdeas    Status = "clustering_ideas"
	StatusReconstructing     Status = "reconstructing"
	StatusCompressingChapters Status = "compressing_chapters"
	StatusAssembling         Status = "assembling"
	StatusCompleted          Status = "completed"
	StatusFailed             Status = "failed"
)

// Terminal reports whether status ends a processing run.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// User is an identity record. Not a Book child (no BookID backreference).
type User struct {
	ID             string    `json:"id,omitempty"`
	Email          string    `json:"email"`
	DisplayName    string    `json:"display_name"`
	CredentialHash string    `json:"credential_hash,omitempty"`
	ExternalID     string    `json:"external_id,omitempty"`
	AvatarURL      string    `json:"avatar_url,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Book is the distillation job record.
type Book struct {
	ID       string `json:"id,omitempty"`
	UserID   string `json:"user_id"`
	Title    string `json:"title"`
	Author   string `json:"author,omitempty"`
	Filename string `json:"filename"`

	PageCount        int `json:"page_count,omitempty"`
	OriginalWordCount int `json:"original_word_count,omitempty"`

	Status      Status `json:"status"`
	CurrentStep string `json:"current_step,omitempty"`
	Progress    int    `json:"progress"`
	Error       string `json:"error,omitempty"`

	ProcessingStartedAt   *time.Time `json:"processing_started_at,omitempty"`
	ProcessingCompletedAt *time.Time `json:"processing_completed_at,omitempty"`

	Pipeline Pipeline `json:"pipeline"`

	// Claims-pipeline counter.
	TotalChunks int `json:"total_chunks,omitempty"`
	// Chapters-pipeline counter.
	TotalChapters int `json:"total_chapters,omitempty"`

	DensityScore           int     `json:"density_score,omitempty"`
	RecommendedCompression float64 `json:"recommended_compression,omitempty"`
	ExtractionMethod       string  `json:"extraction_method,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Chunk is a claims-pipeline text segment.
type Chunk struct {
	ID         string `json:"id,omitempty"`
	BookID     string `json:"book_id"`
	Order      int    `json:"order"`
	Text       string `json:"text"`
	TokenCount int    `json:"token_count"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Chapter is a chapters-pipeline structural unit.
type Chapter struct {
	ID     string `json:"id,omitempty"`
	BookID string `json:"book_id"`
	Order  int    `json:"order"`
	Title  string `json:"title"`
	Level  int    `json:"level"`

	OriginalContent    string `json:"original_content"`
	OriginalTokenCount int    `json:"original_token_count"`

	CompressedContent    string   `json:"compressed_content,omitempty"`
	KeyInsights          []string `json:"key_insights,omitempty"`
	CompressedTokenCount int      `json:"compressed_token_count,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ClaimType enumerates what kind of assertion a Claim captures.
type ClaimType string

const (
	ClaimTypePrinciple      ClaimType = "principle"
	ClaimTypeRule           ClaimType = "rule"
	ClaimTypeRecommendation ClaimType = "recommendation"
	ClaimTypeConstraint     ClaimType = "constraint"
	ClaimTypeCausal         ClaimType = "causal"
)

// ClaimLabel enumerates the filter-stage verdict on a Claim.
type ClaimLabel string

const (
	LabelCoreInsight       ClaimLabel = "core_insight"
	LabelSupportingInsight ClaimLabel = "supporting_insight"
	LabelRedundant         ClaimLabel = "redundant"
	LabelFiller            ClaimLabel = "filler"
)

// Claim is an atomic assertion extracted from a Chunk.
type Claim struct {
	ID          string     `json:"id,omitempty"`
	BookID      string     `json:"book_id"`
	SourceChunkID string   `json:"source_chunk_id"`
	Text        string     `json:"text"`
	Type        ClaimType  `json:"type"`
	Label       ClaimLabel `json:"label,omitempty"`
	Score       *float64   `json:"score,omitempty"`
	Reason      string     `json:"reason,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Filtered reports whether the filter stage has labeled this claim.
func (c *Claim) Filtered() bool { return c.Label != "" }

// Kept reports whether the claim survived filtering.
func (c *Claim) Kept() bool {
	return c.Label == LabelCoreInsight || c.Label == LabelSupportingInsight
}

// ExampleReason enumerates why an Idea's worked example is kept.
type ExampleReason string

const (
	ExampleClarifiesApplication ExampleReason = "clarifies_application"
	ExampleRemovesAmbiguity     ExampleReason = "removes_ambiguity"
)

// IdeaExample is a worked illustration attached to an Idea.
type IdeaExample struct {
	Text   string        `json:"text"`
	Reason ExampleReason `json:"reason"`
}

// Idea is a cluster of claims representing one decision-changing insight.
//
// ExamplesJSON carries the worked examples as a JSON-encoded string rather
// than a nested object list: DefraDB's SDL has no embedded-object-array
// type, so the Store collections flatten this field to a String column.
// Use Examples/SetExamples to work with the decoded []IdeaExample form.
type Idea struct {
	ID            string    `json:"id,omitempty"`
	BookID        string    `json:"book_id"`
	Order         int       `json:"order"`
	Title         string    `json:"title"`
	MergedClaims  []string  `json:"merged_claims"`
	Principle     string    `json:"principle,omitempty"`
	BehaviorDelta string    `json:"behavior_delta,omitempty"`
	ExamplesJSON  string    `json:"examples_json,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Examples decodes ExamplesJSON. An empty ExamplesJSON decodes to nil.
func (i *Idea) Examples() ([]IdeaExample, error) {
	if i.ExamplesJSON == "" {
		return nil, nil
	}
	var examples []IdeaExample
	if err := json.Unmarshal([]byte(i.ExamplesJSON), &examples); err != nil {
		return nil, err
	}
	return examples, nil
}

// SetExamples encodes examples into ExamplesJSON.
func (i *Idea) SetExamples(examples []IdeaExample) error {
	if len(examples) == 0 {
		i.ExamplesJSON = ""
		return nil
	}
	raw, err := json.Marshal(examples)
	if err != nil {
		return err
	}
	i.ExamplesJSON = string(raw)
	return nil
}

// FinalOutput is the reconstructed markdown document for a Book.
type FinalOutput struct {
	ID               string    `json:"id,omitempty"`
	BookID           string    `json:"book_id"`
	Markdown         string    `json:"markdown"`
	WordCount        int       `json:"word_count"`
	IdeaCount        int       `json:"idea_count,omitempty"`
	ChapterCount     int       `json:"chapter_count,omitempty"`
	CompressionRatio float64   `json:"compression_ratio,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Collection names as stored by internal/store implementations.
const (
	CollectionUser        = "User"
	CollectionBook         = "Book"
	CollectionChunk        = "Chunk"
	CollectionChapter      = "Chapter"
	CollectionClaim        = "Claim"
	CollectionIdea         = "Idea"
	CollectionFinalOutput  = "FinalOutput"
	CollectionLLMCall      = "LLMCall"
)

// HumanStep turns a status value into the human-readable phrase the
// orchestrator stores on Book.CurrentStep (§4.9: "replacing underscores
// with spaces").
func HumanStep(s Status) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '_' {
			out = append(out, ' ')
		} else {
			out = append(out, s[i])
		}
	}
	return string(out)
}
