// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types holds the data model shared across the literature manager:
// the PaperRecord stored in the Index and the configuration structs.
package types

import "time"

// ExtractionMethod identifies which cascade method produced a record.
type ExtractionMethod string

const (
	MethodDOILookup   ExtractionMethod = "doi_lookup"
	MethodPDFMetadata ExtractionMethod = "pdf_metadata"
	MethodLLMParsing  ExtractionMethod = "llm_parsing"
	MethodFailed      ExtractionMethod = "failed"
)

// Valid reports whether m names a cascade method. MethodFailed is a result,
// not a method, so it is not valid here.
func (m ExtractionMethod) Valid() bool {
	switch m {
	case MethodDOILookup, MethodPDFMetadata, MethodLLMParsing:
		return true
	}
	return false
}

// Fixed confidence values assigned by each extraction method.
const (
	ConfidenceDOI              = 0.95
	ConfidenceLLM              = 0.80
	ConfidenceLLMNoAuthors     = 0.70
	ConfidenceMetadata         = 0.70
	ConfidenceMetadataNoAuthor = 0.60
)

// PaperRecord is the canonical unit stored in the Index, keyed by
// ContentHash.
type PaperRecord struct {
	// ContentHash is the SHA-256 hex digest of the file bytes.
	ContentHash string `json:"file_hash" yaml:"file_hash"`

	// Filepath is relative to the library root and always names a regular file.
	Filepath         string `json:"filepath" yaml:"filepath"`
	OriginalFilename string `json:"original_filename" yaml:"original_filename"`

	Title    string   `json:"title" yaml:"title"`
	Authors  []string `json:"authors" yaml:"authors"`
	Year     int      `json:"year,omitempty" yaml:"year,omitempty"`
	DOI      string   `json:"doi,omitempty" yaml:"doi,omitempty"`
	Abstract string   `json:"abstract,omitempty" yaml:"abstract,omitempty"`
	Keywords []string `json:"keywords,omitempty" yaml:"keywords,omitempty"`

	// ShortTitle is an LLM-supplied finding summary used for the filename.
	ShortTitle string `json:"short_title,omitempty" yaml:"short_title,omitempty"`

	// Summary is the 6-8 word declarative finding from enrichment.
	Summary string `json:"summary,omitempty" yaml:"summary,omitempty"`

	// Topics drive placement: Topics[0] is the primary directory, the rest
	// get symlinks. Empty unless the record was filed under by-topic/.
	Topics []string `json:"topics" yaml:"topics"`

	// SuggestedTopics are the validated enrichment suggestions, kept even
	// when the record was routed to recent/.
	SuggestedTopics []string `json:"suggested_topics,omitempty" yaml:"suggested_topics,omitempty"`
	TopicConfidence float64  `json:"topic_confidence" yaml:"topic_confidence"`

	ExtractionMethod     ExtractionMethod `json:"extraction_method" yaml:"extraction_method"`
	ExtractionConfidence float64          `json:"extraction_confidence" yaml:"extraction_confidence"`

	// FailureReasons collects non-fatal cascade failures, one per method.
	FailureReasons []string `json:"failure_reasons,omitempty" yaml:"failure_reasons,omitempty"`

	ProcessedDate time.Time `json:"processed_date" yaml:"processed_date"`

	EnhancedSummary  *EnhancedSummary  `json:"enhanced_summary,omitempty" yaml:"enhanced_summary,omitempty"`
	FulltextSummary  *FulltextSummary  `json:"fulltext_summary,omitempty" yaml:"fulltext_summary,omitempty"`
	DomainAttributes *DomainAttributes `json:"domain_attributes,omitempty" yaml:"domain_attributes,omitempty"`

	// ZoteroKey is set once the record has been mirrored.
	ZoteroKey string `json:"zotero_key,omitempty" yaml:"zotero_key,omitempty"`
}

// Failed reports whether the record is the failed-extraction sentinel.
func (r *PaperRecord) Failed() bool {
	return r.ExtractionMethod == MethodFailed || r.ExtractionConfidence == 0
}

// PrimaryTopic returns the first topic, or "" when unclassified.
func (r *PaperRecord) PrimaryTopic() string {
	if len(r.Topics) == 0 {
		return ""
	}
	return r.Topics[0]
}

// FailedRecord returns the sentinel produced when every method fails.
func FailedRecord(reasons []string) *PaperRecord {
	return &PaperRecord{
		ExtractionMethod:     MethodFailed,
		ExtractionConfidence: 0,
		FailureReasons:       reasons,
	}
}

// EnhancedSummary is a short structured summary built from title and abstract.
type EnhancedSummary struct {
	MainFinding string `json:"main_finding" yaml:"main_finding"`
	KeyApproach string `json:"key_approach" yaml:"key_approach"`
	Implication string `json:"implication" yaml:"implication"`
}

// FulltextSummary is a longer summary built from the document body.
type FulltextSummary struct {
	MainFinding string `json:"main_finding" yaml:"main_finding"`
	KeyApproach string `json:"key_approach" yaml:"key_approach"`
	KeyResults  string `json:"key_results" yaml:"key_results"`
	Implication string `json:"implication" yaml:"implication"`
}

// DomainAttributes are soil-science facets extracted from title and abstract.
type DomainAttributes struct {
	StudyType           string   `json:"study_type,omitempty" yaml:"study_type,omitempty"`
	AnalyticalMethods   []string `json:"analytical_methods,omitempty" yaml:"analytical_methods,omitempty"`
	SoilFractions       []string `json:"soil_fractions,omitempty" yaml:"soil_fractions,omitempty"`
	DepthInfo           []string `json:"depth_info,omitempty" yaml:"depth_info,omitempty"`
	SoilProperties      []string `json:"soil_properties,omitempty" yaml:"soil_properties,omitempty"`
	Ecosystem           string   `json:"ecosystem,omitempty" yaml:"ecosystem,omitempty"`
	ManagementPractices []string `json:"management_practices,omitempty" yaml:"management_practices,omitempty"`
}

// Empty reports whether no attribute was extracted.
func (d *DomainAttributes) Empty() bool {
	return d == nil || (d.StudyType == "" && d.Ecosystem == "" && len(d.DepthInfo) == 0 &&
		len(d.AnalyticalMethods) == 0 && len(d.SoilFractions) == 0 &&
		len(d.SoilProperties) == 0 && len(d.ManagementPractices) == 0)
}
