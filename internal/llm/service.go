// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pdiddy/literature-manager/pkg/types"
)

// Token budgets per request type.
const (
	metadataMaxTokens = 2000
	classifyMaxTokens = 200
	summaryMaxTokens  = 600
	fulltextMaxTokens = 800
	domainMaxTokens   = 500
)

const (
	defaultAbstractChars = 4000
	domainAbstractLimit  = 3000
)

// Metadata is the bibliographic record parsed from page text.
type Metadata struct {
	Title          string
	Authors        []string
	Year           int
	Abstract       string
	Keywords       []string
	ShortTitle     string
	SuggestedTopic string
}

// Classification is the enrichment answer: a finding summary and a
// pipe-delimited topic suggestion, not yet validated.
type Classification struct {
	Summary        string
	SuggestedTopic string
}

// PaperInput carries the fields enrichment prompts are built from.
type PaperInput struct {
	Title    string
	Abstract string
	Keywords []string
}

// Service issues the typed requests on top of a Client.
type Service struct {
	Client Client

	// MaxChars bounds page text sent for metadata parsing.
	MaxChars int

	// AbstractMaxChars bounds the abstract sent for classification and
	// summaries.
	AbstractMaxChars int
}

// NewService wraps client.
func NewService(client Client, maxChars int) *Service {
	if maxChars <= 0 {
		maxChars = 16000
	}
	return &Service{Client: client, MaxChars: maxChars, AbstractMaxChars: defaultAbstractChars}
}

func (s *Service) abstractLimit() int {
	if s.AbstractMaxChars <= 0 {
		return defaultAbstractChars
	}
	return s.AbstractMaxChars
}

// completeJSON sends prompt and decodes the reply into v, re-asking once
// when the reply is not valid JSON. v is only written by a reply that
// decodes in full.
func (s *Service) completeJSON(ctx context.Context, prompt string, maxTokens int, v any) error {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		text, err := s.Client.Complete(ctx, prompt, maxTokens)
		if err != nil {
			return err
		}
		if err := DecodeJSON(text, v); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return lastErr
}

type metadataReply struct {
	Title          flexString `json:"title"`
	Authors        flexList   `json:"authors"`
	Year           flexInt    `json:"year"`
	Abstract       flexString `json:"abstract"`
	Keywords       flexList   `json:"keywords"`
	ShortTitle     flexString `json:"short_title"`
	SuggestedTopic flexString `json:"suggested_topic"`
}

// ExtractMetadata parses bibliographic fields from page text. topics, when
// non-empty, is the formatted taxonomy offered for suggested_topic. A nil
// Metadata with nil error means the model found no title.
func (s *Service) ExtractMetadata(ctx context.Context, text, topics string) (*Metadata, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	prompt, err := render(metadataPromptTmpl, struct{ Text, Topics string }{
		Text:   truncate(text, s.MaxChars, "\n\n[... text truncated ...]"),
		Topics: topics,
	})
	if err != nil {
		return nil, fmt.Errorf("rendering metadata prompt: %w", err)
	}

	var reply metadataReply
	if err := s.completeJSON(ctx, prompt, metadataMaxTokens, &reply); err != nil {
		return nil, err
	}

	md := &Metadata{
		Title:          normalize(string(reply.Title)),
		Authors:        []string(reply.Authors),
		Year:           int(reply.Year),
		Abstract:       normalize(string(reply.Abstract)),
		Keywords:       []string(reply.Keywords),
		ShortTitle:     normalize(string(reply.ShortTitle)),
		SuggestedTopic: strings.TrimSpace(string(reply.SuggestedTopic)),
	}
	if md.Title == "" || strings.EqualFold(md.Title, "null") {
		return nil, nil
	}
	return md, nil
}

// Classify asks for a finding summary and topic slugs. topics is the
// formatted taxonomy listing.
func (s *Service) Classify(ctx context.Context, in PaperInput, topics string) (*Classification, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, errors.New("classification needs a title")
	}
	abstract := in.Abstract
	if strings.TrimSpace(abstract) == "" {
		abstract = "Not available - analyze title and keywords only"
	}
	keywords := "None provided"
	if len(in.Keywords) > 0 {
		keywords = strings.Join(in.Keywords, ", ")
	}

	prompt, err := render(classifyPromptTmpl, struct{ Title, Abstract, Keywords, Topics string }{
		Title:    in.Title,
		Abstract: truncate(abstract, s.abstractLimit(), "..."),
		Keywords: keywords,
		Topics:   topics,
	})
	if err != nil {
		return nil, fmt.Errorf("rendering classification prompt: %w", err)
	}

	var reply struct {
		Summary        flexString `json:"summary"`
		SuggestedTopic flexString `json:"suggested_topic"`
	}
	if err := s.completeJSON(ctx, prompt, classifyMaxTokens, &reply); err != nil {
		return nil, err
	}
	return &Classification{
		Summary:        normalize(string(reply.Summary)),
		SuggestedTopic: strings.TrimSpace(string(reply.SuggestedTopic)),
	}, nil
}

// Summarize builds the structured summary from title and abstract. It
// returns nil when either is missing.
func (s *Service) Summarize(ctx context.Context, in PaperInput) (*types.EnhancedSummary, error) {
	if strings.TrimSpace(in.Title) == "" || strings.TrimSpace(in.Abstract) == "" {
		return nil, nil
	}
	prompt, err := render(summaryPromptTmpl, struct{ Title, Abstract string }{
		Title:    in.Title,
		Abstract: truncate(in.Abstract, s.abstractLimit(), "..."),
	})
	if err != nil {
		return nil, fmt.Errorf("rendering summary prompt: %w", err)
	}

	var reply struct {
		MainFinding flexString `json:"main_finding"`
		KeyApproach flexString `json:"key_approach"`
		Implication flexString `json:"implication"`
	}
	if err := s.completeJSON(ctx, prompt, summaryMaxTokens, &reply); err != nil {
		return nil, err
	}
	return &types.EnhancedSummary{
		MainFinding: string(reply.MainFinding),
		KeyApproach: string(reply.KeyApproach),
		Implication: string(reply.Implication),
	}, nil
}

// SummarizeFulltext builds the long summary from document text. Text
// shorter than minChars yields nil; longer than maxChars is truncated.
func (s *Service) SummarizeFulltext(ctx context.Context, title, text string, minChars, maxChars int) (*types.FulltextSummary, error) {
	if len(strings.TrimSpace(text)) < minChars {
		return nil, nil
	}
	prompt, err := render(fulltextPromptTmpl, struct{ Title, Text string }{
		Title: title,
		Text:  truncate(text, maxChars, "\n\n[Text truncated...]"),
	})
	if err != nil {
		return nil, fmt.Errorf("rendering fulltext prompt: %w", err)
	}

	var reply struct {
		MainFinding flexString `json:"main_finding"`
		KeyApproach flexString `json:"key_approach"`
		KeyResults  flexString `json:"key_results"`
		Implication flexString `json:"implication"`
	}
	if err := s.completeJSON(ctx, prompt, fulltextMaxTokens, &reply); err != nil {
		return nil, err
	}
	return &types.FulltextSummary{
		MainFinding: string(reply.MainFinding),
		KeyApproach: string(reply.KeyApproach),
		KeyResults:  string(reply.KeyResults),
		Implication: string(reply.Implication),
	}, nil
}

// DomainAttributes extracts soil-science facets. It returns nil without a
// title.
func (s *Service) DomainAttributes(ctx context.Context, in PaperInput) (*types.DomainAttributes, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, nil
	}
	abstract := in.Abstract
	if strings.TrimSpace(abstract) == "" {
		abstract = "Not available - analyze title only"
	}
	prompt, err := render(domainPromptTmpl, struct{ Title, Abstract string }{
		Title:    in.Title,
		Abstract: truncate(abstract, domainAbstractLimit, "..."),
	})
	if err != nil {
		return nil, fmt.Errorf("rendering domain prompt: %w", err)
	}

	var reply struct {
		StudyType         flexString `json:"study_type"`
		AnalyticalMethods flexList   `json:"analytical_methods"`
		SoilFractions     flexList   `json:"soil_fractions"`
		DepthInfo         flexList   `json:"depth_info"`
		SoilProperties    flexList   `json:"soil_properties"`
		Ecosystem         flexString `json:"ecosystem"`
		Management        flexList   `json:"management"`
	}
	if err := s.completeJSON(ctx, prompt, domainMaxTokens, &reply); err != nil {
		return nil, err
	}
	return &types.DomainAttributes{
		StudyType:           string(reply.StudyType),
		AnalyticalMethods:   reply.AnalyticalMethods,
		SoilFractions:       reply.SoilFractions,
		DepthInfo:           reply.DepthInfo,
		SoilProperties:      reply.SoilProperties,
		Ecosystem:           string(reply.Ecosystem),
		ManagementPractices: reply.Management,
	}, nil
}

func truncate(s string, n int, marker string) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	for n > 0 && s[n]&0xC0 == 0x80 {
		n--
	}
	return s[:n] + marker
}

func normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
