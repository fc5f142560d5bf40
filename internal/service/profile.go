package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/cloo-solutions/converso/internal/domain"
	"github.com/cloo-solutions/converso/internal/openai"
	"github.com/cloo-solutions/converso/internal/pagination"
	"github.com/cloo-solutions/converso/internal/telemetry"
)

// CorrespondentRepositoryInterface defines the repository interface for correspondent persistence
type CorrespondentRepositoryInterface interface {
	UpsertByPhone(ctx context.Context, c *domain.Correspondent) (*domain.Correspondent, error)
	GetByID(ctx context.Context, id string) (*domain.Correspondent, error)
	GetByPhone(ctx context.Context, phone string) (*domain.Correspondent, error)
	Update(ctx context.Context, c *domain.Correspondent) error
	ListWithCursor(ctx context.Context, cursor *pagination.Cursor, limit int) (*CorrespondentPageResult, error)
	Count(ctx context.Context) (int64, error)
}

type CorrespondentPageResult struct {
	Items      []*domain.Correspondent
	NextCursor string
	HasMore    bool
}

// CompletionClient defines the interface for chat completions
type CompletionClient interface {
	Complete(ctx context.Context, system string, messages []openai.ChatMessage) (string, error)
}

const factExtractionSystem = `You extract profile facts about a person from a single chat message.
Respond with a JSON object only, no prose. Keys are among: name, company, salary, address, notes.
Each value is an object {"value": string, "confidence": number between 0 and 1}.
Only include a key when the message itself states or strongly implies the fact.
If the message contains no profile facts, respond with {}.`

// ProfileService resolves correspondents by phone and enriches their
// profiles from inbound messages.
type ProfileService struct {
	correspondentRepo CorrespondentRepositoryInterface
	completer         CompletionClient
	thresholds        domain.FieldThresholds
	uuidGen           UUIDGenerator
}

func NewProfileService(correspondentRepo CorrespondentRepositoryInterface, completer CompletionClient, thresholds domain.FieldThresholds) *ProfileService {
	return &ProfileService{
		correspondentRepo: correspondentRepo,
		completer:         completer,
		thresholds:        thresholds,
		uuidGen:           &DefaultUUIDGenerator{},
	}
}

// NewProfileServiceWithUUIDGen creates a ProfileService with a custom UUID generator (for testing)
func NewProfileServiceWithUUIDGen(correspondentRepo CorrespondentRepositoryInterface, completer CompletionClient, thresholds domain.FieldThresholds, uuidGen UUIDGenerator) *ProfileService {
	s := NewProfileService(correspondentRepo, completer, thresholds)
	s.uuidGen = uuidGen
	return s
}

// Resolve finds or creates the correspondent for a raw phone number.
// Resolution is idempotent: the same phone always maps to the same row,
// and last_seen_at is refreshed on every contact.
func (s *ProfileService) Resolve(ctx context.Context, phone string) (*domain.Correspondent, error) {
	normalized := domain.NormalizePhone(phone)
	if normalized == "" {
		return nil, domain.ErrMissingPhone
	}

	candidate := domain.NewCorrespondent(s.uuidGen.NewString(), normalized, time.Now().UTC())
	return s.correspondentRepo.UpsertByPhone(ctx, candidate)
}

// ExtractFacts asks the completion model for profile facts stated in the
// user's turn. The assistant's answer, when available, is passed along as
// conversational context. A malformed or non-JSON response yields no
// facts rather than an error, enrichment is strictly best effort.
func (s *ProfileService) ExtractFacts(ctx context.Context, message, answer string) (domain.FactCandidates, error) {
	ctx, span := telemetry.StartSpan(ctx, "ProfileService.ExtractFacts", telemetry.SpanAttributes{
		Operation: "extract_facts",
	})
	defer span.End()

	messages := []openai.ChatMessage{
		{Role: "user", Content: message},
	}
	if answer != "" {
		messages = append(messages, openai.ChatMessage{Role: "assistant", Content: answer})
	}

	raw, err := s.completer.Complete(ctx, factExtractionSystem, messages)
	if err != nil {
		return nil, err
	}

	return parseFactCandidates(raw), nil
}

// EnrichProfile extracts facts from the turn and merges the accepted
// ones into the correspondent's profile. Returns the names of the fields
// that changed. lastSeenAt advances even when nothing was extracted.
func (s *ProfileService) EnrichProfile(ctx context.Context, c *domain.Correspondent, inbound, answer string) ([]string, error) {
	ctx, span := telemetry.StartSpan(ctx, "ProfileService.EnrichProfile", telemetry.SpanAttributes{
		CorrespondentID: c.ID,
		Operation:       "enrich",
	})
	defer span.End()

	facts, err := s.ExtractFacts(ctx, inbound, answer)
	if err != nil {
		facts = domain.FactCandidates{}
	}

	changed := c.MergeFacts(facts, s.thresholds, time.Now().UTC())
	if err := s.correspondentRepo.Update(ctx, c); err != nil {
		return nil, err
	}

	return changed, nil
}

func (s *ProfileService) GetByID(ctx context.Context, id string) (*domain.Correspondent, error) {
	return s.correspondentRepo.GetByID(ctx, id)
}

type ListCorrespondentsInput struct {
	Cursor string
	Limit  int
}

type ListCorrespondentsOutput struct {
	Items   []*domain.Correspondent
	Cursor  string
	HasMore bool
}

func (s *ProfileService) ListCorrespondents(ctx context.Context, input ListCorrespondentsInput) (*ListCorrespondentsOutput, error) {
	cursor, _ := pagination.DecodeCursor(input.Cursor)
	limit := pagination.ClampLimit(input.Limit)

	result, err := s.correspondentRepo.ListWithCursor(ctx, cursor, limit)
	if err != nil {
		return nil, err
	}

	return &ListCorrespondentsOutput{
		Items:   result.Items,
		Cursor:  result.NextCursor,
		HasMore: result.HasMore,
	}, nil
}

// parseFactCandidates tolerates the model wrapping JSON in a code fence
// and discards anything that does not decode to the expected shape.
func parseFactCandidates(raw string) domain.FactCandidates {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var decoded map[string]domain.FactCandidate
	if err := json.Unmarshal([]byte(cleaned), &decoded); err != nil {
		return domain.FactCandidates{}
	}

	facts := domain.FactCandidates{}
	for field, candidate := range decoded {
		candidate.Value = strings.TrimSpace(candidate.Value)
		if candidate.Value == "" {
			continue
		}
		if candidate.Confidence < 0 {
			candidate.Confidence = 0
		}
		if candidate.Confidence > 1 {
			candidate.Confidence = 1
		}
		facts[field] = candidate
	}
	return facts
}
