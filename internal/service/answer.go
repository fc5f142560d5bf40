package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloo-solutions/converso/internal/domain"
	"github.com/cloo-solutions/converso/internal/openai"
	"github.com/cloo-solutions/converso/internal/telemetry"
)

// PersonaPolicy controls how the answer prompt addresses the
// correspondent and what the assistant is allowed to offer.
type PersonaPolicy struct {
	Name         string
	AllowHandoff bool
	Personalize  bool
	IdentityLine string
}

// AnswerService composes a grounded prompt from retrieved chunks and the
// correspondent's profile and invokes the generation service.
type AnswerService struct {
	completer CompletionClient
	policy    PersonaPolicy
}

func NewAnswerService(completer CompletionClient, policy PersonaPolicy) *AnswerService {
	if policy.Name == "" {
		policy.Name = "Siva"
	}
	return &AnswerService{
		completer: completer,
		policy:    policy,
	}
}

// GenerateInput carries one turn's grounding material.
type GenerateInput struct {
	Question      string
	Retrieved     []*RetrievedChunk
	Correspondent *domain.Correspondent
}

// SystemInstruction builds the persona prompt for one turn.
func (s *AnswerService) SystemInstruction(c *domain.Correspondent) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are %s, a helpful assistant answering customer questions over chat.\n", s.policy.Name)
	b.WriteString("Answer only from the provided context. If the context does not contain the answer, say you do not have that information")
	if s.policy.AllowHandoff {
		b.WriteString(" and offer to connect the customer with a human colleague.\n")
	} else {
		b.WriteString(". Never suggest handing the conversation to a human.\n")
	}

	if s.policy.Personalize && c != nil && c.Name != "" {
		fmt.Fprintf(&b, "Address the customer by their first name, %s, and speak in the first person.\n", c.Name)
	}

	b.WriteString("Never reveal stored details such as salary or employer unless the customer explicitly asked about them.")

	return b.String()
}

// ContextBlock renders the retrieval result as the grounding context,
// each entry labeled with its rank and distance.
func ContextBlock(retrieved []*RetrievedChunk) string {
	if len(retrieved) == 0 {
		return "No relevant context was found."
	}

	var b strings.Builder
	b.WriteString("Context:\n")
	for i, hit := range retrieved {
		fmt.Fprintf(&b, "[%d] (distance %.4f) %s\n", i+1, hit.Distance, hit.Chunk.Content)
	}
	return b.String()
}

// Generate invokes the generation service with the grounded prompt and
// returns the answer text, identity-stamped when configured.
func (s *AnswerService) Generate(ctx context.Context, input GenerateInput) (string, error) {
	ctx, span := telemetry.StartSpan(ctx, "AnswerService.Generate", telemetry.SpanAttributes{
		Operation: "generate",
	})
	defer span.End()

	messages := []openai.ChatMessage{
		{Role: "user", Content: ContextBlock(input.Retrieved)},
		{Role: "user", Content: input.Question},
	}

	answer, err := s.completer.Complete(ctx, s.SystemInstruction(input.Correspondent), messages)
	if err != nil {
		return "", domain.ErrGenerationUnavailable
	}

	answer = strings.TrimSpace(answer)
	if s.policy.IdentityLine != "" {
		answer = answer + "\n\n" + s.policy.IdentityLine
	}

	return answer, nil
}
