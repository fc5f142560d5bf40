package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/cloo-solutions/converso/internal/domain"
	"github.com/cloo-solutions/converso/internal/openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestAnswerService_SystemInstruction(t *testing.T) {
	c := domain.NewCorrespondent("corr-1", "971501234567", time.Now().UTC())
	c.Name = "Ravi"

	t.Run("handoff allowed offers a human colleague", func(t *testing.T) {
		svc := NewAnswerService(nil, PersonaPolicy{Name: "Siva", AllowHandoff: true})

		prompt := svc.SystemInstruction(c)

		assert.Contains(t, prompt, "You are Siva")
		assert.Contains(t, prompt, "offer to connect the customer with a human colleague")
	})

	t.Run("handoff forbidden never offers one", func(t *testing.T) {
		svc := NewAnswerService(nil, PersonaPolicy{Name: "Siva", AllowHandoff: false})

		prompt := svc.SystemInstruction(c)

		assert.Contains(t, prompt, "Never suggest handing the conversation to a human")
		assert.NotContains(t, prompt, "offer to connect")
	})

	t.Run("personalization uses the stored name", func(t *testing.T) {
		svc := NewAnswerService(nil, PersonaPolicy{Name: "Siva", Personalize: true})

		prompt := svc.SystemInstruction(c)

		assert.Contains(t, prompt, "Ravi")
	})

	t.Run("no personalization for an unknown name", func(t *testing.T) {
		svc := NewAnswerService(nil, PersonaPolicy{Name: "Siva", Personalize: true})

		anon := domain.NewCorrespondent("corr-2", "971509999999", time.Now().UTC())
		prompt := svc.SystemInstruction(anon)

		assert.NotContains(t, prompt, "Address the customer by their first name")
	})

	t.Run("always guards stored details", func(t *testing.T) {
		svc := NewAnswerService(nil, PersonaPolicy{})

		prompt := svc.SystemInstruction(nil)

		assert.Contains(t, prompt, "Never reveal stored details")
	})
}

func TestContextBlock(t *testing.T) {
	now := time.Now().UTC()

	t.Run("labels each hit with rank and distance", func(t *testing.T) {
		chunk, err := domain.NewKnowledgeChunk("minimum balance is AED 3000", nil, now)
		require.NoError(t, err)

		block := ContextBlock([]*RetrievedChunk{{Chunk: chunk, Distance: 0.1234}})

		assert.Contains(t, block, "[1]")
		assert.Contains(t, block, "0.1234")
		assert.Contains(t, block, "minimum balance is AED 3000")
	})

	t.Run("empty retrieval says so explicitly", func(t *testing.T) {
		block := ContextBlock(nil)

		assert.Equal(t, "No relevant context was found.", block)
	})
}

func TestAnswerService_Generate(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	chunk, err := domain.NewKnowledgeChunk("minimum balance is AED 3000", nil, now)
	require.NoError(t, err)

	t.Run("sends context then question", func(t *testing.T) {
		completer := new(MockCompletionClient)
		svc := NewAnswerService(completer, PersonaPolicy{Name: "Siva"})

		completer.On("Complete", mock.Anything, mock.Anything, mock.MatchedBy(func(msgs []openai.ChatMessage) bool {
			return len(msgs) == 2 &&
				strings.Contains(msgs[0].Content, "minimum balance is AED 3000") &&
				msgs[1].Content == "what is the minimum balance"
		})).Return("The minimum balance is AED 3000.", nil)

		answer, err := svc.Generate(ctx, GenerateInput{
			Question:  "what is the minimum balance",
			Retrieved: []*RetrievedChunk{{Chunk: chunk, Distance: 0.1}},
		})

		require.NoError(t, err)
		assert.Equal(t, "The minimum balance is AED 3000.", answer)
		completer.AssertExpectations(t)
	})

	t.Run("appends the identity line", func(t *testing.T) {
		completer := new(MockCompletionClient)
		svc := NewAnswerService(completer, PersonaPolicy{Name: "Siva", IdentityLine: "Siva, Customer Care"})

		completer.On("Complete", mock.Anything, mock.Anything, mock.Anything).
			Return("The minimum balance is AED 3000.  ", nil)

		answer, err := svc.Generate(ctx, GenerateInput{Question: "what is the minimum balance"})

		require.NoError(t, err)
		assert.Equal(t, "The minimum balance is AED 3000.\n\nSiva, Customer Care", answer)
	})

	t.Run("provider failure maps to unavailable", func(t *testing.T) {
		completer := new(MockCompletionClient)
		svc := NewAnswerService(completer, PersonaPolicy{})

		completer.On("Complete", mock.Anything, mock.Anything, mock.Anything).
			Return("", errors.New("model overloaded"))

		_, err := svc.Generate(ctx, GenerateInput{Question: "anything"})

		assert.ErrorIs(t, err, domain.ErrGenerationUnavailable)
	})
}
