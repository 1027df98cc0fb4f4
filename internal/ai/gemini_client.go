package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	genai "github.com/google/generative-ai-go/genai"

	"rag-knowledge-platform/internal/logger"
	"rag-knowledge-platform/models"
)

// ErrRateLimited is returned when the local token budget is exhausted
// before a request is even attempted.
var ErrRateLimited = errors.New("rate limit exceeded: wait before retry")

// GeminiClient wraps the Gemini API behind a circuit breaker, a local
// request rate limiter, and a token budget tracker. One client serves both
// generation and embedding calls.
type GeminiClient struct {
	client       *genai.Client
	breaker      *gobreaker.CircuitBreaker
	rateLimiter  *rate.Limiter
	tokenCounter *TokenCounter

	generationModel string
	embeddingsModel string
	tier            string
}

// TokenCounter tracks request and token consumption against per-minute and
// per-day windows.
type TokenCounter struct {
	mu              sync.Mutex
	limits          RateLimits
	minuteTokens    int
	dailyTokens     int
	minuteRequests  int
	dailyRequests   int
	lastMinuteReset time.Time
	lastDayReset    time.Time
}

type RateLimits struct {
	RPM int // Requests per minute
	TPM int // Tokens per minute
	RPD int // Requests per day
}

// NewGeminiClient dials the Gemini API and configures protection for the
// given pricing tier.
func NewGeminiClient(apiKey, tier, generationModel, embeddingsModel string) (*GeminiClient, error) {
	client, err := genai.NewClient(context.Background(), option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("new gemini client: %w", err)
	}

	limits := getRateLimits(tier)

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "GeminiAPI",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name, "from", from.String(), "to", to.String())
		},
	})

	// RPM limit with some buffer
	rateLimiter := rate.NewLimiter(rate.Limit(float64(limits.RPM)*0.9/60.0), limits.RPM/10)

	return &GeminiClient{
		client:          client,
		breaker:         breaker,
		rateLimiter:     rateLimiter,
		tokenCounter:    &TokenCounter{limits: limits},
		generationModel: generationModel,
		embeddingsModel: embeddingsModel,
		tier:            tier,
	}, nil
}

func getRateLimits(tier string) RateLimits {
	switch tier {
	case "free":
		return RateLimits{RPM: 10, TPM: 250000, RPD: 250}
	case "tier1":
		return RateLimits{RPM: 1000, TPM: 1000000, RPD: 10000}
	case "tier2":
		return RateLimits{RPM: 2000, TPM: 4000000, RPD: 50000}
	default:
		return RateLimits{RPM: 10, TPM: 250000, RPD: 250}
	}
}

// Generate produces a grounded answer for the query. The model is prompted
// for a strict JSON body; when the breaker is open a plain-text fallback is
// returned so callers degrade instead of erroring.
func (gc *GeminiClient) Generate(ctx context.Context, query string, contextBlocks []string, profile models.CallerProfile, history []string) (*models.GenerationResult, error) {
	tracer := otel.Tracer("gemini-client")
	ctx, span := tracer.Start(ctx, "gemini.generate")
	defer span.End()

	estimatedTokens := estimateTokens(query, contextBlocks)
	span.SetAttributes(
		attribute.Int("gemini.estimated_tokens", estimatedTokens),
		attribute.Int("gemini.context_blocks", len(contextBlocks)),
		attribute.String("gemini.model", gc.generationModel),
	)

	if !gc.tokenCounter.CanConsume(estimatedTokens, 1) {
		span.SetAttributes(attribute.Bool("gemini.rate_limited", true))
		return nil, ErrRateLimited
	}

	if err := gc.rateLimiter.Wait(ctx); err != nil {
		span.SetAttributes(attribute.Bool("gemini.rate_limited", true))
		return nil, err
	}

	result, err := gc.breaker.Execute(func() (interface{}, error) {
		model := gc.client.GenerativeModel(gc.generationModel)
		model.SetTemperature(0.2)
		model.SetMaxOutputTokens(2048)

		prompt := buildGroundedPrompt(query, contextBlocks, profile, history)

		resp, err := model.GenerateContent(ctx, genai.Text(prompt))
		if err != nil {
			span.SetAttributes(attribute.String("gemini.error_message", err.Error()))
			return nil, err
		}

		actualTokens := extractTokenUsage(resp)
		gc.tokenCounter.RecordUsage(actualTokens, 1)
		span.SetAttributes(attribute.Int("gemini.actual_tokens", actualTokens))

		return &models.GenerationResult{
			Text:       responseText(resp),
			TokensUsed: actualTokens,
		}, nil
	})

	if err != nil {
		if err == gobreaker.ErrOpenState {
			span.SetAttributes(attribute.Bool("gemini.circuit_breaker_open", true))
			return &models.GenerationResult{
				Text: "I'm experiencing high demand right now. Please try again in a moment.",
			}, nil
		}
		span.SetAttributes(attribute.Bool("gemini.error", true))
		return nil, err
	}

	span.SetAttributes(attribute.Bool("gemini.success", true))
	return result.(*models.GenerationResult), nil
}

func (tc *TokenCounter) CanConsume(tokens, requests int) bool {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	now := time.Now()

	if now.Sub(tc.lastMinuteReset) >= time.Minute {
		tc.minuteTokens = 0
		tc.minuteRequests = 0
		tc.lastMinuteReset = now
	}
	if now.Sub(tc.lastDayReset) >= 24*time.Hour {
		tc.dailyTokens = 0
		tc.dailyRequests = 0
		tc.lastDayReset = now
	}

	if tc.minuteRequests+requests > tc.limits.RPM {
		return false
	}
	if tc.minuteTokens+tokens > tc.limits.TPM {
		return false
	}
	if tc.dailyRequests+requests > tc.limits.RPD {
		return false
	}
	return true
}

func (tc *TokenCounter) RecordUsage(tokens, requests int) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	tc.minuteTokens += tokens
	tc.minuteRequests += requests
	tc.dailyTokens += tokens
	tc.dailyRequests += requests
}

// Rough estimation: 1 token ≈ 4 characters.
func estimateTokens(prompt string, chunks []string) int {
	total := len(prompt)
	for _, chunk := range chunks {
		total += len(chunk) + 1
	}
	return total / 4
}

func extractTokenUsage(resp *genai.GenerateContentResponse) int {
	if resp.UsageMetadata != nil {
		return int(resp.UsageMetadata.TotalTokenCount)
	}
	estimated := len(collectText(resp)) / 4
	if estimated < 1 {
		estimated = 1
	}
	return estimated
}

func responseText(resp *genai.GenerateContentResponse) string {
	return collectText(resp)
}

func collectText(resp *genai.GenerateContentResponse) string {
	var b strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				b.WriteString(string(text))
			}
		}
	}
	return b.String()
}

// buildGroundedPrompt assembles the RAG prompt. The model is instructed to
// answer only from the numbered context blocks and to respond with a JSON
// object carrying the answer, a confidence level, verbatim citations, and a
// note on anything the context could not answer.
func buildGroundedPrompt(query string, contextBlocks []string, profile models.CallerProfile, history []string) string {
	var b strings.Builder

	b.WriteString("You are an internal knowledge-base assistant. Answer strictly from the context below.\n")
	b.WriteString("Do not use outside knowledge. If the context does not answer the question, say so.\n\n")

	for i, block := range contextBlocks {
		fmt.Fprintf(&b, "Context %d:\n%s\n\n", i+1, block)
	}

	if len(history) > 0 {
		b.WriteString("Recent conversation:\n")
		for _, turn := range history {
			b.WriteString(turn)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if profile.Name != "" {
		fmt.Fprintf(&b, "The person asking is %s (%s, %s department).\n\n",
			profile.Name, profile.Role, profile.Department)
	}

	fmt.Fprintf(&b, "Question: %s\n\n", query)

	b.WriteString(`Respond with only a JSON object in this exact shape:
{
  "answer": "your answer",
  "confidence": "High" | "Medium" | "Low",
  "citations": [{"quote": "verbatim text copied from a context block", "source": "Context N"}],
  "missing_information": "what the context could not answer, or empty string"
}
Every citation quote must be copied verbatim from a context block.`)

	return b.String()
}

// Close releases the underlying API client.
func (gc *GeminiClient) Close() error {
	if gc.client != nil {
		return gc.client.Close()
	}
	return nil
}
