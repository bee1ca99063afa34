package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/wbarena/arena/internal/core"
)

// RealProviderConfig configures one cloud language-model backend.
type RealProviderConfig struct {
	Name               string
	APIKey             string
	Model              string
	Temperature        float64
	MaxOutputTokens    int
	Timeout            time.Duration
}

// NewRealProvider builds a Provider backed by langchaingo for one of the
// cloud backends spec.md §6 names (openai, anthropic, gemini). It keeps
// the full turn-by-turn transcript in the conversation handle and resends
// it on every call ("message-history resending", spec.md §4.2) rather
// than relying on any provider-specific server-side thread id.
func NewRealProvider(cfg RealProviderConfig) (Provider, error) {
	model, err := buildModel(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &langchainProvider{cfg: cfg, model: model}, nil
}

func buildModel(cfg RealProviderConfig) (llms.Model, error) {
	switch cfg.Name {
	case "openai":
		return openai.New(openai.WithToken(cfg.APIKey), openai.WithModel(cfg.Model))
	case "anthropic":
		return anthropic.New(anthropic.WithToken(cfg.APIKey), anthropic.WithModel(cfg.Model))
	case "gemini":
		return googleai.New(context.Background(), googleai.WithAPIKey(cfg.APIKey), googleai.WithDefaultModel(cfg.Model))
	default:
		return nil, fmt.Errorf("unknown real provider %q", cfg.Name)
	}
}

type langchainProvider struct {
	cfg   RealProviderConfig
	model llms.Model
}

func (p *langchainProvider) Name() string    { return p.cfg.Name }
func (p *langchainProvider) Available() bool { return p.cfg.APIKey != "" }

func (p *langchainProvider) StartConversation(ctx context.Context, team core.TeamID, challenge core.Challenge, initialCanon core.Canon) (core.ConversationHandle, error) {
	system := systemPrompt(team, challenge, initialCanon)
	return core.ConversationHandle{
		Provider: p.cfg.Name,
		TeamID:   team,
		Data: map[string]interface{}{
			"transcript": []string{system},
		},
	}, nil
}

func (p *langchainProvider) GenerateTurn(ctx context.Context, handle core.ConversationHandle, spec core.TurnSpec) (core.TurnOutput, core.ConversationHandle, core.Usage, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	transcript, _ := handle.Data["transcript"].([]string)
	instruction := turnInstruction(spec)
	prompt := strings.Join(append(append([]string{}, transcript...), instruction), "\n\n")

	completion, err := llms.GenerateFromSinglePrompt(ctx, p.model, prompt,
		llms.WithTemperature(p.cfg.Temperature),
		llms.WithMaxTokens(p.cfg.MaxOutputTokens),
		llms.WithJSONMode(),
	)
	if err != nil {
		kind := classifyError(ctx, err)
		return core.TurnOutput{}, handle, core.Usage{}, &ProviderError{Kind: kind, Provider: p.cfg.Name, Message: "generate_turn failed", Err: err}
	}

	var out core.TurnOutput
	if jsonErr := json.Unmarshal([]byte(extractJSON(completion)), &out); jsonErr != nil {
		return core.TurnOutput{}, handle, core.Usage{}, &ProviderError{
			Kind: ErrSchemaViolation, Provider: p.cfg.Name,
			Message: "response did not parse as TurnOutput", Err: jsonErr,
		}
	}

	newTranscript := append(append([]string{}, transcript...), instruction, completion)
	newHandle := handle
	newData := make(map[string]interface{}, len(handle.Data))
	for k, v := range handle.Data {
		newData[k] = v
	}
	newData["transcript"] = newTranscript
	newHandle.Data = newData

	return out, newHandle, core.Usage{}, nil
}

func (p *langchainProvider) GeneratePromptPack(ctx context.Context, c core.Canon) (core.PromptPack, core.Usage, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	canonJSON, err := json.Marshal(c)
	if err != nil {
		return core.PromptPack{}, core.Usage{}, fmt.Errorf("marshal canon for prompt pack: %w", err)
	}
	prompt := fmt.Sprintf(
		"Given this finalized fictional-world canon (JSON): %s\n"+
			"Produce a JSON PromptPack object with fields hero_image, landmark_triptych (exactly 3 entries), "+
			"inhabitant_portrait, tension_snapshot, each an object with title, prompt, and optional negative_prompt "+
			"and aspect_ratio. No transcript or conversation context — judge the canon on its own.", string(canonJSON))

	completion, err := llms.GenerateFromSinglePrompt(ctx, p.model, prompt,
		llms.WithTemperature(p.cfg.Temperature),
		llms.WithMaxTokens(p.cfg.MaxOutputTokens),
		llms.WithJSONMode(),
	)
	if err != nil {
		return core.PromptPack{}, core.Usage{}, &ProviderError{Kind: classifyError(ctx, err), Provider: p.cfg.Name, Message: "generate_prompt_pack failed", Err: err}
	}

	var pack core.PromptPack
	if jsonErr := json.Unmarshal([]byte(extractJSON(completion)), &pack); jsonErr != nil {
		return core.PromptPack{}, core.Usage{}, &ProviderError{Kind: ErrSchemaViolation, Provider: p.cfg.Name, Message: "prompt pack response did not parse", Err: jsonErr}
	}
	return pack, core.Usage{}, nil
}

func systemPrompt(team core.TeamID, challenge core.Challenge, canon core.Canon) string {
	return fmt.Sprintf(
		"You are role-playing four fixed agents (ARCHITECT, LOREKEEPER, CONTRARIAN, SYNTHESIZER) collaboratively "+
			"building a fictional world for team %s under this challenge: biome=%q inhabitants=%q twist=%q. "+
			"Every reply must be a single JSON object matching the TurnOutput schema: "+
			"speaker_role, turn_type, content, optional canon_patch, optional references, optional vote.",
		team, challenge.BiomeSetting, challenge.Inhabitants, challenge.TwistConstraint)
}

func turnInstruction(spec core.TurnSpec) string {
	b := &strings.Builder{}
	fmt.Fprintf(b, "Produce the next turn: role=%s turn_type=%s phase=%d round=%d.", spec.Role, spec.TurnType, spec.Phase, spec.Round)
	if len(spec.AllowedPatchPrefixes) > 0 {
		fmt.Fprintf(b, " Any canon_patch must target only: %s.", strings.Join(spec.AllowedPatchPrefixes, ", "))
	}
	if spec.Hint != "" {
		fmt.Fprintf(b, " Hint: %s", spec.Hint)
	}
	if spec.Tiebreak {
		b.WriteString(" This is a binding tiebreak resolution.")
	}
	if spec.Repair != nil {
		fmt.Fprintf(b, " Your previous attempt failed validation with: %s. Correct it.", strings.Join(spec.Repair.Errors, "; "))
	}
	return b.String()
}

// extractJSON trims any prose wrapping a model sometimes adds around the
// JSON object despite JSON mode being requested.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end == -1 || end < start {
		return s
	}
	return s[start : end+1]
}

func classifyError(ctx context.Context, err error) ErrorKind {
	if ctx.Err() == context.DeadlineExceeded {
		return ErrTimeout
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "rate limit") || strings.Contains(msg, "429"):
		return ErrRateLimited
	case strings.Contains(msg, "unavailable") || strings.Contains(msg, "503") || strings.Contains(msg, "connection"):
		return ErrUnavailable
	default:
		return ErrUnavailable
	}
}
