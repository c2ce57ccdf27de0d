package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize/english"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
)

const storytellerSystemPrompt = `You narrate a game of werewolf played over a chat line in a small medieval village. You are told who fell, when, and what the whole village has witnessed so far. Never reveal a secret role the record does not already show, and never hint at who the werewolves are. Answer with two or three gothic sentences and nothing else.`

// Scene is what the narrator is told after a round that cost lives
type Scene struct {
	Round   int
	Phase   Phase
	Fallen  []string
	Alive   []string
	History []string // public ledger entries, oldest first
}

// Storyteller turns a scene into a short story
type Storyteller interface {
	Narrate(ctx context.Context, scene Scene) (string, error)
}

// storyTimeout bounds one narration request
const storyTimeout = 30 * time.Second

// storyMaxTokens caps a story; thinking models spend part of it reasoning
const storyMaxTokens = 512

type llmStoryteller struct {
	llm      llms.Model
	callOpts []llms.CallOption
}

func (s *llmStoryteller) Narrate(ctx context.Context, scene Scene) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, storytellerSystemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, scenePrompt(scene)),
	}
	resp, err := s.llm.GenerateContent(ctx, messages, s.callOpts...)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("storyteller: empty response")
	}
	return strings.TrimSpace(resp.Choices[0].Content), nil
}

// scenePrompt renders a scene as the narrator's instructions
func scenePrompt(scene Scene) string {
	var b strings.Builder
	if scene.Phase == PhaseNight {
		fmt.Fprintf(&b, "Dawn after night %d.", scene.Round)
	} else {
		fmt.Fprintf(&b, "Dusk of day %d, after the village vote.", scene.Round)
	}
	fmt.Fprintf(&b, " Fallen: %s.", english.WordSeries(scene.Fallen, "and"))
	if len(scene.Alive) > 0 {
		fmt.Fprintf(&b, " Still standing: %s.", english.WordSeries(scene.Alive, "and"))
	}
	if len(scene.History) > 0 {
		b.WriteString("\n\nWhat the village has witnessed:\n")
		for _, h := range scene.History {
			b.WriteString("- " + h + "\n")
		}
	}
	fmt.Fprintf(&b, "\nTell how %s met their end.", english.WordSeries(scene.Fallen, "and"))
	return b.String()
}

var thinkingModes = map[string]llms.ThinkingMode{
	"none":   llms.ThinkingModeNone,
	"low":    llms.ThinkingModeLow,
	"medium": llms.ThinkingModeMedium,
	"high":   llms.ThinkingModeHigh,
	"auto":   llms.ThinkingModeAuto,
}

// buildCallOpts turns the storyteller settings into call options. Invalid
// settings are logged and left out; the token cap is always set.
func buildCallOpts(cfg AppConfig) []llms.CallOption {
	opts := []llms.CallOption{llms.WithMaxTokens(storyMaxTokens)}

	if raw := cfg.StorytellerTemperature; raw != "" {
		t, err := strconv.ParseFloat(raw, 64)
		switch {
		case err != nil:
			zap.L().Warn("Storyteller: ignoring temperature", zap.String("value", raw), zap.Error(err))
		case t < 0 || t > 2:
			zap.L().Warn("Storyteller: temperature out of range 0-2", zap.Float64("temperature", t))
		default:
			opts = append(opts, llms.WithTemperature(t))
		}
	}

	if raw := cfg.StorytellerThinking; raw != "" {
		if mode, ok := thinkingModes[strings.ToLower(raw)]; ok {
			opts = append(opts, llms.WithThinkingMode(mode))
		} else {
			zap.L().Warn("Storyteller: ignoring thinking mode", zap.String("value", raw))
		}
	}

	return opts
}

// initStoryteller builds the configured storyteller; nil means narration is off.
func initStoryteller(cfg AppConfig) Storyteller {
	provider := cfg.StorytellerProvider
	model := cfg.StorytellerModel
	callOpts := buildCallOpts(cfg)
	log := zap.L().With(zap.String("provider", provider), zap.String("model", model))

	var (
		llm llms.Model
		err error
	)
	switch provider {
	case "ollama":
		llm, err = ollama.New(ollama.WithModel(model), ollama.WithServerURL(cfg.StorytellerOllamaURL))
	case "openai":
		llm, err = openai.New(openai.WithModel(model))
	case "claude":
		llm, err = anthropic.New(anthropic.WithModel(model))
	case "gemini":
		llm, err = googleai.New(context.Background(), googleai.WithDefaultModel(model))
	case "groq":
		llm, err = openai.New(
			openai.WithModel(model),
			openai.WithBaseURL("https://api.groq.com/openai/v1"),
			openai.WithToken(cfg.GroqAPIKey),
		)
	case "openai-compatible":
		if cfg.StorytellerURL == "" {
			log.Warn("Storyteller: storyteller_url is required for openai-compatible provider")
			return nil
		}
		opts := []openai.Option{
			openai.WithModel(model),
			openai.WithBaseURL(cfg.StorytellerURL),
		}
		if cfg.StorytellerAPIKey != "" {
			opts = append(opts, openai.WithToken(cfg.StorytellerAPIKey))
		}
		llm, err = openai.New(opts...)
	default:
		zap.L().Info("Storyteller: disabled (set storyteller_provider to enable)")
		return nil
	}
	if err != nil {
		log.Error("Storyteller: failed to init", zap.Error(err))
		return nil
	}

	log.Info("Storyteller: enabled")
	return &llmStoryteller{llm: llm, callOpts: callOpts}
}

// maybeTellStory asks the storyteller, in the background, to narrate the deaths
// since the last story. Registry lock held.
func (g *Game) maybeTellStory() {
	fallen := g.fallen
	g.fallen = nil
	if g.teller == nil || len(fallen) == 0 {
		return
	}

	history, err := g.ledger.PublicHistory(g.reg.gameID)
	if err != nil {
		logError("maybeTellStory: fetch history", err)
	}
	scene := Scene{
		Round:   g.reg.round,
		Phase:   g.reg.phase,
		Fallen:  fallen,
		Alive:   g.reg.Names(g.reg.Alive()),
		History: history,
	}

	g.stories.Add(1)
	go g.tellStory(g.reg.gameID, scene)
}

// tellStory runs without the lock until the story is ready
func (g *Game) tellStory(gameID int64, scene Scene) {
	defer g.stories.Done()

	ctx, cancel := context.WithTimeout(context.Background(), storyTimeout)
	defer cancel()

	text, err := g.teller.Narrate(ctx, scene)
	if err != nil {
		zap.L().Warn("Storyteller: generation failed", zap.Int64("game", gameID), zap.Error(err))
		return
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	g.reg.Lock()
	defer g.reg.Unlock()

	// a restart in the meantime makes the story stale
	if g.reg.gameID != gameID {
		DebugLog("tellStory", "Dropping story for game %d, current game is %d", gameID, g.reg.gameID)
		return
	}
	g.broadcast(MsgChat, "[Storyteller] "+text, nil)
	if err := g.ledger.Record(GameAction{
		GameID:      gameID,
		Round:       scene.Round,
		Phase:       string(scene.Phase),
		ActionType:  ActionStory,
		Visibility:  VisibilityPublic,
		Description: text,
	}); err != nil {
		logError("tellStory: record", err)
	}
	zap.L().Info("Storyteller: completed story", zap.Int64("game", gameID), zap.Int("round", scene.Round), zap.Strings("fallen", scene.Fallen))
}
