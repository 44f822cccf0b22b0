package conversation

import (
	"fmt"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/linguakid/linguakid/internal/config"
	"github.com/linguakid/linguakid/pkg/channel"
	"github.com/linguakid/linguakid/pkg/channel/gemini"
	"github.com/linguakid/linguakid/pkg/channel/openairt"
)

var Module = fx.Module("conversation",
	fx.Provide(
		newClock,
		newCapture,
		newOutput,
		newScheduler,
		newArchive,
		newChannelProvider,
		newManager,
	),
)

func newClock() Clock {
	return SystemClock()
}

func newCapture(logger *zap.Logger) Capture {
	return NewMicrophone(logger)
}

func newOutput(logger *zap.Logger) (Output, error) {
	return NewSpeaker(logger)
}

func newScheduler(logger *zap.Logger, clock Clock, output Output, cfg *config.Config) *Scheduler {
	leadTime := time.Duration(cfg.Live.LeadTimeMS) * time.Millisecond

	return NewScheduler(logger, clock, output, leadTime)
}

func newArchive(cfg *config.Config) (*Archive, error) {
	return NewArchive(cfg.Live.HistorySize)
}

func newChannelProvider(logger *zap.Logger, cfg *config.Config) (channel.Provider, error) {
	switch cfg.Live.Provider {
	case "openai":
		var opts []openairt.Option
		if cfg.OpenAI.Model != "" {
			opts = append(opts, openairt.WithModel(cfg.OpenAI.Model))
		}

		return openairt.New(logger, cfg.OpenAI.APIKey, opts...)
	case "", "gemini":
		var opts []gemini.Option
		if cfg.Gemini.Model != "" {
			opts = append(opts, gemini.WithModel(cfg.Gemini.Model))
		}

		return gemini.New(logger, cfg.Gemini.APIKey, opts...)
	default:
		return nil, fmt.Errorf("unknown live provider %q", cfg.Live.Provider)
	}
}

func newManager(logger *zap.Logger, provider channel.Provider, capture Capture, scheduler *Scheduler, archive *Archive, clock Clock, cfg *config.Config) *Manager {
	voice := cfg.Gemini.Voice
	if cfg.Live.Provider == "openai" {
		voice = cfg.OpenAI.Voice
	}

	return NewManager(logger, provider, capture, scheduler, archive, clock, Settings{
		Instructions:     cfg.Live.Instructions,
		Voice:            voice,
		Transcription:    cfg.Live.Transcription,
		MaxSessionLength: time.Duration(cfg.Live.MaxSessionLengthMin) * time.Minute,
	})
}
