package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/chadiek/ai-interviewer/internal/agent"
	"github.com/chadiek/ai-interviewer/internal/config"
	"github.com/chadiek/ai-interviewer/internal/gatekeeper"
	"github.com/chadiek/ai-interviewer/internal/httpserver"
	"github.com/chadiek/ai-interviewer/internal/infra/db"
	"github.com/chadiek/ai-interviewer/internal/infra/storage"
	"github.com/chadiek/ai-interviewer/internal/interview"
	"github.com/chadiek/ai-interviewer/internal/llm"
	"github.com/chadiek/ai-interviewer/internal/logging"
	"github.com/chadiek/ai-interviewer/internal/metrics"
	"github.com/chadiek/ai-interviewer/internal/rtc"
	"github.com/chadiek/ai-interviewer/internal/session"
	"github.com/chadiek/ai-interviewer/internal/sessions"
	"github.com/chadiek/ai-interviewer/internal/summary"
	"github.com/chadiek/ai-interviewer/internal/transcript"
	"github.com/chadiek/ai-interviewer/internal/tts"
)

const shutdownNotice = "The server is restarting. Your progress is saved and you can rejoin with the same link."

// speaker is a TTS client that also reports the audio format it produces.
type speaker interface {
	agent.TTS
	ContentType() string
}

func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the interview HTTP and WebSocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
	flags := cmd.Flags()
	flags.String("addr", "", "HTTP listen address")
	flags.Duration("duration", 0, "interview length")
	flags.String("questions", "", "path to a question bank YAML file")
	_ = v.BindPFlag("http_address", flags.Lookup("addr"))
	_ = v.BindPFlag("interview_duration", flags.Lookup("duration"))
	_ = v.BindPFlag("questions_file", flags.Lookup("questions"))
	return cmd
}

func serve(parent context.Context, cfg config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	for _, w := range cfg.Warnings() {
		log.Warn(w)
	}

	store, err := openStore(parent, cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()
	media, err := openMedia(cfg)
	if err != nil {
		return err
	}
	bank := agent.DefaultQuestionBank()
	if cfg.QuestionsFile != "" {
		if bank, err = agent.LoadQuestionBank(cfg.QuestionsFile); err != nil {
			return err
		}
	}

	m := metrics.New("interviewer")
	chat := newChat(cfg)
	voice := newSpeaker(cfg, log)

	pipeline := transcript.NewPipeline(transcript.NewWhisperClient(cfg.OpenAIKey, cfg.WhisperModel), log)
	pipeline.TempDir = cfg.TempDir
	pipeline.Metrics = m
	summarizer := summary.NewGenerator(chat, 60*time.Second, log, m)

	gate := gatekeeper.New(store, nil)
	tracker := sessions.NewTracker()

	newSession := func(rec *interview.Record) (*session.Session, error) {
		engine, err := agent.NewEngine(chat, voice, agent.Config{
			CandidateName: rec.CandidateName,
			Job:           rec.Job,
			History:       rec.Transcript,
			Bank:          bank,
			FollowUpAt:    cfg.FollowUpAt,
			Log:           log.WithField("interview", rec.ID),
			Metrics:       m,
		})
		if err != nil {
			return nil, err
		}
		return session.New(rec, session.Deps{
			Engine:      engine,
			Transcriber: pipeline,
			Summarizer:  summarizer,
			Store:       store,
			Media:       media,
		}, session.Config{
			Duration:        cfg.InterviewDuration,
			NaturalEndGrace: cfg.NaturalEndGrace,
			ForcedEndGrace:  cfg.ForcedEndGrace,
			CloseDelay:      cfg.CloseDelay,
			AudioMIME:       voice.ContentType(),
			Log:             log,
			Metrics:         m,
		}), nil
	}

	e := httpserver.New(log)
	uploadsDir := ""
	if cfg.MediaDriver == config.MediaLocal {
		uploadsDir = cfg.UploadsDir
	}
	httpserver.Handlers{
		Gate:         gate,
		Store:        store,
		Media:        media,
		WS:           rtc.NewHandler(gate, newSession, tracker, rtc.Config{}, log, m),
		Tracker:      tracker,
		Metrics:      m,
		Log:          log,
		UploadsDir:   uploadsDir,
		MetricsToken: cfg.MetricsToken,
	}.Register(e)

	server := &http.Server{
		Addr:              cfg.HTTPAddress,
		Handler:           e,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.HTTPAddress).Info("server listening")
		serverErrors <- server.ListenAndServe()
	}()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	tracker.SetDraining(true)
	if n := tracker.NotifyAll(shutdownNotice); n > 0 {
		log.WithField("sessions", n).Info("notified live sessions")
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("graceful shutdown failed")
		_ = server.Close()
	}
	// Hijacked WebSocket connections outlive Shutdown.
	tracker.CancelAll()
	if !tracker.Wait(shutdownCtx) {
		log.WithField("sessions", tracker.Count()).Warn("sessions still running at exit")
	}
	return nil
}

func openStore(ctx context.Context, cfg config.Config, log logrus.FieldLogger) (db.Gateway, error) {
	switch cfg.StoreDriver {
	case config.StorePostgres:
		pg, err := db.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if cfg.AutoMigrate {
			if err := pg.Migrate(ctx); err != nil {
				_ = pg.Close()
				return nil, err
			}
			log.Info("database migrations applied")
		}
		return pg, nil
	case config.StoreSupabase:
		return db.NewSupabase(cfg.SupabaseURL, cfg.SupabaseKey)
	default:
		log.Warn("using in-memory store; interviews are lost on restart")
		return db.NewMemory(), nil
	}
}

func openMedia(cfg config.Config) (storage.Storage, error) {
	if cfg.MediaDriver == config.MediaSupabase {
		return storage.NewSupabase(cfg.SupabaseURL, cfg.SupabaseKey, cfg.SupabaseBucket)
	}
	return storage.NewLocal(cfg.UploadsDir, "/uploads")
}

func newChat(cfg config.Config) *llm.ChatClient {
	if cfg.LLMProvider == config.LLMOpenAI {
		return llm.NewOpenAIClient(cfg.OpenAIKey, cfg.OpenAIModel)
	}
	return llm.NewCerebrasClient(cfg.CerebrasKey, cfg.CerebrasModelID)
}

func newSpeaker(cfg config.Config, log logrus.FieldLogger) speaker {
	if cfg.TTSProvider == config.TTSDeepgram {
		return tts.NewDeepgramClient(cfg.DeepgramKey, cfg.DeepgramModel, log)
	}
	return tts.NewElevenLabsClient(cfg.ElevenLabsKey, cfg.ElevenLabsVoiceID)
}
