package main

import (
	"context"
	"expvar"
	"log"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/marloweh/tutti/internal/domain"
	"github.com/marloweh/tutti/internal/infrastructure/bus"
	"github.com/marloweh/tutti/internal/infrastructure/configs"
	"github.com/marloweh/tutti/internal/infrastructure/logging"
	"github.com/marloweh/tutti/internal/infrastructure/ratelimiter"
	"github.com/marloweh/tutti/internal/infrastructure/tracing"
	"github.com/marloweh/tutti/internal/lifecycle"
	"github.com/marloweh/tutti/internal/persistence/db"
	"github.com/marloweh/tutti/internal/persistence/repository"
	"github.com/marloweh/tutti/internal/presentation/api"
	"github.com/marloweh/tutti/internal/presentation/handler/health"
	"github.com/marloweh/tutti/internal/presentation/handler/rooms"
	"github.com/marloweh/tutti/internal/presentation/ws"
	"github.com/marloweh/tutti/internal/roomdoc"
	"github.com/marloweh/tutti/internal/session"
	"github.com/marloweh/tutti/internal/sync/broadcast"
	"github.com/marloweh/tutti/internal/synth"
)

const (
	serviceName = "tutti-api"
)

func main() {
	tracerCfg := tracing.NewDefaultConfig(serviceName)

	sh, err := tracing.InitTracer(tracerCfg)
	if err != nil {
		log.Fatalf("Failed to initialize the tracer: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer sh(ctx)

	logger := zap.Must(zap.NewProduction()).Sugar()
	defer logger.Sync()

	appLogger := logging.NewLogger(logging.NewDefaultConfig())
	appLogger.Init()

	configPath := configs.DetermineConfigPath()
	cfg, err := configs.Load(configPath)
	if err != nil {
		log.Fatal(err)
	}

	docs := roomdoc.NewMemory(int(cfg.RoomStore.Capacity))

	audit := domain.RoomAuditRepository(repository.NewNoopAuditRepository())
	if cfg.Mongo.Enabled {
		mongoCfg := &db.MongoConfig{
			URI:               cfg.Mongo.URI,
			Database:          cfg.Mongo.Database,
			ConnectionTimeout: db.DefaultConnectionTimeout,
		}
		client, err := db.NewMongoClient(ctx, mongoCfg)
		if err != nil {
			log.Fatal(err)
		}
		defer db.DisconnectMongo(context.Background(), client)

		audit = repository.NewRoomAuditLogRepository(db.GetDatabase(client, mongoCfg))
		if err := audit.EnsureIndexes(ctx); err != nil {
			log.Fatalf("Failed to ensure audit indexes: %v", err)
		}
	}

	var noteBus bus.Bus
	switch cfg.Bus.Driver {
	case "amqp":
		amqpBus, err := bus.NewAMQP(cfg.Bus.URI)
		if err != nil {
			log.Fatal(err)
		}
		defer amqpBus.Close()
		noteBus = amqpBus
		log.Println("Starting RabbitMQ note bus")
	default:
		noteBus = bus.NewMemory()
	}

	registry := ws.NewRegistry()
	broadcaster := broadcast.New(noteBus, docs, appLogger)

	reaper := lifecycle.NewManager(lifecycle.Config{
		Docs:        docs,
		Audit:       audit,
		Notifier:    registry,
		Logger:      appLogger,
		Tick:        cfg.Lifecycle.Tick,
		HostTimeout: cfg.Lifecycle.HostLivenessTimeout,
	})
	go reaper.Run(ctx)

	// note-level limiter, keyed by participant id at the ws bridge
	noteLimiter := ratelimiter.New(ratelimiter.Options{
		MaxRatePerSecond: cfg.RateLimiter.NotesPerSecond,
		MaxBurst:         cfg.RateLimiter.MaxBurst,
		CacheTTL:         cfg.RateLimiter.CacheTTL,
	})
	// request-level limiter for the HTTP surface
	httpLimiter := ratelimiter.New(ratelimiter.Options{
		MaxRatePerSecond: cfg.RateLimiter.NotesPerSecond,
		MaxBurst:         cfg.RateLimiter.MaxBurst,
		CacheTTL:         cfg.RateLimiter.CacheTTL,
	})

	if cfg.Audio.Enabled {
		startAudioMonitor(ctx, cfg, noteBus, docs, appLogger)
	}

	tunables := ws.Tunables{
		Staleness:         cfg.Sync.StalenessThreshold,
		EchoTTL:           cfg.Sync.EchoTTL,
		SetupDebounce:     cfg.Sync.SetupDebounce,
		HeartbeatInterval: cfg.Lifecycle.HeartbeatInterval,
	}
	roomHandler := rooms.NewHandler(docs, audit, noteBus, registry, broadcaster, noteLimiter, tunables, appLogger)
	healthHandler := health.NewHandler()

	app := api.NewApplication(*cfg, roomHandler, healthHandler, logger, httpLimiter)

	expvar.Publish("goroutines", expvar.Func(func() any {
		return runtime.NumGoroutine()
	}))

	mux := app.Mount()
	logger.Fatal(app.Run(mux))
}

// startAudioMonitor joins the configured room as a listening participant and
// renders its note traffic to the local audio device.
func startAudioMonitor(ctx context.Context, cfg *configs.Config, noteBus bus.Bus, docs roomdoc.Store, appLogger logging.Logger) {
	engine := synth.NewEngine(synth.Config{
		SampleRate:    cfg.Audio.SampleRate,
		SoundFontPath: cfg.Audio.SoundFontPath,
		MasterVolume:  cfg.Audio.MasterVolume,
	}, appLogger)

	monitor, err := domain.NewParticipant("monitor", "piano")
	if err != nil {
		log.Fatalf("Failed to create monitor participant: %v", err)
	}

	sess := session.New(session.Config{
		Bus:       noteBus,
		Docs:      docs,
		Engine:    engine,
		Logger:    appLogger,
		Staleness: cfg.Sync.StalenessThreshold,
		EchoTTL:   cfg.Sync.EchoTTL,
	})

	roomID := cfg.Audio.MonitorRoom
	if roomID == "" {
		log.Println("Audio enabled but no monitor room configured; skipping audio monitor")
		return
	}

	// The monitored room may not exist yet; retry until it does.
	go func() {
		for {
			if err := sess.Join(ctx, roomID, *monitor); err == nil {
				break
			}
			select {
			case <-time.After(5 * time.Second):
			case <-ctx.Done():
				return
			}
		}

		if err := sess.InitializeAudio(); err != nil {
			log.Printf("Failed to initialize audio: %v", err)
			sess.Leave(ctx)
			return
		}

		output := synth.NewSpeakerOutput(cfg.Audio.SampleRate)
		if err := output.Start(engine); err != nil {
			log.Printf("Failed to open audio output: %v", err)
			sess.DisposeAudio()
			sess.Leave(ctx)
			return
		}

		<-ctx.Done()
		_ = output.Close()
		sess.DisposeAudio()
		sess.Leave(context.Background())
	}()
}
