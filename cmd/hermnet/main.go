package main

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"os"
	"os/signal"
	"syscall"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/hermnet/hermnet/adapters/events"
	"github.com/hermnet/hermnet/adapters/store"
	"github.com/hermnet/hermnet/adapters/tokenizer"
	"github.com/hermnet/hermnet/config"
	"github.com/hermnet/hermnet/internal/anonymize"
	"github.com/hermnet/hermnet/ports"
	"github.com/hermnet/hermnet/service"
	"github.com/hermnet/hermnet/transport/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	log := logrus.New()
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	clock := ports.SystemClock()

	// Token signing key. Generated per process; load from secure storage
	// in a deployment where tokens must survive restarts.
	signKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		log.Fatalf("Failed to generate signing key: %v", err)
	}

	mem := store.NewMemoryStore()
	var (
		users       ports.UserStore       = mem
		mailbox     ports.MailboxStore    = mem
		challenges  ports.ChallengeStore  = mem
		revocations ports.RevocationStore = mem
		rate        ports.RateLimitStore  = mem
	)

	if cfg.DatabaseURL != "" {
		pg, err := store.NewPostgresStore(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to Postgres: %v", err)
		}
		users, mailbox, challenges, revocations, rate = pg, pg, pg, pg, pg
		log.Info("using Postgres persistence")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	wmLogger := watermill.NewStdLogger(false, false)
	var publisher message.Publisher

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("Failed to parse Redis URL: %v", err)
		}
		redisClient := redis.NewClient(opts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}

		rs := store.NewRedisStore(redisClient)
		challenges, revocations, rate = rs, rs, rs
		log.Info("using Redis for security state")

		publisher, err = redisstream.NewPublisher(
			redisstream.PublisherConfig{Client: redisClient},
			wmLogger,
		)
		if err != nil {
			log.Fatalf("Failed to create Redis publisher: %v", err)
		}
	} else {
		publisher = gochannel.NewGoChannel(gochannel.Config{}, wmLogger)
	}

	eventPub := events.NewWatermillPublisher(publisher)
	tk := tokenizer.NewJWTTokenizer(signKey, clock)

	authService := service.NewAuthService(users, challenges, tk, eventPub, clock, log, cfg.ChallengeTTL, cfg.TokenLifetime)
	registry := service.NewRevocationRegistry(revocations, tk, eventPub, clock, log)
	limiter := service.NewRateLimiter(rate, clock, log, cfg.RateLimitWindow, cfg.RateLimitMax)
	userService := service.NewUserService(users, clock, log)
	mailboxService := service.NewMailboxService(mailbox, clock, log)

	sweeper := service.NewRetentionSweeper(mailbox, challenges, revocations, clock, log, cfg.SweepInterval, cfg.MailboxRetention)
	go sweeper.Run(ctx)

	handlers := http.NewHandlers(userService, authService, registry, mailboxService, log)
	router := http.SetupRouter(http.RouterDeps{
		Anonymizer: anonymize.New(cfg.AnonymizerSecret),
		Limiter:    limiter,
		Tokenizer:  tk,
		Registry:   registry,
		Handlers:   handlers,
		Clock:      clock,
		Log:        log,
	})

	log.WithField("addr", cfg.ListenAddr).Info("starting server")
	if err := router.Run(cfg.ListenAddr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
