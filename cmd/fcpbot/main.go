package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/fcpbot/fcpbot/internal/archive"
	"github.com/fcpbot/fcpbot/internal/config"
	"github.com/fcpbot/fcpbot/internal/events"
	"github.com/fcpbot/fcpbot/internal/fcp"
	"github.com/fcpbot/fcpbot/internal/github"
	"github.com/fcpbot/fcpbot/internal/scheduler"
	"github.com/fcpbot/fcpbot/internal/store"
	"github.com/fcpbot/fcpbot/internal/webhook"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// Timer store: Postgres when configured, otherwise in-memory for dev.
	// Without Postgres pending FCP deadlines do not survive a restart.
	var (
		db         *sql.DB
		timerStore store.TimerStore
	)
	if cfg.DatabaseURL != "" {
		db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("failed to open postgres: %v", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := db.PingContext(ctx); err != nil {
			cancel()
			log.Fatalf("failed to ping postgres: %v", err)
		}
		pg := store.NewPGStore(db)
		if err := pg.EnsureSchema(ctx); err != nil {
			cancel()
			log.Fatalf("failed to ensure schema: %v", err)
		}
		cancel()
		timerStore = pg
		log.Println("connected to postgres")
	} else {
		timerStore = store.NewMemoryStore()
		log.Println("no postgres configured; timers will not survive restarts")
	}

	// Platform client: personal access token when set, otherwise app JWTs.
	var tokens github.TokenSource
	if cfg.GithubToken != "" {
		tokens = github.StaticToken(cfg.GithubToken)
	} else {
		tokens, err = github.NewAppTokenSource(cfg.GithubAppID, []byte(cfg.GithubAppKey))
		if err != nil {
			log.Fatalf("failed to initialize app token source: %v", err)
		}
		log.Printf("using app authentication (app id %s)", cfg.GithubAppID)
	}
	client, err := github.NewHTTPClient(github.HTTPClientConfig{
		BaseURL:  cfg.GithubBaseURL,
		Owner:    cfg.RepoOwner,
		Repo:     cfg.RepoName,
		TeamSlug: cfg.TeamSlug,
		Tokens:   tokens,
		Retries:  2,
	})
	if err != nil {
		log.Fatalf("failed to initialize platform client: %v", err)
	}

	var publisher events.Publisher = events.NopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		kp, err := events.NewKafkaPublisher(events.KafkaPublisherConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
		})
		if err != nil {
			log.Fatalf("failed to initialize kafka publisher: %v", err)
		}
		publisher = kp
		log.Printf("kafka publisher initialized (brokers=%v topic=%s)", cfg.KafkaBrokers, cfg.KafkaTopic)
	} else {
		log.Println("no kafka brokers configured; lifecycle events disabled")
	}

	var archiver archive.Archiver = archive.NopArchiver{}
	if cfg.S3Bucket != "" {
		s3a, err := archive.NewS3Archiver(context.Background(), cfg.S3Bucket, cfg.S3Prefix)
		if err != nil {
			log.Fatalf("failed to initialize s3 archiver: %v", err)
		}
		archiver = s3a
		log.Printf("s3 archiver initialized (bucket=%s prefix=%s)", cfg.S3Bucket, cfg.S3Prefix)
	} else {
		log.Println("no s3 bucket configured; document archiving disabled")
	}

	// The scheduler and the handler reference each other: fired timers call
	// back into the handler, commands schedule and cancel timers.
	var handler *fcp.Handler
	sched := scheduler.New(timerStore, func(ctx context.Context, proposalNum int) {
		handler.HandleTimerFired(ctx, proposalNum)
	})
	handler = fcp.New(cfg, client, sched, publisher, archiver)

	schedCtx, schedCancel := context.WithCancel(context.Background())
	defer schedCancel()
	if err := sched.Start(schedCtx); err != nil {
		log.Fatalf("failed to start scheduler: %v", err)
	}

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      webhook.New(cfg, handler, timerStore).Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("starting fcpbot server on %s (repo %s/%s, team %s)", cfg.Addr, cfg.RepoOwner, cfg.RepoName, cfg.TeamSlug)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Println("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("http shutdown error: %v", err)
	}

	sched.Stop()
	schedCancel()

	if err := publisher.Close(); err != nil {
		log.Printf("closing publisher: %v", err)
	}
	if db != nil {
		_ = db.Close()
	}
	log.Println("stopped")
}
