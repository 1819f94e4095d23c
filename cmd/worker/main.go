package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/outreach-engine/internal/budget"
	"github.com/ignite/outreach-engine/internal/compliance"
	"github.com/ignite/outreach-engine/internal/config"
	"github.com/ignite/outreach-engine/internal/enrich"
	"github.com/ignite/outreach-engine/internal/followup"
	"github.com/ignite/outreach-engine/internal/lifecycle"
	"github.com/ignite/outreach-engine/internal/mailer"
	"github.com/ignite/outreach-engine/internal/pkg/distlock"
	"github.com/ignite/outreach-engine/internal/quota"
	"github.com/ignite/outreach-engine/internal/schedule"
	"github.com/ignite/outreach-engine/internal/sending"
	"github.com/ignite/outreach-engine/internal/spamcheck"
	"github.com/ignite/outreach-engine/internal/store"
)

const rateLimitRetryBatch = 50

func main() {
	log.Println("Starting outreach engine worker...")

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	cfg, err := config.LoadFromEnv(cfgPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := store.Open(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer st.Close()
	log.Println("Connected to database")

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, pingCancel := context.WithTimeout(ctx, 3*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			log.Printf("Warning: Redis connection failed (%s): %v, falling back to PG advisory locks", cfg.Redis.Addr, err)
			rdb.Close()
			rdb = nil
		}
		pingCancel()
	}

	userID := 1
	recorder := lifecycle.NewRecorder(st)
	ledger := budget.NewLedger(st, userID, cfg.Workflow.DailyBudgetLimit)
	tracker := quota.NewTracker(st, userID, cfg.Workflow.DailySendLimit)
	gate := compliance.NewGate(st, recorder, cfg.Workflow.UnsubscribeBaseURL)
	spam := spamcheck.NewChecker(cfg.Workflow.MaxSpamScore)
	policy := schedule.NewPolicy(cfg.Workflow.SkipWeekends(), cfg.Workflow.RespectBusinessHours())

	ai := enrich.NewOpenAIClient(
		cfg.OpenAI.APIKey,
		cfg.OpenAI.Model,
		cfg.OpenAI.EmbeddingModel,
		time.Duration(cfg.OpenAI.TimeoutSeconds)*time.Second,
	)
	enricher := enrich.NewService(st, ai, ledger, recorder, cfg.OpenAI.Model, userID)

	var mail mailer.Mailer
	if cfg.SES.MockMode || cfg.SES.AccessKey == "" {
		log.Println("Mailer: mock mode (no emails will be delivered)")
		mail = mailer.NewMock()
	} else {
		sesMailer, err := mailer.NewSESMailer(ctx, cfg.SES)
		if err != nil {
			log.Fatalf("Failed to initialize SES mailer: %v", err)
		}
		mail = sesMailer
	}

	sender := sending.NewSender(st, mail, gate, spam, policy, tracker, recorder)
	followups := followup.NewScheduler(st, gate, cfg.SES.SenderEmail, cfg.SES.SenderName, userID, cfg.Workflow.FollowupDays, cfg.Workflow.MaxFollowups)

	interval := time.Duration(cfg.Worker.TickIntervalSeconds) * time.Second
	lock := distlock.NewLock(rdb, st.DB(), "outreach:worker:tick", interval)

	tick := func() {
		tickCtx, tickCancel := context.WithTimeout(ctx, interval)
		defer tickCancel()

		acquired, err := lock.Acquire(tickCtx)
		if err != nil {
			log.Printf("Tick lock error: %v", err)
			return
		}
		if !acquired {
			return
		}
		defer lock.Release(tickCtx)

		if created, err := followups.Run(tickCtx); err != nil {
			log.Printf("Follow-up scan failed: %v", err)
		} else if len(created) > 0 {
			log.Printf("Follow-up scan created %d drafts", len(created))
		}

		if result, err := sender.ProcessDueScheduled(tickCtx, userID); err != nil {
			log.Printf("Scheduled dispatch failed: %v", err)
		} else if result.Sent > 0 || result.Failed > 0 {
			log.Printf("Scheduled dispatch: sent=%d failed=%d quota_exceeded=%d", result.Sent, result.Failed, result.QuotaExceeded)
		}

		if result, err := enricher.RetryRateLimited(tickCtx, rateLimitRetryBatch); err != nil {
			log.Printf("Rate-limit retry failed: %v", err)
		} else if result.Completed > 0 {
			log.Printf("Rate-limit retry recovered %d contacts", result.Completed)
		}
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				tick()
			}
		}
	}()

	log.Printf("Worker running (tick every %s)...", interval)

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-done
	log.Println("Shutting down...")
	cancel()
	if rdb != nil {
		rdb.Close()
	}
	log.Println("Worker stopped")
}
