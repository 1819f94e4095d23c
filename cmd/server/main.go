package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/outreach-engine/internal/api"
	"github.com/ignite/outreach-engine/internal/approval"
	"github.com/ignite/outreach-engine/internal/budget"
	"github.com/ignite/outreach-engine/internal/cluster"
	"github.com/ignite/outreach-engine/internal/compliance"
	"github.com/ignite/outreach-engine/internal/config"
	"github.com/ignite/outreach-engine/internal/dedup"
	"github.com/ignite/outreach-engine/internal/drafting"
	"github.com/ignite/outreach-engine/internal/enrich"
	"github.com/ignite/outreach-engine/internal/export"
	"github.com/ignite/outreach-engine/internal/followup"
	"github.com/ignite/outreach-engine/internal/importer"
	"github.com/ignite/outreach-engine/internal/lifecycle"
	"github.com/ignite/outreach-engine/internal/mailer"
	"github.com/ignite/outreach-engine/internal/quota"
	"github.com/ignite/outreach-engine/internal/replies"
	"github.com/ignite/outreach-engine/internal/schedule"
	"github.com/ignite/outreach-engine/internal/sending"
	"github.com/ignite/outreach-engine/internal/spamcheck"
	"github.com/ignite/outreach-engine/internal/store"
)

// checkPortAvailable verifies that the target port is not already in use
// before any slow initialization happens.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %v", port, addr, err)
	}
	ln.Close()
	return nil
}

func userIDFromEnv() int {
	if v := os.Getenv("OUTREACH_USER_ID"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return 1
}

func main() {
	log.Println("Starting outreach engine server...")

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	cfg, err := config.LoadFromEnv(cfgPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if os.Getenv("DATABASE_URL") != "" {
		log.Println("[config] DATABASE_URL env override active")
	}

	if err := checkPortAvailable(cfg.Server.Host, cfg.Server.Port); err != nil {
		log.Fatalf("Pre-flight check FAILED: %v", err)
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
			log.Printf("Warning: Redis connection failed (%s): %v, bulk approvals will not be undoable", cfg.Redis.Addr, err)
			rdb.Close()
			rdb = nil
		}
		pingCancel()
	}

	userID := userIDFromEnv()

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
		log.Printf("Mailer: SES region=%s sender=%s", cfg.SES.Region, cfg.SES.SenderEmail)
	}

	var undo *approval.UndoWindow
	if rdb != nil {
		undo = approval.NewUndoWindow(rdb, time.Duration(cfg.Workflow.UndoWindowMinutes)*time.Minute)
	}

	checker := dedup.NewChecker(st)
	h := &api.Handlers{
		Store:     st,
		Importer:  importer.New(st, checker, userID),
		Enrich:    enrich.NewService(st, ai, ledger, recorder, cfg.OpenAI.Model, userID),
		Cluster:   cluster.NewService(st, ai, cluster.NewKMeans(cfg.Workflow.ClusterCount), ledger, cfg.OpenAI.EmbeddingModel, userID),
		Drafting:  drafting.NewDrafter(st, gate, ledger, ai, cfg.SES.SenderEmail, cfg.OpenAI.Model, userID),
		Approval:  approval.NewService(st, undo, recorder, cfg.Workflow.AutoApproveBelow),
		Sending:   sending.NewSender(st, mail, gate, spam, policy, tracker, recorder),
		Followups: followup.NewScheduler(st, gate, cfg.SES.SenderEmail, cfg.SES.SenderName, userID, cfg.Workflow.FollowupDays, cfg.Workflow.MaxFollowups),
		Replies:   replies.NewRouter(st, ai, ledger, recorder, cfg.OpenAI.Model),
		Export:    export.NewService(st, recorder, userID),
		Ledger:    ledger,
		Quota:     tracker,
		Gate:      gate,
		Dedup:     checker,
		UserID:    userID,
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      api.NewRouter(h),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 150 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Printf("Listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-done
	log.Println("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
	if rdb != nil {
		rdb.Close()
	}
	log.Println("Server stopped")
}
