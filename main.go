package main

import (
	"context"
	"log"
	"strings"

	"github.com/redis/go-redis/v9"

	api "taskpilot-backend/cmd/api"
	"taskpilot-backend/internal/authz"
	chatChannel "taskpilot-backend/internal/channel/chat"
	emailChannel "taskpilot-backend/internal/channel/email"
	"taskpilot-backend/internal/channel/gmailpush"
	"taskpilot-backend/internal/channel/imapintake"
	"taskpilot-backend/internal/dedup"
	inteldomain "taskpilot-backend/internal/intel/domain"
	intelRepo "taskpilot-backend/internal/intel/repository"
	ledgerdomain "taskpilot-backend/internal/ledger/domain"
	ledgerRepo "taskpilot-backend/internal/ledger/repository"
	orgdomain "taskpilot-backend/internal/org/domain"
	orgRepo "taskpilot-backend/internal/org/repository"
	"taskpilot-backend/internal/pipeline"
	"taskpilot-backend/internal/planner"
	"taskpilot-backend/internal/relationship"
	taskDelivery "taskpilot-backend/internal/task/delivery"
	taskdomain "taskpilot-backend/internal/task/domain"
	taskRepo "taskpilot-backend/internal/task/repository"
	"taskpilot-backend/internal/task/scheduler"
	"taskpilot-backend/internal/thread"
	"taskpilot-backend/pkg/ai"
	"taskpilot-backend/pkg/config"
	"taskpilot-backend/pkg/contextstore"
	"taskpilot-backend/pkg/database"
	"taskpilot-backend/pkg/mailer"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize database
	db, err := database.NewPostgresConnection(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	// Auto-migrate database schemas
	if err := db.AutoMigrate(
		&orgdomain.Organization{}, &orgdomain.Member{}, &orgdomain.AllowedSender{},
		&taskdomain.Task{}, &taskdomain.TaskActivity{},
		&ledgerdomain.ProcessingRecord{},
		&inteldomain.SenderIntelligence{},
	); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	// Initialize repositories (dependency injection)
	organizationRepo := orgRepo.NewGormOrganizationRepository(db)
	taskRepository := taskRepo.NewGormTaskRepository(db)
	ledgerRepository := ledgerRepo.NewGormLedgerRepository(db)
	intelRepository := intelRepo.NewGormIntelRepository(db)

	// In-flight guard: Redis when configured (multi-node), in-process otherwise
	var inflight dedup.InFlightGuard
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		inflight = dedup.NewRedisGuard(rdb, cfg.InFlightTTL)
		log.Printf("[Main] Using Redis in-flight guard at %s", cfg.RedisAddr)
	} else {
		inflight = dedup.NewLocalGuard(cfg.InFlightTTL)
	}

	// AI extraction stack
	extractor := ai.NewExtractorService(ai.ProviderType(cfg.AIProvider), cfg.GeminiAPIKey, cfg.OllamaBaseURL, cfg.OllamaModel)

	// Chroma thread-context index (optional)
	var contexts *contextstore.Store
	if cfg.ChromaAPIKey != "" {
		contexts, err = contextstore.New(contextstore.Options{
			APIKey:       cfg.ChromaAPIKey,
			Tenant:       cfg.ChromaTenant,
			Database:     cfg.ChromaDatabase,
			GeminiAPIKey: cfg.GeminiAPIKey,
		})
		if err != nil {
			log.Printf("[WARN] Failed to initialize context index (similar-task context disabled): %v", err)
			contexts = nil
		}
	} else {
		log.Println("[WARN] CHROMA_API_KEY not set, similar-task context disabled")
	}

	// Outbound mail
	var mail mailer.Mailer = mailer.LogMailer{}
	if cfg.MailGatewayAPIKey != "" && cfg.MailGatewayDomain != "" {
		mail = mailer.NewGatewayMailer(cfg.MailGatewayURL, cfg.MailGatewayAPIKey, cfg.MailGatewayDomain, cfg.MailSender)
	} else {
		log.Println("[WARN] Mail gateway not configured, outbound mail goes to the log")
	}

	// Pipeline
	pipe := pipeline.New(pipeline.Deps{
		InFlight:          inflight,
		Ledger:            ledgerRepository,
		Organizations:     organizationRepo,
		Guard:             authz.NewGuard(taskRepository),
		Classifier:        thread.NewClassifier(taskRepository, cfg.DuplicateWindow),
		Tasks:             taskRepository,
		Intel:             intelRepository,
		Extractor:         extractor,
		Resolver:          relationship.NewResolver(extractor, cfg.ExtractionTimeout),
		Planner:           planner.NewPlanner(),
		Contexts:          contexts,
		Mailer:            mail,
		ExtractionTimeout: cfg.ExtractionTimeout,
	})

	// Reminder scheduler
	reminderScheduler := scheduler.NewReminderScheduler(taskRepository, mail)
	reminderScheduler.Start()
	defer reminderScheduler.Stop()

	// IMAP intake (optional)
	if cfg.IMAPServer != "" && cfg.IMAPUsername != "" {
		poller := imapintake.NewPoller(imapintake.Config{
			Server:   cfg.IMAPServer,
			Username: cfg.IMAPUsername,
			Password: cfg.IMAPPassword,
			Mailbox:  cfg.IMAPMailbox,
			Interval: cfg.IMAPPollInterval,
		}, pipe)
		poller.Start()
		defer poller.Stop()
	}

	// Gmail push intake (optional)
	if cfg.GoogleProjectID != "" && cfg.GoogleRefreshToken != "" {
		topicName := cfg.GooglePubSubTopic
		if parts := strings.Split(topicName, "/"); len(parts) > 1 {
			topicName = parts[len(parts)-1]
		}

		intake, err := gmailpush.NewIntake(context.Background(), gmailpush.Config{
			ProjectID:       cfg.GoogleProjectID,
			TopicName:       topicName,
			CredentialsFile: cfg.GoogleCredentials,
			ClientID:        cfg.GoogleClientID,
			ClientSecret:    cfg.GoogleClientSecret,
			RefreshToken:    cfg.GoogleRefreshToken,
			IngestAddress:   cfg.IngestAddress,
		}, pipe)
		if err != nil {
			log.Printf("[ERROR] Failed to initialize Gmail push intake: %v", err)
		} else {
			go intake.Start(context.Background())
		}
	}

	// HTTP surface: channel webhooks plus the task API
	emailHandler := emailChannel.NewHandler(pipe, mail)
	chatHandler := chatChannel.NewHandler(pipe, organizationRepo, cfg.ChatBotUserID, dedup.NewCooldown(cfg.ChatCooldown))
	taskHandler := taskDelivery.NewTaskHandler(taskRepository)

	handler := api.NewHandler(cfg, emailHandler, chatHandler, taskHandler)

	log.Printf("Server starting on port %s", cfg.Port)
	if err := handler.Start(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
