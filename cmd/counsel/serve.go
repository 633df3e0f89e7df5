package main

import (
	"context"
	"errors"
	"fmt"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/longregen/counsel/internal/adapters/attachments"
	"github.com/longregen/counsel/internal/adapters/auth"
	"github.com/longregen/counsel/internal/adapters/http"
	"github.com/longregen/counsel/internal/adapters/http/handlers"
	"github.com/longregen/counsel/internal/adapters/id"
	"github.com/longregen/counsel/internal/adapters/notify"
	"github.com/longregen/counsel/internal/adapters/postgres"
	"github.com/longregen/counsel/internal/adapters/redis"
	"github.com/longregen/counsel/internal/adapters/retry"
	"github.com/longregen/counsel/internal/adapters/tracing"
	"github.com/longregen/counsel/internal/application/services"
	"github.com/longregen/counsel/internal/application/tools"
	"github.com/longregen/counsel/internal/application/usecases"
	"github.com/longregen/counsel/internal/llm"
	"github.com/longregen/counsel/internal/ports"
)

// serveCmd starts the HTTP and WebSocket server
func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the intake server",
		Long: `Start the Counsel server: the WebSocket gateway clients and staff
connect to, the REST endpoints for history and the case queue, and the
background sweeper that abandons idle conversations.

Required configuration:
  - PostgreSQL (COUNSEL_POSTGRES_URL)
  - Redis for verification codes (COUNSEL_REDIS_URL)
  - Token signing secret (COUNSEL_AUTH_SECRET)
  - LLM endpoint (COUNSEL_LLM_URL, COUNSEL_LLM_MODEL)

Optional:
  - Upload service for attachments (COUNSEL_ATTACHMENTS_URL)
  - Billing webhook (COUNSEL_BILLING_WEBHOOK_URL)
  - Verification code gateway (COUNSEL_CODE_WEBHOOK_URL)`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}
}

func runServer(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().
		Str("addr", cfg.Addr()).
		Str("llm", cfg.LLM.URL).
		Str("model", cfg.LLM.Model).
		Bool("attachments", cfg.IsAttachmentsConfigured()).
		Bool("billing_webhook", cfg.IsBillingWebhookConfigured()).
		Bool("code_webhook", cfg.IsCodeWebhookConfigured()).
		Msg("starting counsel")

	if cfg.Log.Traces {
		shutdownTracer, err := tracing.InitTracer(tracing.Config{
			ServiceName: "counsel",
			Environment: cfg.Log.Environment,
		})
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize tracing")
		} else {
			defer func() {
				if err := shutdownTracer(context.Background()); err != nil {
					log.Warn().Err(err).Msg("failed to flush traces")
				}
			}()
		}
	}

	pool, err := initDB(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()
	log.Info().Msg("database connection established")

	if cfg.Database.AutoMigrate {
		if err := postgres.Migrate(pool); err != nil {
			return err
		}
	}

	redisClient, err := redis.NewClient(ctx, cfg.Redis.URL)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	// Stores
	convRepo := postgres.NewConversationRepository(pool)
	messageRepo := postgres.NewMessageRepository(pool)
	userRepo := postgres.NewUserRepository(pool)
	codeStore := redis.NewVerificationCodeStore(redisClient)
	txManager := postgres.NewTransactionManager(pool)
	idGen := id.New()

	// Collaborators
	hub := handlers.NewRoomHub()

	var attachmentService ports.AttachmentService
	if cfg.IsAttachmentsConfigured() {
		attachmentService = attachments.NewClient(cfg.Attachments.URL, cfg.Attachments.APIKey)
	}

	var billing ports.BillingNotifier = notify.LogBillingNotifier{}
	if cfg.IsBillingWebhookConfigured() {
		billing = notify.NewWebhookBillingNotifier(cfg.Intake.BillingWebhookURL, cfg.Intake.BillingWebhookSecret)
	}

	var codeSender ports.CodeSender = notify.LogCodeSender{RevealCodes: cfg.Identity.RevealCodes}
	if cfg.IsCodeWebhookConfigured() {
		codeSender = notify.NewWebhookCodeSender(cfg.Identity.CodeWebhookURL, cfg.Identity.CodeWebhookSecret)
	} else {
		log.Warn().Msg("no code webhook configured, verification codes are only logged")
	}
	if cfg.Identity.RevealCodes {
		log.Warn().Msg("verification codes will be written to the log")
	}

	llmPolicy := retry.DefaultPolicy()
	llmPolicy.MaxRetries = cfg.LLM.MaxRetries
	llmService := llm.NewService(llm.NewClient(llm.ClientConfig{
		BaseURL:      cfg.LLM.URL,
		APIKey:       cfg.LLM.APIKey,
		Model:        cfg.LLM.Model,
		MaxTokens:    cfg.LLM.MaxTokens,
		Temperature:  cfg.LLM.Temperature,
		Timeout:      time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
		SystemPrompt: cfg.LLM.SystemPrompt,
		Retry:        llmPolicy,
	}))

	// Services
	authorizer := services.NewMessageAuthorizer()
	locks := services.NewConversationLocks()
	messageService := services.NewMessageService(authorizer, messageRepo, convRepo, attachmentService)
	conversationService := services.NewConversationService(convRepo, messageService, idGen, billing, hub)
	identityService := services.NewIdentityService(userRepo, codeStore, codeSender, conversationService, idGen).
		WithTransactions(txManager)

	// Use cases
	registry := tools.NewIntakeRegistry(conversationService, identityService)
	generateReply := usecases.NewGenerateReply(conversationService, messageService, attachmentService, llmService, registry, hub, idGen)
	sendMessage := usecases.NewSendMessage(conversationService, messageService, locks, generateReply, hub, idGen)
	sendLawyerMessage := usecases.NewSendLawyerMessage(conversationService, messageService, authorizer, locks, hub, idGen)
	verifyCode := usecases.NewVerifyCode(conversationService, messageService, identityService, locks, hub, idGen)

	// Transport
	authenticator, err := auth.NewAuthenticator(auth.Config{
		Secret:     cfg.Auth.Secret,
		Issuer:     cfg.Auth.Issuer,
		CookieName: cfg.Auth.CookieName,
		Leeway:     time.Duration(cfg.Auth.LeewaySeconds) * time.Second,
	})
	if err != nil {
		return err
	}
	issuer, err := auth.NewTokenIssuer(cfg.Auth.Secret, cfg.Auth.Issuer)
	if err != nil {
		return err
	}

	ws := cfg.Server.WebSocket
	gateway := handlers.NewGateway(authenticator, hub, conversationService, sendMessage, sendLawyerMessage, verifyCode, handlers.GatewayConfig{
		AllowedOrigins:  cfg.Server.CORSOrigins,
		AuthGracePeriod: time.Duration(ws.AuthGraceMillis) * time.Millisecond,
		SendQueueSize:   ws.SendQueueSize,
		TurnBacklog:     ws.TurnBacklog,
		ReadTimeout:     time.Duration(ws.ReadTimeoutSeconds) * time.Second,
		MaxMessageSize:  ws.MaxMessageBytes,
	})

	health := handlers.NewHealthHandler(version).
		WithCheck("postgres", true, pool.Ping).
		WithCheck("redis", true, func(ctx context.Context) error { return redisClient.Ping(ctx).Err() })

	server := http.NewServer(
		cfg,
		authenticator,
		health,
		handlers.NewTokenHandler(issuer, cfg.AnonymousTTL(), cfg.Auth.CookieName, cfg.Auth.SecureCookie),
		gateway,
		handlers.NewConversationsHandler(conversationService, messageService),
		handlers.NewCasesHandler(conversationService),
	)

	sweeperCtx, stopSweeper := context.WithCancel(context.Background())
	defer stopSweeper()
	sweeper := services.NewAbandonSweeper(convRepo, conversationService, cfg.AbandonAfter(), cfg.SweepInterval())
	go sweeper.Run(sweeperCtx)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.Start()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, nethttp.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		log.Info().Msg("shutting down gracefully")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeoutSeconds)*time.Second)
	defer cancel()

	stopSweeper()
	err = server.Stop(shutdownCtx)
	gateway.Shutdown()
	if err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	log.Info().Msg("server stopped")
	return nil
}
