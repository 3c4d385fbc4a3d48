package cmd

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v5"
	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	pubnub "github.com/pubnub/go"
	"github.com/redis/go-redis/v9"

	"gatepass/config"
	"gatepass/internal/credential"
	"gatepass/internal/handlers"
	"gatepass/internal/services"
	"gatepass/internal/services/chain"
	"gatepass/internal/status"
	"gatepass/internal/store"
	"gatepass/models"
	"gatepass/monitoring"
	"gatepass/security"
	"gatepass/utils"
	_ "gatepass/migrations"
)

func Start() error {
	app := pocketbase.New()

	// Load configuration
	cfg := config.LoadConfig()

	// Initialize Redis
	redisClient := utils.NewRedisClient(cfg.RedisURL)
	defer redisClient.Close()

	// Initialize PubNub
	pnConfig := pubnub.NewConfig()
	pnConfig.PublishKey = cfg.PubNubPublishKey
	pnConfig.SubscribeKey = cfg.PubNubSubscribeKey
	pnConfig.SecretKey = cfg.PubNubSecretKey

	pn := pubnub.NewPubNub(pnConfig)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Missing key material is fatal here, not per-request.
	signer, err := newSigner(cfg)
	if err != nil {
		return fmt.Errorf("signing key configuration: %w", err)
	}

	var submitter chain.Submitter
	if cfg.ChainConfig.BaseURL != "" {
		gateway, err := chain.New(ctx, &cfg.ChainConfig)
		if err != nil {
			return err
		}
		defer gateway.Close(ctx)
		submitter = gateway
	}

	// Stores back onto the app's SQLite database; their unique-insert and
	// compare-and-swap queries are the cross-process synchronization points.
	scanLedger := store.NewDBXScanLedger(app)
	agreements := store.NewDBXAgreementStore(app)

	addresses := partyAddressLookup(app)

	// Initialize services
	credentialService := services.NewCredentialService(signer, cfg.CredentialTTL)
	scanService := services.NewScanService(redisClient, pn, signer, scanLedger, cfg.ScanCacheTTL)
	escrowService := services.NewEscrowService(agreements, submitter, pn,
		services.NewKeypairIdentity(addresses), addresses, cfg.ClaimStaleAfter)

	// Initialize handlers
	credentialHandler := handlers.NewCredentialHandler(app, credentialService)
	escrowHandler := handlers.NewEscrowHandler(app, escrowService)
	scanHandler := handlers.NewScanHandler(scanService, redisClient)

	// Enable migrations
	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: true,
	})

	if submitter != nil {
		go consumeConfirmations(ctx, submitter, escrowService)
	}

	if cfg.EnableMetrics {
		monitoring.NewMonitor(redisClient)
	}

	// Setup graceful shutdown
	go handleShutdown(cancel)

	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		// Credential issuance
		e.Router.POST("/api/v1/tickets/{ticketId}/credential", credentialHandler.IssueCredential)

		// Escrow endpoints
		e.Router.GET("/api/v1/escrow/{agreementId}", escrowHandler.GetAgreement)
		e.Router.POST("/api/v1/escrow/{agreementId}/secret", escrowHandler.SubmitSecret)

		// Health check
		e.Router.GET("/health", func(e *core.RequestEvent) error {
			if err := utils.RedisHealthCheck(redisClient); err != nil {
				return e.JSON(503, map[string]string{
					"status": "unhealthy",
					"error":  err.Error(),
				})
			}
			return e.JSON(200, map[string]string{"status": "healthy"})
		})

		// The gate server shares this process and database but has its own
		// listener: gate devices never touch the member-facing app.
		go startGateServer(cfg, redisClient, scanHandler)

		log.Println("Server routes registered")

		return e.Next()
	})

	// Start server
	if err := app.Start(); err != nil {
		log.Fatal(err)
	}
	return nil
}

func newSigner(cfg *config.Config) (credential.Signer, error) {
	switch cfg.SigningMode {
	case "hmac":
		return credential.NewHMACSigner(cfg.HMACSecret)
	default:
		return credential.NewEd25519Signer(cfg.SigningKeySeed, cfg.SigningPublicKey)
	}
}

// partyAddressLookup resolves party addresses from the surrounding event
// records; registering them is the web app's concern.
func partyAddressLookup(app *pocketbase.PocketBase) services.AddressLookup {
	return func(ctx context.Context, agreementID string, party models.Party) (string, error) {
		var row struct {
			Organizer string `db:"organizer_address"`
			Artist    string `db:"artist_address"`
		}

		err := app.DB().NewQuery(
			"SELECT organizer_address, artist_address FROM events WHERE id = {:id}",
		).Bind(dbx.Params{"id": models.EventIDForAgreement(agreementID)}).WithContext(ctx).One(&row)
		if err != nil {
			return "", fmt.Errorf("event for agreement %s: %w", agreementID, err)
		}

		if party == models.PartyArtist {
			return row.Artist, nil
		}
		return row.Organizer, nil
	}
}

func consumeConfirmations(ctx context.Context, submitter chain.Submitter, escrowService *services.EscrowService) {
	confirmations := make(chan *status.Confirmation, 1)
	submitter.SetConfirmationChannel(confirmations)

	for {
		select {
		case conf := <-confirmations:
			slog.Info("=> chain release confirmation", "agreementID", conf.AgreementID, "txRef", conf.TxRef)

			if err := escrowService.HandleConfirmation(ctx, conf); err != nil {
				slog.Error("escrowService.HandleConfirmation()", "error", err)
			}

		case <-ctx.Done():
			return
		}
	}
}

func startGateServer(cfg *config.Config, redisClient *redis.Client, scanHandler *handlers.ScanHandler) {
	e := echo.New()

	limiter := security.NewRateLimiter(redisClient)

	e.POST("/api/v1/scan", scanHandler.Scan,
		limiter.AntiBotMiddleware(),
		limiter.ScanRateLimit(cfg.ScanRatePerMinute),
	)
	e.GET("/api/v1/admin/scan-dashboard", scanHandler.ScanDashboard)

	if cfg.EnableMetrics {
		e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	}

	e.GET("/health", func(c echo.Context) error {
		if err := utils.RedisHealthCheck(redisClient); err != nil {
			return c.JSON(503, map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
		}
		return c.JSON(200, map[string]string{"status": "healthy"})
	})

	log.Printf("Gate scan server listening on :%s", cfg.GatePort)

	server := &http.Server{
		Addr:    ":" + cfg.GatePort,
		Handler: e,
	}
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Printf("Gate scan server stopped: %v", err)
	}
}

// handleShutdown handles graceful shutdown
func handleShutdown(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Println("Shutdown signal received, cleaning up...")
	cancel()
}
