package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/collabiora/landing/pkg/api"
	"github.com/collabiora/landing/pkg/clients/restcountries"
	"github.com/collabiora/landing/pkg/clients/viralloops"
	"github.com/collabiora/landing/pkg/clients/waitlist"
	"github.com/collabiora/landing/pkg/config"
	"github.com/collabiora/landing/pkg/middleware"
	"github.com/collabiora/landing/pkg/models"
	"github.com/collabiora/landing/pkg/services"
)

const (
	referralRetryMin = time.Second
	referralRetryMax = time.Minute
)

var (
	configPath string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "landing",
	Short: "Backend for the Collabiora landing site",
	Long: `landing serves the waitlist form and country search used by the
Collabiora landing pages.

Run without arguments to start the HTTP server.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "Error loading .env file: %v\n", err)
		}

		var err error
		cfg, err = config.LoadFile(configPath)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		zapConfig := zap.NewProductionConfig()
		if verbose || strings.EqualFold(cfg.LogLevel, "debug") {
			zapConfig.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		logger, err = zapConfig.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer(cmd.Context())
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer(cmd.Context())
	},
}

var countriesLimit int

var countriesCmd = &cobra.Command{
	Use:   "countries [query]",
	Short: "Search the country list",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		directory := newCountryDirectory()

		var countries []models.Country
		if len(args) == 1 {
			countries = directory.Search(cmd.Context(), args[0])
		} else {
			countries = directory.Browse(cmd.Context(), countriesLimit)
		}

		for _, c := range countries {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%s\n", c.Alpha2Code, c.Alpha3Code, c.CommonName, c.OfficialName)
		}
		return nil
	},
}

var joinFlags struct {
	firstName     string
	lastName      string
	email         string
	role          string
	country       string
	hubspotCookie string
}

var joinCmd = &cobra.Command{
	Use:   "join",
	Short: "Submit one waitlist application",
	RunE: func(cmd *cobra.Command, args []string) error {
		sdk := newReferralSDK()
		if cfg.ViralLoops.APIToken != "" {
			ctx, cancel := context.WithCancel(cmd.Context())
			go startReferralSDK(ctx, sdk)
			select {
			case <-sdk.Done():
			case <-time.After(cfg.RequestTimeout):
				logger.Warn("Viral Loops not ready, submitting without referral registration")
			}
			cancel()
		}

		controller := services.NewSubmissionController(services.ControllerDeps{
			API:      waitlist.NewClient(cfg.WaitlistAPIURL, cfg.RequestTimeout, logger),
			Referral: sdk,
			Options:  controllerOptions(),
			Logger:   logger,
		})
		defer controller.Close()

		controller.UpdateField(models.FieldFirstName, joinFlags.firstName)
		controller.UpdateField(models.FieldLastName, joinFlags.lastName)
		controller.UpdateField(models.FieldEmail, joinFlags.email)
		controller.UpdateField(models.FieldRole, joinFlags.role)
		controller.UpdateField(models.FieldCountry, joinFlags.country)

		env := staticEnvironment{}
		if joinFlags.hubspotCookie != "" {
			env[cfg.HubspotCookieName] = joinFlags.hubspotCookie
		}

		snap, err := controller.Submit(cmd.Context(), env)
		fmt.Fprintln(cmd.OutOrStdout(), snap.Message)
		return err
	},
}

type staticEnvironment map[string]string

func (e staticEnvironment) Cookie(name string) (string, bool) {
	v, ok := e[name]
	return v, ok
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	countriesCmd.Flags().IntVarP(&countriesLimit, "limit", "n", 10, "Countries to list when no query is given")

	joinCmd.Flags().StringVar(&joinFlags.firstName, "first", "", "First name")
	joinCmd.Flags().StringVar(&joinFlags.lastName, "last", "", "Last name")
	joinCmd.Flags().StringVar(&joinFlags.email, "email", "", "Email address")
	joinCmd.Flags().StringVar(&joinFlags.role, "role", "", "patient, researcher or caregiver")
	joinCmd.Flags().StringVar(&joinFlags.country, "country", "", "Country common name")
	joinCmd.Flags().StringVar(&joinFlags.hubspotCookie, "hubspot-cookie", "", "HubSpot tracking cookie value")

	rootCmd.AddCommand(serveCmd, countriesCmd, joinCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func controllerOptions() services.ControllerOptions {
	return services.ControllerOptions{
		HubspotCookieName: cfg.HubspotCookieName,
		ReferralTimeout:   cfg.ReferralTimeout,
		CelebrationDelay:  cfg.CelebrationDelay,
		FieldResetDelay:   cfg.FieldResetDelay,
		StateResetDelay:   cfg.StateResetDelay,
	}
}

func newReferralSDK() *viralloops.SDK {
	return viralloops.NewSDK(cfg.ViralLoops.APIURL, cfg.ViralLoops.CampaignID,
		cfg.ViralLoops.APIToken, cfg.ReferralTimeout, logger)
}

// startReferralSDK keeps retrying the campaign load until it succeeds or
// ctx is done. Submissions skip referral registration until then.
func startReferralSDK(ctx context.Context, sdk *viralloops.SDK) {
	err := sdk.InitWithRetry(ctx, referralRetryMin, referralRetryMax)
	if err != nil && ctx.Err() == nil {
		logger.Warn("Viral Loops disabled, referral registration off", zap.Error(err))
	}
}

func newCountryDirectory() *services.CountryDirectory {
	client := restcountries.NewClient(cfg.CountriesAPIURL, cfg.RequestTimeout, logger)
	return services.NewCountryDirectory(client, services.NewCountryCache(), logger)
}

func runServer(ctx context.Context) error {
	sdk := newReferralSDK()
	go startReferralSDK(ctx, sdk)

	sessions := services.NewSessionStore(services.ControllerDeps{
		API:      waitlist.NewClient(cfg.WaitlistAPIURL, cfg.RequestTimeout, logger),
		Referral: sdk,
		Options:  controllerOptions(),
		Logger:   logger,
	}, cfg.SessionTTL, cfg.MaxSessions)
	defer sessions.Close()

	directory := newCountryDirectory()
	// Warm the cache so the first search does not wait on the upstream
	go directory.Load(ctx)

	if verbose {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery(), middleware.Logger(logger), middleware.CORS(cfg.AllowedOrigins...))
	limiter := middleware.NewRateLimiter(cfg.SessionRateLimit, cfg.SessionRateBurst)
	api.NewHandlers(sessions, directory, logger).Register(router, middleware.RateLimit(limiter))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server starting", zap.String("port", cfg.Port))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("error starting server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
