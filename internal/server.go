package internal

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/IBM/pgxpoolprometheus"
	"github.com/getsentry/sentry-go"
	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redis_rate/v9"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"

	"github.com/coachcal/coachcal/internal/auth"
	"github.com/coachcal/coachcal/internal/calendar"
	"github.com/coachcal/coachcal/internal/calendar/match"
	"github.com/coachcal/coachcal/internal/calendar/sessions"
	"github.com/coachcal/coachcal/internal/config"
	"github.com/coachcal/coachcal/internal/db"
	"github.com/coachcal/coachcal/internal/middleware"
	"github.com/coachcal/coachcal/internal/misc"
	"github.com/coachcal/coachcal/internal/ratelimit"
	"github.com/coachcal/coachcal/internal/telemetry/metrics"
	"github.com/coachcal/coachcal/internal/telemetry/tracing"
	"github.com/coachcal/coachcal/internal/trainees"
	"github.com/coachcal/coachcal/internal/workouts"
)

type Server struct {
	httpServer        *http.Server
	metricsHttpServer *http.Server
	versionInfo       string

	config *config.Config
	dbPool *pgxpool.Pool

	redisClient  *redis.Client
	loginChecker *auth.LoginChecker
	authService  *auth.Service

	// calendar sync stack
	tokenService *calendar.GoogleTokenService
	syncService  *calendar.CalendarSyncService
	renumber     *calendar.TraineeCalendarSyncService
	settingsRepo *calendar.SettingsRepo
	traineeRepo  *trainees.Repo
	opLimiter    *ratelimit.Limiter

	// metrics
	metricsManager *metrics.Manager
	promRegistry   *prometheus.Registry
	otelShutdown   func()
}

type NewServerParams struct {
	Config                  *config.Config
	GoogleClientSecret      string
	VersionInfo             string
	AdminTrainerID          int
	AdminUsername           string
	AdminPasswordHash       string
	RedisPassword           string
	HoneycombTracingEnabled bool
}

func NewServer(
	ctx context.Context,
	params NewServerParams,
) (*Server, error) {
	dbPool, err := db.NewDBPool(ctx, db.NewDBPoolParams{
		DBHost:         params.Config.PostgresHost,
		DBPort:         params.Config.PostgresPort,
		DBName:         params.Config.PostgresDBName,
		TracingEnabled: params.HoneycombTracingEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("new db pool: %w", err)
	}

	if err := dbPool.Ping(ctx); err != nil {
		log.Warnf("failed to ping db: %s", err)
	}

	pgxpoolCollector := pgxpoolprometheus.NewCollector(
		dbPool,
		map[string]string{"db_name": "coachcal_db"},
	)
	promRegistry := metrics.SetupPrometheus(pgxpoolCollector)
	metricsManager := metrics.NewManager("backend", "main", promRegistry)
	metricsManager.GaugeLifeSignal.Set(0)

	rdb := redis.NewClient(&redis.Options{
		Addr:     net.JoinHostPort(params.Config.RedisHost, params.Config.RedisPort),
		Password: params.RedisPassword,
		DB:       0, // use default DB
	})

	rdbStatus := rdb.Ping(ctx)
	if err := rdbStatus.Err(); err != nil {
		log.Errorf("--> failed to ping redis: %s", err)
	} else {
		log.Debugf("redis ping: %s", rdbStatus.Val())
	}

	authService := auth.NewAuthService(&auth.Admin{
		TrainerID:    params.AdminTrainerID,
		Username:     params.AdminUsername,
		PasswordHash: params.AdminPasswordHash,
	}, auth.DefaultTTL, rdb)
	go func() {
		for range time.Tick(time.Hour * 8) {
			authService.ScanAndClean(ctx)
		}
	}()

	// use honeycomb distro to setup OpenTelemetry SDK
	otelShutdown, err := tracing.HoneycombSetup(params.HoneycombTracingEnabled, "coachcal-backend", rdb)
	if err != nil {
		return nil, err
	}

	location, err := time.LoadLocation(calendar.EventTimeZone)
	if err != nil {
		return nil, fmt.Errorf("load calendar timezone: %w", err)
	}

	tokenService := calendar.NewGoogleTokenService(
		calendar.NewCredentialsRepo(dbPool),
		metricsManager,
		params.Config.GoogleClientID,
		params.GoogleClientSecret,
		params.Config.GoogleRedirectURI,
	)
	googleAPI, err := calendar.NewGoogleAPI(tokenService)
	if err != nil {
		return nil, fmt.Errorf("new google calendar api: %w", err)
	}

	syncRepo := calendar.NewSyncRepo(dbPool)
	workoutRepo := workouts.NewRepo(dbPool)
	traineeRepo := trainees.NewRepo(dbPool)
	settingsRepo := calendar.NewSettingsRepo(dbPool)

	reconciler := calendar.NewReconciler(syncRepo, workoutRepo)
	eventCache := calendar.NewEventCache(params.Config.EventCacheTTLSeconds)
	reader := calendar.NewReader(
		googleAPI,
		syncRepo,
		reconciler,
		eventCache,
		metricsManager,
		params.Config.CacheSampleSize,
		time.Duration(params.Config.CacheSampleTimeoutMs)*time.Millisecond,
	)

	opLimiter := ratelimit.NewLimiter()
	renumber := calendar.NewTraineeCalendarSyncService(
		googleAPI,
		syncRepo,
		traineeRepo,
		sessions.NewCalculator(workoutRepo, location),
		reconciler,
		opLimiter,
		metricsManager,
		location,
		time.Duration(params.Config.InterCallDelayMillis)*time.Millisecond,
	)

	interCallDelay := time.Duration(params.Config.InterCallDelayMillis) * time.Millisecond
	syncService := calendar.NewCalendarSyncService(calendar.CalendarSyncServiceParams{
		API:                googleAPI,
		Reader:             reader,
		SyncRepo:           syncRepo,
		WorkoutRepo:        workoutRepo,
		TraineeRepo:        traineeRepo,
		SettingsRepo:       settingsRepo,
		Connection:         tokenService,
		Matcher:            match.NewMatcher(),
		Renumber:           renumber,
		Reconciler:         reconciler,
		Limiter:            opLimiter,
		Cache:              eventCache,
		Metrics:            metricsManager,
		Location:           location,
		InterTraineeDelay:  interCallDelay,
		SyncWindowPastDays: params.Config.SyncWindowPastDays,
		SyncWindowDays:     params.Config.SyncWindowFutureDays,
	})

	return &Server{
		versionInfo: params.VersionInfo,
		config:      params.Config,
		dbPool:      dbPool,

		redisClient:  rdb,
		authService:  authService,
		loginChecker: auth.NewLoginChecker(auth.DefaultTTL, rdb),

		tokenService: tokenService,
		syncService:  syncService,
		renumber:     renumber,
		settingsRepo: settingsRepo,
		traineeRepo:  traineeRepo,
		opLimiter:    opLimiter,

		// telemetry
		metricsManager: metricsManager,
		promRegistry:   promRegistry,
		otelShutdown:   otelShutdown,
	}, nil
}

func (s *Server) routerSetup() (*mux.Router, error) {
	r := mux.NewRouter()
	r.Use(otelmux.Middleware("main-router"))

	reqRateLimiter := redis_rate.NewLimiter(s.redisClient)

	miscHandler := misc.NewHandler(s.versionInfo, s.authService)
	miscHandler.SetupRoutes(r, reqRateLimiter, s.metricsManager, s.config.LoginRateLimitAllowedPerMin)

	calendarHandler := calendar.NewHandler(
		s.syncService,
		s.renumber,
		s.tokenService,
		s.authService,
	)

	r.HandleFunc("/calendar/events", calendarHandler.HandleGetEvents).Methods("GET", "OPTIONS").Name("calendar-events")
	r.HandleFunc("/calendar/sync", calendarHandler.HandleSyncNow).Methods("POST", "OPTIONS").Name("calendar-sync")
	r.HandleFunc("/calendar/match", calendarHandler.HandleMatchPreview).Methods("GET", "OPTIONS").Name("calendar-match")
	r.HandleFunc("/calendar/match/accept", calendarHandler.HandleAcceptMatch).Methods("POST", "OPTIONS").Name("calendar-match-accept")
	r.HandleFunc("/calendar/trainee/{id}/renumber", calendarHandler.HandleRenumber).Methods("POST", "OPTIONS").Name("calendar-renumber")
	r.HandleFunc("/calendar/settings", calendarHandler.HandleGetSettings).Methods("GET", "OPTIONS").Name("calendar-settings-get")
	r.HandleFunc("/calendar/settings", calendarHandler.HandleUpdateSettings).Methods("PUT", "OPTIONS").Name("calendar-settings-update")
	r.HandleFunc("/calendar/status", calendarHandler.HandleStatus).Methods("GET", "OPTIONS").Name("calendar-status")
	r.HandleFunc("/calendar/disconnect", calendarHandler.HandleDisconnect).Methods("POST", "OPTIONS").Name("calendar-disconnect")

	// the callback route is open, google redirects the trainer here with
	// the consent code before any session exists
	oauthRouter := r.PathPrefix("/calendar/oauth").Subrouter()
	oauthRouter.HandleFunc("/init", calendarHandler.HandleOAuthInit).Methods("GET", "OPTIONS").Name("calendar-oauth-init")
	oauthRouter.HandleFunc("/callback", calendarHandler.HandleOAuthCallback).Methods("GET", "OPTIONS").Name("calendar-oauth-callback")
	oauthRouter.Use(middleware.RateLimit(
		reqRateLimiter, "calendar-oauth",
		ratelimit.Budgets[ratelimit.OpOAuth],
		s.metricsManager,
	))

	r.HandleFunc("/workout", calendarHandler.HandleCreateWorkout).Methods("POST", "OPTIONS").Name("new-workout")
	r.HandleFunc("/workout/{id}", calendarHandler.HandleRescheduleWorkout).Methods("PUT", "OPTIONS").Name("reschedule-workout")
	r.HandleFunc("/workout/{id}", calendarHandler.HandleDeleteWorkout).Methods("DELETE", "OPTIONS").Name("delete-workout")

	traineesHandler := trainees.NewHandler(s.traineeRepo, s.authService)
	r.HandleFunc("/trainee", traineesHandler.HandleList).Methods("GET", "OPTIONS").Name("list-trainees")
	r.HandleFunc("/trainee", traineesHandler.HandleAdd).Methods("POST", "OPTIONS").Name("new-trainee")
	r.HandleFunc("/trainee/{id}", traineesHandler.HandleGet).Methods("GET", "OPTIONS").Name("get-trainee")
	r.HandleFunc("/trainee/{id}", traineesHandler.HandleUpdate).Methods("PUT", "OPTIONS").Name("update-trainee")
	r.HandleFunc("/trainee/{id}", traineesHandler.HandleDelete).Methods("DELETE", "OPTIONS").Name("remove-trainee")

	// all the rest - unhandled paths
	r.HandleFunc("/{unknown}", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}).Methods("GET", "POST", "PUT", "OPTIONS").Name("unknown")

	authMiddleware := middleware.NewAuthMiddlewareHandler(s.loginChecker)

	r.Use(middleware.PanicRecovery(s.metricsManager))
	r.Use(middleware.LogRequest())
	r.Use(middleware.RequestMetrics(s.metricsManager))
	r.Use(middleware.Cors())
	r.Use(authMiddleware.AuthCheck())
	r.Use(middleware.DrainAndCloseRequest())

	return r, nil
}

func (s *Server) Serve(ctx context.Context, host string, port int) {
	router, err := s.routerSetup()
	if err != nil {
		log.Fatalf("failed to setup router: %s", err)
	}

	ipAndPort := net.JoinHostPort(host, strconv.Itoa(port))
	s.httpServer = &http.Server{
		Handler:      router,
		Addr:         ipAndPort,
		WriteTimeout: time.Minute,
		ReadTimeout:  time.Minute,
		ConnState:    s.connStateMetrics,
	}

	metricsRouter := mux.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.HandlerFor(
		s.promRegistry,
		promhttp.HandlerOpts{},
	))
	metricsAddr := net.JoinHostPort(s.config.PrometheusMetricsHost, s.config.PrometheusMetricsPort)
	s.metricsHttpServer = &http.Server{
		Addr:    metricsAddr,
		Handler: metricsRouter,
	}

	go func() {
		log.Infof(" > server listening on: [%s]", ipAndPort)
		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("main service, listen and serve: %s", err)
		}
	}()

	go func() {
		log.Debugf(" > metrics listening on: [%s]", metricsAddr)
		err := s.metricsHttpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("metrics service, listen and serve: %s", err)
		}
	}()

	if s.config.AutoSyncEnabled {
		go s.autoSyncLoop(ctx)
	} else {
		log.Debugln("calendar auto sync disabled")
	}
	go s.opLimiterCleanupLoop(ctx)

	s.metricsManager.GaugeLifeSignal.Set(1)
}

// autoSyncLoop runs the periodic calendar pulls for trainers that turned
// auto sync on, one ticker per configured sync frequency.
func (s *Server) autoSyncLoop(ctx context.Context) {
	realtimeTicker := time.NewTicker(time.Duration(s.config.SyncIntervalMinutes) * time.Minute)
	hourlyTicker := time.NewTicker(time.Hour)
	dailyTicker := time.NewTicker(24 * time.Hour)
	defer realtimeTicker.Stop()
	defer hourlyTicker.Stop()
	defer dailyTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debugln("auto sync loop stopping ...")
			return
		case <-realtimeTicker.C:
			s.runAutoSync(ctx, calendar.FrequencyRealtime)
		case <-hourlyTicker.C:
			s.runAutoSync(ctx, calendar.FrequencyHourly)
		case <-dailyTicker.C:
			s.runAutoSync(ctx, calendar.FrequencyDaily)
		}
	}
}

func (s *Server) runAutoSync(ctx context.Context, frequency calendar.SyncFrequency) {
	ctx, span := tracing.GlobalSyncWorkerTracer.Start(ctx, "syncWorker.run")
	defer span.End()

	trainerIDs, err := s.settingsRepo.ListAutoSyncTrainers(ctx, frequency)
	if err != nil {
		log.Errorf("auto sync [%s], list trainers: %s", frequency, err)
		return
	}

	for _, trainerID := range trainerIDs {
		result, err := s.syncService.SyncNow(ctx, trainerID)
		if err != nil {
			log.Errorf("auto sync [%s] for trainer %d: %s", frequency, trainerID, err)
			continue
		}
		log.Debugf(
			"auto sync [%s] for trainer %d: imported %d, updated %d, failed %d",
			frequency, trainerID, result.Imported, result.Updated, result.Failed,
		)
	}
}

func (s *Server) opLimiterCleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.opLimiter.Cleanup()
		}
	}
}

func (s *Server) GracefulShutdown() {
	log.Debug("graceful shutdown initiated ...")

	s.metricsManager.GaugeLifeSignal.Set(0)

	s.otelShutdown()
	log.Trace("otel shut down ...")

	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			log.Errorf("failed to close redis client conn: %s", err)
		}
	}

	if s.dbPool != nil {
		log.Debugln("closing db pool ...")
		s.dbPool.Close() // blocking operation
		log.Debugln("db pool closed")
	}

	if ok := sentry.Flush(5 * time.Second); ok {
		log.Debugf("sentry flush ok: %t", ok)
	}

	maxWaitDuration := time.Second * 15
	ctx, timeoutCancel := context.WithTimeout(context.Background(), maxWaitDuration)
	defer timeoutCancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		log.Error(" >>> failed to gracefully shutdown http server")
	}
	log.Warnln("server shut down")

	if err := s.metricsHttpServer.Shutdown(ctx); err != nil {
		log.Error(" >>> failed to gracefully shutdown metrics http server")
	}
	log.Warnln("metrics server shut down")
}

func (s *Server) connStateMetrics(_ net.Conn, state http.ConnState) {
	switch state {
	case http.StateNew:
		s.metricsManager.GaugeRequests.Add(1)
	case http.StateClosed:
		s.metricsManager.GaugeRequests.Add(-1)
	default:
		// do nothing
	}
}
