package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/unilib/apiserver/config"
	"github.com/unilib/apiserver/internal/cache"
	"github.com/unilib/apiserver/internal/db"
	"github.com/unilib/apiserver/internal/handlers"
	"github.com/unilib/apiserver/internal/hr"
	"github.com/unilib/apiserver/internal/log"
	"github.com/unilib/apiserver/internal/mail"
	"github.com/unilib/apiserver/internal/metrics"
	"github.com/unilib/apiserver/internal/mq"
	"github.com/unilib/apiserver/internal/realtime"
	"github.com/unilib/apiserver/internal/services"
	"github.com/unilib/apiserver/internal/storage"
	"github.com/unilib/apiserver/internal/store"
)

const shutdownTimeout = 15 * time.Second

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	deps       *Deps
	hub        *realtime.Hub
	logger     zerolog.Logger
}

// Deps are the external connections shared by the server and the CLI.
type Deps struct {
	DB      *sqlx.DB
	Cache   cache.Cache
	Storage storage.ObjectStorage
	MQ      mq.Backend
	Mailer  mail.Sender
	HR      *hr.Client

	closers []func() error
}

// Connect opens every configured backend. Optional backends that are not
// configured fall back to their no-op forms.
func Connect(ctx context.Context, cfg config.Config) (*Deps, error) {
	logger := log.WithComponent("server")

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	deps := &Deps{DB: dbConn, HR: hr.NewClient(cfg.HR)}
	deps.closers = append(deps.closers, dbConn.Close)

	deps.Cache = cache.Nop{}
	if cfg.Redis.Addr != "" {
		redisCache, err := cache.NewRedisCache(ctx, cfg.Redis)
		if err != nil {
			logger.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unavailable, category cache disabled")
		} else {
			deps.Cache = redisCache
			deps.closers = append(deps.closers, redisCache.Close)
		}
	}

	deps.Storage, err = storage.Open(ctx, cfg.Storage)
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("open object storage: %w", err)
	}

	deps.MQ, err = mq.Open(ctx, cfg.MQ)
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("open message queue: %w", err)
	}
	if deps.MQ != nil {
		deps.closers = append(deps.closers, deps.MQ.Close)
		deps.Mailer = mail.NewQueueSender(deps.MQ, cfg.MQ.MailChannel)
	} else {
		deps.Mailer = mail.NewDirectSender(cfg.Mail)
	}

	return deps, nil
}

// Close releases connections in reverse order of opening.
func (d *Deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		_ = d.closers[i]()
	}
	d.closers = nil
}

// Services are the use-cases built over one set of dependencies.
type Services struct {
	Users         *services.UserService
	Import        *services.ImportService
	Categories    *services.CategoryService
	Books         *services.BookService
	Favorites     *services.FavoriteService
	Loans         *services.LoanService
	Fines         *services.FineService
	Settings      *services.SettingsService
	Dashboard     *services.DashboardService
	Suggestions   *services.SuggestionService
	Notifications *services.NotificationService
	Channels      *services.ChannelService
	Posts         *services.PostService
	Comments      *services.CommentService
}

// NewServices wires repositories into services. hub receives realtime events.
func NewServices(cfg config.Config, deps *Deps, hub services.Broadcaster) *Services {
	conn := deps.DB
	tx := store.New(conn)

	userRepo := store.NewUserRepository(conn)
	categoryRepo := store.NewCategoryRepository(conn)
	bookRepo := store.NewBookRepository(conn)
	copyRepo := store.NewCopyRepository(conn)
	reservationRepo := store.NewReservationRepository(conn)
	favoriteRepo := store.NewFavoriteRepository(conn)
	suggestionRepo := store.NewSuggestionRepository(conn)
	notificationRepo := store.NewNotificationRepository(conn)
	channelRepo := store.NewChannelRepository(conn)
	loanRepo := store.NewLoanRepository(conn)
	fineRepo := store.NewFineRepository(conn)
	settingsRepo := store.NewSettingsRepository(conn)
	dashboardRepo := store.NewDashboardRepository(conn)
	postRepo := store.NewPostRepository(conn)
	reactionRepo := store.NewReactionRepository(conn)
	commentRepo := store.NewCommentRepository(conn)

	notifications := services.NewNotificationService(notificationRepo, userRepo, hub)
	inventory := services.NewInventoryService(bookRepo, copyRepo, reservationRepo)
	settings := services.NewSettingsService(tx, settingsRepo)

	return &Services{
		Users:         services.NewUserService(userRepo),
		Import:        services.NewImportService(userRepo, deps.Mailer, deps.HR),
		Categories:    services.NewCategoryService(categoryRepo, deps.Cache, cfg.Redis.TTL),
		Books:         services.NewBookService(tx, bookRepo, copyRepo, categoryRepo, inventory, storage.NewCovers(deps.Storage)),
		Favorites:     services.NewFavoriteService(favoriteRepo, bookRepo),
		Loans:         services.NewLoanService(tx, loanRepo, userRepo, bookRepo, copyRepo, fineRepo, settings, inventory, notifications, services.NewLoanPolicy(cfg.Loans)),
		Fines:         services.NewFineService(tx, fineRepo, userRepo, bookRepo, notifications),
		Settings:      settings,
		Dashboard:     services.NewDashboardService(tx, dashboardRepo),
		Suggestions:   services.NewSuggestionService(tx, suggestionRepo, notifications),
		Notifications: notifications,
		Channels:      services.NewChannelService(channelRepo),
		Posts:         services.NewPostService(tx, postRepo, channelRepo, reactionRepo, commentRepo, hub),
		Comments:      services.NewCommentService(tx, commentRepo, postRepo, channelRepo, notifications, hub),
	}
}

// New constructs a Server with its middleware and routes.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	jwtSecret := strings.TrimSpace(cfg.JWTSecret)
	if jwtSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	deps, err := Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}

	hub := realtime.NewHub()
	svc := NewServices(cfg, deps, hub)
	handlers.ExposeInternalErrors(!cfg.IsProduction())

	router := NewRouter(svc, hub, deps, jwtSecret, cfg.TokenTTL)

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		deps:       deps,
		hub:        hub,
		logger:     log.WithComponent("server"),
	}, nil
}

// NewRouter mounts every route group under /api/v1.
func NewRouter(svc *Services, hub *realtime.Hub, deps *Deps, jwtSecret string, tokenTTL time.Duration) *chi.Mux {
	auth := handlers.NewAuthenticator(svc.Users, jwtSecret)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		requestLogger,
		metrics.Middleware,
		middleware.Recoverer,
	)
	router.Get("/healthz", handlers.Healthz(deps.DB))
	router.Handle("/metrics", metrics.Handler())
	router.Route("/ws", func(r chi.Router) {
		handlers.RealtimeRouter(r, hub, auth)
	})

	router.Route("/api/v1", func(r chi.Router) {
		// Websocket connections are long-lived and must not be cut by the timeout.
		r.Use(middleware.Timeout(60 * time.Second))

		r.Route("/auth", func(r chi.Router) {
			handlers.AuthRouter(r, svc.Users, auth, jwtSecret, tokenTTL)
		})
		r.Route("/users", func(r chi.Router) {
			handlers.UserRouter(r, svc.Users, svc.Import, auth)
		})
		r.Route("/categories", func(r chi.Router) {
			handlers.CategoryRouter(r, svc.Categories, auth)
		})
		r.Route("/books", func(r chi.Router) {
			handlers.BookRouter(r, svc.Books, auth)
		})
		r.Route("/favorites", func(r chi.Router) {
			handlers.FavoriteRouter(r, svc.Favorites, auth)
		})
		r.Route("/loans", func(r chi.Router) {
			handlers.LoanRouter(r, svc.Loans, auth)
		})
		r.Route("/fines", func(r chi.Router) {
			handlers.FineRouter(r, svc.Fines, auth)
		})
		r.Route("/settings", func(r chi.Router) {
			handlers.SettingsRouter(r, svc.Settings, auth)
		})
		r.Route("/dashboard", func(r chi.Router) {
			handlers.DashboardRouter(r, svc.Dashboard, auth)
		})
		r.Route("/suggestions", func(r chi.Router) {
			handlers.SuggestionRouter(r, svc.Suggestions, auth)
		})
		r.Route("/notifications", func(r chi.Router) {
			handlers.NotificationRouter(r, svc.Notifications, auth)
		})
		r.Route("/channels", func(r chi.Router) {
			handlers.ChannelRouter(r, svc.Channels, svc.Posts, auth)
		})
		r.Route("/posts", func(r chi.Router) {
			handlers.PostRouter(r, svc.Posts, svc.Comments, auth)
		})
		r.Route("/comments", func(r chi.Router) {
			handlers.CommentRouter(r, svc.Comments, auth)
		})
		r.Route("/feed", func(r chi.Router) {
			handlers.FeedRouter(r, svc.Posts, auth)
		})
	})
	return router
}

// requestLogger writes one structured line per request.
func requestLogger(next http.Handler) http.Handler {
	logger := log.WithComponent("http")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		event := logger.Info()
		if status >= http.StatusInternalServerError {
			event = logger.Error()
		}
		event.
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.httpServer.Addr).Msg("listening")
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := s.httpServer.Shutdown(shutdownCtx)
	s.close()
	return err
}

// Shutdown closes the listener and every backend immediately.
func (s *Server) Shutdown() error {
	err := s.httpServer.Close()
	s.close()
	return err
}

func (s *Server) close() {
	s.hub.Close()
	s.deps.Close()
}
