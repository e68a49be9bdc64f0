package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gitlab.com/ranfdev/notifyd/internal/cache"
	"gitlab.com/ranfdev/notifyd/internal/db"
	"gitlab.com/ranfdev/notifyd/internal/domain"
	"gitlab.com/ranfdev/notifyd/internal/models"
	"gitlab.com/ranfdev/notifyd/internal/notifications"
	"gitlab.com/ranfdev/notifyd/internal/routes"
	"gopkg.in/natefinch/lumberjack.v2"
)

const usage = `Usage:
	- start
	- migrate [up/down/drop]

Configuration is read from NOTIFYD_* variables and, if set, the YAML file
named by NOTIFYD_CONFIG.
`

func main() {
	if len(os.Args) == 1 {
		fmt.Print(usage + "\n")
		return
	}
	envConfig, err := models.ReadEnvConfig(os.Getenv("NOTIFYD_CONFIG"))
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	switch os.Args[1] {
	case "start":
		server := NotifydServer{EnvConfig: envConfig}
		server.Setup()
		server.Run()
	case "migrate":
		if len(os.Args) < 3 {
			fmt.Print(usage + "\n")
			return
		}
		if envConfig.Store != models.StorePostgres {
			fmt.Println("The sqlite store migrates itself on start")
			return
		}
		switch os.Args[2] {
		case "up":
			err = db.MigrateUp(envConfig.DatabaseURL)
		case "down":
			err = db.MigrateDown(envConfig.DatabaseURL)
		case "drop":
			err = db.Drop(envConfig.DatabaseURL)
		default:
			fmt.Print(usage + "\n")
			return
		}
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		fmt.Println("Done")
	default:
		fmt.Print(usage + "\n")
	}
}

type NotifydServer struct {
	models.EnvConfig
	addr       string
	logger     zerolog.Logger
	router     chi.Router
	httpServer *http.Server
	store      domain.Store
	redis      *redis.Client
	inbox      *notifications.SharedInbox
	pingers    map[string]routes.Pinger
	closers    []func()
}

func (server *NotifydServer) setupLogger() {
	var writer io.Writer
	if server.Debug {
		writer = zerolog.ConsoleWriter{Out: os.Stdout}
	} else {
		writer = os.Stdout
	}
	if server.LogFile != "" {
		writer = zerolog.MultiLevelWriter(writer, &lumberjack.Logger{
			Filename:   server.LogFile,
			MaxSize:    100, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		})
	}
	log := zerolog.New(writer).With().Timestamp().Logger()
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if server.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	server.logger = log
}

func (server *NotifydServer) setupStore(ctx context.Context) {
	server.pingers = map[string]routes.Pinger{}
	switch server.Store {
	case models.StoreSQLite:
		store, err := db.NewSQLiteStore(server.SQLitePath)
		if err != nil {
			server.logger.Fatal().Err(err).Msg("Opening sqlite store")
		}
		server.store = store
		server.pingers["sqlite"] = store.Ping
		server.closers = append(server.closers, func() { store.Close() })
	default:
		err := db.MigrateUp(server.DatabaseURL)
		if err != nil {
			server.logger.Fatal().Err(err).Send()
		}
		sdb, err := db.Connect(ctx, &server.EnvConfig)
		if err != nil {
			server.logger.Fatal().AnErr("Connecting to db", err).Send()
		}
		server.store = sdb
		server.pingers["postgres"] = sdb.Ping
		server.closers = append(server.closers, sdb.Close)
	}
}

func (server *NotifydServer) setupCache(ctx context.Context) {
	rdb, err := cache.Connect(ctx, server.RedisURL)
	if err != nil {
		server.logger.Fatal().Err(err).Send()
	}
	server.redis = rdb
	server.pingers["redis"] = func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}
	server.closers = append(server.closers, func() { rdb.Close() })
}

func (server *NotifydServer) setupInbox(ctx context.Context) {
	c := cache.New(server.redis, domain.TTLs{
		Message:   server.TTL.Message,
		AllSet:    server.TTL.AllSet,
		UnreadSet: server.TTL.UnreadSet,
	})
	parser, err := notifications.LoadTemplateParser(ctx, server.store, server.StrictParse)
	if err != nil {
		server.logger.Fatal().AnErr("Loading templates", err).Send()
	}
	manager := notifications.NewManager(server.store, c, parser, server.logger.With().Str("component", "manager").Logger())
	sender := notifications.NewSender(server.store, c, server.logger.With().Str("component", "sender").Logger())
	server.inbox = notifications.NewSharedInbox(manager, sender)
}

func (server *NotifydServer) setupRouter() {
	server.router = routes.NewRouter(&server.EnvConfig, server.inbox, server.logger, server.pingers)
}

func (server *NotifydServer) setupHttpServer() {
	server.addr = fmt.Sprintf(":%s", server.EnvConfig.Port)
	server.httpServer = &http.Server{
		Addr:         server.addr,
		Handler:      server.router,
		ReadTimeout:  1 * time.Minute,
		WriteTimeout: 1 * time.Minute,
	}
}

func (server *NotifydServer) Setup() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	server.setupLogger()
	server.setupStore(ctx)
	server.setupCache(ctx)
	server.setupInbox(ctx)
	server.setupRouter()
	server.setupHttpServer()
}

func (server *NotifydServer) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.httpServer.Shutdown(ctx); err != nil {
		server.logger.Error().
			Err(err).
			Msg("Error shutting down")
	}
	for i := len(server.closers) - 1; i >= 0; i-- {
		server.closers[i]()
	}
}

func (server *NotifydServer) Run() {
	server.logger.Info().Str("server_address", server.addr).Str("store", server.Store).Msg("Server is starting")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	go func() {
		err := server.httpServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			server.logger.Error().Err(err).Msg("Server stopped")
			stop()
		}
	}()
	server.logger.Info().Msg("Ready")

	<-ctx.Done()
	stop() // Stop listening for signals
	server.logger.Info().Msg("Shutting down gracefully")
	server.Shutdown()
}
