package main

import (
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/bwmarrin/discordgo"

	"karybot/bot"
	"karybot/internal/catalog"
	"karybot/internal/config"
	"karybot/internal/giveaway"
	"karybot/internal/http-server/api"
	"karybot/internal/invites"
	"karybot/internal/jobs"
	"karybot/internal/store"
	"karybot/internal/tickets"
	"karybot/lib/logger"
	"karybot/lib/sl"
)

const (
	envLocal    = "local"
	envDev      = "dev"
	envProd     = "prod"
	logFileName = "karybot.log"
)

func main() {
	configPath := flag.String("conf", "config.yml", "path to config file")
	logPath := flag.String("log", "/var/log/", "path to log file directory")
	flag.Parse()

	conf := config.MustLoad(*configPath)
	baseLogger := setupLogger(conf.Env, *logPath)
	baseLogger.Info("starting karybot",
		slog.String("config", *configPath),
		slog.String("env", conf.Env),
		sl.Secret("token", conf.Discord.Token),
	)

	if conf.Discord.Token == "" {
		baseLogger.Error("no bot token configured; set discord.token or the DISCORD_BOT_TOKEN environment variable")
		os.Exit(1)
	}

	session, err := discordgo.New("Bot " + conf.Discord.Token)
	if err != nil {
		baseLogger.Error("creating discord session", sl.Err(err))
		os.Exit(1)
	}

	cat := catalog.New(conf.Catalog)
	b := bot.New(session, conf, cat, baseLogger)

	// Mirror warnings and errors into the log channel once the bot exists.
	appLogger := baseLogger
	if conf.Discord.LogChannel != "" {
		appLogger = slog.New(logger.NewDiscordHandler(baseLogger.Handler(), b, slog.LevelWarn))
	}

	fileStore, err := store.NewFileStore(conf.Store.Dir, appLogger)
	if err != nil {
		appLogger.Error("preparing record store", sl.Err(err))
		os.Exit(1)
	}
	var st store.Store = fileStore
	if mongoStore := store.NewMongoStore(conf, appLogger); mongoStore != nil {
		st = mongoStore
		appLogger.Info("using mongodb record store", slog.String("database", conf.Mongo.Database))
	}

	ledger := invites.NewLedger(st, b, appLogger)
	giveaways := giveaway.New(st, ledger, b, appLogger)
	ticketSvc := tickets.New(st, b, tickets.Config{
		CategoryID:        conf.Discord.TicketCategory,
		ArchiveCategoryID: conf.Discord.ArchiveCategory,
		CloseDelay:        conf.Tickets.CloseDelay,
		DeleteDelay:       conf.Tickets.DeleteDelay,
		HistoryLimit:      conf.Tickets.HistoryLimit,
	}, appLogger)
	b.Connect(ledger, giveaways, ticketSvc)

	if err = b.Start(); err != nil {
		appLogger.Error("opening gateway connection", sl.Err(err))
		os.Exit(1)
	}

	giveaways.ResumeAll()

	scheduler, err := jobs.NewScheduler(conf.Giveaways.SweepSpec, giveaways, appLogger)
	if err != nil {
		appLogger.Error("invalid sweep spec", sl.Err(err))
		os.Exit(1)
	}
	scheduler.Start()

	go func() {
		if err := api.New(conf, appLogger, b); err != nil {
			appLogger.Error("api server stopped", sl.Err(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	appLogger.Info("shutting down")
	scheduler.Stop()
	b.Stop()
}

func setupLogger(env, path string) *slog.Logger {
	var logger *slog.Logger
	var logFile *os.File
	var err error

	if env != envLocal {
		logPath := logFilePath(path)
		logFile, err = os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			log.Fatal("error opening log file: ", err)
		}
		log.Printf("env: %s; log file: %s", env, logPath)
	}

	switch env {
	case envLocal:
		logger = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envDev:
		logger = slog.New(
			slog.NewTextHandler(logFile, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		logger = slog.New(
			slog.NewTextHandler(logFile, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log.Fatal("invalid environment: ", env)
	}

	return logger
}

func logFilePath(path string) string {
	return filepath.Join(path, logFileName)
}
