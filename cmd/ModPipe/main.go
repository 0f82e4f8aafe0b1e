package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/BTreeMap/ModPipe/internal/approval"
	"github.com/BTreeMap/ModPipe/internal/config"
	"github.com/BTreeMap/ModPipe/internal/discord"
	"github.com/BTreeMap/ModPipe/internal/lockfile"
	"github.com/BTreeMap/ModPipe/internal/store"
	"github.com/BTreeMap/ModPipe/internal/survey"
	"github.com/BTreeMap/ModPipe/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for ModPipe state data
	DefaultStateDir = "/var/lib/modpipe"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "modpipe.db"
	// DefaultSurveyFileName is the default survey document filename
	DefaultSurveyFileName = "survey.json"
)

func main() {
	initializeLogger()

	envConfig := loadEnvironmentConfig()
	flags := parseCommandLineFlags(envConfig)

	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	slog.Info("Bootstrapping ModPipe")
	if err := run(flags); err != nil {
		slog.Error("ModPipe failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("ModPipe exited successfully")
}

// Config holds environment configuration
type Config struct {
	StateDir     string
	DatabaseDSN  string
	SurveyPath   string
	DiscordToken string
	GuildID      string
}

// Flags holds command line flag values
type Flags struct {
	stateDir     *string
	dbDSN        *string
	surveyPath   *string
	discordToken *string
	guildID      *string
}

// initializeLogger sets up structured logging; MODPIPE_DEBUG enables debug
// level output.
func initializeLogger() {
	level := slog.LevelInfo
	if util.ParseBoolEnv("MODPIPE_DEBUG", false) {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	cfg := Config{
		StateDir:     os.Getenv("MODPIPE_STATE_DIR"),
		DatabaseDSN:  os.Getenv("DATABASE_DSN"),
		SurveyPath:   os.Getenv("SURVEY_CONFIG_PATH"),
		DiscordToken: os.Getenv("DISCORD_TOKEN"),
		GuildID:      os.Getenv("DISCORD_GUILD_ID"),
	}

	if cfg.StateDir == "" {
		cfg.StateDir = DefaultStateDir
		slog.Debug("No MODPIPE_STATE_DIR set, using default", "default_state_dir", cfg.StateDir)
	}
	if cfg.DatabaseDSN == "" {
		cfg.DatabaseDSN = filepath.Join(cfg.StateDir, DefaultDBFileName)
		slog.Debug("No DATABASE_DSN set, using default SQLite path", "dsn", cfg.DatabaseDSN)
	}
	if cfg.SurveyPath == "" {
		cfg.SurveyPath = filepath.Join(cfg.StateDir, DefaultSurveyFileName)
		slog.Debug("No SURVEY_CONFIG_PATH set, using default", "path", cfg.SurveyPath)
	}

	return cfg
}

// parseCommandLineFlags parses command line flags with environment defaults
func parseCommandLineFlags(envConfig Config) Flags {
	flags := Flags{
		stateDir:     flag.String("state-dir", envConfig.StateDir, "Directory for ModPipe state data"),
		dbDSN:        flag.String("db-dsn", envConfig.DatabaseDSN, "Database DSN (SQLite path or PostgreSQL URL)"),
		surveyPath:   flag.String("survey-config", envConfig.SurveyPath, "Path to the survey configuration document"),
		discordToken: flag.String("discord-token", envConfig.DiscordToken, "Discord bot token"),
		guildID:      flag.String("guild-id", envConfig.GuildID, "Discord guild id"),
	}
	flag.Parse()
	return flags
}

// ensureDirectoriesExist creates the state directory if needed.
func ensureDirectoriesExist(flags Flags) error {
	return os.MkdirAll(*flags.stateDir, 0755)
}

// newStore selects a storage backend based on the DSN type.
func newStore(dsn string) (store.Store, error) {
	if store.DetectDSNType(dsn) == "postgres" {
		slog.Debug("Using PostgreSQL store", "dsn_set", dsn != "")
		return store.NewPostgresStore(store.WithDSN(dsn))
	}
	slog.Debug("Using SQLite store", "path", dsn)
	return store.NewSQLiteStore(store.WithDSN(dsn))
}

// run wires the modules together and blocks until a shutdown signal.
func run(flags Flags) error {
	lock, err := lockfile.Acquire(*flags.stateDir)
	if err != nil {
		return err
	}
	defer lock.Release()

	st, err := newStore(*flags.dbDSN)
	if err != nil {
		return err
	}
	defer st.Close()

	client, err := discord.NewClient(
		discord.WithToken(*flags.discordToken),
		discord.WithGuildID(*flags.guildID),
	)
	if err != nil {
		return err
	}
	if err := client.Connect(); err != nil {
		return err
	}
	defer client.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loader := config.NewLoader(*flags.surveyPath)
	registry := approval.NewRegistry(st)
	engine := survey.NewEngine(loader, client, client, registry,
		survey.WithBotUserID(client.BotUserID()))

	if err := engine.Restore(ctx); err != nil {
		return err
	}
	client.Subscribe(ctx, engine)

	slog.Info("ModPipe running", "guild_id", *flags.guildID)
	<-ctx.Done()
	slog.Info("Shutdown signal received")
	return nil
}
