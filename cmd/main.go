package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mapleleafu/typearena/typearena-backend/anticheat"
	"github.com/mapleleafu/typearena/typearena-backend/arena"
	"github.com/mapleleafu/typearena/typearena-backend/config"
	"github.com/mapleleafu/typearena/typearena-backend/handlers"
	"github.com/mapleleafu/typearena/typearena-backend/logger"
	"github.com/mapleleafu/typearena/typearena-backend/matchmaking"
	"github.com/mapleleafu/typearena/typearena-backend/repository"
	"github.com/mapleleafu/typearena/typearena-backend/repository/migrations"
	"github.com/mapleleafu/typearena/typearena-backend/room"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := godotenv.Load(); err != nil {
		// Environment variables may come from the deployment instead.
		log.Warn().Err(err).Msg("no .env file loaded")
	}

	cfg := config.LoadConfig()
	logger.Init(cfg.LogLevel, cfg.LogPretty)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := repository.ConnectToPostgreSQL(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("postgres unavailable")
	}
	defer db.Close()
	if err := migrations.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrations failed")
	}

	redisClient, err := repository.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Fatal().Err(err).Msg("redis unavailable")
	}
	defer redisClient.Close()

	mongoClient, err := repository.ConnectMongoDB(ctx, cfg.MongoURI)
	if err != nil {
		log.Fatal().Err(err).Msg("mongodb unavailable")
	}
	defer mongoClient.Disconnect(context.Background())

	kafka := repository.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
	defer kafka.Close()

	store := repository.NewPostgresStore(db)
	archive := repository.NewMongoArchive(mongoClient, cfg.MongoDatabase)
	rooms := room.NewManager(store, repository.NewRedisCache(redisClient))
	rater := matchmaking.NewRatingService(store)

	hub := handlers.NewHub()
	games := arena.New(arena.DefaultConfig(), rooms, hub, anticheat.NewValidator(anticheat.DefaultThresholds), store, archive, kafka)

	matcher := matchmaking.NewService(matchmaking.Config{
		Interval:       cfg.MatchInterval,
		CrossTierAfter: cfg.MatchCrossTierAfter,
		Timeout:        cfg.MatchTimeout,
	}, repository.NewRedisQueue(redisClient), rooms, rater, handlers.NewMatchNotifier(hub, rooms, games))
	go matcher.Run(ctx)

	server := handlers.NewServer(handlers.Deps{
		Hub:       hub,
		Rooms:     rooms,
		Match:     matcher,
		Arena:     games,
		Rater:     rater,
		History:   store,
		Archive:   archive,
		JWTSecret: cfg.JWTSecret,
	})

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handlers.NewRouter(server),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Str("port", cfg.Port).Msg("server running")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown incomplete")
	}
	if err := games.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("some sessions were not recorded")
	}
}
