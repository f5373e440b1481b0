package main

import (
	"context"
	"errors"
	"log"
	"os"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"

	"crm-planner/internal/api"
	"crm-planner/internal/bot"
	"crm-planner/internal/config"
	"crm-planner/internal/lock"
	"crm-planner/internal/recurrence"
	"crm-planner/internal/repository"
	"crm-planner/internal/service"
)

const (
	shutdownTimeout      = 30 * time.Second
	recurrenceJobTimeout = 10 * time.Minute
	reportJobTimeout     = 30 * time.Second
)

func main() {
	configPath := pflag.String("config", "", "path to a YAML config file (default $"+config.EnvConfigPath+")")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	db, err := repository.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}

	userRepo := repository.NewUserRepository(db)
	projectRepo := repository.NewProjectRepository(db)
	taskRepo := repository.NewTaskRepository(db)

	var locker recurrence.SeriesLocker = &recurrence.KeyedMutex{}
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		redisLocker := lock.NewRedisLocker(redisClient, lock.Config{TTL: cfg.Recurrence.LockTTL})
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := redisLocker.Ping(pingCtx)
		cancel()
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		locker = redisLocker
		log.Printf("[info] series locks in redis at %s", cfg.RedisAddr)
	}

	factory := recurrence.NewFactory(taskRepo,
		recurrence.WithLocker(locker),
		recurrence.WithClock(time.Now, loc),
	)
	var gate *recurrence.Gate
	if cfg.Recurrence.Authoritative {
		gate = recurrence.NewGate(taskRepo)
	}
	advancer := service.NewAdvancer(factory, gate)

	projectSvc := service.NewProjectService(projectRepo)
	taskSvc := service.NewTaskService(taskRepo, projectRepo, advancer, loc)
	agendaSvc := service.NewAgendaService(taskRepo, projectRepo)
	job := service.NewRecurrenceJob(taskRepo, advancer, cfg.Recurrence.Workers, cfg.Recurrence.AdvanceOverdue, loc)

	var telegramBot *bot.Bot
	if cfg.TelegramToken != "" {
		telegramBot, err = bot.New(cfg.TelegramToken, userRepo, projectSvc, taskSvc, agendaSvc, loc)
		if err != nil {
			log.Fatalf("bot: %v", err)
		}
	} else {
		log.Println("[info] TELEGRAM_TOKEN is empty, bot disabled")
	}

	scheduler := service.NewSchedulerService(loc)
	entry, err := scheduler.Daily("recurrence", cfg.Recurrence.JobTime, recurrenceJobTimeout, func(ctx context.Context) error {
		report, err := job.Run(ctx)
		if err != nil {
			return err
		}
		log.Printf("[info] recurrence job: %s", report)
		return nil
	})
	if err != nil {
		log.Fatalf("schedule recurrence job: %v", err)
	}
	if telegramBot != nil && cfg.ReportInterval > 0 {
		if _, err := scheduler.Every("reports", cfg.ReportInterval, reportJobTimeout, telegramBot.SendDailyReports); err != nil {
			log.Fatalf("schedule reports: %v", err)
		}
	}
	scheduler.Start()
	log.Printf("[info] next recurrence run at %s", scheduler.Next(entry).Format(time.RFC3339))

	server := api.New(taskSvc, userRepo, loc)
	go func() {
		if err := server.Listen(cfg.HTTPAddr); err != nil {
			log.Printf("[warn] http server stopped: %v", err)
		}
	}()

	botCtx, stopBot := context.WithCancel(context.Background())
	if telegramBot != nil {
		go func() {
			if err := telegramBot.Start(botCtx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("[warn] bot stopped: %v", err)
			}
		}()
	}

	log.Println("[info] crm planner started")

	wait := gfshutdown.GracefulShutdown(context.Background(), shutdownTimeout, map[string]gfshutdown.Operation{
		"http": func(ctx context.Context) error {
			return server.Shutdown(ctx)
		},
		"bot": func(context.Context) error {
			stopBot()
			return nil
		},
		"scheduler": func(context.Context) error {
			scheduler.Stop()
			return nil
		},
	})
	exitCode := <-wait

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			log.Printf("[warn] close redis: %v", err)
		}
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
	log.Printf("[info] shutdown complete, exit code %d", exitCode)
	os.Exit(exitCode)
}
