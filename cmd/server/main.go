package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"billing-orders/config"
	"billing-orders/internal/api"
	"billing-orders/internal/broker"
	"billing-orders/internal/docs"
	"billing-orders/internal/processor"
	"billing-orders/internal/redisclient"
	"billing-orders/internal/service"
	"billing-orders/internal/store"
	"billing-orders/internal/util"
	"billing-orders/internal/worker"

	"github.com/gin-gonic/gin"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting billing orders service")

	tp, err := util.InitTracer("billing-orders", cfg.Observ.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	sessionTTL := time.Duration(cfg.Billing.SessionTTLSeconds) * time.Second
	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, sessionTTL)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Redis connected")

	jobProducer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicJobs)
	defer jobProducer.Close()
	webhookProducer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicWebhooks)
	defer webhookProducer.Close()
	notificationProducer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicNotifications)
	defer notificationProducer.Close()
	log.Println("Kafka producers initialized")

	jobQueue := broker.NewJobQueue(jobProducer)
	webhookPublisher := broker.NewWebhookPublisher(webhookProducer)
	notificationPublisher := broker.NewNotificationPublisher(notificationProducer)

	processorClient := processor.NewHTTPClient(cfg.Processor.BaseURL, cfg.Processor.APIKey)
	invoiceURLTTL := time.Duration(cfg.Billing.InvoiceURLTTLSeconds) * time.Second
	docsClient := docs.NewClient(cfg.Billing.DocumentsURL, invoiceURLTTL)

	notifier := service.NewOrderNotifier(webhookPublisher, jobQueue, redisClient)
	orderService := service.NewOrderService(jobQueue, docsClient, redisClient, notifier)
	converter := service.NewCheckoutConverter(processorClient, jobQueue, notificationPublisher, redisClient, notifier, cfg.Billing.FrontendURL)
	reconciler := service.NewInvoiceReconciler(processorClient, jobQueue, notifier, cfg.Billing.StatementDescriptorMaxLen)
	settler := service.NewBalanceSettler(notificationPublisher, cfg.Billing.FrontendURL)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	jobConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicJobs, cfg.Kafka.ConsumerGroup)
	jobWorker := worker.NewJobWorker(jobConsumer, db, orderService, settler)
	go func() {
		if err := jobWorker.Start(workerCtx); err != nil {
			log.Printf("Job worker error: %v", err)
		}
	}()

	processorConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicProcessor, cfg.Kafka.ConsumerGroup)
	processorWorker := worker.NewProcessorEventWorker(processorConsumer, db, converter, reconciler, orderService)
	go func() {
		if err := processorWorker.Start(workerCtx); err != nil {
			log.Printf("Processor event worker error: %v", err)
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	handler := api.NewHandler(db, orderService)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	workerCancel()
	jobWorker.Stop()
	processorWorker.Stop()

	log.Println("Server exited")
}
