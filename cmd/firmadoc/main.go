package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"firmadoc/internal/config"
	"firmadoc/internal/domain"
	"firmadoc/internal/infra/cache"
	"firmadoc/internal/infra/crypto"
	"firmadoc/internal/infra/db"
	httpinfra "firmadoc/internal/infra/http"
	"firmadoc/internal/infra/queue"
	"firmadoc/internal/infra/render"
	"firmadoc/internal/infra/storage"
	"firmadoc/internal/usecase"
)

func main() {
	cfg := config.FromEnv()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}
	log := logger.WithField("service", "firmadoc")

	store, err := db.NewStore(cfg, log.WithField("subsystem", "db"))
	if err != nil {
		log.WithError(err).Fatal("failed to init store")
	}
	if err := store.AutoMigrate(); err != nil {
		log.WithError(err).Fatal("failed to run migrations")
	}

	var blobs storage.BlobStore
	if store.DB != nil {
		blobs = db.NewBlobRepository(store.DB)
	} else {
		blobs = storage.NewMemoryBlobStore()
	}
	docStore := storage.NewService(
		blobs,
		storage.NewCompressor(cfg.CompressionThreshold()),
		cfg.StorageTimeout(),
		log.WithField("subsystem", "storage"),
	)

	keys := db.NewDocumentKeyRepository(store.DB)
	contractRepo := db.NewContractRepository(store.DB)
	auditRepo := db.NewAuditRepository(store.DB)
	users := db.NewUserRepository(store.DB)

	clock := usecase.Clock(time.Now)
	audit := &usecase.AuditTrail{Records: auditRepo, Clock: clock}
	signer := &usecase.SigningEngine{
		Keys:   keys,
		Crypto: crypto.NewService(time.Now),
		Audit:  audit,
	}
	integrity := &usecase.IntegrityService{Clock: clock}

	q, err := queue.NewQueue(log.WithField("subsystem", "queue"), cfg.RenderMaxRetries, cfg.RenderBackoff())
	if err != nil {
		log.WithError(err).Fatal("failed to init job queue")
	}

	var contractCache usecase.ContractCache
	if cfg.RedisAddr != "" {
		c, err := cache.NewContractCache(
			cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB,
			cfg.ContractCacheTTL(),
			log.WithField("subsystem", "cache"),
		)
		if err != nil {
			log.WithError(err).Warn("contract cache disabled")
		} else {
			contractCache = c
		}
	}

	contracts := &usecase.ContractService{
		Contracts: contractRepo,
		Signer:    signer,
		Integrity: integrity,
		Audit:     audit,
		Users:     users,
		Store:     docStore,
		Queue:     q,
		Cache:     contractCache,
		Clock:     clock,
		Directory: cfg.DocumentDirectory,
	}

	renderWorker := &usecase.RenderWorker{
		Contracts: contractRepo,
		Store:     docStore,
		Renderer:  render.NewPDFRenderer(log.WithField("subsystem", "render")),
		Integrity: integrity,
		Audit:     audit,
		Cache:     contractCache,
		Directory: cfg.DocumentDirectory,
	}
	compressWorker := &usecase.CompressWorker{
		Contracts: contractRepo,
		Store:     docStore,
		Audit:     audit,
		Cache:     contractCache,
		Directory: cfg.DocumentDirectory,
	}
	verifyWorker := &usecase.VerifyWorker{Service: contracts}

	q.RegisterWorker(domain.JobRenderPDF, renderWorker.Handle)
	q.RegisterWorker(domain.JobCompress, compressWorker.Handle)
	q.RegisterWorker(domain.JobVerifyIntegrity, verifyWorker.Handle)
	q.SetPoisonHandler(renderWorker.HandlePoison)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	q.RunAsync(ctx)
	defer q.Close()

	srv := httpinfra.NewServer(cfg, httpinfra.ServerDeps{
		Contracts: contracts,
		Audit:     audit,
		Store:     store,
		Log:       log.WithField("subsystem", "http"),
	})
	if err := srv.Run(); err != nil {
		log.WithError(err).Fatal("server exited")
	}
}
