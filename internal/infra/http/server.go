package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"firmadoc/internal/config"
	"firmadoc/internal/infra/db"
	"firmadoc/internal/usecase"
)

type Server struct {
	cfg   config.Config
	store *db.Store
	r     *gin.Engine
	log   *logrus.Entry

	contracts *usecase.ContractService
	audit     *usecase.AuditTrail
}

type ServerDeps struct {
	Contracts *usecase.ContractService
	Audit     *usecase.AuditTrail
	Store     *db.Store
	Log       *logrus.Entry
}

func NewServer(cfg config.Config, deps ServerDeps) *Server {
	r := gin.New()
	r.Use(gin.Recovery())

	log := deps.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	s := &Server{
		cfg:       cfg,
		store:     deps.Store,
		r:         r,
		log:       log,
		contracts: deps.Contracts,
		audit:     deps.Audit,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.r.GET("/healthz", func(c *gin.Context) {
		dbMode := "no-db"
		if s.store != nil && s.store.DB != nil {
			dbMode = "db"
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "mode": dbMode})
	})

	v1 := s.r.Group("/v1")
	{
		v1.POST("/contracts", s.handleCreateContract)
		v1.GET("/contracts/:contract_id", s.handleGetContract)
		v1.GET("/contracts/:contract_id/download", s.handleDownload)
		v1.POST("/contracts/:contract_id/sign", s.handleSign)
		v1.POST("/contracts/:contract_id/signatures", s.handleAddSignature)
		v1.POST("/contracts/:contract_id/reject", s.handleReject)
		v1.GET("/contracts/:contract_id/integrity", s.handleVerifyIntegrity)

		v1.GET("/owners/:owner_id/contracts", s.handleListContracts)
		v1.GET("/owners/:owner_id/contracts/stats", s.handleStorageStats)
		v1.GET("/owners/:owner_id/contracts/manifest", s.handleManifest)

		v1.GET("/audit", s.handleAuditQuery)
		v1.GET("/audit/security-events", s.handleSecurityEvents)
		v1.GET("/audit/anomalies", s.handleAnomalies)
	}

	s.r.NoRoute(func(c *gin.Context) {
		writeErrorCode(c, http.StatusNotFound, "NOT_FOUND", "route not found")
	})
}

// Engine exposes the router for tests.
func (s *Server) Engine() *gin.Engine {
	return s.r
}

func (s *Server) Run() error {
	s.log.WithField("addr", s.cfg.HTTPAddr).Info("http server listening")
	return s.r.Run(s.cfg.HTTPAddr)
}
