package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	"conforma/internal/access"
	accessmetrics "conforma/internal/access/metrics"
	"conforma/internal/audit"
	"conforma/internal/compliance"
	"conforma/internal/compliance/rollup"
	rollupmetrics "conforma/internal/compliance/rollup/metrics"
	complianceservice "conforma/internal/compliance/service"
	"conforma/internal/org"
	"conforma/internal/platform/config"
	"conforma/internal/platform/httpserver"
	"conforma/internal/platform/logger"
	"conforma/internal/platform/postgres"
	platformredis "conforma/internal/platform/redis"
	httptransport "conforma/internal/transport/http"
	"conforma/internal/workflow"
	workflowmetrics "conforma/internal/workflow/metrics"
	"conforma/pkg/platform/middleware/auth"
)

// main wires dependencies and keeps the server lifecycle small. Business
// logic lives in the internal service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	db, err := postgres.Open(cfg.PostgresDSN)
	if err != nil {
		log.Error("postgres unavailable", "error", err)
		os.Exit(1)
	}
	if db != nil {
		defer db.Close()
	}

	// Store selection: Postgres when configured, in-memory otherwise.
	var (
		auditStore      audit.Store
		orgStore        org.Store
		complianceStore compliance.Store
		workflowStore   workflow.Store
		assignmentStore access.AssignmentStore
	)
	if db != nil {
		auditStore = audit.NewPostgres(db)
		orgStore = org.NewPostgres(db)
		complianceStore = compliance.NewPostgres(db)
		workflowStore = workflow.NewPostgres(db)
		assignmentStore = access.NewPostgresAssignmentStore(db)
	} else {
		log.Warn("no POSTGRES_DSN configured, using in-memory stores")
		auditStore = audit.NewInMemoryStore()
		orgStore = org.NewInMemoryStore()
		complianceStore = compliance.NewInMemoryStore()
		workflowStore = workflow.NewInMemoryStore()
		assignmentStore = access.NewInMemoryAssignmentStore()
	}

	// Audit writes go through a buffered queue when configured, so request
	// paths do not block on the sink.
	auditSink := auditStore
	var stopQueue func()
	if cfg.AuditQueueSize > 0 {
		queue := audit.NewQueue(auditStore, cfg.AuditQueueSize, audit.QueueWithLogger(log))
		queueCtx, cancelQueue := context.WithCancel(context.Background())
		queueDone := make(chan struct{})
		go func() {
			defer close(queueDone)
			if err := queue.Run(queueCtx); err != nil && err != context.Canceled {
				log.Error("audit queue stopped", "error", err)
			}
		}()
		stopQueue = func() {
			cancelQueue()
			<-queueDone
		}
		auditSink = queue
	}
	auditor := audit.NewPublisher(auditSink)

	var permCache access.Cache
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("redis unavailable", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		permCache = access.NewRedisCache(redisClient.Client, cfg.PermissionCacheTTL)
	} else {
		permCache = access.NewMemoryCache(cfg.PermissionCacheTTL)
	}

	evaluator := access.NewEvaluator(orgStore, recordReader{complianceStore},
		access.WithLogger(log),
		access.WithCache(permCache),
		access.WithAuditPublisher(auditor),
		access.WithMetrics(accessmetrics.New()),
	)
	assignments := access.NewAssignments(assignmentStore, permCache,
		access.AssignmentsWithLogger(log),
		access.AssignmentsWithAuditPublisher(auditor),
	)

	rollupEngine := rollup.NewEngine(complianceStore,
		rollup.WithLogger(log),
		rollup.WithAuditPublisher(auditor),
		rollup.WithMetrics(rollupmetrics.New()),
		rollup.WithWorkers(cfg.RecalcWorkers),
	)
	complianceSvc := complianceservice.New(complianceStore, evaluator, rollupEngine,
		complianceservice.WithLogger(log),
		complianceservice.WithAuditPublisher(auditor),
	)
	orgSvc := org.New(orgStore, org.WithLogger(log))

	workflowEngine := workflow.NewEngine(workflowStore, evaluator, complianceStore,
		workflow.WithLogger(log),
		workflow.WithAuditPublisher(auditor),
		workflow.WithMetrics(workflowmetrics.New()),
		workflow.WithInterpreter(&actionInterpreter{rollup: rollupEngine, logger: log}),
	)

	router := httptransport.NewRouter(httptransport.Deps{
		Logger:      log,
		Validator:   auth.NewValidator([]byte(cfg.JWTSigningKey)),
		Compliance:  complianceSvc,
		Orgs:        orgSvc,
		Workflows:   workflowEngine,
		Access:      evaluator,
		Assignments: assignments,
		Audit:       auditor,
	})

	srv := httpserver.New(cfg.Addr, router)

	log.Info("starting conforma", "addr", cfg.Addr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	if stopQueue != nil {
		stopQueue()
	}
}

// recordReader adapts the compliance store to the evaluator's narrow view.
type recordReader struct {
	store compliance.Store
}

func (r recordReader) OrganizationID(ctx context.Context, recordID string) (string, error) {
	return r.store.RecordOrganizationID(ctx, recordID)
}
