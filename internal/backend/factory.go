package backend

import (
	"context"
	"fmt"
	"log/slog"

	"saldo/internal/amqp"
	applog "saldo/internal/log"
	"saldo/internal/memory"
	"saldo/internal/services"
	"saldo/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*Result, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case SQLiteBackend:
		return f.createSQLiteBackend(config)
	case MemoryBackend:
		return f.createMemoryBackend()
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

// sqliteBackend composes the write side and the read side into one ledger.
type sqliteBackend struct {
	*services.LedgerService
	*services.DashboardService
}

func (f *DefaultFactory) createSQLiteBackend(config Config) (*Result, error) {
	sqliteRepo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	// AMQP is optional: without it transactions still record, only the
	// export and drift messages are skipped.
	var amqpClient *amqp.Client
	if config.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPExportQueue, config.AMQPDriftQueue)
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, continuing without messaging", applog.FieldError, err)
		} else {
			f.logger.Info("Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"export_queue", config.AMQPExportQueue,
				"drift_queue", config.AMQPDriftQueue)
		}
	}

	// A nil *amqp.Client must stay a nil interface inside the service.
	var publisher services.MessagePublisher
	if amqpClient != nil {
		publisher = amqpClient
	}
	ledgerService := services.NewLedgerService(sqliteRepo, publisher)

	f.logger.Info("Initialized SQLite backend",
		"db_path", config.SQLiteDBPath,
		"amqp_enabled", amqpClient != nil)

	return &Result{
		Backend: sqliteBackend{
			LedgerService:    ledgerService,
			DashboardService: services.NewDashboardService(sqliteRepo),
		},
		Sessions: sqliteRepo,
		Cleanup:  ledgerService.Close,
	}, nil
}

func (f *DefaultFactory) createMemoryBackend() (*Result, error) {
	store := memory.New()

	f.logger.Info("Initialized memory backend")

	return &Result{
		Backend:  store,
		Sessions: store,
		Cleanup:  nil,
	}, nil
}
