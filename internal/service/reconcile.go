// reconcile.go — сервис сверки отправленных транзакций с платформой.
//
// Сверка для каждой транзакции в статусе SENT выясняет судьбу её
// операции: сначала в реестре выполняющихся процессов, затем в журнале
// операций. Терминальный итог переводит транзакцию в соответствующий
// ACK-статус; операция, не найденная ни в одном источнике, означает
// рассинхронизацию и прерывает запуск целиком до единого обновления.
//
// Запускается как горутина с периодическим тикером (CM_RECONCILE_INTERVAL)
// и по разовому запросу оператора.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/arturkryukov/arkhiv/collect-module/internal/domain/model"
	"github.com/arturkryukov/arkhiv/collect-module/internal/domain/status"
	"github.com/arturkryukov/arkhiv/collect-module/internal/platform"
	"github.com/arturkryukov/arkhiv/collect-module/internal/repository"
)

// Prometheus метрики сверки
var (
	// reconcileRunsTotal — количество запусков сверки по результату.
	reconcileRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cm_reconcile_runs_total",
		Help: "Общее количество запусков сверки",
	}, []string{"result"})

	// reconcileAckTotal — количество подтверждённых транзакций по статусу.
	reconcileAckTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cm_reconcile_acknowledged_total",
		Help: "Количество транзакций, подтверждённых сверкой",
	}, []string{"status"})

	// reconcileDurationSeconds — длительность выполнения сверки.
	reconcileDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cm_reconcile_duration_seconds",
		Help:    "Длительность выполнения сверки в секундах",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60},
	})
)

// ReconcileResult — итог одного запуска сверки.
type ReconcileResult struct {
	// Sent — транзакций в статусе SENT на момент запуска
	Sent int `json:"sent"`
	// Acknowledged — переведено в терминальный ACK-статус
	Acknowledged int `json:"acknowledged"`
	// Pending — операции ещё выполняются, транзакции остались SENT
	Pending int `json:"pending"`
}

// ReconcileService — сервис сверки отправленных транзакций.
type ReconcileService struct {
	transactions repository.TransactionRepository
	registry     platform.ProcessRegistry
	audit        platform.AuditLog
	tenant       int
	batchSize    int
	interval     time.Duration
	logger       *slog.Logger

	mu        sync.Mutex // защита от параллельного запуска
	inProcess bool       // сверка в процессе выполнения
	cancel    context.CancelFunc
}

// NewReconcileService создаёт сервис сверки.
func NewReconcileService(
	transactions repository.TransactionRepository,
	registry platform.ProcessRegistry,
	audit platform.AuditLog,
	tenant int,
	batchSize int,
	interval time.Duration,
	logger *slog.Logger,
) *ReconcileService {
	return &ReconcileService{
		transactions: transactions,
		registry:     registry,
		audit:        audit,
		tenant:       tenant,
		batchSize:    batchSize,
		interval:     interval,
		logger:       logger.With(slog.String("component", "reconcile")),
	}
}

// Start запускает фоновую горутину сверки с периодическим тикером.
func (rs *ReconcileService) Start(ctx context.Context) {
	rsCtx, cancel := context.WithCancel(ctx)
	rs.cancel = cancel

	go rs.run(rsCtx)

	rs.logger.Info("Периодическая сверка запущена",
		slog.String("interval", rs.interval.String()),
	)
}

// Stop останавливает фоновой процесс сверки.
func (rs *ReconcileService) Stop() {
	if rs.cancel != nil {
		rs.cancel()
	}
	rs.logger.Info("Периодическая сверка остановлена")
}

// run — основной цикл фоновой горутины.
func (rs *ReconcileService) run(ctx context.Context) {
	ticker := time.NewTicker(rs.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, _, err := rs.RunOnce(ctx); err != nil {
				rs.logger.Error("Ошибка сверки",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce выполняет один запуск сверки.
// Потокобезопасен: если сверка уже выполняется, возвращает nil, true, nil.
func (rs *ReconcileService) RunOnce(ctx context.Context) (*ReconcileResult, bool, error) {
	rs.mu.Lock()
	if rs.inProcess {
		rs.mu.Unlock()
		rs.logger.Warn("Сверка уже выполняется, пропуск")
		return nil, true, nil
	}
	rs.inProcess = true
	rs.mu.Unlock()

	defer func() {
		rs.mu.Lock()
		rs.inProcess = false
		rs.mu.Unlock()
	}()

	startedAt := time.Now()
	result, err := rs.ReconcileSentTransactions(ctx)
	reconcileDurationSeconds.Observe(time.Since(startedAt).Seconds())
	return result, false, err
}

// ReconcileSentTransactions сверяет все транзакции в статусе SENT.
// Обновляются только транзакции с терминальным итогом операции;
// остальные остаются SENT до следующего запуска.
func (rs *ReconcileService) ReconcileSentTransactions(ctx context.Context) (*ReconcileResult, error) {
	result, err := rs.reconcile(ctx)
	if err != nil {
		reconcileRunsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	reconcileRunsTotal.WithLabelValues("ok").Inc()
	return result, nil
}

func (rs *ReconcileService) reconcile(ctx context.Context) (*ReconcileResult, error) {
	sent, err := rs.transactions.ListByStatus(ctx, rs.tenant, status.StatusSent)
	if err != nil {
		return nil, fmt.Errorf("выборка отправленных транзакций: %w", err)
	}
	result := &ReconcileResult{Sent: len(sent)}
	if len(sent) == 0 {
		return result, nil
	}

	// Живые процессы: операция ещё выполняется либо только что завершилась
	live, err := rs.registry.ListIngestOperations(ctx, rs.tenant)
	if err != nil {
		return nil, fmt.Errorf("опрос реестра процессов: %w", err)
	}
	liveStatus := make(map[string]string, len(live))
	for _, p := range live {
		liveStatus[p.OperationID] = p.StepStatus
	}

	statuses := make(map[string]status.Status)
	var (
		auditLookup []*model.Transaction
		missingTxs  []string
		missingOps  []string
	)
	for _, tx := range sent {
		if tx.OperationID == "" {
			missingTxs = append(missingTxs, tx.ID)
			continue
		}
		step, ok := liveStatus[tx.OperationID]
		if !ok {
			auditLookup = append(auditLookup, tx)
			continue
		}
		if ack, terminal := outcomeToStatus(step); terminal {
			statuses[tx.ID] = ack
		} else {
			result.Pending++
		}
	}

	// Операции, не найденные живыми, ищутся в журнале батчами
	outcomes, err := rs.selectOutcomes(ctx, auditLookup)
	if err != nil {
		return nil, err
	}
	for _, tx := range auditLookup {
		outcome, ok := outcomes[tx.OperationID]
		if !ok {
			missingOps = append(missingOps, tx.OperationID)
			continue
		}
		if ack, terminal := outcomeToStatus(outcome); terminal {
			statuses[tx.ID] = ack
		} else {
			result.Pending++
		}
	}

	// Рассинхронизация прерывает запуск до единого обновления статусов
	if len(missingTxs) > 0 || len(missingOps) > 0 {
		return nil, &MissingOperationError{TransactionIDs: missingTxs, OperationIDs: missingOps}
	}

	if len(statuses) > 0 {
		if err := rs.transactions.UpdateStatuses(ctx, statuses); err != nil {
			return nil, fmt.Errorf("обновление статусов по итогам сверки: %w", err)
		}
	}
	result.Acknowledged = len(statuses)
	for _, st := range statuses {
		reconcileAckTotal.WithLabelValues(string(st)).Inc()
	}

	rs.logger.Info("Сверка завершена",
		slog.Int("sent", result.Sent),
		slog.Int("acknowledged", result.Acknowledged),
		slog.Int("pending", result.Pending),
	)
	return result, nil
}

// selectOutcomes опрашивает журнал операций батчами и возвращает
// итог каждой найденной операции.
func (rs *ReconcileService) selectOutcomes(ctx context.Context, txs []*model.Transaction) (map[string]string, error) {
	outcomes := make(map[string]string, len(txs))
	ids := make([]string, 0, len(txs))
	for _, tx := range txs {
		ids = append(ids, tx.OperationID)
	}

	for start := 0; start < len(ids); start += rs.batchSize {
		end := start + rs.batchSize
		if end > len(ids) {
			end = len(ids)
		}
		ops, err := rs.audit.SelectOperations(ctx, rs.tenant, ids[start:end])
		if err != nil {
			return nil, fmt.Errorf("опрос журнала операций: %w", err)
		}
		for i := range ops {
			outcomes[ops[i].ID] = ops[i].Outcome()
		}
	}
	return outcomes, nil
}

// outcomeToStatus сопоставляет итог операции с терминальным ACK-статусом.
// Второе значение false — итог нетерминальный, транзакция остаётся SENT.
func outcomeToStatus(outcome string) (status.Status, bool) {
	switch outcome {
	case "OK":
		return status.StatusAckOK, true
	case "KO":
		return status.StatusAckKO, true
	case "WARNING":
		return status.StatusAckWarning, true
	}
	return "", false
}
