// Пакет platform — HTTP-клиент нижележащей архивной платформы.
// Поддерживает TLS с кастомным CA (CM_PLATFORM_CA_CERT), используется
// сверкой отправленных транзакций: реестр процессов и журнал операций.
package platform

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
)

// IngestWorkflow — тип рабочего процесса единичного приёма в журнале операций.
const IngestWorkflow = "PROCESS_SIP_UNITARY"

// ProcessDetail — запись реестра процессов: операция, которая ещё выполняется.
type ProcessDetail struct {
	OperationID string `json:"operationId"`
	StepStatus  string `json:"stepStatus"`
}

// Event — событие журнала операций.
type Event struct {
	Type    string `json:"evType"`
	Outcome string `json:"outcome"`
}

// Operation — операция журнала с цепочкой событий.
// Итог операции несёт последнее событие, если его тип совпадает
// с типом рабочего процесса.
type Operation struct {
	ID     string  `json:"id"`
	Events []Event `json:"events"`
}

// Outcome возвращает итог операции из последнего события.
// Пустая строка — операция ещё не завершена или журнал неполон.
func (o *Operation) Outcome() string {
	if len(o.Events) == 0 {
		return ""
	}
	last := o.Events[len(o.Events)-1]
	if last.Type != IngestWorkflow {
		return ""
	}
	return last.Outcome
}

// ProcessRegistry — реестр выполняющихся процессов платформы.
type ProcessRegistry interface {
	ListIngestOperations(ctx context.Context, tenant int) ([]ProcessDetail, error)
}

// AuditLog — журнал операций платформы.
type AuditLog interface {
	SelectOperations(ctx context.Context, tenant int, operationIDs []string) ([]Operation, error)
}

// Client — HTTP-клиент платформы. Реализует ProcessRegistry и AuditLog.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// New создаёт клиент платформы.
// caCertPath — путь к CA-сертификату для TLS (пустая строка — стандартный пул).
func New(baseURL, caCertPath string, logger *slog.Logger) (*Client, error) {
	transport := &http.Transport{
		MaxIdleConnsPerHost: 10,
	}

	if caCertPath != "" {
		tlsConfig, err := buildTLSConfig(caCertPath)
		if err != nil {
			return nil, fmt.Errorf("загрузка CA-сертификата платформы: %w", err)
		}
		transport.TLSClientConfig = tlsConfig
		logger.Info("CA-сертификат платформы добавлен в пул доверия",
			slog.String("ca_cert", caCertPath),
		)
	}

	httpClient := &http.Client{
		Timeout:   30 * time.Second,
		Transport: transport,
	}

	return &Client{
		baseURL:    normalizeURL(baseURL),
		httpClient: httpClient,
		logger:     logger.With(slog.String("component", "platform_client")),
	}, nil
}

// ListIngestOperations возвращает операции приёма, которые ещё выполняются.
//
// Формат запроса: GET {baseURL}/api/v1/processes
func (c *Client) ListIngestOperations(ctx context.Context, tenant int) ([]ProcessDetail, error) {
	reqURL := c.baseURL + "/api/v1/processes"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("создание запроса к реестру процессов: %w", err)
	}
	req.Header.Set("X-Tenant-Id", fmt.Sprintf("%d", tenant))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("запрос к реестру процессов: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("реестр процессов вернул статус %d", resp.StatusCode)
	}

	var payload struct {
		Results []ProcessDetail `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("разбор ответа реестра процессов: %w", err)
	}
	return payload.Results, nil
}

// SelectOperations возвращает операции журнала по списку идентификаторов.
//
// Формат запроса: POST {baseURL}/api/v1/logbook/operations/select
// Тело: {"ids": [...]}
func (c *Client) SelectOperations(ctx context.Context, tenant int, operationIDs []string) ([]Operation, error) {
	reqURL := c.baseURL + "/api/v1/logbook/operations/select"

	body, err := json.Marshal(map[string][]string{"ids": operationIDs})
	if err != nil {
		return nil, fmt.Errorf("сериализация запроса к журналу операций: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("создание запроса к журналу операций: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-Id", fmt.Sprintf("%d", tenant))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("запрос к журналу операций: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Читаем хвост тела, чтобы не держать соединение
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("журнал операций вернул статус %d", resp.StatusCode)
	}

	var payload struct {
		Results []Operation `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("разбор ответа журнала операций: %w", err)
	}
	return payload.Results, nil
}

// Ready проверяет доступность платформы.
//
// Формат запроса: GET {baseURL}/health/live
func (c *Client) Ready(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health/live", http.NoBody)
	if err != nil {
		return fmt.Errorf("создание запроса проверки платформы: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("платформа недоступна: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("платформа вернула статус %d", resp.StatusCode)
	}
	return nil
}

// buildTLSConfig создаёт TLS-конфигурацию с кастомным CA-сертификатом.
func buildTLSConfig(caCertPath string) (*tls.Config, error) {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return nil, fmt.Errorf("чтение CA-сертификата: %w", err)
	}

	caCertPool, err := x509.SystemCertPool()
	if err != nil {
		caCertPool = x509.NewCertPool()
	}
	caCertPool.AppendCertsFromPEM(caCert)

	return &tls.Config{
		RootCAs: caCertPool,
	}, nil
}

// normalizeURL убирает trailing slash из URL.
func normalizeURL(rawURL string) string {
	return strings.TrimRight(rawURL, "/")
}
