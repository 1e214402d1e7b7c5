// errors.go — типизированные ошибки доменных сервисов.
// Хендлеры сопоставляют их с HTTP-кодами через errors.As.
package service

import (
	"fmt"
	"strings"
)

// EmptyArchiveError — архив не содержит ни одной пригодной записи.
type EmptyArchiveError struct {
	TransactionID string
}

func (e *EmptyArchiveError) Error() string {
	return fmt.Sprintf("архив транзакции %s пуст", e.TransactionID)
}

// InvalidUsageError — неизвестное использование объекта.
type InvalidUsageError struct {
	Usage string
}

func (e *InvalidUsageError) Error() string {
	return fmt.Sprintf("недопустимое использование объекта: %q", e.Usage)
}

// InvalidVersionError — номер версии нарушает протокол версионирования.
type InvalidVersionError struct {
	Usage     string
	Requested int
	Expected  int
}

func (e *InvalidVersionError) Error() string {
	return fmt.Sprintf("недопустимая версия %d для использования %s, ожидается %d",
		e.Requested, e.Usage, e.Expected)
}

// DuplicateVersionError — такая версия уже существует в квалификаторе.
type DuplicateVersionError struct {
	Usage   string
	Version int
}

func (e *DuplicateVersionError) Error() string {
	return fmt.Sprintf("версия %d использования %s уже существует", e.Version, e.Usage)
}

// UnresolvedPathError — путь из CSV не найден в дереве транзакции.
type UnresolvedPathError struct {
	Path string
	Line int
}

func (e *UnresolvedPathError) Error() string {
	return fmt.Sprintf("путь %q (строка %d) не найден в дереве транзакции", e.Path, e.Line)
}

// NoUpdatesAppliedError — CSV не содержит ни одной строки данных.
type NoUpdatesAppliedError struct{}

func (e *NoUpdatesAppliedError) Error() string {
	return "файл метаданных не содержит строк данных"
}

// BulkUpdateError — пакетное обновление затронуло не все документы.
type BulkUpdateError struct {
	Batch    int
	Expected int
	Matched  int64
}

func (e *BulkUpdateError) Error() string {
	return fmt.Sprintf("пакет %d: обновлено %d документов из %d", e.Batch, e.Matched, e.Expected)
}

// MissingOperationError — рассинхронизация с платформой: отправленные
// транзакции без привязанной операции либо операции, не найденные ни в
// реестре процессов, ни в журнале. Сверка прерывается до единого
// обновления статусов.
type MissingOperationError struct {
	// TransactionIDs — транзакции в статусе SENT без идентификатора операции
	TransactionIDs []string
	// OperationIDs — операции, не найденные ни в одном источнике платформы
	OperationIDs []string
}

func (e *MissingOperationError) Error() string {
	var parts []string
	if len(e.TransactionIDs) > 0 {
		parts = append(parts, fmt.Sprintf("транзакции без привязанной операции: %s",
			strings.Join(e.TransactionIDs, ", ")))
	}
	if len(e.OperationIDs) > 0 {
		parts = append(parts, fmt.Sprintf("операции не найдены на платформе: %s",
			strings.Join(e.OperationIDs, ", ")))
	}
	return "сверка прервана: " + strings.Join(parts, "; ")
}

// EmptyTransactionError — у транзакции нет контейнера с содержимым,
// отправлять нечего.
type EmptyTransactionError struct {
	TransactionID string
}

func (e *EmptyTransactionError) Error() string {
	return fmt.Sprintf("транзакция %s не содержит данных", e.TransactionID)
}
