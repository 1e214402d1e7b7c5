// Пакет status — конечный автомат жизненного цикла транзакции.
//
// Основной маршрут: OPEN → READY → SENDING → SENT → {ACK_OK | ACK_KO | ACK_WARNING}.
// ABORTED достижим из OPEN, READY, ACK_KO, KO; повторное открытие (OPEN)
// возможно из READY, ACK_KO, KO.
//
// Сам автомат не хранит состояние: текущий статус лежит в записи транзакции,
// здесь только матрица допустимых переходов и проверка.
package status

import "fmt"

// Status — статус жизненного цикла транзакции.
type Status string

const (
	// StatusOpen — транзакция открыта, содержимое можно изменять
	StatusOpen Status = "OPEN"
	// StatusReady — транзакция закрыта для изменений, готова к отправке
	StatusReady Status = "READY"
	// StatusSending — идёт отправка на платформу
	StatusSending Status = "SENDING"
	// StatusSent — отправлена, ожидается подтверждение платформы
	StatusSent Status = "SENT"
	// StatusAckOK — платформа подтвердила успешный приём
	StatusAckOK Status = "ACK_OK"
	// StatusAckKO — платформа отклонила приём
	StatusAckKO Status = "ACK_KO"
	// StatusAckWarning — платформа приняла с предупреждениями
	StatusAckWarning Status = "ACK_WARNING"
	// StatusKO — локальная ошибка отправки
	StatusKO Status = "KO"
	// StatusAborted — транзакция прервана (терминальный статус)
	StatusAborted Status = "ABORTED"
)

// IllegalTransitionError — попытка недопустимого перехода.
type IllegalTransitionError struct {
	TransactionID string
	From          Status
	To            Status
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("недопустимый переход транзакции %s: %s → %s", e.TransactionID, e.From, e.To)
}

// validPredecessors — матрица допустимых переходов.
// Ключ — целевой статус, значение — набор статусов, из которых переход разрешён.
var validPredecessors = map[Status]map[Status]bool{
	StatusReady:      {StatusOpen: true},
	StatusSending:    {StatusReady: true},
	StatusSent:       {StatusSending: true},
	StatusAckOK:      {StatusSent: true},
	StatusAckKO:      {StatusSent: true},
	StatusAckWarning: {StatusSent: true},
	StatusKO:         {StatusSending: true},
	// Повторное открытие
	StatusOpen: {StatusReady: true, StatusAckKO: true, StatusKO: true},
	// Прерывание
	StatusAborted: {StatusOpen: true, StatusReady: true, StatusAckKO: true, StatusKO: true},
}

// Valid проверяет, что статус известен автомату.
func Valid(s Status) bool {
	switch s {
	case StatusOpen, StatusReady, StatusSending, StatusSent,
		StatusAckOK, StatusAckKO, StatusAckWarning, StatusKO, StatusAborted:
		return true
	}
	return false
}

// CheckTransition проверяет допустимость перехода current → target.
// Возвращает *IllegalTransitionError при нарушении матрицы переходов.
func CheckTransition(transactionID string, current, target Status) error {
	if !Valid(target) {
		return &IllegalTransitionError{TransactionID: transactionID, From: current, To: target}
	}
	if !validPredecessors[target][current] {
		return &IllegalTransitionError{TransactionID: transactionID, From: current, To: target}
	}
	return nil
}

// Terminal сообщает, является ли статус терминальным: из него нет переходов.
func Terminal(s Status) bool {
	for _, preds := range validPredecessors {
		if preds[s] {
			return false
		}
	}
	return true
}
