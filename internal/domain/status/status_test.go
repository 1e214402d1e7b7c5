package status

import (
	"errors"
	"testing"
)

// TestCheckTransition_LegalPath проверяет основной маршрут жизненного цикла.
func TestCheckTransition_LegalPath(t *testing.T) {
	path := []Status{StatusOpen, StatusReady, StatusSending, StatusSent, StatusAckOK}

	for i := 0; i < len(path)-1; i++ {
		if err := CheckTransition("tx-1", path[i], path[i+1]); err != nil {
			t.Errorf("переход %s → %s должен быть допустим: %v", path[i], path[i+1], err)
		}
	}
}

// TestCheckTransition_Matrix проверяет матрицу переходов по таблице.
func TestCheckTransition_Matrix(t *testing.T) {
	tests := []struct {
		name    string
		from    Status
		to      Status
		allowed bool
	}{
		{name: "OPEN → READY", from: StatusOpen, to: StatusReady, allowed: true},
		{name: "READY → SENDING", from: StatusReady, to: StatusSending, allowed: true},
		{name: "SENDING → SENT", from: StatusSending, to: StatusSent, allowed: true},
		{name: "SENDING → KO", from: StatusSending, to: StatusKO, allowed: true},
		{name: "SENT → ACK_OK", from: StatusSent, to: StatusAckOK, allowed: true},
		{name: "SENT → ACK_KO", from: StatusSent, to: StatusAckKO, allowed: true},
		{name: "SENT → ACK_WARNING", from: StatusSent, to: StatusAckWarning, allowed: true},
		{name: "переоткрытие READY → OPEN", from: StatusReady, to: StatusOpen, allowed: true},
		{name: "переоткрытие ACK_KO → OPEN", from: StatusAckKO, to: StatusOpen, allowed: true},
		{name: "переоткрытие KO → OPEN", from: StatusKO, to: StatusOpen, allowed: true},
		{name: "прерывание OPEN → ABORTED", from: StatusOpen, to: StatusAborted, allowed: true},
		{name: "прерывание READY → ABORTED", from: StatusReady, to: StatusAborted, allowed: true},
		{name: "прерывание ACK_KO → ABORTED", from: StatusAckKO, to: StatusAborted, allowed: true},
		{name: "прерывание KO → ABORTED", from: StatusKO, to: StatusAborted, allowed: true},

		{name: "OPEN → SENT напрямую запрещён", from: StatusOpen, to: StatusSent, allowed: false},
		{name: "OPEN → SENDING запрещён", from: StatusOpen, to: StatusSending, allowed: false},
		{name: "READY → SENT запрещён", from: StatusReady, to: StatusSent, allowed: false},
		{name: "SENT → OPEN запрещён", from: StatusSent, to: StatusOpen, allowed: false},
		{name: "SENT → ABORTED запрещён", from: StatusSent, to: StatusAborted, allowed: false},
		{name: "ACK_OK → OPEN запрещён", from: StatusAckOK, to: StatusOpen, allowed: false},
		{name: "ACK_WARNING → ABORTED запрещён", from: StatusAckWarning, to: StatusAborted, allowed: false},
		{name: "ABORTED терминален", from: StatusAborted, to: StatusOpen, allowed: false},
		{name: "переход в неизвестный статус", from: StatusOpen, to: Status("PENDING"), allowed: false},
		{name: "повтор того же статуса", from: StatusOpen, to: StatusOpen, allowed: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckTransition("tx-1", tt.from, tt.to)
			if tt.allowed && err != nil {
				t.Errorf("переход %s → %s должен быть допустим: %v", tt.from, tt.to, err)
			}
			if !tt.allowed {
				var itErr *IllegalTransitionError
				if !errors.As(err, &itErr) {
					t.Errorf("переход %s → %s должен вернуть IllegalTransitionError, получено %v", tt.from, tt.to, err)
				}
			}
		})
	}
}

// TestTerminal проверяет терминальность статусов.
func TestTerminal(t *testing.T) {
	terminal := []Status{StatusAborted, StatusAckOK, StatusAckWarning}
	for _, s := range terminal {
		if !Terminal(s) {
			t.Errorf("статус %s должен быть терминальным", s)
		}
	}

	nonTerminal := []Status{StatusOpen, StatusReady, StatusSending, StatusSent, StatusAckKO, StatusKO}
	for _, s := range nonTerminal {
		if Terminal(s) {
			t.Errorf("статус %s не должен быть терминальным", s)
		}
	}
}

// TestValid проверяет распознавание статусов.
func TestValid(t *testing.T) {
	if !Valid(StatusSent) {
		t.Error("SENT должен быть валидным статусом")
	}
	if Valid(Status("DRAFT")) {
		t.Error("DRAFT не должен быть валидным статусом")
	}
}
