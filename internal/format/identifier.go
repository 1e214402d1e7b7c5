// Package format определяет формат двоичных объектов по содержимому.
package format

import (
	"fmt"
	"io"

	"github.com/gabriel-vasile/mimetype"

	"github.com/arturkryukov/arkhiv/collect-module/internal/domain/model"
)

// Identifier определяет формат объекта по его содержимому.
// Результат носит справочный характер: ошибка идентификации
// не должна прерывать приём объекта.
type Identifier interface {
	Identify(r io.Reader) (*model.FormatIdentification, error)
}

// MimeIdentifier — реализация Identifier на сигнатурном анализе mimetype.
type MimeIdentifier struct{}

// NewIdentifier создаёт идентификатор форматов.
func NewIdentifier() *MimeIdentifier {
	return &MimeIdentifier{}
}

// Identify читает начало потока и определяет MIME-тип по сигнатуре.
func (i *MimeIdentifier) Identify(r io.Reader) (*model.FormatIdentification, error) {
	mt, err := mimetype.DetectReader(r)
	if err != nil {
		return nil, fmt.Errorf("ошибка определения формата: %w", err)
	}
	return &model.FormatIdentification{
		MimeType: mt.String(),
		Label:    mt.Extension(),
	}, nil
}
