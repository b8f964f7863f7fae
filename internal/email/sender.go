package email

import (
	"context"
	"errors"
)

// Sender define la interfaz para el envío de correos de restablecimiento.
// Recibe el enlace ya compuesto; el armado de la URL no es asunto del correo.
type Sender interface {
	SendPasswordReset(ctx context.Context, toEmail string, resetURL string) error
}

type disabledSender struct {
	reason string
}

func NewDisabledSender(reason string) Sender {
	return &disabledSender{reason: reason}
}

func (s *disabledSender) SendPasswordReset(_ context.Context, _ string, _ string) error {
	if s.reason == "" {
		return errors.New("email sender disabled")
	}
	return errors.New(s.reason)
}
