package pdf

import (
	"context"
	"io"

	"go.uber.org/fx"
)

// Provider renders printable artifacts for operator devices.
type Provider interface {
	GenerateTicketReceipt(ctx context.Context, data ReceiptData) (io.Reader, error)
}

func NewProvider() Provider {
	return &PDFProvider{}
}

var Module = fx.Module("providers.pdf",
	fx.Provide(NewProvider),
)
