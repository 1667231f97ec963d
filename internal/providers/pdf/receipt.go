package pdf

import (
	"bytes"
	"context"
	"io"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

type PDFProvider struct{}

// ReceiptData is pre-formatted by the handler; this layer only lays out
// text. The one-time code arrives masked.
type ReceiptData struct {
	CompanyName string
	RouteName   string
	TicketID    string
	MaskedCode  string
	Fare        string
	Status      string
	IssuedAt    string
	ValidatedAt string
}

func (p *PDFProvider) GenerateTicketReceipt(ctx context.Context, data ReceiptData) (io.Reader, error) {
	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(25,
		text.NewCol(8, "Boarding Receipt", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
		text.NewCol(4, data.CompanyName, props.Text{
			Size:  11,
			Align: align.Right,
			Top:   6,
		}),
	)

	m.AddRow(20,
		col.New(6).Add(
			text.New("Ticket: "+data.TicketID, props.Text{Top: 0}),
			text.New("Code: "+data.MaskedCode, props.Text{Top: 5}),
			text.New("Issued: "+data.IssuedAt, props.Text{Top: 10}),
		),
		col.New(6).Add(
			text.New("Route: "+data.RouteName, props.Text{Top: 0}),
			text.New("Status: "+data.Status, props.Text{Top: 5}),
			text.New("Validated: "+data.ValidatedAt, props.Text{Top: 10}),
		),
	)

	m.AddRow(15,
		text.NewCol(12, "Fare paid: "+data.Fare, props.Text{
			Size:  14,
			Style: fontstyle.Bold,
			Top:   4,
		}),
	)

	m.AddRow(10,
		text.NewCol(12, "Keep this receipt for the duration of the trip.", props.Text{
			Size: 9,
		}),
	)

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(doc.GetBytes()), nil
}
