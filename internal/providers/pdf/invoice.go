package pdf

import (
	"context"
	"errors"
	"fmt"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

// InvoiceDocument is the display-ready view of an invoice. Amounts are
// already formatted in the location currency.
type InvoiceDocument struct {
	LocationName    string
	LocationAddress string
	LocationEmail   string

	Number        string
	Status        string
	IssueDate     string
	DueDate       string
	PaidDate      string
	ServicePeriod string

	MemberName  string
	MemberEmail string

	Items []InvoiceLine

	Subtotal  string
	Tax       string
	Total     string
	AmountDue string
}

type InvoiceLine struct {
	Description string
	Qty         int
	UnitPrice   string
	Amount      string
}

var ErrEmptyInvoice = errors.New("invoice_has_no_items")

type MarotoRenderer struct{}

func New() Renderer {
	return &MarotoRenderer{}
}

func (r *MarotoRenderer) RenderInvoice(ctx context.Context, doc InvoiceDocument) ([]byte, error) {
	if len(doc.Items) == 0 {
		return nil, ErrEmptyInvoice
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	title := "Invoice"
	if doc.PaidDate != "" {
		title = "Receipt"
	}
	m.AddRow(12,
		text.NewCol(8, doc.LocationName, props.Text{Size: 16, Style: fontstyle.Bold}),
		text.NewCol(4, title, props.Text{Size: 16, Style: fontstyle.Bold, Align: align.Right}),
	)

	meta := col.New(6).Add(
		text.New("Invoice number: "+doc.Number, props.Text{Top: 0, Size: 9}),
		text.New("Date of issue: "+doc.IssueDate, props.Text{Top: 4, Size: 9}),
		text.New("Date due: "+doc.DueDate, props.Text{Top: 8, Size: 9}),
	)
	if doc.ServicePeriod != "" {
		meta.Add(text.New("Service period: "+doc.ServicePeriod, props.Text{Top: 12, Size: 9}))
	}
	if doc.PaidDate != "" {
		meta.Add(text.New("Paid on: "+doc.PaidDate, props.Text{Top: 16, Size: 9}))
	}
	m.AddRow(22, meta, col.New(6))

	m.AddRow(24,
		col.New(6).Add(
			text.New(doc.LocationName, props.Text{Style: fontstyle.Bold, Size: 9}),
			text.New(doc.LocationAddress, props.Text{Top: 5, Size: 9}),
			text.New(doc.LocationEmail, props.Text{Top: 10, Size: 9}),
		),
		col.New(6).Add(
			text.New("Bill to", props.Text{Style: fontstyle.Bold, Size: 9}),
			text.New(doc.MemberName, props.Text{Top: 5, Size: 9}),
			text.New(doc.MemberEmail, props.Text{Top: 10, Size: 9}),
		),
	)

	m.AddRow(12,
		text.NewCol(12, doc.AmountDue+" due "+doc.DueDate, props.Text{Size: 13, Style: fontstyle.Bold, Top: 3}),
	)

	m.AddRow(8,
		text.NewCol(6, "Description", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, "Qty", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Unit price", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	m.AddRow(2, line.NewCol(12))

	for _, item := range doc.Items {
		m.AddRow(8,
			text.NewCol(6, item.Description, props.Text{Size: 9}),
			text.NewCol(2, fmt.Sprintf("%d", item.Qty), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, item.UnitPrice, props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, item.Amount, props.Text{Size: 9, Align: align.Right}),
		)
	}

	totals := [][2]string{{"Subtotal", doc.Subtotal}}
	if doc.Tax != "" {
		totals = append(totals, [2]string{"Tax", doc.Tax})
	}
	totals = append(totals, [2]string{"Total", doc.Total})
	for _, row := range totals {
		m.AddRow(7,
			col.New(8),
			text.NewCol(2, row[0], props.Text{Size: 9}),
			text.NewCol(2, row[1], props.Text{Size: 9, Align: align.Right}),
		)
	}
	m.AddRow(8,
		col.New(8),
		text.NewCol(2, "Amount due", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, doc.AmountDue, props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)

	out, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("generate invoice pdf: %w", err)
	}
	return out.GetBytes(), nil
}
