package notifications

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/shopspring/decimal"

	"github.com/clubemecanico/courses-backend/pkg/mailer"
	"github.com/clubemecanico/courses-backend/pkg/outbox/payloads"
)

var saoPaulo = loadLocation("America/Sao_Paulo")

func loadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

var templateFuncs = template.FuncMap{
	"brl": formatBRL,
	"datetime": func(t time.Time) string {
		return t.In(saoPaulo).Format("02/01/2006 15:04")
	},
}

var orderPaidTemplate = template.Must(template.New("order_paid").Funcs(templateFuncs).Parse(`<!DOCTYPE html>
<html lang="pt-BR">
<body style="font-family: Arial, sans-serif; color: #222;">
  <h2>Novo pedido pago: {{.OrderNumber}}</h2>
  <p>Pagamento confirmado em {{datetime .PaidAt}}{{if .ExternalPaymentID}} (Mercado Pago #{{.ExternalPaymentID}}){{end}}.</p>
  <table cellpadding="6" cellspacing="0" border="1" style="border-collapse: collapse;">
    <thead><tr><th align="left">Curso</th><th align="left">Turma</th><th align="right">Valor</th></tr></thead>
    <tbody>
    {{- range .Lines}}
      <tr><td>{{.CourseName}}</td><td>{{if .ClassSessionID}}#{{.ClassSessionID}}{{else}}-{{end}}</td><td align="right">{{brl .UnitPrice}}</td></tr>
    {{- end}}
    </tbody>
  </table>
  <p>Subtotal: {{brl .Subtotal}}<br>Desconto: {{brl .Discount}}<br><strong>Total: {{brl .Total}}</strong></p>
  <p>Aluno #{{.UserID}}</p>
</body>
</html>`))

var seatsExhaustedTemplate = template.Must(template.New("seats_exhausted").Funcs(templateFuncs).Parse(`<!DOCTYPE html>
<html lang="pt-BR">
<body style="font-family: Arial, sans-serif; color: #222;">
  <h2>Turma sem vagas: #{{.ClassSessionID}}</h2>
  <p>O pedido {{.OrderNumber}} (aluno #{{.UserID}}) foi pago para o curso #{{.CourseID}}, mas a turma não tinha vagas disponíveis.</p>
  {{- if .Strict}}
  <p>A matrícula não foi criada e o pedido está em processamento. Libere uma vaga ou reembolse o pagamento.</p>
  {{- else}}
  <p>A matrícula foi criada mesmo assim. Verifique a capacidade da turma.</p>
  {{- end}}
</body>
</html>`))

func renderOrderPaid(event payloads.OrderPaidEvent) (mailer.Message, error) {
	var html bytes.Buffer
	if err := orderPaidTemplate.Execute(&html, event); err != nil {
		return mailer.Message{}, fmt.Errorf("render order paid email: %w", err)
	}

	var text strings.Builder
	fmt.Fprintf(&text, "Novo pedido pago: %s\n\n", event.OrderNumber)
	for _, line := range event.Lines {
		fmt.Fprintf(&text, "- %s: %s\n", line.CourseName, formatBRL(line.UnitPrice))
	}
	fmt.Fprintf(&text, "\nSubtotal: %s\nDesconto: %s\nTotal: %s\n",
		formatBRL(event.Subtotal), formatBRL(event.Discount), formatBRL(event.Total))

	return mailer.Message{
		Subject: fmt.Sprintf("Pedido %s pago - %s", event.OrderNumber, formatBRL(event.Total)),
		HTML:    html.String(),
		Text:    text.String(),
	}, nil
}

func renderSeatsExhausted(event payloads.SeatsExhaustedEvent) (mailer.Message, error) {
	var html bytes.Buffer
	if err := seatsExhaustedTemplate.Execute(&html, event); err != nil {
		return mailer.Message{}, fmt.Errorf("render seats exhausted email: %w", err)
	}
	return mailer.Message{
		Subject: fmt.Sprintf("Turma #%d sem vagas (pedido %s)", event.ClassSessionID, event.OrderNumber),
		HTML:    html.String(),
	}, nil
}

// formatBRL renders 1234.5 as "R$ 1.234,50".
func formatBRL(amount decimal.Decimal) string {
	fixed := amount.StringFixed(2)
	negative := strings.HasPrefix(fixed, "-")
	fixed = strings.TrimPrefix(fixed, "-")

	whole, cents, _ := strings.Cut(fixed, ".")
	var grouped strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			grouped.WriteByte('.')
		}
		grouped.WriteRune(r)
	}
	out := "R$ " + grouped.String() + "," + cents
	if negative {
		out = "-" + out
	}
	return out
}
