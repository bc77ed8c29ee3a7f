package notifications

import (
	"fmt"
	"html/template"
	"strings"
)

// Template keys, one per order lifecycle command.
const (
	TemplatePlaced    = "placed"
	TemplateCancelled = "cancelled"
	TemplateCompleted = "completed"
)

var mailTemplates = template.Must(template.New("mail").Parse(`
{{define "placed"}}<html><body>
<h1>Thank you for your order!</h1>
<p>Your order <strong>{{.OrderID}}</strong> has been received.</p>
<p>Order total: <strong>{{.Total}}</strong></p>
<p>We will let you know as soon as it is on its way.</p>
</body></html>{{end}}

{{define "cancelled"}}<html><body>
<h1>Your order has been cancelled</h1>
<p>Hi {{.FullName}},</p>
<p>Order <strong>{{.OrderID}}</strong> ({{.Total}}) was cancelled. If you were charged, the amount will be refunded.</p>
</body></html>{{end}}

{{define "completed"}}<html><body>
<h1>Your order is complete</h1>
<p>Hi {{.FullName}},</p>
<p>Order <strong>{{.OrderID}}</strong> ({{.Total}}) has been completed. Thank you for shopping with us.</p>
</body></html>{{end}}
`))

type mailData struct {
	OrderID  string
	FullName string
	Total    string
}

// Renderer turns an order reference into the subject and HTML body for one
// of the lifecycle templates.
type Renderer struct {
	templates *template.Template
}

func NewRenderer() *Renderer {
	return &Renderer{templates: mailTemplates}
}

func (r *Renderer) Render(key, orderID, fullName string, total int64) (string, error) {
	var sb strings.Builder
	data := mailData{
		OrderID:  orderID,
		FullName: fullName,
		Total:    formatTotal(total),
	}

	if err := r.templates.ExecuteTemplate(&sb, key, data); err != nil {
		return "", fmt.Errorf("render %s template: %w", key, err)
	}

	return sb.String(), nil
}

// Subject returns the mail subject for a template key.
func (r *Renderer) Subject(key, orderID string) string {
	switch key {
	case TemplatePlaced:
		return "Order received: " + orderID
	case TemplateCancelled:
		return "Order cancelled: " + orderID
	case TemplateCompleted:
		return "Order completed: " + orderID
	default:
		return "Order update: " + orderID
	}
}

// formatTotal renders cents as a dollar amount.
func formatTotal(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s$%d.%02d", sign, cents/100, cents%100)
}
