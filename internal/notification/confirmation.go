package notification

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"html/template"
	"strings"
	texttemplate "text/template"
	"time"

	"ms-booking/internal/models"
)

const confirmationSubject = "Confirmation de votre réservation au Pressing Comedy Club"

var frenchMonths = [...]string{
	"janvier", "février", "mars", "avril", "mai", "juin",
	"juillet", "août", "septembre", "octobre", "novembre", "décembre",
}

// FormatFrenchDate renders t as "dd MMMM yyyy" with French month names.
func FormatFrenchDate(t time.Time) string {
	return fmt.Sprintf("%02d %s %d", t.Day(), frenchMonths[t.Month()-1], t.Year())
}

// Document is a rendered confirmation ready to be delivered.
type Document struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

type confirmationView struct {
	models.ConfirmationData
	FormattedDate string
	QRCode        template.URL
}

var htmlTemplate = template.Must(template.New("confirmation").Parse(`<!DOCTYPE html>
<html lang="fr">
<head><meta charset="utf-8"><title>Confirmation de réservation</title></head>
<body style="background-color:#ffffff;font-family:-apple-system,BlinkMacSystemFont,'Segoe UI',Roboto,sans-serif">
<div style="margin:0 auto;padding:20px 0 48px;max-width:580px">
<h1 style="color:#FF9F1C;font-size:24px;font-weight:600;text-align:center">Confirmation de réservation</h1>
<p style="color:#333;font-size:16px">Bonjour {{.UserName}},</p>
<p style="color:#333;font-size:16px">Nous vous confirmons votre réservation pour le spectacle suivant :</p>
<div style="background-color:#f9fafb;border-radius:8px;padding:24px;margin-bottom:24px">
<p><strong>Spectacle :</strong> {{.EventTitle}}</p>
<p><strong>Date :</strong> {{.FormattedDate}}</p>
<p><strong>Heure :</strong> {{.EventTime}}</p>
<p><strong>Nombre de places :</strong> {{.Seats}}</p>
<p><strong>Référence :</strong> {{.BookingReference}}</p>
{{if .QRCode}}<p style="text-align:center"><img src="{{.QRCode}}" alt="Billet {{.BookingReference}}" width="200" height="200"></p>{{end}}
</div>
<p style="color:#333;font-size:16px">Nous vous attendons avec impatience ! N'oubliez pas de vous présenter au moins 15 minutes avant le début du spectacle.</p>
<p style="color:#333;font-size:16px">En cas d'empêchement, merci de nous prévenir au plus tôt au 07 52 38 55 12.</p>
<p style="color:#666;font-size:14px;text-align:center;border-top:1px solid #eaeaea;padding-top:24px">
À bientôt au Pressing Comedy Club !<br>
Galerie commerciale "Les Héllènes"<br>
Avenue Hélène Vidal<br>
83300 DRAGUIGNAN
</p>
</div>
</body>
</html>
`))

var textTemplate = texttemplate.Must(texttemplate.New("confirmation").Parse(`Bonjour {{.UserName}},

Nous vous confirmons votre réservation pour le spectacle suivant :

Spectacle : {{.EventTitle}}
Date : {{.FormattedDate}}
Heure : {{.EventTime}}
Nombre de places : {{.Seats}}
Référence : {{.BookingReference}}

Nous vous attendons avec impatience ! N'oubliez pas de vous présenter au moins 15 minutes avant le début du spectacle.
En cas d'empêchement, merci de nous prévenir au plus tôt au 07 52 38 55 12.

À bientôt au Pressing Comedy Club !
Galerie commerciale "Les Héllènes", Avenue Hélène Vidal, 83300 DRAGUIGNAN
`))

// Renderer builds confirmation documents. A nil QR generator leaves the QR
// code out.
type Renderer struct {
	qr *QRGenerator
}

func NewRenderer(qr *QRGenerator) *Renderer {
	return &Renderer{qr: qr}
}

// Render produces the HTML and plain text confirmation for one booking.
func (r *Renderer) Render(data models.ConfirmationData) (*Document, error) {
	if data.UserEmail == "" {
		return nil, fmt.Errorf("confirmation for %s has no recipient", data.BookingReference)
	}
	view := confirmationView{
		ConfirmationData: data,
		FormattedDate:    FormatFrenchDate(data.EventDate),
	}
	if r != nil && r.qr != nil {
		png, err := r.qr.PNG(TicketClaims{BookingID: data.BookingReference, EventID: data.EventID, Seats: data.Seats})
		if err != nil {
			return nil, fmt.Errorf("qr code: %w", err)
		}
		view.QRCode = template.URL("data:image/png;base64," + base64.StdEncoding.EncodeToString(png))
	}

	var html, text bytes.Buffer
	if err := htmlTemplate.Execute(&html, view); err != nil {
		return nil, err
	}
	if err := textTemplate.Execute(&text, view); err != nil {
		return nil, err
	}
	return &Document{
		To:      strings.TrimSpace(data.UserEmail),
		Subject: confirmationSubject,
		HTML:    html.String(),
		Text:    text.String(),
	}, nil
}
