package email

import (
	"bytes"
	"fmt"
	"text/template"
)

var templates = template.Must(template.New("notifications").Parse(`
{{define "rejection.approved"}}Hello {{.Name}},

Your request to be released from booking {{.BookingID}} was approved.
{{- if .Notes}}

Admin notes: {{.Notes}}{{end}}
{{end}}
{{define "rejection.denied"}}Hello {{.Name}},

Your request to be released from booking {{.BookingID}} was denied. The booking stays assigned to you.
{{- if .Notes}}

Admin notes: {{.Notes}}{{end}}
{{end}}
{{define "service_request.approved"}}Hello {{.Name}},

Your request to {{.RequestType}} service {{.ServiceName}} was approved.
{{end}}
{{define "service_request.rejected"}}Hello {{.Name}},

Your request to {{.RequestType}} service {{.ServiceName}} was rejected.
{{- if .Notes}}

Reason: {{.Notes}}{{end}}
{{end}}
{{define "booking.assigned"}}Hello {{.Name}},

You have been assigned booking {{.BookingID}} for {{.ServiceName}} on {{.ScheduledAt}}.
{{end}}
`))

var subjects = map[string]string{
	"rejection.approved":       "Rejection request approved",
	"rejection.denied":         "Rejection request denied",
	"service_request.approved": "Service request approved",
	"service_request.rejected": "Service request rejected",
	"booking.assigned":         "New booking assigned",
}

// NotificationData fills the provider notification templates.
type NotificationData struct {
	Name        string
	BookingID   string
	ServiceName string
	RequestType string
	ScheduledAt string
	Notes       string
}

// Render builds the provider notification for an event type.
func Render(eventType, to string, data NotificationData) (Message, error) {
	subject, ok := subjects[eventType]
	if !ok {
		return Message{}, fmt.Errorf("no email template for %q", eventType)
	}
	var body bytes.Buffer
	if err := templates.ExecuteTemplate(&body, eventType, data); err != nil {
		return Message{}, fmt.Errorf("failed to render %s email: %w", eventType, err)
	}
	return Message{To: to, Subject: subject, Body: string(bytes.TrimSpace(body.Bytes())) + "\n"}, nil
}
