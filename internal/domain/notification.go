package domain

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"html/template"
	"slices"
	"strings"
	"time"
)

// NotificationSubject is the subject line of the malformed-report alert.
const NotificationSubject = "Malformed NGA Maritime Safety Reports Encountered"

var notificationTmpl = template.Must(template.New("notification").Parse(
	`<h2><b>{{.Subject}}</b></h2><hr>` +
		`{{range .Reports}}{{range .Lines}}<p>{{.}}</p>{{end}}<hr>{{end}}` +
		`<hr><p><center>This automated MSI broadcast Notification was generated on {{.Generated}}.</center></p>`,
))

// Notification is the alert payload listing malformed reports. The zero value
// is the empty notification and is never sent.
type Notification struct {
	Subject     string
	HTMLBody    string
	GeneratedAt time.Time
	Reports     []MalformedReport
	// Key identifies the set of report texts, independent of order and
	// timestamp, for at-most-once delivery.
	Key string
}

// IsEmpty reports whether there is nothing to send.
func (n Notification) IsEmpty() bool {
	return len(n.Reports) == 0
}

// BuildNotification renders the HTML alert for reports. It returns the empty
// Notification when reports is empty.
func BuildNotification(reports []MalformedReport, generatedAt time.Time) (Notification, error) {
	if len(reports) == 0 {
		return Notification{}, nil
	}

	type item struct{ Lines []string }
	data := struct {
		Subject   string
		Reports   []item
		Generated string
	}{
		Subject:   NotificationSubject,
		Generated: generatedAt.UTC().Format("02 January 2006 @ 1504Z"),
	}
	for _, r := range reports {
		data.Reports = append(data.Reports, item{Lines: strings.Split(r.Text, "\n")})
	}

	var buf bytes.Buffer
	if err := notificationTmpl.Execute(&buf, data); err != nil {
		return Notification{}, fmt.Errorf("render notification: %w", err)
	}

	return Notification{
		Subject:     NotificationSubject,
		HTMLBody:    buf.String(),
		GeneratedAt: generatedAt,
		Reports:     slices.Clone(reports),
		Key:         notificationKey(reports),
	}, nil
}

func notificationKey(reports []MalformedReport) string {
	texts := make([]string, 0, len(reports))
	for _, r := range reports {
		texts = append(texts, r.Text)
	}
	slices.Sort(texts)
	texts = slices.Compact(texts)
	hash := sha256.Sum256([]byte(strings.Join(texts, "\x00")))
	return hex.EncodeToString(hash[:])
}
