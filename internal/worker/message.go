package worker

import (
	"fmt"

	"github.com/cntech/bitalert/internal/domain"
)

// ComposeMessage renders the alert mail for one match.
func ComposeMessage(m domain.Match, currency string) domain.Message {
	title := m.Threshold.Orientation.Title()
	return domain.Message{
		Subject: fmt.Sprintf("Bit Alert: %s Threshold crossed", title),
		Body: fmt.Sprintf("%s Threshold: %s %s\nPrice before: %s %s\nPrice after: %s %s",
			title, m.Threshold.Price.String(), currency,
			m.OldPrice.String(), currency,
			m.NewPrice.String(), currency),
	}
}
