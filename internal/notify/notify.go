package notify

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/webscout/deal-weaver/internal/models"
)

// Dispatcher delivers a batch of freshly found deals to some channel.
// Implementations must tolerate empty batches.
type Dispatcher interface {
	Dispatch(deals []models.Deal) error
}

// LogDispatcher writes deal notifications to the application log. It
// is the fallback channel when no external notifier is configured.
type LogDispatcher struct{}

// NewLogDispatcher creates a log-backed dispatcher
func NewLogDispatcher() *LogDispatcher {
	return &LogDispatcher{}
}

// Dispatch logs one line per deal in the batch
func (d *LogDispatcher) Dispatch(deals []models.Deal) error {
	for _, deal := range deals {
		logrus.WithFields(logrus.Fields{
			"product":  deal.Variant.CompositeID(),
			"discount": deal.Variant.DiscountPercentage,
			"price":    deal.Variant.BestPrice,
		}).Infof("Deal found: %s", deal.Variant.DisplayName)
	}
	return nil
}

// FormatBatch renders a batch of deals as a single plain-text message
func FormatBatch(deals []models.Deal) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("🔥 %d new deal(s) found\n", len(deals)))
	for _, deal := range deals {
		sb.WriteString("\n")
		sb.WriteString(formatDeal(deal.Variant))
	}
	return sb.String()
}

func formatDeal(v models.Variant) string {
	var sb strings.Builder
	name := v.DisplayName
	if name == "" {
		name = v.CompositeID()
	}
	sb.WriteString(fmt.Sprintf("%s (-%.0f%%)\n", name, v.DiscountPercentage))
	sb.WriteString(fmt.Sprintf("💰 %.2f (was %.2f)\n", v.BestPrice, v.ListPrice))
	if v.Brand != "" {
		sb.WriteString(fmt.Sprintf("🏷 %s\n", v.Brand))
	}
	if v.ProductURL != "" {
		sb.WriteString(v.ProductURL + "\n")
	}
	return sb.String()
}
