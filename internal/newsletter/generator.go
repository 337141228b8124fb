package newsletter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/signalbrief/trends-pipeline/internal/llm"
	"github.com/signalbrief/trends-pipeline/internal/models"
	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"
)

// TrendsReader exposes the latest extraction for a category.
type TrendsReader interface {
	LatestTrends(ctx context.Context, category string) (*models.ExtractionResult, error)
}

// SMTPConfig carries the delivery settings for the email generator.
type SMTPConfig struct {
	Sender   string
	Host     string
	Port     int
	Username string
	Password string
}

// EmailGenerator is the default generation collaborator: it composes a
// newsletter from the subscriber's category trends and delivers it over
// SMTP.
type EmailGenerator struct {
	trends    TrendsReader
	generator llm.Generator
	smtp      SMTPConfig
}

var _ Generator = (*EmailGenerator)(nil)

const newsletterContract = `You are a newsletter writer. Using the trend summaries in the user message, write a short plain-text newsletter for one reader: a one-line greeting, one short paragraph per trend, and a one-line sign-off. No markdown, no HTML.`

// NewEmailGenerator creates the default email-backed generator.
func NewEmailGenerator(trends TrendsReader, generator llm.Generator, smtp SMTPConfig) *EmailGenerator {
	return &EmailGenerator{trends: trends, generator: generator, smtp: smtp}
}

// Generate composes and sends one newsletter. Any failure is returned to
// the queue manager, which records it and leaves the item retryable.
func (g *EmailGenerator) Generate(ctx context.Context, sub models.Subscriber, date time.Time) error {
	result, err := g.trends.LatestTrends(ctx, sub.Category)
	if err != nil {
		return fmt.Errorf("failed to load trends for category %q: %w", sub.Category, err)
	}

	if len(result.Entities) == 0 {
		return fmt.Errorf("no trends available for category %q", sub.Category)
	}

	body, err := g.generator.Complete(ctx, newsletterContract, g.buildPrompt(sub, result.Entities))
	if err != nil {
		return fmt.Errorf("failed to compose newsletter: %w", err)
	}

	subject := fmt.Sprintf("Your %s trends briefing - %s",
		strings.Title(sub.Category), date.Format("January 2, 2006"))

	m := gomail.NewMessage()
	m.SetHeader("From", g.smtp.Sender)
	m.SetHeader("To", sub.Email)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	d := gomail.NewDialer(g.smtp.Host, g.smtp.Port, g.smtp.Username, g.smtp.Password)
	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send newsletter to %s: %w", sub.Email, err)
	}

	logrus.Infof("Sent %s newsletter to %s", sub.Category, sub.Email)
	return nil
}

func (g *EmailGenerator) buildPrompt(sub models.Subscriber, entities []models.TrendEntity) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Reader: %s\n\n", sub.Name)
	for i, entity := range entities {
		fmt.Fprintf(&b, "Trend %d: %s\n", i+1, entity.Header)
		fmt.Fprintf(&b, "Sentiment: %s\n", entity.Sentiment)
		fmt.Fprintf(&b, "Context: %s\n", entity.Context)
		if len(entity.SubTopics) > 0 {
			fmt.Fprintf(&b, "Sub-topics: %s\n", strings.Join(entity.SubTopics, ", "))
		}
		b.WriteString("\n")
	}

	return b.String()
}
