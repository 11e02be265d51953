// Package fakesales fabricates demo sales and announces them on Slack.
// Nothing produced here is stored or written to the spreadsheet.
package fakesales

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/RaikyD/isp-order-intake/internal/catalog"
	"github.com/RaikyD/isp-order-intake/internal/domain"
	"github.com/RaikyD/isp-order-intake/internal/logger"
	"github.com/RaikyD/isp-order-intake/internal/notify"
)

const (
	SourceAI       = "ai"
	SourceFallback = "fallback"
)

const prompt = `Generate a realistic fake customer for an internet sales company. Return ONLY a JSON object with this exact format:
{
  "customerName": "realistic full name",
  "email": "realistic email address",
  "phone": "realistic US phone number in format (555) 555-5555",
  "city": "real US city name",
  "state": "2-letter state code"
}

Make it diverse and realistic. No explanations, just the JSON.`

var jsonBlock = regexp.MustCompile(`\{[\s\S]*\}`)

// TextGenerator answers a prompt with free text.
type TextGenerator interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

// CardPoster delivers a Slack card.
type CardPoster interface {
	Post(ctx context.Context, c notify.SlackCard) error
}

type Generator struct {
	cat   *catalog.Catalog
	text  TextGenerator
	slack CardPoster

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewGenerator builds a generator. text may be nil, then every sale comes
// from the fallback tables.
func NewGenerator(cat *catalog.Catalog, text TextGenerator, slack CardPoster) *Generator {
	seed := uint64(time.Now().UnixNano())
	return &Generator{
		cat:   cat,
		text:  text,
		slack: slack,
		rnd:   rand.New(rand.NewPCG(seed, seed>>1)),
	}
}

// WithRand swaps the random source; tests use it for stable output.
func (g *Generator) WithRand(r *rand.Rand) *Generator {
	g.rnd = r
	return g
}

func (g *Generator) intn(n int) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rnd.IntN(n)
}

func (g *Generator) pick(list []string) string {
	if len(list) == 0 {
		return ""
	}
	return list[g.intn(len(list))]
}

// Generate returns one synthetic sale. The customer part comes from the text
// generator when it answers with usable JSON; provider, package and agent
// always come from the catalog.
func (g *Generator) Generate(ctx context.Context) domain.SyntheticSale {
	sale, err := g.fromText(ctx)
	if err != nil {
		if g.text != nil {
			logger.Warn("generated customer unusable, using fallback", "err", err)
		}
		sale = g.fallbackCustomer()
	}
	sale.AgentName = g.pick(g.cat.Agents)
	sale.SelectedProvider, sale.SelectedPackage = g.pickOffer()
	return sale
}

type customer struct {
	CustomerName string `json:"customerName"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`
	City         string `json:"city"`
	State        string `json:"state"`
}

func (g *Generator) fromText(ctx context.Context) (domain.SyntheticSale, error) {
	if g.text == nil {
		return domain.SyntheticSale{}, errors.New("no text generator")
	}
	out, err := g.text.GenerateText(ctx, prompt)
	if err != nil {
		return domain.SyntheticSale{}, err
	}
	c, err := parseCustomer(out)
	if err != nil {
		return domain.SyntheticSale{}, err
	}
	return domain.SyntheticSale{
		CustomerName: c.CustomerName,
		Email:        c.Email,
		Phone:        c.Phone,
		City:         c.City,
		State:        c.State,
		Source:       SourceAI,
	}, nil
}

func parseCustomer(text string) (customer, error) {
	block := jsonBlock.FindString(text)
	if block == "" {
		return customer{}, errors.New("no JSON object in response")
	}
	var c customer
	if err := json.Unmarshal([]byte(block), &c); err != nil {
		return customer{}, fmt.Errorf("decode customer: %w", err)
	}
	var missing []string
	for name, v := range map[string]string{
		"customerName": c.CustomerName,
		"email":        c.Email,
		"phone":        c.Phone,
		"city":         c.City,
		"state":        c.State,
	} {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return customer{}, fmt.Errorf("customer missing %s", strings.Join(missing, ", "))
	}
	return c, nil
}

// pickOffer chooses a regional provider and one of its packages.
func (g *Generator) pickOffer() (string, string) {
	var specs []catalog.ProviderSpec
	for _, p := range g.cat.Regional() {
		if len(p.Packages) > 0 {
			specs = append(specs, p)
		}
	}
	if len(specs) == 0 {
		return "", ""
	}
	p := specs[g.intn(len(specs))]
	return p.Name, p.Packages[g.intn(len(p.Packages))].Describe()
}

func (g *Generator) fallbackCustomer() domain.SyntheticSale {
	first, last := g.pick(firstNames), g.pick(lastNames)
	loc := cities[g.intn(len(cities))]
	email := fmt.Sprintf("%s.%s%d@%s", strings.ToLower(first), strings.ToLower(last), g.intn(999), g.pick(emailDomains))
	phone := fmt.Sprintf("(%d) %d-%04d", 100+g.intn(899), 100+g.intn(899), g.intn(10000))
	return domain.SyntheticSale{
		CustomerName: first + " " + last,
		Email:        email,
		Phone:        phone,
		City:         loc.city,
		State:        loc.state,
		Source:       SourceFallback,
	}
}

// Notify posts the sale to Slack with the same card real orders use.
func (g *Generator) Notify(ctx context.Context, s domain.SyntheticSale) error {
	if g.slack == nil {
		return notify.ErrNotConfigured
	}
	return g.slack.Post(ctx, notify.SlackCard{
		Customer: s.CustomerName,
		Agent:    s.AgentName,
		Provider: s.SelectedProvider,
		Package:  s.SelectedPackage,
		Email:    s.Email,
		Phone:    s.Phone,
	})
}

// Once generates a sale and announces it.
func (g *Generator) Once(ctx context.Context) (domain.SyntheticSale, error) {
	sale := g.Generate(ctx)
	if err := g.Notify(ctx, sale); err != nil {
		logger.Error("fake sale not sent", "err", err)
		return sale, err
	}
	logger.Info("fake sale sent", "customer", sale.CustomerName, "provider", sale.SelectedProvider, "agent", sale.AgentName, "source", sale.Source)
	return sale, nil
}

var firstNames = []string{
	"James", "Mary", "John", "Patricia", "Robert", "Jennifer", "Michael", "Linda",
	"David", "Elizabeth", "William", "Barbara", "Richard", "Susan", "Joseph", "Jessica",
	"Thomas", "Sarah", "Christopher", "Karen", "Charles", "Nancy", "Daniel", "Lisa",
	"Matthew", "Betty", "Anthony", "Helen", "Mark", "Sandra", "Donald", "Donna",
}

var lastNames = []string{
	"Smith", "Johnson", "Williams", "Brown", "Jones", "Garcia", "Miller", "Davis",
	"Rodriguez", "Martinez", "Hernandez", "Lopez", "Gonzalez", "Wilson", "Anderson", "Thomas",
	"Taylor", "Moore", "Jackson", "Martin", "Lee", "Perez", "Thompson", "White",
	"Harris", "Sanchez", "Clark", "Ramirez", "Lewis", "Robinson", "Walker", "Young",
}

var emailDomains = []string{"gmail.com", "yahoo.com", "hotmail.com", "outlook.com", "aol.com"}

var cities = []struct{ city, state string }{
	{"New York", "NY"}, {"Los Angeles", "CA"}, {"Chicago", "IL"}, {"Houston", "TX"},
	{"Phoenix", "AZ"}, {"Philadelphia", "PA"}, {"San Antonio", "TX"}, {"San Diego", "CA"},
	{"Dallas", "TX"}, {"San Jose", "CA"}, {"Austin", "TX"}, {"Jacksonville", "FL"},
	{"Fort Worth", "TX"}, {"Columbus", "OH"}, {"Charlotte", "NC"}, {"San Francisco", "CA"},
	{"Indianapolis", "IN"}, {"Seattle", "WA"}, {"Denver", "CO"}, {"Washington", "DC"},
}
