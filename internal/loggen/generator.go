// Package loggen produces synthetic but realistic log records for demos and
// load tests.
package loggen

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/tinytelemetry/logops/internal/model"
	"github.com/tinytelemetry/logops/internal/timestamp"
)

// Config tunes a Generator.
type Config struct {
	Services []string
	// Weights is the probability of each severity. Defaults to the
	// detector's expected severity distribution.
	Weights map[string]float64
	// UserIDRatio is the share of records carrying a user id.
	UserIDRatio float64
	Seed        int64
	Now         func() time.Time
}

// Generator builds log records. It is not safe for concurrent use.
type Generator struct {
	rnd        *rand.Rand
	services   []string
	severities []string
	cumulative []float64
	userRatio  float64
	now        func() time.Time
}

// New creates a generator. A zero Seed uses the current time.
func New(cfg Config) *Generator {
	if len(cfg.Services) == 0 {
		cfg.Services = DefaultServices
	}
	if len(cfg.Weights) == 0 {
		cfg.Weights = model.DefaultSeverityWeights()
	}
	if cfg.UserIDRatio == 0 {
		cfg.UserIDRatio = 0.7
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	g := &Generator{
		rnd:       rand.New(rand.NewSource(cfg.Seed)),
		services:  cfg.Services,
		userRatio: cfg.UserIDRatio,
		now:       cfg.Now,
	}

	// Fixed order keeps a seed reproducible.
	var extra []string
	for severity := range cfg.Weights {
		if model.SeverityOrdinal(severity) == 0 && severity != model.SeverityInfo {
			extra = append(extra, severity)
		}
	}
	sort.Strings(extra)
	var total float64
	for _, severity := range append(append([]string{}, model.Severities...), extra...) {
		w, ok := cfg.Weights[severity]
		if !ok || w <= 0 {
			continue
		}
		total += w
		g.severities = append(g.severities, severity)
		g.cumulative = append(g.cumulative, total)
	}
	for i := range g.cumulative {
		g.cumulative[i] /= total
	}
	return g
}

// Entry returns one record with a randomly chosen service and severity.
func (g *Generator) Entry() model.LogRecord {
	return g.entry(g.pick(g.services), g.severity(), g.now())
}

// Batch returns n records.
func (g *Generator) Batch(n int) []model.LogRecord {
	out := make([]model.LogRecord, n)
	for i := range out {
		out[i] = g.Entry()
	}
	return out
}

// Burst returns n ERROR and CRITICAL records for service, all stamped with
// the same instant. About one in five is CRITICAL.
func (g *Generator) Burst(n int, service string) []model.LogRecord {
	at := g.now()
	out := make([]model.LogRecord, n)
	for i := range out {
		severity := model.SeverityError
		if g.rnd.Float64() < 0.2 {
			severity = model.SeverityCritical
		}
		out[i] = g.entry(service, severity, at)
	}
	return out
}

// Spread returns n records with timestamps evenly spaced over the span
// ending now, oldest first.
func (g *Generator) Spread(n int, span time.Duration) []model.LogRecord {
	out := g.Batch(n)
	if n == 0 {
		return out
	}
	end := g.now()
	step := span / time.Duration(n)
	for i := range out {
		out[i].Timestamp = timestamp.Format(end.Add(-span + time.Duration(i+1)*step).UTC())
	}
	return out
}

func (g *Generator) entry(service, severity string, at time.Time) model.LogRecord {
	rec := model.LogRecord{
		Timestamp: timestamp.Format(at.UTC()),
		Service:   service,
		Severity:  severity,
		Message:   g.message(service, severity),
		SourceIP:  g.ip(),
		RequestID: fmt.Sprintf("req_%d", g.between(100000, 999999)),
		Metadata:  g.metadata(severity),
	}
	if g.rnd.Float64() < g.userRatio {
		rec.UserID = g.userID()
	}
	return rec
}

func (g *Generator) severity() string {
	if len(g.severities) == 0 {
		return model.SeverityInfo
	}
	r := g.rnd.Float64()
	for i, c := range g.cumulative {
		if r <= c {
			return g.severities[i]
		}
	}
	return g.severities[len(g.severities)-1]
}

func (g *Generator) message(service, severity string) string {
	set, ok := templates[service]
	if !ok {
		set = genericTemplates(service)
	}
	options := set[severity]
	if len(options) == 0 {
		options = set[model.SeverityInfo]
	}
	return g.fill(g.pick(options), service)
}

func (g *Generator) fill(template, service string) string {
	if !strings.Contains(template, "{") {
		return template
	}
	return strings.NewReplacer(
		"{duration}", fmt.Sprint(g.between(10, 5000)),
		"{pool_size}", fmt.Sprint(g.between(10, 100)),
		"{table}", fmt.Sprintf("table_%d", g.between(1, 20)),
		"{percentage}", fmt.Sprint(g.between(60, 95)),
		"{query}", fmt.Sprintf("SELECT * FROM users WHERE id = %d", g.between(1, 10000)),
		"{user_id}", g.userID(),
		"{error}", g.pick(errorReasons),
		"{source_ip}", g.ip(),
		"{endpoint}", g.pick(endpoints),
		"{filename}", fmt.Sprintf("file_%d.txt", g.between(1, 1000)),
		"{resource}", fmt.Sprintf("/resource/%d", g.between(1, 100)),
		"{current}", fmt.Sprint(g.between(1, 100)),
		"{limit}", "100",
		"{cache_key}", fmt.Sprintf("cache_%d", g.between(1, 1000)),
		"{port}", fmt.Sprint(ports[g.rnd.Intn(len(ports))]),
		"{cpu}", fmt.Sprint(g.between(20, 80)),
		"{memory}", fmt.Sprint(g.between(30, 85)),
		"{size}", fmt.Sprint(g.between(1, 100)),
		"{service}", service,
	).Replace(template)
}

func (g *Generator) metadata(severity string) map[string]interface{} {
	md := map[string]interface{}{
		"service_version": fmt.Sprintf("v%d.%d.%d", g.between(1, 3), g.between(0, 9), g.between(0, 9)),
		"environment":     g.pick(environments),
		"region":          g.pick(regions),
		"instance_id":     fmt.Sprintf("i-%d", g.between(10000000, 99999999)),
	}
	if severity == model.SeverityError || severity == model.SeverityCritical {
		md["error_code"] = fmt.Sprintf("ERR_%d", g.between(1000, 9999))
	}
	return md
}

func (g *Generator) ip() string {
	return fmt.Sprintf("%d.%d.%d.%d", g.between(1, 255), g.between(1, 255), g.between(1, 255), g.between(1, 255))
}

func (g *Generator) userID() string {
	return fmt.Sprintf("user_%d", g.between(1000, 9999))
}

// between returns an int in [lo, hi].
func (g *Generator) between(lo, hi int) int {
	return lo + g.rnd.Intn(hi-lo+1)
}

func (g *Generator) pick(options []string) string {
	return options[g.rnd.Intn(len(options))]
}
