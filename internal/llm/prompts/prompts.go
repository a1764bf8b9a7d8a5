package prompts

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/template"
)

//go:embed system.md
var defaultSystemPrompt string

//go:embed analysis.md
var defaultAnalysisPrompt string

//go:embed briefing.md
var defaultBriefingPrompt string

type AnalysisData struct {
	Context      string
	Symbol       string
	Prices       string
	Cash         float64
	Held         float64
	Sentiment    string
	ProfitTarget float64
}

type BriefingTrade struct {
	Side   string
	Symbol string
	Size   float64
	Price  float64
}

type BriefingData struct {
	Date         string
	PnL          float64
	ProfitTarget float64
	Trades       []BriefingTrade
}

func DefaultSystemPrompt() string {
	return defaultSystemPrompt
}

func DefaultAnalysisPrompt() string {
	return defaultAnalysisPrompt
}

func DefaultBriefingPrompt() string {
	return defaultBriefingPrompt
}

// LoadTemplate returns the contents of path, or fallback when path is empty
// or unreadable.
func LoadTemplate(path string, fallback string) string {
	if path == "" {
		return fallback
	}
	contents, err := os.ReadFile(path)
	if err != nil {
		return fallback
	}
	return string(contents)
}

// FormatPrices renders a price history compactly for a prompt.
func FormatPrices(prices []float64) string {
	parts := make([]string, len(prices))
	for i, p := range prices {
		parts[i] = strconv.FormatFloat(p, 'f', -1, 64)
	}
	return strings.Join(parts, ", ")
}

func RenderAnalysisPrompt(templateText string, data AnalysisData) (string, error) {
	return render("analysis", templateText, data)
}

func RenderBriefingPrompt(templateText string, data BriefingData) (string, error) {
	return render("briefing", templateText, data)
}

func render(name, templateText string, data any) (string, error) {
	tmpl, err := template.New(name).Option("missingkey=error").Parse(templateText)
	if err != nil {
		return "", fmt.Errorf("parse %s template: %w", name, err)
	}
	var builder strings.Builder
	if err := tmpl.Execute(&builder, data); err != nil {
		return "", fmt.Errorf("render %s template: %w", name, err)
	}
	return builder.String(), nil
}
