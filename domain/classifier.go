package domain

import (
	"log/slog"
	"strings"
)

// classifyWindow caps how much of the document the classifier reads. The
// opening of a document carries most of the domain signal, and scanning
// megabytes of text for a single label is wasted work.
const classifyWindow = 20000

// lexicons maps each domain to the vocabulary used for overlap scoring.
// Terms are matched case-insensitively as substrings of the window.
var lexicons = map[string][]string{
	Technical: {
		"api", "framework", "database", "server", "deployment", "latency",
		"protocol", "runtime", "compiler", "frontend", "backend", "sdk",
		"docker", "kubernetes", "python", "javascript", "microservice",
		"cache", "query", "endpoint", "repository", "open source",
	},
	Academic: {
		"abstract", "hypothesis", "experiment", "dataset", "baseline",
		"methodology", "citation", "peer review", "related work",
		"evaluation", "benchmark", "empirical", "literature", "findings",
		"statistically significant", "et al",
	},
	Business: {
		"revenue", "quarter", "market share", "stakeholder", "roi",
		"acquisition", "customer", "strategy", "forecast", "margin",
		"kpi", "pipeline", "b2b", "valuation", "earnings", "investor",
	},
	Legal: {
		"pursuant", "herein", "whereas", "liability", "clause",
		"jurisdiction", "plaintiff", "defendant", "statute", "regulation",
		"obligation", "indemnify", "breach", "warranty", "hereinafter",
		"party of the", "agreement",
	},
}

// Classify scores the document text against each domain lexicon and returns
// the best-matching domain name. Ties and all-zero scores resolve to
// General. It never fails.
func Classify(text string) string {
	window := text
	if len(window) > classifyWindow {
		window = window[:classifyWindow]
	}
	window = strings.ToLower(window)

	best := General
	bestScore := 0
	tied := false
	for _, name := range Names() {
		terms, ok := lexicons[name]
		if !ok {
			continue
		}
		score := 0
		for _, term := range terms {
			score += strings.Count(window, term)
		}
		switch {
		case score > bestScore:
			best, bestScore, tied = name, score, false
		case score == bestScore && score > 0:
			tied = true
		}
	}

	if bestScore == 0 || tied {
		slog.Debug("domain: no clear winner, defaulting", "best", best,
			"score", bestScore, "tied", tied)
		return General
	}

	slog.Debug("domain: classified", "domain", best, "score", bestScore)
	return best
}
