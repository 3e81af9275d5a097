// Package engine implements the arbitrage pipeline: match a ground-truth
// feed event against tracked opportunities, prioritize and rate-limit the
// matches, evaluate a fair-value signal, size a trade, and execute it.
package engine

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"polyarb/pkg/types"
)

var thresholdPattern = regexp.MustCompile(`(?i)(above|below|over|under|exceeds?)\s*\$?([0-9]+(?:\.[0-9]+)?)\s*%?`)

var leadingArticles = []string{"the ", "a ", "an "}

// parseThreshold extracts a direction ("above"/"below") and numeric
// threshold from free text, or ok=false if no match is found.
func parseThreshold(question string) (direction string, threshold decimal.Decimal, ok bool) {
	m := thresholdPattern.FindStringSubmatch(strings.ToLower(question))
	if m == nil {
		return "", decimal.Zero, false
	}
	word := strings.ToLower(m[1])
	if word == "over" || word == "exceed" || word == "exceeds" {
		direction = "above"
	} else if word == "under" {
		direction = "below"
	} else {
		direction = word
	}
	num, err := decimal.NewFromString(m[2])
	if err != nil {
		return "", decimal.Zero, false
	}
	return direction, num, true
}

func normalizeTeamName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, article := range leadingArticles {
		if strings.HasPrefix(s, article) {
			s = strings.TrimPrefix(s, article)
			break
		}
	}
	return s
}

// Match runs the per-category matching rules from a single feed event
// against the scanner's current opportunities, returning zero or more
// MatchResults. Each result's TargetToken is always a member of its
// opportunity's token list.
func Match(event types.FeedEvent, opportunities []types.MarketOpportunity, confidenceThreshold float64) []types.MatchResult {
	switch event.FeedType {
	case types.FeedEconomic:
		return matchEconomic(event, opportunities, confidenceThreshold)
	case types.FeedSports:
		return matchSports(event, opportunities)
	case types.FeedCrypto:
		return matchCrypto(event, opportunities, confidenceThreshold)
	default:
		return nil
	}
}

func matchEconomic(event types.FeedEvent, opportunities []types.MarketOpportunity, confidenceThreshold float64) []types.MatchResult {
	if !event.HasNumeric {
		return nil
	}
	indicator := strings.ToLower(event.Indicator)
	var out []types.MatchResult
	for _, opp := range opportunities {
		if opp.Category != types.CategoryEconomic {
			continue
		}
		question := strings.ToLower(opp.Question)
		if indicator == "" || !strings.Contains(question, indicator) {
			continue
		}
		direction, threshold, ok := parseThreshold(opp.Question)
		if !ok {
			continue
		}
		outcome := resolveDirectionOutcome(direction, event.NumericValue, threshold)
		tokenID, found := opp.Market.TokenID(outcome)
		if !found {
			continue
		}
		confidence := decimal.NewFromFloat(0.95)
		if confidence.LessThan(decimal.NewFromFloat(confidenceThreshold)) {
			continue
		}
		out = append(out, types.MatchResult{
			Event:         event,
			Opportunity:   opp,
			TargetToken:   tokenID,
			TargetOutcome: outcome,
			Confidence:    confidence,
		})
	}
	return out
}

func resolveDirectionOutcome(direction string, value, threshold decimal.Decimal) string {
	above := value.GreaterThan(threshold)
	if direction == "above" {
		if above {
			return "Yes"
		}
		return "No"
	}
	// "below"
	if !above {
		return "Yes"
	}
	return "No"
}

func matchSports(event types.FeedEvent, opportunities []types.MarketOpportunity) []types.MatchResult {
	winner, _ := event.Metadata["winner"].(string)
	if winner == "" {
		return nil
	}
	homeTeam, _ := event.Metadata["home_team"].(string)
	awayTeam, _ := event.Metadata["away_team"].(string)

	var out []types.MatchResult
	for _, opp := range opportunities {
		if opp.Category != types.CategorySports {
			continue
		}
		question := strings.ToLower(opp.Question)
		homeNorm := normalizeTeamName(homeTeam)
		awayNorm := normalizeTeamName(awayTeam)
		if homeNorm == "" && awayNorm == "" {
			continue
		}
		if !(homeNorm != "" && strings.Contains(question, homeNorm)) &&
			!(awayNorm != "" && strings.Contains(question, awayNorm)) {
			continue
		}

		var tokenID, outcome string
		var found bool
		if winner != "" {
			tokenID, found = opp.Market.TokenID(winner)
		}
		if !found {
			if winner != "" && strings.Contains(question, normalizeTeamName(winner)) {
				outcome = "Yes"
			} else {
				outcome = "No"
			}
			tokenID, found = opp.Market.TokenID(outcome)
			if !found {
				continue
			}
		} else {
			outcome = winner
		}

		out = append(out, types.MatchResult{
			Event:         event,
			Opportunity:   opp,
			TargetToken:   tokenID,
			TargetOutcome: outcome,
			Confidence:    decimal.NewFromFloat(0.95),
		})
	}
	return out
}

func matchCrypto(event types.FeedEvent, opportunities []types.MarketOpportunity, confidenceThreshold float64) []types.MatchResult {
	if !event.HasNumeric {
		return nil
	}
	parts := strings.SplitN(event.Indicator, "_", 2)
	if len(parts) == 0 || parts[0] == "" {
		return nil
	}
	base := strings.ToUpper(parts[0])

	var out []types.MatchResult
	for _, opp := range opportunities {
		if opp.Category != types.CategoryCrypto {
			continue
		}
		if !strings.Contains(opp.Question, base) {
			continue
		}
		direction, threshold, ok := parseThreshold(opp.Question)
		if !ok {
			continue
		}
		outcome := resolveDirectionOutcome(direction, event.NumericValue, threshold)
		tokenID, found := opp.Market.TokenID(outcome)
		if !found {
			continue
		}
		confidence := decimal.NewFromFloat(0.90)
		if confidence.LessThan(decimal.NewFromFloat(confidenceThreshold)) {
			continue
		}
		out = append(out, types.MatchResult{
			Event:         event,
			Opportunity:   opp,
			TargetToken:   tokenID,
			TargetOutcome: outcome,
			Confidence:    confidence,
		})
	}
	return out
}
