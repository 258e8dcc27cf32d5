package generate

import (
	"context"
	"strings"
	"time"
)

// Simulated answers from a fixed keyword table after an artificial delay.
type Simulated struct {
	Latency time.Duration
}

var simulatedRules = []struct {
	keywords []string
	titles   []string
}{
	{[]string{"party", "birthday"}, []string{"Order the cake 🎂", "Send invitations 📩", "Select a playlist 🎵"}},
	{[]string{"code", "app", "project"}, []string{"Setup Git Repo 🐙", "Design Database Schema 🗄️", "Initialize API 🚀"}},
	{[]string{"food", "dinner"}, []string{"Buy Groceries 🥦", "Pre-heat Oven 🔥", "Chop Vegetables 🔪"}},
	{[]string{"travel", "trip"}, []string{"Book Flights ✈️", "Reserve Hotel 🏨", "Pack Suitcase 🧳"}},
}

func (s Simulated) Breakdown(ctx context.Context, goal string) ([]string, error) {
	if s.Latency > 0 {
		timer := time.NewTimer(s.Latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return simulatedTitles(goal), nil
}

func simulatedTitles(goal string) []string {
	lower := strings.ToLower(goal)
	for _, rule := range simulatedRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return append([]string(nil), rule.titles...)
			}
		}
	}
	return []string{
		"Research: " + lower,
		"Draft outline for " + lower,
		"Review final draft",
	}
}
