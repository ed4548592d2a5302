// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package aggregate

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/evidence-engine/pkg/types"
)

// Pair identifies one graded claim: a topic tag and an outcome domain.
type Pair struct {
	Topic  string `json:"topic" yaml:"topic"`
	Domain string `json:"domain" yaml:"domain"`
}

// ForPair selects the cards tagged with topic and narrows each copy's
// outcomes to domain. Cards with no outcome in domain are omitted. The
// input cards are not modified.
func ForPair(cards []types.StudyCard, topic, domain string) []types.StudyCard {
	var selected []types.StudyCard
	for _, c := range cards {
		if !c.HasTag(topic) {
			continue
		}
		var outcomes []types.Outcome
		for _, o := range c.Outcomes {
			if o.Domain == domain {
				outcomes = append(outcomes, o)
			}
		}
		if len(outcomes) == 0 {
			continue
		}
		cp := c
		cp.Outcomes = outcomes
		selected = append(selected, cp)
	}
	return selected
}

// AggregatePair grades a single (topic, domain) pair.
func AggregatePair(cards []types.StudyCard, topic, domain string, cfg types.BankingConfig) types.AggregationResult {
	r := Aggregate(ForPair(cards, topic, domain), cfg)
	r.Topic = topic
	r.Domain = domain
	return r
}

// Pairs lists every (topic, domain) combination present in cards, sorted by
// topic then domain.
func Pairs(cards []types.StudyCard) []Pair {
	seen := make(map[Pair]bool)
	var pairs []Pair
	for _, c := range cards {
		for _, tag := range c.Tags {
			for _, o := range c.Outcomes {
				if o.Domain == "" {
					continue
				}
				p := Pair{Topic: tag, Domain: o.Domain}
				if !seen[p] {
					seen[p] = true
					pairs = append(pairs, p)
				}
			}
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Topic != pairs[j].Topic {
			return pairs[i].Topic < pairs[j].Topic
		}
		return pairs[i].Domain < pairs[j].Domain
	})
	return pairs
}

// AggregateAll grades every pair found in cards. Pairs are independent and
// are evaluated concurrently; results come back in Pairs order. It returns
// ctx.Err() if the context is cancelled before all pairs finish.
func AggregateAll(ctx context.Context, cards []types.StudyCard, cfg types.BankingConfig) ([]types.AggregationResult, error) {
	pairs := Pairs(cards)
	results := make([]types.AggregationResult, len(pairs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)

	for i, p := range pairs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = AggregatePair(cards, p.Topic, p.Domain, cfg)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
