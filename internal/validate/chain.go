// Package validate implements the ordered, fail-fast validation chain a
// surebet candidate must pass before it is priced, rendered, and enqueued.
package validate

import (
	"context"
	"fmt"
	"time"

	"github.com/XavierBriggs/fortuna/internal/dedup"
	"github.com/XavierBriggs/fortuna/internal/entities"
)

// Result is the outcome of one link in the chain.
type Result struct {
	Pass   bool
	Reason string
}

// Link is one ordered check in the validation chain. Cheap CPU-only links
// must not touch store; links that do consult store for membership.
type Link interface {
	Name() string
	Check(ctx context.Context, sb entities.Surebet, store dedup.Store) (Result, error)
}

// Chain is an ordered, fail-fast sequence of Links. It is a builder: Add
// appends a link and returns the chain; Remove drops a link by name, which
// exists so tests can isolate a subset of links.
type Chain struct {
	links []Link
}

// NewChain constructs an empty chain.
func NewChain() *Chain {
	return &Chain{}
}

// Add appends link to the end of the chain and returns the chain for
// fluent construction.
func (c *Chain) Add(link Link) *Chain {
	c.links = append(c.links, link)
	return c
}

// Remove drops the first link with the given name, if present.
func (c *Chain) Remove(name string) *Chain {
	for i, link := range c.links {
		if link.Name() == name {
			c.links = append(c.links[:i], c.links[i+1:]...)
			break
		}
	}
	return c
}

// Run evaluates links in order, short-circuiting on the first failure or
// error. It returns the failing link's name alongside its Result so the
// orchestrator can bucket drop counters by reason.
func (c *Chain) Run(ctx context.Context, sb entities.Surebet, store dedup.Store) (linkName string, result Result, err error) {
	for _, link := range c.links {
		res, err := link.Check(ctx, sb, store)
		if err != nil {
			return link.Name(), Result{}, fmt.Errorf("validate: link %s: %w", link.Name(), err)
		}
		if !res.Pass {
			return link.Name(), res, nil
		}
	}
	return "", Result{Pass: true}, nil
}

// Default constructs the standard chain in the mandated order: cheap CPU
// checks first, I/O-backed membership checks last.
func Default(minOdds, maxOdds, minProfit, maxProfit float64, now func() time.Time) *Chain {
	return NewChain().
		Add(NewOddsRangeLink(minOdds, maxOdds)).
		Add(NewProfitRangeLink(minProfit, maxProfit)).
		Add(NewFutureEventLink(now)).
		Add(NewDistinctRolesLink()).
		Add(NewDedupAndOppositeLink())
}
