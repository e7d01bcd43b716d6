package report

import (
	"fmt"
	"strings"

	"github.com/cnosuke/imgcheck/types"
)

// Dedupe drops requests whose URL was already seen. The first identifier wins.
func Dedupe(reqs []types.CheckRequest) ([]types.CheckRequest, int) {
	seen := make(map[string]struct{}, len(reqs))
	unique := make([]types.CheckRequest, 0, len(reqs))
	for _, r := range reqs {
		key := r.Key()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		if r.Identifier == "" {
			r.Identifier = types.DefaultIdentifier
		}
		unique = append(unique, r)
	}
	return unique, len(reqs) - len(unique)
}

// Collector accumulates results by deduplicated index. It is not safe for concurrent use;
// the runner feeds it from a single goroutine.
type Collector struct {
	requests []types.CheckRequest
	results  []*types.CheckResult
	tally    types.Tally
	done     int
}

// NewCollector prepares a collector for the given deduplicated requests.
func NewCollector(requests []types.CheckRequest) *Collector {
	return &Collector{
		requests: requests,
		results:  make([]*types.CheckResult, len(requests)),
		tally:    types.NewTally(),
	}
}

// Add records r for index. It returns false when the index is out of range or already set.
func (c *Collector) Add(index int, r types.CheckResult) bool {
	if index < 0 || index >= len(c.results) || c.results[index] != nil {
		return false
	}
	c.results[index] = &r
	c.tally.Add(r.Status)
	c.done++
	return true
}

// Has reports whether index already has a result.
func (c *Collector) Has(index int) bool {
	return index >= 0 && index < len(c.results) && c.results[index] != nil
}

// Completed returns the number of recorded results.
func (c *Collector) Completed() int {
	return c.done
}

// NextIndex returns the lowest index without a result, or the total when complete.
func (c *Collector) NextIndex() int {
	for i, r := range c.results {
		if r == nil {
			return i
		}
	}
	return len(c.results)
}

// Tally returns a copy of the running tally.
func (c *Collector) Tally() types.Tally {
	t := c.tally
	t.ByStatus = make(map[types.Status]int, len(c.tally.ByStatus))
	for k, v := range c.tally.ByStatus {
		t.ByStatus[k] = v
	}
	return t
}

// Report builds the final report with results in input order.
func (c *Collector) Report() *types.Report {
	results := make([]types.CheckResult, 0, c.done)
	for _, r := range c.results {
		if r != nil {
			results = append(results, *r)
		}
	}
	return &types.Report{
		Results:   results,
		Tally:     c.Tally(),
		Total:     len(c.results),
		Completed: c.done,
		NextIndex: c.NextIndex(),
		Complete:  c.done == len(c.results),
	}
}

// Summary renders the tally on one line, tags in report order, zero counts omitted.
func Summary(rep *types.Report) string {
	parts := []string{fmt.Sprintf("%d/%d checked", rep.Completed, rep.Total)}
	for _, s := range types.AllStatuses {
		if n := rep.Tally.ByStatus[s]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", s, n))
		}
	}
	if rep.Duplicates > 0 {
		parts = append(parts, fmt.Sprintf("duplicates=%d", rep.Duplicates))
	}
	return strings.Join(parts, " ")
}
