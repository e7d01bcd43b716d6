package report

import (
	"testing"

	"github.com/cnosuke/imgcheck/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDedupe(t *testing.T) {
	reqs := []types.CheckRequest{
		{Identifier: "a", URL: "https://cdn.example.com/1.jpg"},
		{Identifier: "b", URL: "https://cdn.example.com/2.jpg"},
		{Identifier: "c", URL: "https://cdn.example.com/1.jpg  "},
		{Identifier: "", URL: "https://cdn.example.com/3.jpg"},
		{Identifier: "d", URL: "https://cdn.example.com/2.jpg"},
	}

	unique, dups := Dedupe(reqs)
	assert.Equal(t, 2, dups)
	require.Len(t, unique, 3)
	assert.Equal(t, "a", unique[0].Identifier)
	assert.Equal(t, "b", unique[1].Identifier)
	assert.Equal(t, types.DefaultIdentifier, unique[2].Identifier)
}

func TestDedupe_Empty(t *testing.T) {
	unique, dups := Dedupe(nil)
	assert.Empty(t, unique)
	assert.Equal(t, 0, dups)
}

func TestCollector(t *testing.T) {
	unique := []types.CheckRequest{
		{Identifier: "a", URL: "https://cdn.example.com/1.jpg"},
		{Identifier: "b", URL: "https://cdn.example.com/2.jpg"},
		{Identifier: "c", URL: "https://cdn.example.com/3.jpg"},
	}
	c := NewCollector(unique)
	assert.Equal(t, 0, c.NextIndex())

	assert.True(t, c.Add(1, types.CheckResult{Identifier: "b", URL: unique[1].URL, Code: 404, Status: types.StatusNotFound}))
	assert.False(t, c.Add(1, types.CheckResult{Identifier: "b", URL: unique[1].URL, Code: 200, Status: types.StatusOK}))
	assert.False(t, c.Add(3, types.CheckResult{Status: types.StatusOK}))
	assert.False(t, c.Add(-1, types.CheckResult{Status: types.StatusOK}))

	assert.True(t, c.Has(1))
	assert.False(t, c.Has(0))
	assert.Equal(t, 1, c.Completed())
	assert.Equal(t, 0, c.NextIndex())

	rep := c.Report()
	assert.False(t, rep.Complete)
	assert.Equal(t, 3, rep.Total)
	assert.Equal(t, 0, rep.NextIndex)
	require.Len(t, rep.Results, 1)
	assert.Equal(t, types.StatusNotFound, rep.Results[0].Status)

	assert.True(t, c.Add(0, types.CheckResult{Identifier: "a", URL: unique[0].URL, Code: 200, Status: types.StatusOK}))
	assert.Equal(t, 2, c.NextIndex())
	assert.True(t, c.Add(2, types.CheckResult{Identifier: "c", URL: unique[2].URL, Code: 0, Status: types.StatusTimeout}))

	rep = c.Report()
	assert.True(t, rep.Complete)
	assert.Equal(t, 3, rep.NextIndex)
	assert.Equal(t, 3, rep.Completed)
	require.Len(t, rep.Results, 3)
	assert.Equal(t, "a", rep.Results[0].Identifier)
	assert.Equal(t, "b", rep.Results[1].Identifier)
	assert.Equal(t, "c", rep.Results[2].Identifier)

	assert.Equal(t, 1, rep.Tally.OK)
	assert.Equal(t, 1, rep.Tally.NotFound)
	assert.Equal(t, 1, rep.Tally.Other)
	assert.Equal(t, 3, rep.Tally.Sum())
}

func TestCollector_TallyIsCopy(t *testing.T) {
	c := NewCollector([]types.CheckRequest{{URL: "https://cdn.example.com/1.jpg"}})
	c.Add(0, types.CheckResult{Status: types.StatusOK})

	tally := c.Tally()
	tally.ByStatus[types.StatusOK] = 99
	assert.Equal(t, 1, c.Tally().ByStatus[types.StatusOK])
}

func TestSummary(t *testing.T) {
	rep := &types.Report{
		Total:      3,
		Completed:  3,
		Duplicates: 1,
		Tally:      types.NewTally(),
	}
	rep.Tally.Add(types.StatusNotFound)
	rep.Tally.Add(types.StatusOK)
	rep.Tally.Add(types.StatusOK)

	assert.Equal(t, "3/3 checked ok=2 not-found=1 duplicates=1", Summary(rep))

	rep = &types.Report{Total: 2, Completed: 1, Tally: types.NewTally()}
	rep.Tally.Add(types.StatusInvalidURL)
	assert.Equal(t, "1/2 checked invalid-url=1", Summary(rep))
}
