// Package eval scores tool retrieval against recorded questions.
package eval

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/wilhg/cloudask/pkg/runtime"
)

// Fixture is one retrieval case: the question and the tools any one of which
// must appear in the top-k results.
type Fixture struct {
	Name   string      `json:"name"`
	Query  string      `json:"query"`
	Expect Expectation `json:"expect"`
}

type Expectation struct {
	Tools []string `json:"tools"`
}

// Report is the outcome of EvaluateRetrieval.
type Report struct {
	Score   float64
	Total   int
	Passed  int
	Details []string
}

// EvaluateRetrieval loads json fixtures from dir and scores the fraction whose
// expected tool is retrieved within the top k. A directory with no fixtures
// scores 1.
func EvaluateRetrieval(ctx context.Context, r runtime.Retriever, fsys fs.FS, dir string, k int) (Report, error) {
	fixtures, err := loadFixtures(fsys, dir)
	if err != nil {
		return Report{}, err
	}
	rep := Report{Total: len(fixtures)}
	if rep.Total == 0 {
		rep.Score = 1
		return rep, nil
	}
	for _, fx := range fixtures {
		hits, err := r.Query(ctx, fx.Query, k)
		if err != nil {
			if ctx.Err() != nil {
				return Report{}, ctx.Err()
			}
			rep.Details = append(rep.Details, fx.Name+": query error: "+err.Error())
			continue
		}
		got := make([]string, len(hits))
		for i, h := range hits {
			got[i] = h.Descriptor.Name
		}
		if matches(got, fx.Expect.Tools) {
			rep.Passed++
			continue
		}
		rep.Details = append(rep.Details, fmt.Sprintf("%s: want one of %v in top %d, got %v", fx.Name, fx.Expect.Tools, k, got))
	}
	rep.Score = float64(rep.Passed) / float64(rep.Total)
	return rep, nil
}

func matches(got, want []string) bool {
	for _, w := range want {
		for _, g := range got {
			if g == w {
				return true
			}
		}
	}
	return false
}

func loadFixtures(fsys fs.FS, dir string) ([]Fixture, error) {
	var out []Fixture
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		b, err := fs.ReadFile(fsys, path.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		var fx Fixture
		if err := json.Unmarshal(b, &fx); err != nil {
			return nil, fmt.Errorf("fixture %s: %w", e.Name(), err)
		}
		if fx.Name == "" {
			fx.Name = strings.TrimSuffix(e.Name(), ".json")
		}
		out = append(out, fx)
	}
	return out, nil
}
