// Package drawer renders a build plan as a Graphviz document: the
// project fanning out to its matrix legs, each leg running its phase
// chain, and the final phase fanning out to the destinations the leg
// publishes to.  Feed the output to dot(1) to see exactly what a tag
// will do before pushing it.
package drawer

import (
	"errors"
	"fmt"
	"io"

	"github.com/dominikbraun/graph"
	"github.com/dominikbraun/graph/draw"

	"github.com/conveyor-ci/conveyor/pkg/deploy"
)

// Leg is one matrix job: its phase chain plus its routing verdicts.
type Leg struct {
	Name      string
	Phases    []string
	Decisions []deploy.Decision
}

// Plan is what gets drawn.
type Plan struct {
	Project string
	Legs    []Leg
}

// DOT writes the plan as a digraph.  Destinations that no leg publishes
// to are still drawn, greyed out, so a skipped destination is visibly
// skipped rather than silently missing.
func DOT(plan Plan, w io.Writer) error {
	g := graph.New(graph.StringHash, graph.Directed())

	if err := g.AddVertex(plan.Project,
		graph.VertexAttribute("shape", "box"),
		graph.VertexAttribute("style", "bold"),
	); err != nil {
		return fmt.Errorf("drawer: %w", err)
	}

	matched := make(map[string]bool)
	for _, leg := range plan.Legs {
		for _, d := range leg.Decisions {
			if d.Matched {
				matched[d.ID] = true
			}
		}
	}

	for _, leg := range plan.Legs {
		if err := addVertex(g, leg.Name,
			graph.VertexAttribute("shape", "box"),
		); err != nil {
			return err
		}
		if err := addEdge(g, plan.Project, leg.Name); err != nil {
			return err
		}

		// The phase chain.  Phase vertices are per-leg ("leg/phase") so
		// that legs do not share them, but display as just the phase.
		tail := leg.Name
		for _, phase := range leg.Phases {
			id := leg.Name + "/" + phase
			if err := addVertex(g, id,
				graph.VertexAttribute("label", phase),
			); err != nil {
				return err
			}
			if err := addEdge(g, tail, id); err != nil {
				return err
			}
			tail = id
		}

		for _, d := range leg.Decisions {
			attrs := []func(*graph.VertexProperties){
				graph.VertexAttribute("shape", "note"),
			}
			if !matched[d.ID] {
				attrs = append(attrs,
					graph.VertexAttribute("color", "grey"),
					graph.VertexAttribute("fontcolor", "grey"),
				)
			}
			if err := addVertex(g, d.ID, attrs...); err != nil {
				return err
			}
			if d.Matched {
				if err := addEdge(g, tail, d.ID); err != nil {
					return err
				}
			}
		}
	}

	if err := draw.DOT(g, w); err != nil {
		return fmt.Errorf("drawer: %w", err)
	}
	return nil
}

func addVertex(g graph.Graph[string, string], name string, attrs ...func(*graph.VertexProperties)) error {
	err := g.AddVertex(name, attrs...)
	if err != nil && !errors.Is(err, graph.ErrVertexAlreadyExists) {
		return fmt.Errorf("drawer: %w", err)
	}
	return nil
}

func addEdge(g graph.Graph[string, string], from, to string) error {
	err := g.AddEdge(from, to)
	if err != nil && !errors.Is(err, graph.ErrEdgeAlreadyExists) {
		return fmt.Errorf("drawer: %w", err)
	}
	return nil
}
