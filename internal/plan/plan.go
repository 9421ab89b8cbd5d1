package plan

import (
	"encoding/json"
	"fmt"

	"github.com/I2S9/sql-query-optimization-benchmarking/pkg/models"
)

// explainRoot mirrors the top level of EXPLAIN (ANALYZE, FORMAT JSON)
// output: a one-element array wrapping the plan tree.
type explainRoot struct {
	Plan          *explainNode `json:"Plan"`
	PlanningTime  float64      `json:"Planning Time"`
	ExecutionTime float64      `json:"Execution Time"`
}

type explainNode struct {
	NodeType        string         `json:"Node Type"`
	RelationName    string         `json:"Relation Name"`
	IndexName       string         `json:"Index Name"`
	JoinType        string         `json:"Join Type"`
	PlanRows        float64        `json:"Plan Rows"`
	ActualRows      float64        `json:"Actual Rows"`
	TotalCost       float64        `json:"Total Cost"`
	ActualTotalTime float64        `json:"Actual Total Time"`
	Plans           []*explainNode `json:"Plans"`
}

// Parse decodes the JSON document returned by the database's plan
// capture into the harness's plan tree.
func Parse(data []byte) (*models.PlanNode, error) {
	var roots []explainRoot
	if err := json.Unmarshal(data, &roots); err != nil {
		return nil, fmt.Errorf("failed to parse explain output: %w", err)
	}
	if len(roots) == 0 || roots[0].Plan == nil {
		return nil, fmt.Errorf("explain output contains no plan")
	}
	return convert(roots[0].Plan), nil
}

func convert(n *explainNode) *models.PlanNode {
	node := &models.PlanNode{
		NodeType:     n.NodeType,
		Relation:     n.RelationName,
		IndexName:    n.IndexName,
		JoinType:     n.JoinType,
		PlanRows:     n.PlanRows,
		ActualRows:   n.ActualRows,
		TotalCost:    n.TotalCost,
		ActualTimeMs: n.ActualTotalTime,
	}
	for _, child := range n.Plans {
		node.Children = append(node.Children, convert(child))
	}
	return node
}
