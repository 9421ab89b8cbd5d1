package plan

import (
	"fmt"
	"strings"

	"github.com/spaolacci/murmur3"

	"github.com/I2S9/sql-query-optimization-benchmarking/pkg/models"
)

// Fingerprint reduces a plan tree to a stable hash of its operator
// shape: the pre-order sequence of node type, join type and index name.
// Cost estimates and row counts vary run to run and are ignored, so two
// captures of the same strategy always collide and a planner switch
// (e.g. Seq Scan to Index Scan) never does.
func Fingerprint(root *models.PlanNode) string {
	if root == nil {
		return ""
	}
	var ops []string
	walk(root, &ops)
	h := murmur3.Sum64([]byte(strings.Join(ops, ";")))
	return fmt.Sprintf("%016x", h)
}

func walk(n *models.PlanNode, ops *[]string) {
	op := n.NodeType
	if n.JoinType != "" {
		op += "|" + n.JoinType
	}
	if n.IndexName != "" {
		op += "|" + n.IndexName
	}
	*ops = append(*ops, op)
	for _, child := range n.Children {
		walk(child, ops)
	}
}
