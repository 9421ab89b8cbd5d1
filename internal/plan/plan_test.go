package plan

import (
	"testing"

	"github.com/I2S9/sql-query-optimization-benchmarking/pkg/models"
)

const explainJSON = `[
  {
    "Plan": {
      "Node Type": "Hash Join",
      "Join Type": "Inner",
      "Plan Rows": 1000,
      "Actual Rows": 987,
      "Total Cost": 250.5,
      "Actual Total Time": 12.34,
      "Plans": [
        {
          "Node Type": "Seq Scan",
          "Relation Name": "orders",
          "Plan Rows": 10000,
          "Actual Rows": 10000,
          "Total Cost": 150.0,
          "Actual Total Time": 5.6
        },
        {
          "Node Type": "Hash",
          "Plan Rows": 500,
          "Actual Rows": 500,
          "Total Cost": 80.0,
          "Actual Total Time": 2.1,
          "Plans": [
            {
              "Node Type": "Index Scan",
              "Relation Name": "customers",
              "Index Name": "customers_pkey",
              "Plan Rows": 500,
              "Actual Rows": 500,
              "Total Cost": 60.0,
              "Actual Total Time": 1.8
            }
          ]
        }
      ]
    },
    "Planning Time": 0.42,
    "Execution Time": 13.01
  }
]`

func TestParse(t *testing.T) {
	root, err := Parse([]byte(explainJSON))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if root.NodeType != "Hash Join" {
		t.Errorf("expected Hash Join root, got %s", root.NodeType)
	}
	if root.JoinType != "Inner" {
		t.Errorf("expected Inner join type, got %s", root.JoinType)
	}
	if len(root.Children) != 2 {
		t.Fatalf("expected 2 children, got %d", len(root.Children))
	}
	if root.Children[0].NodeType != "Seq Scan" || root.Children[0].Relation != "orders" {
		t.Errorf("unexpected first child: %+v", root.Children[0])
	}

	hashNode := root.Children[1]
	if len(hashNode.Children) != 1 {
		t.Fatalf("expected hash node to have 1 child, got %d", len(hashNode.Children))
	}
	if hashNode.Children[0].IndexName != "customers_pkey" {
		t.Errorf("expected customers_pkey index, got %s", hashNode.Children[0].IndexName)
	}
	if root.ActualTimeMs != 12.34 {
		t.Errorf("expected actual time 12.34, got %f", root.ActualTimeMs)
	}
}

func TestParse_Invalid(t *testing.T) {
	if _, err := Parse([]byte("not json")); err == nil {
		t.Error("expected error for invalid JSON")
	}
	if _, err := Parse([]byte("[]")); err == nil {
		t.Error("expected error for empty plan array")
	}
	if _, err := Parse([]byte("[{}]")); err == nil {
		t.Error("expected error for missing plan")
	}
}

func TestFingerprint_IgnoresEstimates(t *testing.T) {
	a := &models.PlanNode{
		NodeType: "Seq Scan",
		Relation: "orders",
		PlanRows: 100, ActualRows: 95, TotalCost: 10.0,
	}
	b := &models.PlanNode{
		NodeType: "Seq Scan",
		Relation: "orders",
		PlanRows: 99999, ActualRows: 88888, TotalCost: 999.0,
	}

	if Fingerprint(a) != Fingerprint(b) {
		t.Error("expected identical fingerprints for same operator shape with different estimates")
	}
}

func TestFingerprint_DetectsOperatorChange(t *testing.T) {
	seqScan := &models.PlanNode{NodeType: "Seq Scan", Relation: "orders"}
	idxScan := &models.PlanNode{NodeType: "Index Scan", Relation: "orders", IndexName: "idx_orders_customer"}

	if Fingerprint(seqScan) == Fingerprint(idxScan) {
		t.Error("expected different fingerprints for Seq Scan vs Index Scan")
	}
}

func TestFingerprint_DetectsJoinChange(t *testing.T) {
	mk := func(joinNode string) *models.PlanNode {
		return &models.PlanNode{
			NodeType: joinNode,
			JoinType: "Inner",
			Children: []*models.PlanNode{
				{NodeType: "Seq Scan", Relation: "orders"},
				{NodeType: "Seq Scan", Relation: "customers"},
			},
		}
	}

	if Fingerprint(mk("Hash Join")) == Fingerprint(mk("Nested Loop")) {
		t.Error("expected different fingerprints for hash join vs nested loop")
	}
}

func TestFingerprint_Nil(t *testing.T) {
	if Fingerprint(nil) != "" {
		t.Error("expected empty fingerprint for nil plan")
	}
}

func TestFingerprint_Deterministic(t *testing.T) {
	root, err := Parse([]byte(explainJSON))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	first := Fingerprint(root)
	for i := 0; i < 10; i++ {
		if Fingerprint(root) != first {
			t.Fatal("fingerprint is not deterministic")
		}
	}
	if len(first) != 16 {
		t.Errorf("expected 16 hex chars, got %q", first)
	}
}
