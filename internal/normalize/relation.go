package normalize

import "strings"

// Relation is the canonical name of a change-feed table.
type Relation string

const (
	RelationUnknown  Relation = ""
	RelationOrders   Relation = "order_header"
	RelationLines    Relation = "order_line"
	RelationPayments Relation = "order_payment"
	RelationShifts   Relation = "pos_shift"
	RelationJobs     Relation = "job_order_header"
	RelationTables   Relation = "dining_table"
)

// Relations lists every watched relation in hydration order.
var Relations = []Relation{
	RelationOrders,
	RelationLines,
	RelationPayments,
	RelationShifts,
	RelationJobs,
	RelationTables,
}

var relationAliases = map[string]Relation{
	"order_header":     RelationOrders,
	"order_headers":    RelationOrders,
	"orders":           RelationOrders,
	"order_line":       RelationLines,
	"order_lines":      RelationLines,
	"line_items":       RelationLines,
	"order_payment":    RelationPayments,
	"order_payments":   RelationPayments,
	"payments":         RelationPayments,
	"pos_payments":     RelationPayments,
	"pos_shift":        RelationShifts,
	"pos_shifts":       RelationShifts,
	"shifts":           RelationShifts,
	"job_order_header": RelationJobs,
	"jobs":             RelationJobs,
	"kds_jobs":         RelationJobs,
	"dining_table":     RelationTables,
	"dining_tables":    RelationTables,
	"tables":           RelationTables,
}

// ResolveRelation maps an upstream table name onto its canonical relation.
func ResolveRelation(name string) Relation {
	key := strings.ToLower(strings.TrimSpace(name))
	key = strings.ReplaceAll(key, "-", "_")
	return relationAliases[key]
}
