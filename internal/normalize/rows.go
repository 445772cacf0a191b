package normalize

import "strings"

var (
	jobOrderID = []string{"order_id", "orderId", "order_header_id"}
	jobLineIDs = []string{"line_ids", "lineIds"}
	jobLineID  = []string{"line_id", "lineId", "order_line_id"}
	jobDetails = []string{"details", "items", "job_order_details"}

	tableID    = []string{"id", "table_id", "tableId"}
	tableName  = []string{"name", "label", "table_name"}
	shiftID    = []string{"id", "shift_id", "shiftId"}
	shiftState = []string{"status", "state"}
)

// JobLines returns the order and the line ids a kitchen job row proves were
// delivered to kitchen storage.
func JobLines(row Row) (string, []string) {
	orderID := row.str(jobOrderID)
	lines := row.strings(jobLineIDs)
	if id := row.str(jobLineID); id != "" {
		lines = append(lines, id)
	}
	for _, detail := range row.rows(jobDetails) {
		if id := detail.str(jobLineID); id != "" {
			lines = append(lines, id)
		}
	}
	return orderID, lines
}

func TableOf(row Row) (id, name string) {
	id = row.str(tableID)
	name = row.str(tableName)
	if name == "" {
		name = id
	}
	return id, name
}

// ShiftOf returns the shift id and whether the shift is still open.
func ShiftOf(row Row) (string, bool) {
	return row.str(shiftID), strings.EqualFold(row.str(shiftState), "open")
}
