package normalize

// Field alias tables. The canonical Order type carries none of these names;
// they exist only at this decode boundary.
var (
	headerID        = []string{"id", "order_id", "orderId", "uuid"}
	headerType      = []string{"order_type", "orderTypeId", "order_type_id", "orderType", "type"}
	headerStatus    = []string{"status", "order_status", "orderStatus"}
	headerStage     = []string{"stage", "fulfillment_stage", "fulfillmentStage"}
	headerPayState  = []string{"payment_state", "paymentState", "payment_status", "paymentStatus"}
	headerTables    = []string{"table_ids", "tableIds", "tables", "table_id", "tableId"}
	headerShift     = []string{"shift_id", "shiftId", "pos_shift_id", "posShiftId"}
	headerPos       = []string{"pos_id", "posId", "terminal_id"}
	headerInvoice   = []string{"invoice_number", "invoiceNumber", "invoice_no"}
	headerVersion   = []string{"version", "row_version"}
	headerCreated   = []string{"created_at", "createdAt"}
	headerUpdated   = []string{"updated_at", "updatedAt"}
	headerPersisted = []string{"is_persisted", "isPersisted"}
	headerDirty     = []string{"dirty", "is_dirty"}
	headerFinalized = []string{"finalized", "is_finalized"}
	headerLines     = []string{"lines", "items", "order_lines", "line_items"}
	headerPayments  = []string{"payments", "order_payments"}
	headerStatusLog = []string{"status_log", "statusLog", "status_logs"}
	headerCustomer  = []string{"customer"}

	customerID      = []string{"customer_id", "customerId"}
	customerName    = []string{"customer_name", "customerName"}
	customerPhone   = []string{"customer_phone", "customerPhone"}
	customerAddress = []string{"delivery_address", "deliveryAddress"}

	nestedCustomerID    = []string{"customer_id", "customerId", "id"}
	nestedCustomerName  = []string{"customer_name", "customerName", "name"}
	nestedCustomerPhone = []string{"customer_phone", "customerPhone", "phone"}
	nestedCustomerAddr  = []string{"delivery_address", "deliveryAddress", "address"}

	discountObject = []string{"discount"}
	discountType   = []string{"discount_type", "discountType"}
	discountValue  = []string{"discount_value", "discountValue"}

	lineID        = []string{"id", "line_id", "lineId"}
	lineOrderID   = []string{"order_id", "orderId", "order_header_id"}
	lineItemID    = []string{"item_id", "itemId", "product_id", "productId", "menu_item_id"}
	lineName      = []string{"name", "item_name", "itemName"}
	lineQuantity  = []string{"quantity", "qty"}
	lineBase      = []string{"base_price", "basePrice", "unit_price", "unitPrice", "price"}
	lineModifiers = []string{"modifiers", "extras"}
	lineTotal     = []string{"total", "line_total", "lineTotal"}
	lineSection   = []string{"kitchen_section", "kitchenSection", "station_id", "stationId", "section_id", "sectionId"}
	lineStatus    = []string{"status", "line_status"}
	lineLocked    = []string{"locked", "lock", "is_locked"}
	lineNotes     = []string{"notes", "note"}
	lineVersion   = []string{"line_version", "lineVersion", "version"}

	modifierID    = []string{"id", "modifier_id"}
	modifierName  = []string{"name"}
	modifierType  = []string{"type", "modifier_type"}
	modifierDelta = []string{"delta", "price_delta", "priceDelta", "price"}

	paymentID       = []string{"id", "payment_id", "paymentId"}
	paymentOrderID  = []string{"order_id", "orderId"}
	paymentMethod   = []string{"method_id", "methodId", "payment_method_id", "method"}
	paymentAmount   = []string{"amount", "value"}
	paymentCaptured = []string{"captured_at", "capturedAt", "paid_at", "created_at"}
	paymentRef      = []string{"reference", "ref"}

	logStatus   = []string{"status"}
	logStage    = []string{"stage"}
	logPayState = []string{"payment_state", "paymentState"}
	logActor    = []string{"actor_id", "actorId", "user_id"}
	logChanged  = []string{"changed_at", "changedAt", "at"}
)
