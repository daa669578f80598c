package orders

import (
	"encoding/json"

	"github.com/warp/order-engine/generic"
)

// StatusGroupJSON returns the built-in order status group. It is a JSON
// document (not a factory value) so the factory package can import orders
// without a cycle.
func StatusGroupJSON() string {
	g := map[string]interface{}{
		"code":   Group,
		"name":   "Order statuses",
		"family": Family,
		"allowed_transitions": map[generic.StatusCode][]generic.StatusCode{
			StatusNew:      {StatusPaid},
			StatusPaid:     {StatusRefunded},
			StatusRefunded: {StatusPaid, StatusNew},
		},
		"transaction_types": map[generic.StatusCode]string{
			StatusPaid:     "expense",
			StatusRefunded: "payback",
		},
		"statuses": []map[string]interface{}{
			{"code": StatusNew, "name": "New", "description": "Order created, not paid yet", "is_default": true, "order": 1},
			{"code": StatusPaid, "name": "Paid", "description": "Order charged to the user's balance", "order": 2},
			{"code": StatusRefunded, "name": "Refunded", "description": "Order amounts returned to the balance", "order": 3},
		},
	}
	b, _ := json.MarshalIndent(g, "", "  ")
	return string(b)
}
