package delivery

import (
	"encoding/json"

	"github.com/warp/order-engine/generic"
)

// StatusGroupJSON returns the built-in delivery status group.
func StatusGroupJSON() string {
	g := map[string]interface{}{
		"code":   Group,
		"name":   "Delivery statuses",
		"family": Family,
		"allowed_transitions": map[generic.StatusCode][]generic.StatusCode{
			StatusNew:       {StatusPaid, StatusCancelled},
			StatusPaid:      {StatusCancelled},
			StatusCancelled: {StatusNew},
		},
		"transaction_types": map[generic.StatusCode]string{
			StatusPaid:      "expense",
			StatusCancelled: "payback",
		},
		"statuses": []map[string]interface{}{
			{"code": StatusNew, "name": "New", "description": "Delivery registered, not paid yet", "is_default": true, "order": 1},
			{"code": StatusPaid, "name": "Paid", "description": "Shipping charged to the user's balance", "order": 2},
			{"code": StatusCancelled, "name": "Cancelled", "description": "Shipping returned to the balance", "order": 3},
		},
	}
	b, _ := json.MarshalIndent(g, "", "  ")
	return string(b)
}
