package cache

import "time"

const (
	// idem:checkout:{submission_id} -> basket_id
	keyIdemCheckout = "idem:checkout:%s"

	// lines:version -> counter bumped by every invalidation
	keyLinesVersion = "lines:version"

	// lines:v{version}:{product_id|all} -> JSON encoded order lines
	keyLines = "lines:v%d:%s"
)

var TTLIdempotency = 24 * time.Hour

func linesScope(productID string) string {
	if productID == "" {
		return "all"
	}
	return productID
}
