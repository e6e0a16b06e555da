package orders

const (
	TopicOrderPlaced        = "shop.order.placed"
	TopicOrderStatus        = "shop.order.status"
	TopicStockRestoreFailed = "shop.stock.restore_failed"
)

// Partition key = order id, so all events of one order keep their order.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
