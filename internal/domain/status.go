package domain

type OrderStatus string

const (
	StatusPending    OrderStatus = "PENDING"
	StatusProcessing OrderStatus = "PROCESSING"
	StatusPaid       OrderStatus = "PAID"
	StatusShipped    OrderStatus = "SHIPPED"
	StatusDelivered  OrderStatus = "DELIVERED"
	StatusCancelled  OrderStatus = "CANCELLED"
	StatusRefunded   OrderStatus = "REFUNDED"
)

// forward is the happy path; CANCELLED and REFUNDED branch off any state
// before DELIVERED.
var forward = map[OrderStatus]OrderStatus{
	StatusPending:    StatusProcessing,
	StatusProcessing: StatusPaid,
	StatusPaid:       StatusShipped,
	StatusShipped:    StatusDelivered,
}

func ParseStatus(s string) (OrderStatus, bool) {
	st := OrderStatus(s)
	switch st {
	case StatusPending, StatusProcessing, StatusPaid, StatusShipped,
		StatusDelivered, StatusCancelled, StatusRefunded:
		return st, true
	}
	return "", false
}

// CanTransition reports whether an order may move from one status to another.
func (s OrderStatus) CanTransition(to OrderStatus) bool {
	if next, ok := forward[s]; ok && next == to {
		return true
	}
	if to == StatusCancelled || to == StatusRefunded {
		_, open := forward[s]
		return open
	}
	return false
}
