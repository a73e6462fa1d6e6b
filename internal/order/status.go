package order

// Status is the order-level state. The back office may re-set any status at
// any time unless strict transitions are enabled; delivered and cancelled are
// the intended terminal states.
type Status string

const (
	StatusPending   Status = "pending"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

// ItemStatus is the per-line fulfillment state, finer-grained than the order
// status: an item can ship on its own while the order stays pending.
type ItemStatus string

const (
	ItemPending   ItemStatus = "pending"
	ItemShipped   ItemStatus = "shipped"
	ItemDelivered ItemStatus = "delivered"
	ItemCancelled ItemStatus = "cancelled"
)

func ValidStatus(s Status) bool {
	switch s {
	case StatusPending, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

func ValidItemStatus(s ItemStatus) bool {
	switch s {
	case ItemPending, ItemShipped, ItemDelivered, ItemCancelled:
		return true
	}
	return false
}

var statusNext = map[Status]map[Status]bool{
	StatusPending:   {StatusDelivered: true, StatusCancelled: true},
	StatusDelivered: {},
	StatusCancelled: {},
}

var itemStatusNext = map[ItemStatus]map[ItemStatus]bool{
	ItemPending:   {ItemShipped: true, ItemDelivered: true, ItemCancelled: true},
	ItemShipped:   {ItemDelivered: true, ItemCancelled: true},
	ItemDelivered: {},
	ItemCancelled: {},
}

func CanTransition(from, to Status) bool { return statusNext[from][to] }

func CanTransitionItem(from, to ItemStatus) bool { return itemStatusNext[from][to] }
