package order

import (
	"github.com/noah-isme/liff-store/internal/common"
	"github.com/noah-isme/liff-store/internal/db"
)

// CheckTransition reports whether an admin may move an order from one status to another. A
// move to the current status is a no-op and always allowed. Illegal moves carry a message
// telling the operator what to do instead.
func CheckTransition(from, to db.OrderStatus) error {
	if !to.Valid() {
		return common.ValidationError("unknown order status %q", to)
	}
	if from == to {
		return nil
	}
	switch to {
	case db.OrderStatusShipped:
		if from != db.OrderStatusPaid && from != db.OrderStatusUnshipped {
			return common.BusinessRuleError("only paid or unshipped orders can be shipped (order is %s)", from)
		}
	case db.OrderStatusDone:
		if from != db.OrderStatusShipped {
			return common.BusinessRuleError("only shipped orders can be completed (order is %s); ship it first", from)
		}
	case db.OrderStatusCancel:
		if from != db.OrderStatusUnpaid {
			return common.BusinessRuleError("only unpaid orders can be cancelled (order is %s); mark it unpaid first", from)
		}
	default:
		switch from {
		case db.OrderStatusShipped:
			return common.BusinessRuleError("order has already shipped; it can only be completed")
		case db.OrderStatusDone:
			return common.BusinessRuleError("order is completed and can no longer change")
		case db.OrderStatusCancel:
			return common.BusinessRuleError("order is cancelled and cannot be reopened; place a new order instead")
		}
	}
	return nil
}

// Removable reports whether an order may be soft-deleted.
func Removable(status db.OrderStatus) bool {
	return status == db.OrderStatusUnpaid || status == db.OrderStatusCancel
}

// Shippable reports whether bulk ship applies to an order in status.
func Shippable(status db.OrderStatus) bool {
	return status == db.OrderStatusPaid || status == db.OrderStatusUnshipped
}
