package xchpay

import (
	"fmt"
	"time"

	"github.com/xraph/xchpay/invoice"
	"github.com/xraph/xchpay/notify"
	"github.com/xraph/xchpay/subscription"
)

const noticeDateLayout = "January 2, 2006"

func invoiceNotice(inv *invoice.Invoice, productName, url string) notify.Message {
	return notify.Message{
		Subject: "Invoice for " + productName,
		Body: fmt.Sprintf("A new invoice for %s has been issued.\n\n"+
			"Amount due: %s\n"+
			"Payment address: %s\n"+
			"Due by: %s\n\n"+
			"View and pay your invoice at %s",
			productName,
			inv.TotalAmountDue,
			inv.PaymentAddress,
			inv.DueDate.Format(noticeDateLayout),
			url,
		),
	}
}

func expirationNotice(sub *subscription.Subscription, inv *invoice.Invoice, url string) notify.Message {
	return notify.Message{
		Subject: "Your " + sub.ProductKey + " subscription expires soon",
		Body: fmt.Sprintf("Your %s subscription expires on %s.\n\n"+
			"To renew it, pay %s to %s.\n\n"+
			"Renewal invoice: %s",
			sub.ProductKey,
			sub.EndDate.Format(noticeDateLayout),
			inv.Outstanding(),
			inv.PaymentAddress,
			url,
		),
	}
}

func gracePeriodNotice(sub *subscription.Subscription, graceEnds time.Time) notify.Message {
	return notify.Message{
		Subject: "Your " + sub.ProductKey + " subscription has expired",
		Body: fmt.Sprintf("Your %s subscription expired on %s.\n\n"+
			"It stays available during a grace period until %s. "+
			"Pay your renewal invoice before then to keep it running.",
			sub.ProductKey,
			sub.EndDate.Format(noticeDateLayout),
			graceEnds.Format(noticeDateLayout),
		),
	}
}

func terminationNotice(sub *subscription.Subscription) notify.Message {
	return notify.Message{
		Subject: "Your " + sub.ProductKey + " subscription was terminated",
		Body: fmt.Sprintf("Your %s subscription has been terminated and its resources will be released.",
			sub.ProductKey),
	}
}
