// Package xchpay provides subscription billing settled in XCH for Go
// applications.
//
// xchpay is designed as a library, not a service. Import it into your Go
// application, give it a store, a chain gateway and a product catalog, and it
// takes care of:
//
//   - Issuing invoices, each backed by a fresh on-chain receiving address
//   - Reconciling confirmed transactions against invoices, idempotently
//   - Accepting installments and overpayments
//   - Activating subscriptions exactly once when their invoice is settled
//   - Renewal invoices, expiration notices, grace periods and termination
//
// # Quick Start
//
//	import (
//	    "github.com/xraph/xchpay"
//	    "github.com/xraph/xchpay/chain/rpc"
//	    "github.com/xraph/xchpay/product"
//	    "github.com/xraph/xchpay/store/postgres"
//	)
//
//	catalog, err := product.LoadFile("products.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	wallet, err := rpc.New(rpc.Config{
//	    URL:      "https://localhost:9256",
//	    WalletID: 1,
//	    CertFile: "private_wallet.crt",
//	    KeyFile:  "private_wallet.key",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	engine := xchpay.New(postgres.New(db),
//	    xchpay.WithGateway(wallet),
//	    xchpay.WithCatalog(catalog),
//	)
//
//	// Start migrates the store and schedules payment polling and the
//	// daily lifecycle sweeps.
//	if err := engine.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.Stop()
//
// # Core Concepts
//
// A subscription is created pending, together with its first invoice:
//
//	sub, err := engine.CreateSubscription(ctx, userID, "node-small",
//	    subscription.Params{Region: "eu-west", Size: "small"})
//
// The reconciler polls the invoice address. Every confirmed coin is recorded
// once per invoice; when the amount paid covers the amount due the invoice
// flips to paid and the subscription becomes active:
//
//	inv, err := engine.CheckForPayment(ctx, invoiceID)
//
// Active subscriptions ending within the expiration window get a renewal
// invoice. On their end date they enter grace_period, and paying the renewal
// invoice brings them back to active with a new billing period.
//
// # Money
//
// All monetary calculations use integer arithmetic in mojos, the smallest
// XCH unit (10^12 mojos per XCH). Display amounts are derived with exact
// decimals.
//
// # TypeID
//
// All entities use TypeID for globally unique, type-safe identifiers:
//
//	sub_01h2xcejqtf2nbrexx3vqjhp41   // Subscription ID
//	inv_01h455vb4pex5vsknk084sn02q   // Invoice ID (the public invoice guid)
package xchpay
