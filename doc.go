// Package mensa provides a composable school meal-credit ledger engine for Go
// applications.
//
// Mensa is designed as a library, not a service. Import it directly into your
// cafeteria or administration backend. It provides:
//
//   - Token balance accounts with an append-only ledger as source of truth
//   - One-meal-per-day consumption with calendar-day idempotence
//   - Free-meal periods that suspend token debits while active
//   - Sequential payment tickets (TCK-00001, TCK-00002, ...) for every purchase
//   - Best-effort receipt emails decoupled from ledger commits
//   - An idempotent daily sweep that activates and expires periods
//   - Pluggable hooks for audit trails and metrics
//
// # Quick Start
//
// Create an engine with your preferred store:
//
//	import (
//	    "github.com/xraph/mensa"
//	    "github.com/xraph/mensa/store/sqlite"
//	)
//
//	// Initialize store
//	store, err := sqlite.Open("mensa.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Create engine
//	m := mensa.New(store)
//
//	// Start (runs migrations, initializes plugins)
//	if err := m.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer m.Stop()
//
// # Core Concepts
//
// Accounts hold a token balance for one owner:
//
//	a, err := m.CreateAccount(ctx, "stu-1042", staff)
//
// Consumption records one meal per calendar day. During a free-meal period
// the balance is untouched; otherwise one token is debited, going negative
// (debt) when the balance is empty:
//
//	res, err := m.Consume(ctx, a.ID, mensa.ConsumeRequest{Actor: staff})
//
// Token purchases issue a payment with a sequential ticket and email a
// receipt:
//
//	res, err := m.AddTokens(ctx, a.ID, mensa.AddTokensRequest{Delta: 10, Actor: staff})
//	fmt.Println(res.Payment.TicketNumber) // TCK-00001
//
// Every balance change pairs with exactly one ledger entry, so for any
// account the stored balance always equals the sum of its entry changes:
//
//	rec, err := m.Reconcile(ctx, a.ID)
//
// # Integrity
//
// All writes go through the store's transactional Record methods guarded by
// an account version check; concurrent updates retry rather than clobber.
// Receipt delivery happens strictly after commit and never rolls ledger
// state back.
//
// # TypeID
//
// All entities use TypeID for globally unique, type-safe identifiers:
//
//	acct_01h2xcejqtf2nbrexx3vqjhp41  // Account ID
//	lent_01h2xcejqtf2nbrexx3vqjhp41  // Ledger entry ID
//	pay_01h455vb4pex5vsknk084sn02q   // Payment ID
//
// TypeIDs are K-sortable, making them ideal for database indexes and
// providing natural time-ordering of entities.
package mensa
