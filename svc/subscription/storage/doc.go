// Package storage implements subscription.Store on MongoDB and PostgreSQL
// and subscription.EventLedger on Redis.
//
// Every status change is a single conditional write keyed by the record id
// and the status the caller read, which is what makes concurrent webhook
// deliveries and user cancels safe without locks.
package storage
