// Copyright (c) 2026 Lerian Studio. All rights reserved.
// Use of this source code is governed by the Elastic License 2.0
// that can be found in the LICENSE file.

// Package utils holds small, dependency-light helpers shared across the
// substrate: cache key string builders, env-driven config fallbacks,
// jittered retry timing, and pointer constructors. The key builders only
// format strings; neither the Consumer Runtime nor the RPC pool uses them.
package utils

import "github.com/google/uuid"

// BalanceSyncScheduleKey and BalanceSyncLockPrefix are the key names for
// a scheduled job and its lock prefix.
const (
	BalanceSyncScheduleKey = "schedule:{transactions}:balance-sync"
	BalanceSyncLockPrefix  = "lock:{transactions}:balance-sync:"
)

// IdempotencyReverseKey keys the reverse index (transaction id -> request)
// used to look up which idempotency key produced a given aggregate
// mutation, scoped to one organization/ledger pair.
func IdempotencyReverseKey(organizationID, ledgerID uuid.UUID, transactionID string) string {
	return "idempotency_reverse:{" + organizationID.String() + ":" + ledgerID.String() + "}:" + transactionID
}

// TransactionInternalKey keys a cached transaction row.
func TransactionInternalKey(organizationID, ledgerID uuid.UUID, key string) string {
	return "transaction:{transactions}:" + organizationID.String() + ":" + ledgerID.String() + ":" + key
}

// BalanceInternalKey keys a cached balance/projection row.
func BalanceInternalKey(organizationID, ledgerID uuid.UUID, key string) string {
	return "balance:{transactions}:" + organizationID.String() + ":" + ledgerID.String() + ":" + key
}

// IdempotencyInternalKey keys an idempotency-key (key -> response)
// record, scoped to one organization/ledger pair.
func IdempotencyInternalKey(organizationID, ledgerID uuid.UUID, key string) string {
	return "idempotency:{" + organizationID.String() + ":" + ledgerID.String() + ":" + key + "}"
}

// AccountingRoutesInternalKey keys a cached accounting-route lookup.
func AccountingRoutesInternalKey(organizationID, ledgerID, key uuid.UUID) string {
	return "accounting_routes:{" + organizationID.String() + ":" + ledgerID.String() + ":" + key.String() + "}"
}

// PendingTransactionLockKey keys the distributed lock held while a
// business transaction's outbox append is in flight.
func PendingTransactionLockKey(organizationID, ledgerID uuid.UUID, transactionID string) string {
	return "pending_transaction:{transaction}:" + organizationID.String() + ":" + ledgerID.String() + ":" + transactionID
}

// RedisConsumerLockKey keys a per-record consumer lock, scoped to one
// organization/ledger pair.
func RedisConsumerLockKey(organizationID, ledgerID uuid.UUID, transactionID string) string {
	return "redis_consumer_lock:{" + organizationID.String() + ":" + ledgerID.String() + "}:" + transactionID
}
