// Package keys centralizes key construction for the shared store.
//
// Data keys and coordination keys (rebuild mutexes, named locks, sale
// counters) live under distinct prefixes so they can never collide.
// External code MUST NOT write under these prefixes.
package keys

// Cache returns the data key for a cached entry.
func Cache(ns, key string) string { return "cache:" + ns + ":" + key }

// Mutex returns the rebuild-mutex key guarding a cached entry.
func Mutex(ns, key string) string { return "mutex:" + ns + ":" + key }

// Lock returns the key for a named distributed lock.
func Lock(name string) string { return "lock:" + name }

// Seq returns the daily sequence-counter key for ID generation.
func Seq(partition, day string) string { return "seq:" + partition + ":" + day }

// SaleStock returns the reserved-stock counter key for a sale resource.
func SaleStock(resourceID string) string { return "sale:stock:" + resourceID }

// SaleOrdered returns the per-resource dedup-set key for a sale resource.
func SaleOrdered(resourceID string) string { return "sale:ordered:" + resourceID }
