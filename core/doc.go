// Package core contains the canonical webhook pipeline contracts, entities, and
// error taxonomy. Stores, transports and processors depend on this package;
// core must not depend on any storage or transport adapter.
package core
