// Package queue manages the durable work item queue.
//
// Work items move through a lease lifecycle:
// pending -> processing -> complete|dead, with processing items returning
// to pending on failure until their attempts are exhausted. A processing
// item whose lease expired is claimable again, which makes crash recovery
// explicit and keeps claims exclusive across processes without any
// coordination beyond the store.
package queue
