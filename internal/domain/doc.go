// Package domain defines the core business entities of the generation
// service: accounts and their credit ledger, generation tasks with their
// state machine, and the artifacts a completed task produces.
package domain
