// Package service contains the application use cases: registering and
// authenticating accounts, and submitting, cancelling and observing
// generation tasks.
//
// Services coordinate the stores defined in internal/store through a
// store.Transactor so that a charge and the task it pays for, or a terminal
// transition and its refund, are written together. They depend on store
// interfaces and never on a concrete backend.
//
// Error handling:
//   - Expected conditions are reported with sentinel errors from this package,
//     internal/domain and internal/store, checked with errors.Is.
//   - Unexpected failures are wrapped in *ServiceError with the operation name.
//   - The API layer maps the sentinels to HTTP status codes.
package service
