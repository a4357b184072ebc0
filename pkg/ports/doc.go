/*
Package ports defines the driven ports (interfaces) for the chequeflow engine.

These interfaces decouple the workflow core from external implementations,
allowing the engine to work with any bank backend, audit backend or
coordination service.

# Key Interfaces

  - Transport: Performs the remote call behind each catalog operation.
  - Journal: Records an append-only audit trail of committed steps and rollbacks.
  - DistributedLocker: Provides distributed locking for concurrent session access.
*/
package ports
