/*
Package chequeflow is a workflow orchestration engine for guided bank-instrument transactions.

A user selects an instrument, submits it for server-side validation and is routed through a sequence of screens whose order depends on what the server returns (bank type, inquiry step, comparison status). The engine keeps a navigation stack over asynchronous server operations, each with its own loading/error/data lifecycle, and treats "going back" as a server round trip: the stack only moves after the server acknowledges the rollback with a fresh request id.

# Concept

Each operation in the catalog (init-transaction, add-instrument, check-status, step-inquiry, delivery-info, rollback) owns a RequestSlice. Dispatching an operation moves its slice to Loading and calls the Transport in the background. When the result arrives it is applied only if it belongs to the newest dispatch of that operation and no rollback has committed since; the forward transition table then pushes the next screen or keeps the current one. A payload outside the declared domain halts the session instead of guessing.

# Key Features

  - Last-write-wins: superseded dispatches never overwrite newer results.
  - Two-phase back navigation with a configurable retry budget.
  - Pure view resolution: the same snapshot always yields the same ViewDescriptor.
  - Lifecycle hooks for metrics, journaling and live updates.

# Usage

	package main

	import (
		"context"
		"log"

		"github.com/aretw0/chequeflow"
		"github.com/aretw0/chequeflow/pkg/domain"
	)

	func main() {
		eng, err := chequeflow.New(myTransport,
			chequeflow.WithRollbackPolicy(chequeflow.RollbackPolicy{MaxAttempts: 3}),
		)
		if err != nil {
			log.Fatal(err)
		}

		ctx := context.Background()
		flow := eng.Start(ctx, "")
		defer flow.Close()

		if _, err := flow.Do(ctx, domain.OpInitTransaction, nil); err != nil {
			log.Fatal(err)
		}

		view, err := flow.CurrentView(ctx)
		if err != nil {
			log.Fatal(err)
		}
		log.Println("showing", view.View)
	}
*/
package chequeflow
