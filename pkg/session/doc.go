/*
Package session keeps the live workflow sessions of a long-running server.

A Manager owns every Flow it creates, serializes callers that act on the same
session with a ref-counted local mutex and, when configured, a distributed
lock so that replicas sharing a journal never interleave commands for one
transaction.
*/
package session
