// Package vm defines the lifecycle types shared between the backend
// driver and its callers: the instance state enum, the immutable
// virtual machine description supplied at construction, the status
// monitor collaborator, and the error conditions callers are expected
// to distinguish.
//
// The package is backend-agnostic. The LXD driver in internal/lxd is
// currently the only consumer.
package vm
