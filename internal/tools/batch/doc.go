// Package batch provides helpers for tools that accept one id or a list of
// ids and apply the same operation to each.
//
// Items are processed in order. A failed item does not stop the batch; its
// error and error kind are reported next to the successful results.
package batch
