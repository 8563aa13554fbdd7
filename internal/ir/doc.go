// Package ir holds the foundational types shared by every other Kelsen
// package: principals, the call records written to the journal, the
// constrained value model used for call arguments and results, and the
// error kinds every governance operation fails with.
//
// ir imports nothing internal. Values are restricted to strings, int64,
// bools, lists and objects so that canonical JSON (and therefore every
// content-addressed id) is stable across runs.
package ir
