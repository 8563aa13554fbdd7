// Package queryir is a small query representation over the journal.
//
// A query selects records, each an invocation joined with its completion,
// by a predicate over a fixed set of journal fields. The representation is
// independent of storage: internal/querysql compiles it to parameterized
// SQL for the SQLite journal, and tests can evaluate it in memory with
// Match.
//
// Query and Predicate are sealed interfaces using the marker method
// pattern, so backends can switch exhaustively over the node types:
//
//	Select{
//	    Filter: And{Predicates: []Predicate{
//	        Equals{Field: FieldAction, Value: ir.String("Vote.vote")},
//	        Range{Field: FieldSeq, From: 10},
//	    }},
//	    Limit: 20,
//	}
//
// Field names are never taken from user input as SQL. Validate rejects
// unknown fields and values whose type does not fit the field, and every
// backend must call it before compiling.
//
// Results are always ordered by invocation seq, ascending unless
// Descending is set.
package queryir
