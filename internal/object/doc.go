// Package object defines the content-addressed object model for Telos.
//
// Every record in the store is one of a closed set of variants (Intent,
// Constraint, DecisionRecord, CodeBinding, AgentOperation, ChangeSet,
// BehaviorDiff, StreamSnapshot). The Object interface is sealed: only types in
// this package implement it, so a type switch over the variants is the
// complete list.
//
// Identity:
//   - Encode produces `<kind> 0x00 <canonical JSON>`. The kind is part of the
//     hashed bytes, so two variants can never share an ID.
//   - Canonical JSON follows RFC 8785: keys in UTF-16 order, no insignificant
//     whitespace, NFC-normalized strings, integers only, no null.
//   - Identify is SHA-256 over the encoded bytes, rendered as lowercase hex.
//
// This package imports nothing else internal except errs. Storage, indexing
// and validation of cross-object references live in higher layers.
package object
