// Package signature stamps purchase facts with keyed MACs so stored receipts
// can be re-verified at read time.
//
// A Fact is an ordered set of named fields. Its canonical form is a JSON
// object emitted in field order, so the field set and order used at signing
// must be reproduced exactly at verification. Signatures carry the id of the
// root key that produced them ("<keyID>:<hex>") which keeps old receipts
// verifiable after a key rotation.
package signature
