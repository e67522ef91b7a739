// Package metadata describes callback interfaces for binding generators.
//
// An Interface is the declared shape of a callback trait: its module path,
// name and ordered methods. The shape serializes to a MetadataBuffer:
//
//	u8     ItemCallbackInterface
//	string module path
//	string interface name
//	u32    method count
//	bytes  method chunk (repeated)
//
// Each method chunk is length-prefixed so that readers skip fields they do not
// understand. Metadata is consumed by generators and shape checks only; the
// dispatch path never reads it.
package metadata
