// Package codec turns batches into request bodies.
//
// Three batch encodings are supported. Each encodes the batch as a single
// array whose elements are the messages in enqueue order:
//
//   - msgpack: each message becomes a msgpack string (the collector default)
//   - msgpack-raw: each message is already one encoded msgpack value and is
//     copied into the array verbatim
//   - cbor: each message becomes a CBOR byte string
//
// Bodies may additionally be gzip-compressed with [Gzip].
package codec
