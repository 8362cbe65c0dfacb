// Package ports defines the interfaces that connect the delivery pipeline
// in internal/app to infrastructure adapters.
//
// # Port Interfaces
//
//   - [Dialer] and [Conn]: open and use one persistent collector connection
//   - [BatchEncoder]: turn an ordered batch into a request body
//   - [BodyCompressor]: optional content encoding for request bodies
//   - [Recorder]: metrics sink for pipeline events
//   - [Logger]: structured logging abstraction
//   - [HTTPClient]: HTTP request abstraction for dependency injection
//
// The application layer depends only on these interfaces. Adapters in
// internal/adapters and internal/codec provide the concrete implementations
// (net/http, msgpack, cbor, gzip, prometheus, zerolog).
package ports
