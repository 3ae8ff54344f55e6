// Package core defines the shared value types of the cube engine:
// dimension extractors, fact-table column descriptors, date reference rows,
// cube and preview payloads, the metadata store contract, and the error
// taxonomy. It has no I/O and no dependencies on the engine packages.
package core
