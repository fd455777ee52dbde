// Package abf decodes Axon Binary Format recordings (ABF1 and ABF2).
//
// Decoding reads the whole file once and keeps the raw data section in
// memory. Header fields are read from fixed byte offsets through a
// per-version layout table, selected once from the magic bytes:
//
//   - "ABF " : ABF1, a fixed 2048/6144-byte header with 16-entry ADC arrays
//   - "ABF2" : ABF2, a 76-byte file header followed by a section map
//
// Samples are never converted eagerly. A ChannelView converts raw integer
// (or float32) samples to physical units on read:
//
//	physical = raw*gain + offset
//
// No file handle outlives Decode.
package abf
