// Package compress provides the codecs used for blob bodies.
//
// The codec kind is stored in the blob header together with the
// uncompressed body length, so decoders can allocate the output once and
// reject truncated or mismatched data.
package compress
