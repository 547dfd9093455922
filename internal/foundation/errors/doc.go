// Package errors provides the classified error primitives used across pressroom.
//
// A ClassifiedError carries a category (config, compile, filesystem, abort, ...),
// a severity and structured context. The CLI adapter maps categories to process
// exit codes.
//
// Example usage:
//
//	err := errors.WrapError(ioErr, errors.CategoryFileSystem, "write artifact").
//		WithContext("path", outPath).
//		Build()
package errors
