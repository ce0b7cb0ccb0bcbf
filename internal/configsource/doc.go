// Package configsource resolves the values the echo demos print: environment
// variables and files, where a file reference may also point at an SSM
// parameter (ssm://name) or an S3 object (s3://bucket/key).
//
// Every failure is reported as ErrUnavailable. The HTTP layer never sees an
// error: Resolve degrades to a human readable fallback string instead.
package configsource
