// Package utils provides virtual path manipulation and the logging
// facilities used across containerfs.
package utils
