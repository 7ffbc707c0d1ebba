// Package types defines the shared records and interfaces of containerfs:
// file modes, security levels, resource limits and usage snapshots, file
// information, and the File and FileSystem contracts the container engine
// implements.
package types
