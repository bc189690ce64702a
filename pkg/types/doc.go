// Package types defines the public diagnostic model produced by the heap
// corruption checker: fault kinds, node attribution, and the scan report.
package types
