// Package server hosts the Fiber HTTP service, the request middleware chain,
// and the collection registry that maps configured collection names onto
// opened file caches. Route handlers live in the routes subpackage and read
// the resolved Collection from the request context, so keep exports narrow
// and accept explicit dependencies.
package server
