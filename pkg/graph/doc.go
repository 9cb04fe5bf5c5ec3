// Package graph defines the process graph for narrowband scripts.
// A process graph is an ordered list of operations on named level-set
// domains: declaring a domain, rasterizing geometry into it, combining,
// advecting and analysing it, and finally extracting meshes. Evaluating a
// script produces a new graph; executing it is the job of the tessellate
// package.
package graph
