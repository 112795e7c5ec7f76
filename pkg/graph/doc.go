/*
Package graph loads a domain graph from the store and answers shortest
path queries over it.

Loading goes through a per-graph edges.csv cache: edges whose endpoints
resolve to a directory identifier are streamed out of the store once and
replayed from disk afterwards. The in-memory representation is a directed
gonum graph whose vertex identity is the edge lookup id; edge labels stay
in the store and are recovered during result assembly.
*/
package graph
