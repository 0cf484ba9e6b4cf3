// Package pagination follows the Canvas Link-header page protocol and
// exposes pages and items as lazy sequences. No page is fetched until a
// consumer pulls it, so short-circuiting combinators (Take, Filter) never
// trigger requests for pages they do not consume.
//
// The first request of a traversal is built from the endpoint and query
// parameters; every subsequent request uses the rel="next" URL from the
// prior response verbatim, without re-merging the original parameters.
package pagination
