// Package templateindex implements semantic template retrieval: templates
// are embedded at publish time and BestMatch ranks stage-eligible
// candidates by cosine similarity against the embedded query, subject to a
// configurable similarity floor. Subpackages adapt external embedding
// providers; the built-in hashing embedder is a zero-dependency default
// suitable for tests and demos only.
package templateindex
