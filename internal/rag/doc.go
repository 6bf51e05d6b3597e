// Package rag assembles the context block for a chat request.
//
// The [Assembler] fans out to the session store, the memory documents,
// and the vector index according to the query's intent, truncates each
// source's contribution, and concatenates everything into one labeled
// [Block] plus a parallel citation list.
//
// The single most important rule here is failure absorption: every
// source is optional, and a failed or empty source contributes nothing
// and is logged at warning level. Assembly itself never returns an
// error; a fully degraded system still yields an empty Block and the
// request proceeds on the raw query alone.
//
// Self-queries are answered from the profile document and never touch
// the vector index, even when the profile is missing.
package rag
