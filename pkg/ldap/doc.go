/*
Package ldap is the directory client the enumeration pipeline consumes.

Client is one authenticated session exposing the query families the worker
dispatches on: whole-category streams (users, machines, groups, OUs, GPOs,
trusts, SPN entries), per-object reads (tokenGroups by DN, object ACL by DN)
and the single-shot domain info lookup. Streaming calls return lazy
iterators; at most one directory page is held in memory at a time.

Factory hands out sessions so each enumeration worker owns exactly one
connection. The production implementation sits on go-ldap with paged
searches; SID and GUID attributes are decoded from their binary AD layouts
here so the rest of the pipeline only ever sees string identifiers.
*/
package ldap
